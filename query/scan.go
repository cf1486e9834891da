package query

import (
	"errors"

	"minidb/record"
)

// ErrFieldNotFound is returned when a scan is asked for a field it does not
// have.
var ErrFieldNotFound = errors.New("query: field not found")

// ErrTypeMismatch is returned when a value does not match the type of the
// field it is stored in.
var ErrTypeMismatch = errors.New("query: type mismatch")

// Scan iterates over the output records of a query.
type Scan interface {
	BeforeFirst() error
	Next() (bool, error)
	GetInt(fieldName string) (int32, error)
	GetString(fieldName string) (string, error)
	GetVal(fieldName string) (Constant, error)
	HasField(fieldName string) bool
	Close()
}

// UpdateScan is a scan whose current record can be modified.
type UpdateScan interface {
	Scan
	SetInt(fieldName string, value int32) error
	SetString(fieldName string, value string) error
	SetVal(fieldName string, value Constant) error
	Insert() error
	Delete() error
	RID() record.RID
	MoveToRID(rid record.RID) error
}
