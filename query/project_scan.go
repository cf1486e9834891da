package query

import (
	"fmt"
	"slices"
)

// ProjectScan hides every field of its underlying scan except the listed ones.
type ProjectScan struct {
	scan   Scan
	fields []string
}

func NewProjectScan(scan Scan, fields []string) *ProjectScan {
	return &ProjectScan{
		scan:   scan,
		fields: fields,
	}
}

func (ps *ProjectScan) BeforeFirst() error {
	return ps.scan.BeforeFirst()
}

func (ps *ProjectScan) Next() (bool, error) {
	return ps.scan.Next()
}

func (ps *ProjectScan) GetInt(fieldName string) (int32, error) {
	if !ps.HasField(fieldName) {
		return 0, fmt.Errorf("%w: %s", ErrFieldNotFound, fieldName)
	}
	return ps.scan.GetInt(fieldName)
}

func (ps *ProjectScan) GetString(fieldName string) (string, error) {
	if !ps.HasField(fieldName) {
		return "", fmt.Errorf("%w: %s", ErrFieldNotFound, fieldName)
	}
	return ps.scan.GetString(fieldName)
}

func (ps *ProjectScan) GetVal(fieldName string) (Constant, error) {
	if !ps.HasField(fieldName) {
		return Constant{}, fmt.Errorf("%w: %s", ErrFieldNotFound, fieldName)
	}
	return ps.scan.GetVal(fieldName)
}

func (ps *ProjectScan) HasField(fieldName string) bool {
	return slices.Contains(ps.fields, fieldName)
}

func (ps *ProjectScan) Close() {
	ps.scan.Close()
}
