package query

import (
	"fmt"

	"minidb/record"
	"minidb/transaction"
)

// TableScan adapts a record.TableScan to UpdateScan by converting field
// values to and from Constants according to the table's schema.
type TableScan struct {
	*record.TableScan
	schema *record.Schema
}

func NewTableScan(tx *transaction.Transaction, tableName string, layout *record.Layout) (*TableScan, error) {
	ts, err := record.NewTableScan(tx, tableName, layout)
	if err != nil {
		return nil, err
	}
	return &TableScan{TableScan: ts, schema: layout.Schema()}, nil
}

func (ts *TableScan) GetVal(fieldName string) (Constant, error) {
	if !ts.schema.HasField(fieldName) {
		return Constant{}, fmt.Errorf("%w: %s", ErrFieldNotFound, fieldName)
	}
	if ts.schema.FieldType(fieldName) == record.Integer {
		v, err := ts.GetInt(fieldName)
		return NewIntConstant(v), err
	}
	s, err := ts.GetString(fieldName)
	return NewStringConstant(s), err
}

func (ts *TableScan) SetVal(fieldName string, value Constant) error {
	if !ts.schema.HasField(fieldName) {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, fieldName)
	}
	wantString := ts.schema.FieldType(fieldName) == record.Varchar
	if value.IsString() != wantString {
		return fmt.Errorf("%w: field %s is %s, got %s", ErrTypeMismatch, fieldName, ts.schema.FieldType(fieldName), value)
	}
	if wantString {
		return ts.SetString(fieldName, value.AsString())
	}
	return ts.SetInt(fieldName, value.AsInt())
}
