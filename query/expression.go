package query

import "minidb/record"

// Expression is either a constant or a field name.
type Expression struct {
	constant  Constant
	fieldName string
	isField   bool
}

func NewConstantExpression(value Constant) Expression {
	return Expression{constant: value}
}

func NewFieldExpression(fieldName string) Expression {
	return Expression{fieldName: fieldName, isField: true}
}

func (e Expression) IsFieldName() bool {
	return e.isField
}

func (e Expression) AsConstant() Constant {
	return e.constant
}

func (e Expression) AsFieldName() string {
	return e.fieldName
}

// Evaluate returns the expression's value for the scan's current record.
func (e Expression) Evaluate(scan Scan) (Constant, error) {
	if !e.isField {
		return e.constant, nil
	}
	return scan.GetVal(e.fieldName)
}

// AppliesTo reports whether every field the expression mentions is in the
// schema.
func (e Expression) AppliesTo(schema *record.Schema) bool {
	if !e.isField {
		return true
	}
	return schema.HasField(e.fieldName)
}

func (e Expression) String() string {
	if e.isField {
		return e.fieldName
	}
	return e.constant.String()
}
