package query

import (
	"math"

	"minidb/record"
)

// DistinctCounter estimates how many distinct values a field takes. Plans
// implement it.
type DistinctCounter interface {
	DistinctValues(fieldName string) int32
}

// Term is an equality comparison between two expressions.
type Term struct {
	lhs Expression
	rhs Expression
}

func NewTerm(lhs Expression, rhs Expression) Term {
	return Term{
		lhs: lhs,
		rhs: rhs,
	}
}

func (t Term) IsSatisfied(scan Scan) (bool, error) {
	lhsVal, err := t.lhs.Evaluate(scan)
	if err != nil {
		return false, err
	}
	rhsVal, err := t.rhs.Evaluate(scan)
	if err != nil {
		return false, err
	}
	return lhsVal == rhsVal, nil
}

func (t Term) AppliesTo(schema *record.Schema) bool {
	return t.lhs.AppliesTo(schema) && t.rhs.AppliesTo(schema)
}

// ReductionFactor estimates by how much the term shrinks the output of a
// plan.
func (t Term) ReductionFactor(plan DistinctCounter) int32 {
	switch {
	case t.lhs.IsFieldName() && t.rhs.IsFieldName():
		return max(plan.DistinctValues(t.lhs.AsFieldName()), plan.DistinctValues(t.rhs.AsFieldName()))
	case t.lhs.IsFieldName():
		return plan.DistinctValues(t.lhs.AsFieldName())
	case t.rhs.IsFieldName():
		return plan.DistinctValues(t.rhs.AsFieldName())
	case t.lhs.AsConstant() == t.rhs.AsConstant():
		return 1
	default:
		return math.MaxInt32
	}
}

// EquatesWithConstant returns c if the term has the form "F = c".
func (t Term) EquatesWithConstant(fieldName string) (Constant, bool) {
	if t.lhs.IsFieldName() && t.lhs.AsFieldName() == fieldName && !t.rhs.IsFieldName() {
		return t.rhs.AsConstant(), true
	}
	if t.rhs.IsFieldName() && t.rhs.AsFieldName() == fieldName && !t.lhs.IsFieldName() {
		return t.lhs.AsConstant(), true
	}
	return Constant{}, false
}

// EquatesWithField returns G if the term has the form "F = G".
func (t Term) EquatesWithField(fieldName string) (string, bool) {
	if t.lhs.IsFieldName() && t.lhs.AsFieldName() == fieldName && t.rhs.IsFieldName() {
		return t.rhs.AsFieldName(), true
	}
	if t.rhs.IsFieldName() && t.rhs.AsFieldName() == fieldName && t.lhs.IsFieldName() {
		return t.lhs.AsFieldName(), true
	}
	return "", false
}

func (t Term) String() string {
	return t.lhs.String() + " = " + t.rhs.String()
}
