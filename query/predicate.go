package query

import (
	"math"
	"slices"
	"strings"

	"minidb/record"
)

// Predicate is a conjunction of terms. The zero value has no terms and is
// satisfied by every record.
type Predicate struct {
	terms []Term
}

func NewPredicate(term Term) *Predicate {
	return &Predicate{
		terms: []Term{term},
	}
}

func (p *Predicate) ConjoinWith(pred *Predicate) {
	if pred == nil {
		return
	}
	p.terms = append(p.terms, pred.terms...)
}

func (p *Predicate) IsEmpty() bool {
	return p == nil || len(p.terms) == 0
}

func (p *Predicate) IsSatisfied(scan Scan) (bool, error) {
	if p == nil {
		return true, nil
	}
	for _, term := range p.terms {
		ok, err := term.IsSatisfied(scan)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// ReductionFactor multiplies the reduction factors of the terms, saturating
// at math.MaxInt32.
func (p *Predicate) ReductionFactor(plan DistinctCounter) int32 {
	if p == nil {
		return 1
	}
	factor := int64(1)
	for _, term := range p.terms {
		factor = min(factor*int64(term.ReductionFactor(plan)), math.MaxInt32)
	}
	return int32(factor)
}

// SelectSubPred returns the terms that apply to the schema, or nil.
func (p *Predicate) SelectSubPred(schema *record.Schema) *Predicate {
	if p == nil {
		return nil
	}
	res := &Predicate{}
	for _, term := range p.terms {
		if term.AppliesTo(schema) {
			res.terms = append(res.terms, term)
		}
	}
	if len(res.terms) == 0 {
		return nil
	}
	return res
}

// JoinSubPred returns the terms that apply to the union of the two schemas
// but to neither schema alone, or nil.
func (p *Predicate) JoinSubPred(schema1 *record.Schema, schema2 *record.Schema) *Predicate {
	if p == nil {
		return nil
	}
	res := &Predicate{}
	newSchema := record.NewSchema()
	newSchema.AddAll(schema1)
	newSchema.AddAll(schema2)
	for _, term := range p.terms {
		if !term.AppliesTo(schema1) && !term.AppliesTo(schema2) && term.AppliesTo(newSchema) {
			res.terms = append(res.terms, term)
		}
	}
	if len(res.terms) == 0 {
		return nil
	}
	return res
}

func (p *Predicate) EquatesWithConstant(fieldName string) (Constant, bool) {
	if p == nil {
		return Constant{}, false
	}
	for _, term := range p.terms {
		if val, ok := term.EquatesWithConstant(fieldName); ok {
			return val, true
		}
	}
	return Constant{}, false
}

func (p *Predicate) EquatesWithField(fieldName string) (string, bool) {
	if p == nil {
		return "", false
	}
	for _, term := range p.terms {
		if val, ok := term.EquatesWithField(fieldName); ok {
			return val, true
		}
	}
	return "", false
}

// FieldNames returns the names of the fields the predicate mentions, in the
// order they appear.
func (p *Predicate) FieldNames() []string {
	if p == nil {
		return nil
	}
	var names []string
	for _, term := range p.terms {
		for _, e := range []Expression{term.lhs, term.rhs} {
			if e.IsFieldName() && !slices.Contains(names, e.AsFieldName()) {
				names = append(names, e.AsFieldName())
			}
		}
	}
	return names
}

func (p *Predicate) String() string {
	if p == nil {
		return ""
	}
	parts := make([]string, len(p.terms))
	for i, term := range p.terms {
		parts[i] = term.String()
	}
	return strings.Join(parts, " and ")
}
