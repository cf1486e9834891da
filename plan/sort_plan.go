package plan

import (
	"minidb/query"
	"minidb/record"
)

// SortPlan orders the records of its child. The child is read into memory
// when the plan is opened.
type SortPlan struct {
	plan Plan
	keys []query.SortKey
}

func NewSortPlan(plan Plan, keys []query.SortKey) *SortPlan {
	return &SortPlan{plan: plan, keys: keys}
}

func (sp *SortPlan) Open() (query.Scan, error) {
	fields := sp.plan.Schema().Fields()
	rows, err := materialize(sp.plan, fields)
	if err != nil {
		return nil, err
	}
	query.SortRows(rows, fields, sp.keys)
	return query.NewRowScan(fields, rows), nil
}

func (sp *SortPlan) BlocksAccessed() int32 {
	return sp.plan.BlocksAccessed()
}

func (sp *SortPlan) RecordsOutput() int32 {
	return sp.plan.RecordsOutput()
}

func (sp *SortPlan) DistinctValues(fieldName string) int32 {
	return sp.plan.DistinctValues(fieldName)
}

func (sp *SortPlan) Schema() *record.Schema {
	return sp.plan.Schema()
}

// DistinctPlan drops duplicate records of its child, keeping the first of
// each.
type DistinctPlan struct {
	plan Plan
}

func NewDistinctPlan(plan Plan) *DistinctPlan {
	return &DistinctPlan{plan: plan}
}

func (dp *DistinctPlan) Open() (query.Scan, error) {
	fields := dp.plan.Schema().Fields()
	rows, err := materialize(dp.plan, fields)
	if err != nil {
		return nil, err
	}
	return query.NewRowScan(fields, query.DistinctRows(rows)), nil
}

func (dp *DistinctPlan) BlocksAccessed() int32 {
	return dp.plan.BlocksAccessed()
}

// RecordsOutput is bounded by the number of combinations of distinct field
// values.
func (dp *DistinctPlan) RecordsOutput() int32 {
	combinations := int64(1)
	for _, fieldName := range dp.plan.Schema().Fields() {
		combinations = min(combinations*int64(dp.plan.DistinctValues(fieldName)), int64(dp.plan.RecordsOutput()))
	}
	return saturate(combinations)
}

func (dp *DistinctPlan) DistinctValues(fieldName string) int32 {
	return dp.plan.DistinctValues(fieldName)
}

func (dp *DistinctPlan) Schema() *record.Schema {
	return dp.plan.Schema()
}

// LimitPlan outputs at most limit records of its child.
type LimitPlan struct {
	plan  Plan
	limit int32
}

func NewLimitPlan(plan Plan, limit int32) *LimitPlan {
	return &LimitPlan{plan: plan, limit: limit}
}

func (lp *LimitPlan) Open() (query.Scan, error) {
	scan, err := lp.plan.Open()
	if err != nil {
		return nil, err
	}
	return query.NewLimitScan(scan, lp.limit), nil
}

func (lp *LimitPlan) BlocksAccessed() int32 {
	return lp.plan.BlocksAccessed()
}

func (lp *LimitPlan) RecordsOutput() int32 {
	return min(lp.plan.RecordsOutput(), lp.limit)
}

func (lp *LimitPlan) DistinctValues(fieldName string) int32 {
	return min(lp.plan.DistinctValues(fieldName), lp.RecordsOutput())
}

func (lp *LimitPlan) Schema() *record.Schema {
	return lp.plan.Schema()
}

// materialize runs a plan to completion and returns its records. The scan
// is closed before returning, so no buffers stay pinned.
func materialize(p Plan, fields []string) ([][]query.Constant, error) {
	scan, err := p.Open()
	if err != nil {
		return nil, err
	}
	defer scan.Close()
	return query.Materialize(scan, fields)
}
