package plan

import (
	"minidb/metadata"
	"minidb/query"
	"minidb/record"
)

// IndexSelectPlan reads the records of a table whose indexed field equals a
// constant through the index.
type IndexSelectPlan struct {
	plan *TablePlan
	ii   *metadata.IndexInfo
	val  query.Constant
}

func NewIndexSelectPlan(plan *TablePlan, ii *metadata.IndexInfo, val query.Constant) *IndexSelectPlan {
	return &IndexSelectPlan{plan: plan, ii: ii, val: val}
}

func (p *IndexSelectPlan) Open() (query.Scan, error) {
	ts, err := p.plan.openTable()
	if err != nil {
		return nil, err
	}
	idx := p.ii.Open(p.plan.tx)
	scan, err := query.NewIndexSelectScan(ts, idx, p.val)
	if err != nil {
		idx.Close()
		ts.Close()
		return nil, err
	}
	return scan, nil
}

// BlocksAccessed counts one index search plus one data block per matching
// record.
func (p *IndexSelectPlan) BlocksAccessed() int32 {
	return saturate(int64(p.ii.BlocksAccessed()) + int64(p.RecordsOutput()))
}

func (p *IndexSelectPlan) RecordsOutput() int32 {
	return p.ii.RecordsOutput()
}

func (p *IndexSelectPlan) DistinctValues(fieldName string) int32 {
	return p.ii.DistinctValues(fieldName)
}

func (p *IndexSelectPlan) Schema() *record.Schema {
	return p.plan.Schema()
}

// IndexJoinPlan joins plan1 with a table by looking up, for each record of
// plan1, the table records whose indexed field equals joinField.
type IndexJoinPlan struct {
	plan1     Plan
	plan2     *TablePlan
	ii        *metadata.IndexInfo
	joinField string
	schema    *record.Schema
}

func NewIndexJoinPlan(plan1 Plan, plan2 *TablePlan, ii *metadata.IndexInfo, joinField string) *IndexJoinPlan {
	schema := record.NewSchema()
	schema.AddAll(plan1.Schema())
	schema.AddAll(plan2.Schema())
	return &IndexJoinPlan{plan1: plan1, plan2: plan2, ii: ii, joinField: joinField, schema: schema}
}

func (p *IndexJoinPlan) Open() (query.Scan, error) {
	lhs, err := p.plan1.Open()
	if err != nil {
		return nil, err
	}
	ts, err := p.plan2.openTable()
	if err != nil {
		lhs.Close()
		return nil, err
	}
	idx := p.ii.Open(p.plan2.tx)
	scan, err := query.NewIndexJoinScan(lhs, idx, p.joinField, ts)
	if err != nil {
		lhs.Close()
		idx.Close()
		ts.Close()
		return nil, err
	}
	return scan, nil
}

// BlocksAccessed counts one pass over plan1, one index search per record of
// plan1 and one data block per output record.
func (p *IndexJoinPlan) BlocksAccessed() int32 {
	searches := int64(p.plan1.RecordsOutput()) * int64(p.ii.BlocksAccessed())
	return saturate(int64(p.plan1.BlocksAccessed()) + searches + int64(p.RecordsOutput()))
}

func (p *IndexJoinPlan) RecordsOutput() int32 {
	return saturate(int64(p.plan1.RecordsOutput()) * int64(p.ii.RecordsOutput()))
}

func (p *IndexJoinPlan) DistinctValues(fieldName string) int32 {
	if p.plan1.Schema().HasField(fieldName) {
		return p.plan1.DistinctValues(fieldName)
	}
	return p.plan2.DistinctValues(fieldName)
}

func (p *IndexJoinPlan) Schema() *record.Schema {
	return p.schema
}
