// Package plan builds and costs relational algebra trees for SQL statements.
package plan

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"minidb/metadata"
	"minidb/query"
	"minidb/record"
	"minidb/transaction"
)

var (
	ErrUnknownTable = errors.New("plan: unknown table")
	ErrUnknownField = errors.New("plan: unknown field")
)

// Plan is a node of a query tree. It estimates the cost of its scan without
// opening it.
type Plan interface {
	Open() (query.Scan, error)
	BlocksAccessed() int32
	RecordsOutput() int32
	DistinctValues(fieldName string) int32
	Schema() *record.Schema
}

func saturate(n int64) int32 {
	return int32(min(n, math.MaxInt32))
}

// TablePlan reads every record of a stored table.
type TablePlan struct {
	tx        *transaction.Transaction
	tableName string
	layout    *record.Layout
	statInfo  metadata.StatInfo
}

func NewTablePlan(tx *transaction.Transaction, tableName string, md *metadata.Manager) (*TablePlan, error) {
	layout, err := tableLayout(md, tableName, tx)
	if err != nil {
		return nil, err
	}
	statInfo, err := md.StatInfo(tableName, layout, tx)
	if err != nil {
		return nil, err
	}
	return &TablePlan{
		tx:        tx,
		tableName: tableName,
		layout:    layout,
		statInfo:  statInfo,
	}, nil
}

func tableLayout(md *metadata.Manager, tableName string, tx *transaction.Transaction) (*record.Layout, error) {
	layout, err := md.Layout(tableName, tx)
	if errors.Is(err, metadata.ErrTableNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, tableName)
	}
	return layout, err
}

func (tp *TablePlan) Open() (query.Scan, error) {
	return tp.openTable()
}

func (tp *TablePlan) openTable() (*query.TableScan, error) {
	return query.NewTableScan(tp.tx, tp.tableName, tp.layout)
}

func (tp *TablePlan) BlocksAccessed() int32 {
	return tp.statInfo.BlocksAccessed()
}

func (tp *TablePlan) RecordsOutput() int32 {
	return tp.statInfo.RecordsOutput()
}

func (tp *TablePlan) DistinctValues(fieldName string) int32 {
	return tp.statInfo.DistinctValues(fieldName)
}

func (tp *TablePlan) Schema() *record.Schema {
	return tp.layout.Schema()
}

// SelectPlan keeps the records of its child that satisfy a predicate.
type SelectPlan struct {
	plan Plan
	pred *query.Predicate
}

func NewSelectPlan(plan Plan, pred *query.Predicate) *SelectPlan {
	return &SelectPlan{plan: plan, pred: pred}
}

func (sp *SelectPlan) Open() (query.Scan, error) {
	scan, err := sp.plan.Open()
	if err != nil {
		return nil, err
	}
	return query.NewSelectScan(scan, sp.pred), nil
}

func (sp *SelectPlan) BlocksAccessed() int32 {
	return sp.plan.BlocksAccessed()
}

func (sp *SelectPlan) RecordsOutput() int32 {
	return sp.plan.RecordsOutput() / max(sp.pred.ReductionFactor(sp.plan), 1)
}

func (sp *SelectPlan) DistinctValues(fieldName string) int32 {
	if _, ok := sp.pred.EquatesWithConstant(fieldName); ok {
		return 1
	}
	if other, ok := sp.pred.EquatesWithField(fieldName); ok {
		return min(sp.plan.DistinctValues(fieldName), sp.plan.DistinctValues(other))
	}
	return sp.plan.DistinctValues(fieldName)
}

func (sp *SelectPlan) Schema() *record.Schema {
	return sp.plan.Schema()
}

// ProjectPlan keeps only the listed fields of its child.
type ProjectPlan struct {
	plan   Plan
	schema *record.Schema
}

func NewProjectPlan(plan Plan, fields []string) *ProjectPlan {
	schema := record.NewSchema()
	for _, fieldName := range fields {
		schema.Add(fieldName, plan.Schema())
	}
	return &ProjectPlan{plan: plan, schema: schema}
}

func (pp *ProjectPlan) Open() (query.Scan, error) {
	scan, err := pp.plan.Open()
	if err != nil {
		return nil, err
	}
	return query.NewProjectScan(scan, pp.schema.Fields()), nil
}

func (pp *ProjectPlan) BlocksAccessed() int32 {
	return pp.plan.BlocksAccessed()
}

func (pp *ProjectPlan) RecordsOutput() int32 {
	return pp.plan.RecordsOutput()
}

func (pp *ProjectPlan) DistinctValues(fieldName string) int32 {
	return pp.plan.DistinctValues(fieldName)
}

func (pp *ProjectPlan) Schema() *record.Schema {
	return pp.schema
}

// ProductPlan pairs every record of its first child with every record of its
// second.
type ProductPlan struct {
	plan1  Plan
	plan2  Plan
	schema *record.Schema
}

func NewProductPlan(plan1 Plan, plan2 Plan) *ProductPlan {
	schema := record.NewSchema()
	schema.AddAll(plan1.Schema())
	schema.AddAll(plan2.Schema())
	return &ProductPlan{plan1: plan1, plan2: plan2, schema: schema}
}

func (pp *ProductPlan) Open() (query.Scan, error) {
	scan1, err := pp.plan1.Open()
	if err != nil {
		return nil, err
	}
	scan2, err := pp.plan2.Open()
	if err != nil {
		scan1.Close()
		return nil, err
	}
	scan, err := query.NewProductScan(scan1, scan2)
	if err != nil {
		scan1.Close()
		scan2.Close()
		return nil, err
	}
	return scan, nil
}

// BlocksAccessed counts one pass over the first child plus one pass over the
// second child per record of the first.
func (pp *ProductPlan) BlocksAccessed() int32 {
	return saturate(int64(pp.plan1.BlocksAccessed()) + int64(pp.plan1.RecordsOutput())*int64(pp.plan2.BlocksAccessed()))
}

func (pp *ProductPlan) RecordsOutput() int32 {
	return saturate(int64(pp.plan1.RecordsOutput()) * int64(pp.plan2.RecordsOutput()))
}

func (pp *ProductPlan) DistinctValues(fieldName string) int32 {
	if pp.plan1.Schema().HasField(fieldName) {
		return pp.plan1.DistinctValues(fieldName)
	}
	return pp.plan2.DistinctValues(fieldName)
}

func (pp *ProductPlan) Schema() *record.Schema {
	return pp.schema
}

// Describe renders a plan tree, one node per line, with the cost estimates
// of each node.
func Describe(p Plan) string {
	var lines []string
	describe(p, "", true, true, &lines)
	return strings.Join(lines, "\n")
}

func describe(p Plan, prefix string, last, root bool, lines *[]string) {
	var line strings.Builder
	if !root {
		line.WriteString(prefix)
		if last {
			line.WriteString("└─ ")
		} else {
			line.WriteString("├─ ")
		}
	}

	var name, props string
	var children []Plan
	switch n := p.(type) {
	case *TablePlan:
		name, props = "Table", "table="+n.tableName
	case *SelectPlan:
		name, props = "Select", "pred="+n.pred.String()
		children = []Plan{n.plan}
	case *ProjectPlan:
		name, props = "Project", "fields="+strings.Join(n.schema.Fields(), ",")
		children = []Plan{n.plan}
	case *ProductPlan:
		name = "Product"
		children = []Plan{n.plan1, n.plan2}
	case *IndexSelectPlan:
		name, props = "IndexSelect", fmt.Sprintf("index=%s,value=%s", n.ii.Name(), n.val)
		children = []Plan{n.plan}
	case *IndexJoinPlan:
		name, props = "IndexJoin", fmt.Sprintf("index=%s,on=%s", n.ii.Name(), n.joinField)
		children = []Plan{n.plan1, n.plan2}
	case *SortPlan:
		keys := make([]string, len(n.keys))
		for i, k := range n.keys {
			keys[i] = k.String()
		}
		name, props = "Sort", "order="+strings.Join(keys, ",")
		children = []Plan{n.plan}
	case *DistinctPlan:
		name = "Distinct"
		children = []Plan{n.plan}
	case *LimitPlan:
		name, props = "Limit", fmt.Sprintf("n=%d", n.limit)
		children = []Plan{n.plan}
	default:
		name = fmt.Sprintf("%T", p)
	}
	if props != "" {
		props += ","
	}
	fmt.Fprintf(&line, "%s(%sblocks=%d,records=%d)", name, props, p.BlocksAccessed(), p.RecordsOutput())
	*lines = append(*lines, line.String())

	for i, child := range children {
		childPrefix := prefix
		if !root {
			if last {
				childPrefix += "   "
			} else {
				childPrefix += "│  "
			}
		}
		describe(child, childPrefix, i == len(children)-1, false, lines)
	}
}
