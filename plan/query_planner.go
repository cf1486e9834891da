package plan

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"minidb/metadata"
	"minidb/parse"
	"minidb/query"
	"minidb/record"
	"minidb/transaction"
)

// tablePlanner holds the plan of one table of a query, with the terms of the
// predicate that concern only that table already pushed down. table and
// indexes are set when the source is a stored table rather than a view.
type tablePlanner struct {
	plan    Plan
	table   *TablePlan
	indexes map[string]*metadata.IndexInfo
	pred    *query.Predicate
}

func newTablePlanner(p Plan, pred *query.Predicate) *tablePlanner {
	tp := &tablePlanner{plan: p, pred: pred}
	if table, ok := p.(*TablePlan); ok {
		tp.table = table
	}
	return tp
}

// indexedFields returns the fields that have an index, sorted so that plans
// are chosen deterministically.
func (tp *tablePlanner) indexedFields() []string {
	return slices.Sorted(maps.Keys(tp.indexes))
}

// selectPlan reads this table through an index when the predicate equates an
// indexed field with a constant, and applies the rest of its terms on top.
func (tp *tablePlanner) selectPlan() Plan {
	p := tp.plan
	for _, fieldName := range tp.indexedFields() {
		if val, ok := tp.pred.EquatesWithConstant(fieldName); ok {
			p = NewIndexSelectPlan(tp.table, tp.indexes[fieldName], val)
			break
		}
	}
	return tp.addSelectPred(p)
}

// joinPlan joins current with this table, through an index on this table
// when the predicate equates an indexed field with a field of current, and
// with a product otherwise.
func (tp *tablePlanner) joinPlan(current Plan) Plan {
	for _, fieldName := range tp.indexedFields() {
		outer, ok := tp.pred.EquatesWithField(fieldName)
		if !ok || !current.Schema().HasField(outer) {
			continue
		}
		p := tp.addSelectPred(NewIndexJoinPlan(current, tp.table, tp.indexes[fieldName], outer))
		return tp.addJoinPred(p, current.Schema())
	}
	return tp.productPlan(current)
}

// productPlan joins current with this table. Terms that relate the two are
// applied on top of the product.
func (tp *tablePlanner) productPlan(current Plan) Plan {
	return tp.addJoinPred(NewProductPlan(current, tp.selectPlan()), current.Schema())
}

func (tp *tablePlanner) addSelectPred(p Plan) Plan {
	if sub := tp.pred.SelectSubPred(tp.plan.Schema()); sub != nil {
		return NewSelectPlan(p, sub)
	}
	return p
}

func (tp *tablePlanner) addJoinPred(p Plan, currentSchema *record.Schema) Plan {
	if sub := tp.pred.JoinSubPred(currentSchema, tp.plan.Schema()); sub != nil {
		return NewSelectPlan(p, sub)
	}
	return p
}

// createQueryPlan builds a plan for a query. Selections are pushed down to
// the tables they concern and use an index where one applies. The join order
// is chosen greedily: start with the table producing the fewest records, then
// repeatedly add the table whose join with the current plan is cheapest.
// Sorting happens before projection so that ORDER BY may name any field of
// the tables; DISTINCT and LIMIT apply to the projected records.
func (pl *Planner) createQueryPlan(data *parse.QueryData, tx *transaction.Transaction, depth int) (Plan, error) {
	if depth > maxViewDepth {
		return nil, fmt.Errorf("plan: views nested deeper than %d", maxViewDepth)
	}

	planners := make([]*tablePlanner, 0, len(data.Tables))
	for _, tableName := range data.Tables {
		p, err := pl.tableOrView(tableName, tx, depth)
		if err != nil {
			return nil, err
		}
		tp := newTablePlanner(p, data.Pred)
		if tp.table != nil {
			if tp.indexes, err = pl.md.IndexInfo(tableName, tx); err != nil {
				return nil, err
			}
		}
		planners = append(planners, tp)
	}

	schema := record.NewSchema()
	for _, tp := range planners {
		schema.AddAll(tp.plan.Schema())
	}
	if err := checkFields(schema, data.Pred.FieldNames()); err != nil {
		return nil, err
	}
	if err := checkFields(schema, data.Fields); err != nil {
		return nil, err
	}
	for _, key := range data.OrderBy {
		if err := checkFields(schema, []string{key.Field}); err != nil {
			return nil, err
		}
	}

	current, planners := lowestSelect(planners)
	for len(planners) > 0 {
		current, planners = lowestJoin(current, planners)
	}

	if len(data.OrderBy) > 0 {
		current = NewSortPlan(current, data.OrderBy)
	}
	if data.Fields != nil {
		current = NewProjectPlan(current, data.Fields)
	}
	if data.Distinct {
		current = NewDistinctPlan(current)
	}
	if data.Limit != nil {
		current = NewLimitPlan(current, *data.Limit)
	}
	return current, nil
}

func (pl *Planner) tableOrView(name string, tx *transaction.Transaction, depth int) (Plan, error) {
	def, ok, err := pl.md.ViewDef(name, tx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return NewTablePlan(tx, name, pl.md)
	}

	viewData, err := parse.ParseQuery(def)
	if err != nil {
		return nil, fmt.Errorf("plan: view %s: %w", name, err)
	}
	return pl.createQueryPlan(viewData, tx, depth+1)
}

func lowestSelect(planners []*tablePlanner) (Plan, []*tablePlanner) {
	best := -1
	var bestPlan Plan
	for i, tp := range planners {
		p := tp.selectPlan()
		if best < 0 || p.RecordsOutput() < bestPlan.RecordsOutput() {
			best, bestPlan = i, p
		}
	}
	return bestPlan, remove(planners, best)
}

func lowestJoin(current Plan, planners []*tablePlanner) (Plan, []*tablePlanner) {
	best := -1
	var bestPlan Plan
	bestCost := int32(math.MaxInt32)
	for i, tp := range planners {
		p := tp.joinPlan(current)
		if best < 0 || p.BlocksAccessed() < bestCost {
			best, bestPlan, bestCost = i, p, p.BlocksAccessed()
		}
	}
	return bestPlan, remove(planners, best)
}

func remove(planners []*tablePlanner, i int) []*tablePlanner {
	rest := make([]*tablePlanner, 0, len(planners)-1)
	rest = append(rest, planners[:i]...)
	return append(rest, planners[i+1:]...)
}

func checkFields(schema *record.Schema, fields []string) error {
	for _, fieldName := range fields {
		if !schema.HasField(fieldName) {
			return fmt.Errorf("%w: %s", ErrUnknownField, fieldName)
		}
	}
	return nil
}
