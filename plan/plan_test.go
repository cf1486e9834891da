package plan

import (
	"math"
	"testing"

	"minidb/query"
	"minidb/record"
)

// fakePlan is a leaf with fixed estimates.
type fakePlan struct {
	blocks, records, distinct int32
	schema                    *record.Schema
}

func newFakePlan(blocks, records, distinct int32, fields ...string) *fakePlan {
	schema := record.NewSchema()
	for _, f := range fields {
		schema.AddIntField(f)
	}
	return &fakePlan{blocks: blocks, records: records, distinct: distinct, schema: schema}
}

func (fp *fakePlan) Open() (query.Scan, error) { return nil, nil }
func (fp *fakePlan) BlocksAccessed() int32 { return fp.blocks }
func (fp *fakePlan) RecordsOutput() int32 { return fp.records }
func (fp *fakePlan) DistinctValues(string) int32 { return fp.distinct }
func (fp *fakePlan) Schema() *record.Schema { return fp.schema }

func TestPlanEstimates(t *testing.T) {
	p1 := newFakePlan(10, 100, 20, "a", "b")
	p2 := newFakePlan(4, 50, 5, "c")

	eqConst := query.NewPredicate(query.NewTerm(query.NewFieldExpression("a"), query.NewConstantExpression(query.NewIntConstant(7))))
	sp := NewSelectPlan(p1, eqConst)
	if sp.BlocksAccessed() != 10 || sp.RecordsOutput() != 5 {
		t.Errorf("select: got blocks=%d records=%d, want 10 and 5", sp.BlocksAccessed(), sp.RecordsOutput())
	}
	if sp.DistinctValues("a") != 1 || sp.DistinctValues("b") != 20 {
		t.Errorf("select distinct: got a=%d b=%d, want 1 and 20", sp.DistinctValues("a"), sp.DistinctValues("b"))
	}

	pp := NewProductPlan(p1, p2)
	if pp.BlocksAccessed() != 10+100*4 || pp.RecordsOutput() != 5000 {
		t.Errorf("product: got blocks=%d records=%d", pp.BlocksAccessed(), pp.RecordsOutput())
	}
	if pp.DistinctValues("c") != 5 {
		t.Errorf("product distinct: got %d, want 5", pp.DistinctValues("c"))
	}

	big := newFakePlan(math.MaxInt32, math.MaxInt32, 1, "x")
	if got := NewProductPlan(big, big).RecordsOutput(); got != math.MaxInt32 {
		t.Errorf("saturation: got %d, want %d", got, int32(math.MaxInt32))
	}

	proj := NewProjectPlan(pp, []string{"c", "a"})
	if fields := proj.Schema().Fields(); len(fields) != 2 || fields[0] != "c" || fields[1] != "a" {
		t.Errorf("project schema: got %v", fields)
	}
}

func TestSortDistinctLimitEstimates(t *testing.T) {
	p1 := newFakePlan(10, 100, 20, "a", "b")
	p2 := newFakePlan(4, 50, 5, "c")

	sp := NewSortPlan(p1, []query.SortKey{{Field: "a", Desc: true}})
	if sp.BlocksAccessed() != 10 || sp.RecordsOutput() != 100 || sp.DistinctValues("a") != 20 {
		t.Errorf("sort: got blocks=%d records=%d", sp.BlocksAccessed(), sp.RecordsOutput())
	}

	testCases := []struct {
		name        string
		plan        Plan
		wantRecords int32
	}{
		{name: "distinct one field", plan: NewDistinctPlan(p2), wantRecords: 5},
		{name: "distinct bounded by records", plan: NewDistinctPlan(p1), wantRecords: 100},
		{name: "limit below records", plan: NewLimitPlan(p1, 3), wantRecords: 3},
		{name: "limit above records", plan: NewLimitPlan(p2, 80), wantRecords: 50},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.plan.RecordsOutput(); got != tc.wantRecords {
				t.Errorf("RecordsOutput() = %d, want %d", got, tc.wantRecords)
			}
		})
	}

	if got := NewLimitPlan(p1, 3).DistinctValues("a"); got != 3 {
		t.Errorf("limit distinct: got %d, want 3", got)
	}
}

func TestGreedyJoinOrder(t *testing.T) {
	big := newFakePlan(100, 1000, 100, "a")
	small := newFakePlan(1, 10, 10, "b")
	mid := newFakePlan(10, 100, 50, "c")

	var pred *query.Predicate
	planners := []*tablePlanner{newTablePlanner(big, pred), newTablePlanner(small, pred), newTablePlanner(mid, pred)}

	current, rest := lowestSelect(planners)
	if current != small {
		t.Fatalf("first table: got %v, want the smallest", current)
	}
	current, rest = lowestJoin(current, rest)
	product, ok := current.(*ProductPlan)
	if !ok || product.plan2 != mid {
		t.Fatalf("second table: got %v, want the cheaper product", current)
	}
	if len(rest) != 1 || rest[0].plan != big {
		t.Fatalf("remaining: got %d planners", len(rest))
	}
}
