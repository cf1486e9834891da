package query

import (
	"errors"
	"slices"
	"testing"
)

func ints(t *testing.T, scan Scan, fieldName string) []int32 {
	t.Helper()

	var got []int32
	for {
		ok, err := scan.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			return got
		}
		v, err := scan.GetInt(fieldName)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, v)
	}
}

func TestSortRows(t *testing.T) {
	fields := []string{"A", "B"}
	row := func(a int32, b string) []Constant {
		return []Constant{NewIntConstant(a), NewStringConstant(b)}
	}

	testCases := []struct {
		name string
		keys []SortKey
		want []int32
	}{
		{name: "ascending", keys: []SortKey{{Field: "A"}}, want: []int32{1, 2, 2, 3}},
		{name: "descending", keys: []SortKey{{Field: "A", Desc: true}}, want: []int32{3, 2, 2, 1}},
		{name: "by string then int", keys: []SortKey{{Field: "B"}, {Field: "A", Desc: true}}, want: []int32{3, 1, 2, 2}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rows := [][]Constant{row(2, "y"), row(3, "x"), row(1, "x"), row(2, "z")}
			SortRows(rows, fields, tc.keys)
			got := ints(t, NewRowScan(fields, rows), "A")
			if !slices.Equal(got, tc.want) {
				t.Errorf("A = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDistinctRows(t *testing.T) {
	rows := [][]Constant{
		{NewIntConstant(1), NewStringConstant("a")},
		{NewIntConstant(1), NewStringConstant("b")},
		{NewIntConstant(1), NewStringConstant("a")},
		{NewIntConstant(2), NewStringConstant("a")},
	}
	got := DistinctRows(rows)
	if len(got) != 3 {
		t.Fatalf("got %d rows, want 3", len(got))
	}
	if got[2][0] != NewIntConstant(2) {
		t.Errorf("first-seen order not kept: %v", got)
	}
}

func TestMaterialize(t *testing.T) {
	tx := newTx(t)
	layout := fillTable(t, tx, "T", "A", "B", 12)

	ts, err := NewTableScan(tx, "T", layout)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := Materialize(ts, []string{"B"})
	ts.Close()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 12 || rows[4][0] != NewStringConstant("rec4") {
		t.Fatalf("Materialize() = %v", rows)
	}

	rs := NewRowScan([]string{"B"}, rows)
	if !rs.HasField("B") || rs.HasField("A") {
		t.Error("RowScan reports the wrong fields")
	}
	if _, err := rs.GetVal("B"); err == nil {
		t.Error("GetVal() before Next() should fail")
	}
	if ok, _ := rs.Next(); !ok {
		t.Fatal("Next() found no record")
	}
	if _, err := rs.GetInt("B"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("GetInt() of a varchar field = %v, want %v", err, ErrTypeMismatch)
	}
	if _, err := rs.GetVal("A"); !errors.Is(err, ErrFieldNotFound) {
		t.Errorf("GetVal() of a missing field = %v, want %v", err, ErrFieldNotFound)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestLimitScan(t *testing.T) {
	fields := []string{"A"}
	var rows [][]Constant
	for i := range int32(5) {
		rows = append(rows, []Constant{NewIntConstant(i)})
	}

	testCases := []struct {
		limit int32
		want  []int32
	}{
		{limit: 0, want: nil},
		{limit: 2, want: []int32{0, 1}},
		{limit: 9, want: []int32{0, 1, 2, 3, 4}},
	}
	for _, tc := range testCases {
		ls := NewLimitScan(NewRowScan(fields, rows), tc.limit)
		if got := ints(t, ls, "A"); !slices.Equal(got, tc.want) {
			t.Errorf("limit %d: got %v, want %v", tc.limit, got, tc.want)
		}
		if err := ls.BeforeFirst(); err != nil {
			t.Fatal(err)
		}
		if got := ints(t, ls, "A"); !slices.Equal(got, tc.want) {
			t.Errorf("limit %d after BeforeFirst: got %v, want %v", tc.limit, got, tc.want)
		}
	}
}
