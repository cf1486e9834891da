package metadata

import (
	"testing"

	"minidb/record"
)

func TestStatManager(t *testing.T) {
	db := newTestDB(t)
	tx := db.begin(t)

	tm, err := NewTableManager(true, tx, 16)
	if err != nil {
		t.Fatal(err)
	}
	defer tm.Close()

	schema := record.NewSchema()
	schema.AddIntField("A")
	schema.AddStringField("B", 9)
	if err := tm.CreateTable("MyTable", schema, tx); err != nil {
		t.Fatal(err)
	}
	layout, err := tm.Layout("MyTable", tx)
	if err != nil {
		t.Fatal(err)
	}

	tableScan, err := record.NewTableScan(tx, "MyTable", layout)
	if err != nil {
		t.Fatal(err)
	}
	if err := tableScan.Insert(); err != nil {
		t.Fatal(err)
	}
	if err := tableScan.SetInt("A", 1); err != nil {
		t.Fatal(err)
	}
	if err := tableScan.SetString("B", "test"); err != nil {
		t.Fatal(err)
	}
	tableScan.Close()

	sm := NewStatManager(tm)
	statInfo, err := sm.StatInfo("MyTable", layout, tx)
	if err != nil {
		t.Fatal(err)
	}

	if statInfo.BlocksAccessed() != 1 {
		t.Errorf("invalid blocks accessed: got %d, want %d", statInfo.BlocksAccessed(), 1)
	}
	if statInfo.RecordsOutput() != 1 {
		t.Errorf("invalid records output: got %d, want %d", statInfo.RecordsOutput(), 1)
	}
	if statInfo.DistinctValues("A") != 1 {
		t.Errorf("invalid distinct values of A: got %d, want %d", statInfo.DistinctValues("A"), 1)
	}
	if statInfo.DistinctValues("B") != 1 {
		t.Errorf("invalid distinct values of B: got %d, want %d", statInfo.DistinctValues("B"), 1)
	}

	// Statistics are cached until forgotten or refreshed.
	tableScan, err = record.NewTableScan(tx, "MyTable", layout)
	if err != nil {
		t.Fatal(err)
	}
	for range 3 {
		if err := tableScan.Insert(); err != nil {
			t.Fatal(err)
		}
	}
	tableScan.Close()

	statInfo, err = sm.StatInfo("MyTable", layout, tx)
	if err != nil {
		t.Fatal(err)
	}
	if statInfo.RecordsOutput() != 1 {
		t.Errorf("cached records output: got %d, want %d", statInfo.RecordsOutput(), 1)
	}

	sm.Forget("MyTable")
	statInfo, err = sm.StatInfo("MyTable", layout, tx)
	if err != nil {
		t.Fatal(err)
	}
	if statInfo.RecordsOutput() != 4 {
		t.Errorf("recomputed records output: got %d, want %d", statInfo.RecordsOutput(), 4)
	}
}

func TestStatManager_Refresh(t *testing.T) {
	db := newTestDB(t)
	tx := db.begin(t)

	tm, err := NewTableManager(true, tx, 16)
	if err != nil {
		t.Fatal(err)
	}
	defer tm.Close()

	schema := record.NewSchema()
	schema.AddIntField("A")
	if err := tm.CreateTable("T", schema, tx); err != nil {
		t.Fatal(err)
	}
	layout, err := tm.Layout("T", tx)
	if err != nil {
		t.Fatal(err)
	}

	sm := NewStatManager(tm)
	if _, err := sm.StatInfo("T", layout, tx); err != nil {
		t.Fatal(err)
	}

	tableScan, err := record.NewTableScan(tx, "T", layout)
	if err != nil {
		t.Fatal(err)
	}
	if err := tableScan.Insert(); err != nil {
		t.Fatal(err)
	}
	tableScan.Close()

	var statInfo StatInfo
	for range refreshInterval {
		statInfo, err = sm.StatInfo("T", layout, tx)
		if err != nil {
			t.Fatal(err)
		}
	}
	if statInfo.RecordsOutput() != 1 {
		t.Errorf("records output after refresh: got %d, want %d", statInfo.RecordsOutput(), 1)
	}
}
