package record

import (
	"fmt"
	"math/rand/v2"
	"testing"
)

func TestTableScan(t *testing.T) {
	tx := newTx(t)

	schema := NewSchema()
	schema.AddIntField("A")
	schema.AddStringField("B", 9)

	layout := NewLayout(schema)

	ts, err := NewTableScan(tx, "T", layout)
	if err != nil {
		t.Fatal(err)
	}

	if err := ts.BeforeFirst(); err != nil {
		t.Fatal(err)
	}

	inserted := 0
	for range 50 {
		if err := ts.Insert(); err != nil {
			t.Fatal(err)
		}
		n := int32(rand.N(50))
		if err := ts.SetInt("A", n); err != nil {
			t.Fatal(err)
		}
		if err := ts.SetString("B", fmt.Sprintf("rec%d", n)); err != nil {
			t.Fatal(err)
		}
		if n >= 25 {
			inserted++
		}
	}

	if rid := ts.RID(); rid.BlockNum == 0 {
		t.Errorf("50 records should span several blocks, last RID is %v", rid)
	}

	if err := ts.BeforeFirst(); err != nil {
		t.Fatal(err)
	}

	for {
		ok, err := ts.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}

		a, err := ts.GetInt("A")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := ts.GetString("B"); err != nil {
			t.Fatal(err)
		}

		if a < 25 {
			if err := ts.Delete(); err != nil {
				t.Fatal(err)
			}
		}
	}

	if err := ts.BeforeFirst(); err != nil {
		t.Fatal(err)
	}

	remaining := 0
	for {
		ok, err := ts.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}

		a, err := ts.GetInt("A")
		if err != nil {
			t.Fatal(err)
		}
		b, err := ts.GetString("B")
		if err != nil {
			t.Fatal(err)
		}
		if a < 25 {
			t.Errorf("record %v with A=%d survived deletion", ts.RID(), a)
		}
		if want := fmt.Sprintf("rec%d", a); b != want {
			t.Errorf("record %v: B = %q, want %q", ts.RID(), b, want)
		}
		remaining++
	}

	if remaining != inserted {
		t.Errorf("scan found %d records, want %d", remaining, inserted)
	}

	ts.Close()
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestTableScan_MoveToRID(t *testing.T) {
	tx := newTx(t)

	schema := NewSchema()
	schema.AddIntField("id")
	layout := NewLayout(schema)

	ts, err := NewTableScan(tx, "ids", layout)
	if err != nil {
		t.Fatal(err)
	}
	defer ts.Close()

	rids := make(map[int32]RID)
	for id := range int32(120) {
		if err := ts.Insert(); err != nil {
			t.Fatal(err)
		}
		if err := ts.SetInt("id", id); err != nil {
			t.Fatal(err)
		}
		rids[id] = ts.RID()
	}

	for _, id := range []int32{0, 57, 119} {
		if err := ts.MoveToRID(rids[id]); err != nil {
			t.Fatal(err)
		}
		got, err := ts.GetInt("id")
		if err != nil {
			t.Fatal(err)
		}
		if got != id {
			t.Errorf("record at %v has id %d, want %d", rids[id], got, id)
		}
	}
}
