package record

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
)

func TestPage(t *testing.T) {
	tx := newTx(t)

	schema := NewSchema()
	schema.AddIntField("A")
	schema.AddStringField("B", 9)

	layout := NewLayout(schema)
	block, err := tx.Append("testfile")
	if err != nil {
		t.Fatal(err)
	}

	if err := tx.Pin(block); err != nil {
		t.Fatal(err)
	}

	page, err := NewPage(tx, block, layout)
	if err != nil {
		t.Fatal(err)
	}
	if err := page.Format(); err != nil {
		t.Fatal(err)
	}

	slot, err := page.InsertAfter(-1)
	if err != nil {
		t.Fatal(err)
	}

	for slot >= 0 {
		n := int32(rand.N(50))
		if err := page.SetInt(slot, "A", n); err != nil {
			t.Fatal(err)
		}
		if err := page.SetString(slot, "B", fmt.Sprintf("rec%d", n)); err != nil {
			t.Fatal(err)
		}
		slot, err = page.InsertAfter(slot)
		if err != nil {
			t.Fatal(err)
		}
	}

	slot, err = page.NextAfter(-1)
	if err != nil {
		t.Fatal(err)
	}

	for slot >= 0 {
		a, err := page.GetInt(slot, "A")
		if err != nil {
			t.Fatal(err)
		}
		_, err = page.GetString(slot, "B")
		if err != nil {
			t.Fatal(err)
		}

		if a < 25 {
			if err := page.Delete(slot); err != nil {
				t.Fatal(err)
			}
		}
		slot, err = page.NextAfter(slot)
		if err != nil {
			t.Fatal(err)
		}
	}

	slot, err = page.NextAfter(-1)
	if err != nil {
		t.Fatal(err)
	}

	for slot >= 0 {
		a, err := page.GetInt(slot, "A")
		if err != nil {
			t.Fatal(err)
		}
		b, err := page.GetString(slot, "B")
		if err != nil {
			t.Fatal(err)
		}
		if a < 25 {
			t.Errorf("slot %d: deleted record with A=%d is still visible", slot, a)
		}
		if want := fmt.Sprintf("rec%d", a); b != want {
			t.Errorf("slot %d: B = %q, want %q", slot, b, want)
		}

		slot, err = page.NextAfter(slot)
		if err != nil {
			t.Fatal(err)
		}
	}

	tx.Unpin(block)
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestPage_FieldTooLong(t *testing.T) {
	tx := newTx(t)

	schema := NewSchema()
	schema.AddStringField("name", 4)
	layout := NewLayout(schema)

	block, err := tx.Append("testfile")
	if err != nil {
		t.Fatal(err)
	}
	page, err := NewPage(tx, block, layout)
	if err != nil {
		t.Fatal(err)
	}
	if err := page.Format(); err != nil {
		t.Fatal(err)
	}

	slot, err := page.InsertAfter(-1)
	if err != nil {
		t.Fatal(err)
	}
	if err := page.SetString(slot, "name", "abcd"); err != nil {
		t.Errorf("SetString() with a value of the declared length failed: %v", err)
	}
	if err := page.SetString(slot, "name", "abcde"); !errors.Is(err, ErrFieldTooLong) {
		t.Errorf("SetString() error = %v, want %v", err, ErrFieldTooLong)
	}

	tx.Unpin(block)
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}
}
