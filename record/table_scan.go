package record

import (
	"fmt"

	"minidb/file"
	"minidb/transaction"
)

// TableScan iterates over the records of a table stored in "<table>.tbl",
// one block at a time.
type TableScan struct {
	tx          *transaction.Transaction
	layout      *Layout
	recordPage  *Page
	filename    string
	currentSlot int32
}

func NewTableScan(tx *transaction.Transaction, tableName string, layout *Layout) (*TableScan, error) {
	ts := &TableScan{
		tx:       tx,
		layout:   layout,
		filename: Filename(tableName),
	}

	size, err := tx.Size(ts.filename)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		err = ts.moveToNewBlock()
	} else {
		err = ts.moveToBlock(0)
	}
	if err != nil {
		return nil, fmt.Errorf("record: open %s: %w", tableName, err)
	}

	return ts, nil
}

// Filename returns the name of the file holding a table's records.
func Filename(tableName string) string {
	return tableName + ".tbl"
}

func (ts *TableScan) Layout() *Layout {
	return ts.layout
}

// Close unpins the current block. It is safe to call more than once.
func (ts *TableScan) Close() {
	if ts.recordPage != nil {
		ts.tx.Unpin(ts.recordPage.Block())
		ts.recordPage = nil
	}
}

func (ts *TableScan) BeforeFirst() error {
	return ts.moveToBlock(0)
}

func (ts *TableScan) Next() (bool, error) {
	slot, err := ts.recordPage.NextAfter(ts.currentSlot)
	if err != nil {
		return false, err
	}
	ts.currentSlot = slot

	for ts.currentSlot < 0 {
		lastBlock, err := ts.atLastBlock()
		if err != nil {
			return false, err
		}
		if lastBlock {
			return false, nil
		}
		if err := ts.moveToBlock(ts.recordPage.Block().Number() + 1); err != nil {
			return false, err
		}
		ts.currentSlot, err = ts.recordPage.NextAfter(ts.currentSlot)
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

func (ts *TableScan) GetInt(fieldName string) (int32, error) {
	return ts.recordPage.GetInt(ts.currentSlot, fieldName)
}

func (ts *TableScan) GetString(fieldName string) (string, error) {
	return ts.recordPage.GetString(ts.currentSlot, fieldName)
}

func (ts *TableScan) HasField(fieldName string) bool {
	return ts.layout.Schema().HasField(fieldName)
}

func (ts *TableScan) SetInt(fieldName string, value int32) error {
	return ts.recordPage.SetInt(ts.currentSlot, fieldName, value)
}

func (ts *TableScan) SetString(fieldName string, value string) error {
	return ts.recordPage.SetString(ts.currentSlot, fieldName, value)
}

// Insert positions the scan on a newly claimed empty slot, appending a block
// to the table if every existing block is full.
func (ts *TableScan) Insert() error {
	slot, err := ts.recordPage.InsertAfter(ts.currentSlot)
	if err != nil {
		return err
	}
	ts.currentSlot = slot

	for ts.currentSlot < 0 {
		lastBlock, err := ts.atLastBlock()
		if err != nil {
			return err
		}
		if lastBlock {
			err = ts.moveToNewBlock()
		} else {
			err = ts.moveToBlock(ts.recordPage.Block().Number() + 1)
		}
		if err != nil {
			return err
		}
		ts.currentSlot, err = ts.recordPage.InsertAfter(ts.currentSlot)
		if err != nil {
			return err
		}
	}

	return nil
}

func (ts *TableScan) Delete() error {
	return ts.recordPage.Delete(ts.currentSlot)
}

func (ts *TableScan) MoveToRID(rid RID) error {
	ts.Close()
	recordPage, err := NewPage(ts.tx, file.NewBlock(ts.filename, rid.BlockNum), ts.layout)
	if err != nil {
		return err
	}

	ts.recordPage = recordPage
	ts.currentSlot = rid.Slot
	return nil
}

// RID returns the identifier of the current record.
func (ts *TableScan) RID() RID {
	return RID{
		BlockNum: ts.recordPage.Block().Number(),
		Slot:     ts.currentSlot,
	}
}

func (ts *TableScan) moveToBlock(blockNum int32) error {
	ts.Close()
	recordPage, err := NewPage(ts.tx, file.NewBlock(ts.filename, blockNum), ts.layout)
	if err != nil {
		return err
	}
	ts.recordPage = recordPage
	ts.currentSlot = -1
	return nil
}

func (ts *TableScan) moveToNewBlock() error {
	ts.Close()
	block, err := ts.tx.Append(ts.filename)
	if err != nil {
		return err
	}

	recordPage, err := NewPage(ts.tx, block, ts.layout)
	if err != nil {
		return err
	}
	ts.recordPage = recordPage

	if err := ts.recordPage.Format(); err != nil {
		return err
	}

	ts.currentSlot = -1
	return nil
}

func (ts *TableScan) atLastBlock() (bool, error) {
	size, err := ts.tx.Size(ts.filename)
	if err != nil {
		return false, err
	}
	return ts.recordPage.Block().Number() == size-1, nil
}

// RID identifies a record by its block number within the table file and its
// slot within that block.
type RID struct {
	BlockNum int32
	Slot     int32
}

func (r RID) String() string {
	return fmt.Sprintf("[%d, %d]", r.BlockNum, r.Slot)
}
