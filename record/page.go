package record

import (
	"errors"
	"fmt"

	"minidb/file"
	"minidb/transaction"
)

type slotFlag int32

const (
	empty slotFlag = iota
	used
)

// ErrFieldTooLong is returned when a string does not fit the declared length
// of its varchar field.
var ErrFieldTooLong = errors.New("record: value longer than field")

// Page stores records in the slots of one block. All access goes through the
// transaction, so reads and writes are locked and logged.
type Page struct {
	tx     *transaction.Transaction
	block  file.Block
	layout *Layout
}

// NewPage pins the block for the lifetime of the page.
func NewPage(tx *transaction.Transaction, block file.Block, layout *Layout) (*Page, error) {
	if err := tx.Pin(block); err != nil {
		return nil, err
	}
	return &Page{
		tx:     tx,
		block:  block,
		layout: layout,
	}, nil
}

func (p *Page) GetInt(slot int32, fieldName string) (int32, error) {
	return p.tx.GetInt(p.block, p.fieldOffset(slot, fieldName))
}

func (p *Page) GetString(slot int32, fieldName string) (string, error) {
	return p.tx.GetString(p.block, p.fieldOffset(slot, fieldName))
}

func (p *Page) SetInt(slot int32, fieldName string, value int32) error {
	return p.tx.SetInt(p.block, p.fieldOffset(slot, fieldName), value, true)
}

func (p *Page) SetString(slot int32, fieldName string, value string) error {
	if n := int32(len(value)); n > p.layout.Schema().FieldLength(fieldName) {
		return fmt.Errorf("%w: %s holds %d bytes, got %d", ErrFieldTooLong, fieldName, p.layout.Schema().FieldLength(fieldName), n)
	}
	return p.tx.SetString(p.block, p.fieldOffset(slot, fieldName), value, true)
}

func (p *Page) Delete(slot int32) error {
	return p.setFlag(slot, empty)
}

// Format marks every slot of a freshly appended block empty and zeroes its
// fields. The writes are not logged: a new block has no prior contents to
// restore.
func (p *Page) Format() error {
	schema := p.layout.Schema()
	for slot := int32(0); p.isValidSlot(slot); slot++ {
		if err := p.tx.SetInt(p.block, p.offset(slot), int32(empty), false); err != nil {
			return err
		}

		for _, fieldName := range schema.fields {
			pos := p.fieldOffset(slot, fieldName)
			var err error
			if schema.FieldType(fieldName) == Integer {
				err = p.tx.SetInt(p.block, pos, 0, false)
			} else {
				err = p.tx.SetString(p.block, pos, "", false)
			}
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// NextAfter returns the first used slot after slot, or -1.
func (p *Page) NextAfter(slot int32) (int32, error) {
	return p.searchAfter(slot, used)
}

// InsertAfter claims the first empty slot after slot and returns it, or -1
// if the block is full.
func (p *Page) InsertAfter(slot int32) (int32, error) {
	newSlot, err := p.searchAfter(slot, empty)
	if err != nil {
		return 0, err
	}
	if newSlot >= 0 {
		if err := p.setFlag(newSlot, used); err != nil {
			return 0, err
		}
	}
	return newSlot, nil
}

func (p *Page) Block() file.Block {
	return p.block
}

func (p *Page) setFlag(slot int32, flag slotFlag) error {
	return p.tx.SetInt(p.block, p.offset(slot), int32(flag), true)
}

func (p *Page) searchAfter(slot int32, flag slotFlag) (int32, error) {
	slot++
	for p.isValidSlot(slot) {
		value, err := p.tx.GetInt(p.block, p.offset(slot))
		if err != nil {
			return 0, err
		}
		if slotFlag(value) == flag {
			return slot, nil
		}
		slot++
	}
	return -1, nil
}

func (p *Page) isValidSlot(slot int32) bool {
	return p.offset(slot+1) <= p.tx.BlockSize()
}

func (p *Page) offset(slot int32) int32 {
	return slot * p.layout.SlotSize()
}

func (p *Page) fieldOffset(slot int32, fieldName string) int32 {
	return p.offset(slot) + p.layout.Offset(fieldName)
}
