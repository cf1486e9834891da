// Package index implements secondary indexes that map a field value to the
// RIDs of the records holding it.
package index

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"minidb/query"
	"minidb/record"
	"minidb/transaction"
)

// Index fields. Every index record holds the indexed value and the RID of the
// data record it points to.
const (
	FieldBlock   = "block"
	FieldID      = "id"
	FieldDataVal = "dataval"
)

// NumBuckets is the number of bucket files of a hash index.
const NumBuckets = 32

// Index looks up data records by the value of one field.
type Index interface {
	// BeforeFirst positions the index before the first entry with key.
	BeforeFirst(key query.Constant) error
	Next() (bool, error)
	DataRID() (record.RID, error)
	Insert(key query.Constant, rid record.RID) error
	Delete(key query.Constant, rid record.RID) error
	Close()
}

// NewLayout returns the record layout of an index over a field of the given
// type and length.
func NewLayout(fieldType record.FieldType, length int32) *record.Layout {
	schema := record.NewSchema()
	schema.AddIntField(FieldBlock)
	schema.AddIntField(FieldID)
	schema.AddField(FieldDataVal, fieldType, length)
	return record.NewLayout(schema)
}

// HashIndex is a static hash index. Entries are spread over NumBuckets
// tables named "<index>.<bucket>", and a search reads one whole bucket.
type HashIndex struct {
	tx        *transaction.Transaction
	name      string
	layout    *record.Layout
	searchKey query.Constant
	scan      *query.TableScan
}

func NewHashIndex(tx *transaction.Transaction, name string, layout *record.Layout) *HashIndex {
	return &HashIndex{
		tx:     tx,
		name:   name,
		layout: layout,
	}
}

// Bucket returns the bucket that holds key.
func Bucket(key query.Constant) int {
	var h uint64
	if key.IsString() {
		h = xxhash.Sum64String(key.AsString())
	} else {
		h = xxhash.Sum64(binary.BigEndian.AppendUint32(nil, uint32(key.AsInt())))
	}
	return int(h % NumBuckets)
}

// BucketTable returns the name of the table that stores one bucket of an
// index. The dot keeps it apart from every name SQL can create.
func BucketTable(indexName string, bucket int) string {
	return fmt.Sprintf("%s.%d", indexName, bucket)
}

func (h *HashIndex) BeforeFirst(key query.Constant) error {
	h.Close()
	h.searchKey = key
	scan, err := query.NewTableScan(h.tx, BucketTable(h.name, Bucket(key)), h.layout)
	if err != nil {
		return fmt.Errorf("index %s: %w", h.name, err)
	}
	h.scan = scan
	return nil
}

// Next moves to the next entry of the bucket whose value is the search key.
func (h *HashIndex) Next() (bool, error) {
	if h.scan == nil {
		return false, fmt.Errorf("index %s: Next called before BeforeFirst", h.name)
	}
	for {
		ok, err := h.scan.Next()
		if err != nil || !ok {
			return false, err
		}
		val, err := h.scan.GetVal(FieldDataVal)
		if err != nil {
			return false, err
		}
		if val == h.searchKey {
			return true, nil
		}
	}
}

func (h *HashIndex) DataRID() (record.RID, error) {
	blockNum, err := h.scan.GetInt(FieldBlock)
	if err != nil {
		return record.RID{}, err
	}
	slot, err := h.scan.GetInt(FieldID)
	if err != nil {
		return record.RID{}, err
	}
	return record.RID{BlockNum: blockNum, Slot: slot}, nil
}

func (h *HashIndex) Insert(key query.Constant, rid record.RID) error {
	if err := h.BeforeFirst(key); err != nil {
		return err
	}
	if err := h.scan.Insert(); err != nil {
		return err
	}
	if err := h.scan.SetInt(FieldBlock, rid.BlockNum); err != nil {
		return err
	}
	if err := h.scan.SetInt(FieldID, rid.Slot); err != nil {
		return err
	}
	return h.scan.SetVal(FieldDataVal, key)
}

// Delete removes the entry for key and rid. It does nothing if there is no
// such entry.
func (h *HashIndex) Delete(key query.Constant, rid record.RID) error {
	if err := h.BeforeFirst(key); err != nil {
		return err
	}
	for {
		ok, err := h.Next()
		if err != nil || !ok {
			return err
		}
		got, err := h.DataRID()
		if err != nil {
			return err
		}
		if got == rid {
			return h.scan.Delete()
		}
	}
}

// Close unpins the current bucket. It is safe to call more than once.
func (h *HashIndex) Close() {
	if h.scan != nil {
		h.scan.Close()
		h.scan = nil
	}
}

// SearchCost estimates the blocks read by one search of a hash index whose
// entries fill numBlocks blocks.
func SearchCost(numBlocks int32) int32 {
	return numBlocks / NumBuckets
}
