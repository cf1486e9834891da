package metadata

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"

	"minidb/record"
	"minidb/transaction"
)

// MaxName is the longest table or field name the catalog can store.
const MaxName int32 = 16

const (
	tableCatalog = "tblcat"
	fieldCatalog = "fldcat"
)

var (
	ErrTableNotFound = errors.New("metadata: table not found")
	ErrTableExists   = errors.New("metadata: table already exists")
	ErrInvalidName   = errors.New("metadata: invalid name")
)

// TableManager stores the layout of every table in two catalog tables:
// tblcat holds one row per table with its slot size, and fldcat holds one row
// per field with its type, length and offset.
//
// Layouts read from the catalog are cached. Loads of the same table by
// concurrent transactions are collapsed into one catalog scan.
type TableManager struct {
	tcatLayout *record.Layout
	fcatLayout *record.Layout
	layouts    *ristretto.Cache[string, *record.Layout]
	loads      singleflight.Group
}

// NewTableManager opens the catalog. When isNew is set the catalog tables are
// created in tx. cacheSize is the number of layouts kept in memory.
func NewTableManager(isNew bool, tx *transaction.Transaction, cacheSize int64) (*TableManager, error) {
	tcatSchema := record.NewSchema()
	tcatSchema.AddStringField("tblname", MaxName)
	tcatSchema.AddIntField("slotsize")

	fcatSchema := record.NewSchema()
	fcatSchema.AddStringField("tblname", MaxName)
	fcatSchema.AddStringField("fldname", MaxName)
	fcatSchema.AddIntField("type")
	fcatSchema.AddIntField("length")
	fcatSchema.AddIntField("offset")

	if cacheSize < 1 {
		cacheSize = 1
	}
	layouts, err := ristretto.NewCache(&ristretto.Config[string, *record.Layout]{
		NumCounters:        10 * cacheSize,
		MaxCost:            cacheSize,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("metadata: layout cache: %w", err)
	}

	tm := &TableManager{
		tcatLayout: record.NewLayout(tcatSchema),
		fcatLayout: record.NewLayout(fcatSchema),
		layouts:    layouts,
	}

	if isNew {
		if err := tm.insertCatalogRows(tableCatalog, tcatSchema, tx); err != nil {
			return nil, err
		}
		if err := tm.insertCatalogRows(fieldCatalog, fcatSchema, tx); err != nil {
			return nil, err
		}
	}

	return tm, nil
}

// CreateTable calculates the record offsets of a new table and saves them in
// the catalog.
func (tm *TableManager) CreateTable(tableName string, schema *record.Schema, tx *transaction.Transaction) error {
	if err := checkName(tableName); err != nil {
		return err
	}
	for _, fieldName := range schema.Fields() {
		if err := checkName(fieldName); err != nil {
			return err
		}
	}

	exists, err := tm.slotSize(tableName, tx)
	if err != nil {
		return err
	}
	if exists >= 0 {
		return fmt.Errorf("%w: %s", ErrTableExists, tableName)
	}

	// A layout loaded inside tx reflects uncommitted catalog rows.
	tx.OnRollback(func() {
		tm.layouts.Del(tableName)
	})

	return tm.insertCatalogRows(tableName, schema, tx)
}

func (tm *TableManager) insertCatalogRows(tableName string, schema *record.Schema, tx *transaction.Transaction) error {
	layout := record.NewLayout(schema)

	tcat, err := record.NewTableScan(tx, tableCatalog, tm.tcatLayout)
	if err != nil {
		return err
	}
	defer tcat.Close()

	if err := tcat.Insert(); err != nil {
		return err
	}
	if err := tcat.SetString("tblname", tableName); err != nil {
		return err
	}
	if err := tcat.SetInt("slotsize", layout.SlotSize()); err != nil {
		return err
	}

	fcat, err := record.NewTableScan(tx, fieldCatalog, tm.fcatLayout)
	if err != nil {
		return err
	}
	defer fcat.Close()

	for _, fieldName := range schema.Fields() {
		if err := fcat.Insert(); err != nil {
			return err
		}
		if err := fcat.SetString("tblname", tableName); err != nil {
			return err
		}
		if err := fcat.SetString("fldname", fieldName); err != nil {
			return err
		}
		if err := fcat.SetInt("type", int32(schema.FieldType(fieldName))); err != nil {
			return err
		}
		if err := fcat.SetInt("length", schema.FieldLength(fieldName)); err != nil {
			return err
		}
		if err := fcat.SetInt("offset", layout.Offset(fieldName)); err != nil {
			return err
		}
	}

	return nil
}

// Layout returns the layout of a table, reading the catalog on a cache miss.
func (tm *TableManager) Layout(tableName string, tx *transaction.Transaction) (*record.Layout, error) {
	switch tableName {
	case tableCatalog:
		return tm.tcatLayout, nil
	case fieldCatalog:
		return tm.fcatLayout, nil
	}

	if layout, ok := tm.layouts.Get(tableName); ok {
		return layout, nil
	}

	v, err, _ := tm.loads.Do(tableName, func() (any, error) {
		layout, err := tm.readLayout(tableName, tx)
		if err != nil {
			return nil, err
		}
		tm.layouts.Set(tableName, layout, 1)
		tm.layouts.Wait()
		return layout, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*record.Layout), nil
}

func (tm *TableManager) readLayout(tableName string, tx *transaction.Transaction) (*record.Layout, error) {
	size, err := tm.slotSize(tableName, tx)
	if err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, tableName)
	}

	schema := record.NewSchema()
	offsets := make(map[string]int32)

	fcat, err := record.NewTableScan(tx, fieldCatalog, tm.fcatLayout)
	if err != nil {
		return nil, err
	}
	defer fcat.Close()

	for {
		ok, err := fcat.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		name, err := fcat.GetString("tblname")
		if err != nil {
			return nil, err
		}
		if name != tableName {
			continue
		}

		fieldName, err := fcat.GetString("fldname")
		if err != nil {
			return nil, err
		}
		fieldType, err := fcat.GetInt("type")
		if err != nil {
			return nil, err
		}
		length, err := fcat.GetInt("length")
		if err != nil {
			return nil, err
		}
		offset, err := fcat.GetInt("offset")
		if err != nil {
			return nil, err
		}

		offsets[fieldName] = offset
		schema.AddField(fieldName, record.FieldType(fieldType), length)
	}

	return record.NewLayoutFromMetadata(schema, offsets, size), nil
}

// slotSize returns the slot size recorded for a table, or -1 if the table is
// not in the catalog.
func (tm *TableManager) slotSize(tableName string, tx *transaction.Transaction) (int32, error) {
	tcat, err := record.NewTableScan(tx, tableCatalog, tm.tcatLayout)
	if err != nil {
		return 0, err
	}
	defer tcat.Close()

	for {
		ok, err := tcat.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			return -1, nil
		}

		name, err := tcat.GetString("tblname")
		if err != nil {
			return 0, err
		}
		if name == tableName {
			return tcat.GetInt("slotsize")
		}
	}
}

// TableNames returns the names of all tables in the catalog, sorted.
func (tm *TableManager) TableNames(tx *transaction.Transaction) ([]string, error) {
	tcat, err := record.NewTableScan(tx, tableCatalog, tm.tcatLayout)
	if err != nil {
		return nil, err
	}
	defer tcat.Close()

	var names []string
	for {
		ok, err := tcat.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		name, err := tcat.GetString("tblname")
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	slices.Sort(names)
	return names, nil
}

func (tm *TableManager) Close() {
	tm.layouts.Close()
}

func checkName(name string) error {
	if name == "" || int32(len(name)) > MaxName {
		return fmt.Errorf("%w: %q (1 to %d bytes)", ErrInvalidName, name, MaxName)
	}
	return nil
}
