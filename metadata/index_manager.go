package metadata

import (
	"errors"
	"fmt"

	"minidb/index"
	"minidb/record"
	"minidb/transaction"
)

const indexCatalog = "idxcat"

var (
	ErrIndexExists   = errors.New("metadata: index already exists")
	ErrFieldNotFound = errors.New("metadata: field not found")
)

// IndexInfo describes one index: its name, the field it covers and the cost
// estimates the planner uses to decide whether to read through it.
type IndexInfo struct {
	indexName   string
	tableName   string
	fieldName   string
	blockSize   int32
	indexLayout *record.Layout
	statInfo    StatInfo
}

func NewIndexInfo(indexName, tableName, fieldName string, tableSchema *record.Schema, statInfo StatInfo, blockSize int32) *IndexInfo {
	return &IndexInfo{
		indexName:   indexName,
		tableName:   tableName,
		fieldName:   fieldName,
		blockSize:   blockSize,
		indexLayout: index.NewLayout(tableSchema.FieldType(fieldName), tableSchema.FieldLength(fieldName)),
		statInfo:    statInfo,
	}
}

func (ii *IndexInfo) Name() string {
	return ii.indexName
}

func (ii *IndexInfo) TableName() string {
	return ii.tableName
}

func (ii *IndexInfo) FieldName() string {
	return ii.fieldName
}

// Open returns the index for use by tx.
func (ii *IndexInfo) Open(tx *transaction.Transaction) index.Index {
	return index.NewHashIndex(tx, ii.indexName, ii.indexLayout)
}

// BlocksAccessed estimates the index blocks read by one search.
func (ii *IndexInfo) BlocksAccessed() int32 {
	recordsPerBlock := max(ii.blockSize/ii.indexLayout.SlotSize(), 1)
	numBlocks := ii.statInfo.RecordsOutput() / recordsPerBlock
	return index.SearchCost(numBlocks)
}

// RecordsOutput estimates the number of records with one value of the
// indexed field.
func (ii *IndexInfo) RecordsOutput() int32 {
	return ii.statInfo.RecordsOutput() / max(ii.statInfo.DistinctValues(ii.fieldName), 1)
}

func (ii *IndexInfo) DistinctValues(fieldName string) int32 {
	if fieldName == ii.fieldName {
		return 1
	}
	return ii.statInfo.DistinctValues(fieldName)
}

// IndexManager stores one row per index in idxcat: the index name, the
// table it belongs to and the indexed field.
type IndexManager struct {
	layout       *record.Layout
	tableManager *TableManager
	statManager  *StatManager
}

// NewIndexManager opens the index catalog. It creates idxcat in tx when the
// database is new or was created without one.
func NewIndexManager(isNew bool, tableManager *TableManager, statManager *StatManager, tx *transaction.Transaction) (*IndexManager, error) {
	im := &IndexManager{tableManager: tableManager, statManager: statManager}

	if !isNew {
		layout, err := tableManager.Layout(indexCatalog, tx)
		if err == nil {
			im.layout = layout
			return im, nil
		}
		if !errors.Is(err, ErrTableNotFound) {
			return nil, err
		}
	}

	schema := record.NewSchema()
	schema.AddStringField("indexname", MaxName)
	schema.AddStringField("tablename", MaxName)
	schema.AddStringField("fieldname", MaxName)
	if err := tableManager.CreateTable(indexCatalog, schema, tx); err != nil {
		return nil, err
	}
	im.layout = record.NewLayout(schema)
	return im, nil
}

// CreateIndex records a new index on tableName.fieldName. A field has at
// most one index. CreateIndex does not fill the index with the existing
// records of the table.
func (im *IndexManager) CreateIndex(indexName, tableName, fieldName string, tx *transaction.Transaction) error {
	if err := checkName(indexName); err != nil {
		return err
	}
	layout, err := im.tableManager.Layout(tableName, tx)
	if err != nil {
		return err
	}
	if !layout.Schema().HasField(fieldName) {
		return fmt.Errorf("%w: %s.%s", ErrFieldNotFound, tableName, fieldName)
	}

	scan, err := record.NewTableScan(tx, indexCatalog, im.layout)
	if err != nil {
		return err
	}
	defer scan.Close()

	for {
		ok, err := scan.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		name, err := scan.GetString("indexname")
		if err != nil {
			return err
		}
		if name == indexName {
			return fmt.Errorf("%w: %s", ErrIndexExists, indexName)
		}
		table, err := scan.GetString("tablename")
		if err != nil {
			return err
		}
		field, err := scan.GetString("fieldname")
		if err != nil {
			return err
		}
		if table == tableName && field == fieldName {
			return fmt.Errorf("%w: %s on %s.%s", ErrIndexExists, name, tableName, fieldName)
		}
	}

	if err := scan.Insert(); err != nil {
		return err
	}
	if err := scan.SetString("indexname", indexName); err != nil {
		return err
	}
	if err := scan.SetString("tablename", tableName); err != nil {
		return err
	}
	return scan.SetString("fieldname", fieldName)
}

// IndexInfo returns the indexes of a table keyed by the indexed field.
func (im *IndexManager) IndexInfo(tableName string, tx *transaction.Transaction) (map[string]*IndexInfo, error) {
	scan, err := record.NewTableScan(tx, indexCatalog, im.layout)
	if err != nil {
		return nil, err
	}
	defer scan.Close()

	type entry struct{ indexName, fieldName string }
	var entries []entry
	for {
		ok, err := scan.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		name, err := scan.GetString("tablename")
		if err != nil {
			return nil, err
		}
		if name != tableName {
			continue
		}
		indexName, err := scan.GetString("indexname")
		if err != nil {
			return nil, err
		}
		fieldName, err := scan.GetString("fieldname")
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{indexName, fieldName})
	}

	infos := make(map[string]*IndexInfo, len(entries))
	if len(entries) == 0 {
		return infos, nil
	}
	layout, err := im.tableManager.Layout(tableName, tx)
	if err != nil {
		return nil, err
	}
	statInfo, err := im.statManager.StatInfo(tableName, layout, tx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		infos[e.fieldName] = NewIndexInfo(e.indexName, tableName, e.fieldName, layout.Schema(), statInfo, tx.BlockSize())
	}
	return infos, nil
}
