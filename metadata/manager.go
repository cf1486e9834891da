package metadata

import (
	"minidb/record"
	"minidb/transaction"
)

// DefaultLayoutCacheSize is the number of table layouts cached when no size
// is given.
const DefaultLayoutCacheSize = 64

// Manager is the single entry point to the catalog: table layouts, view
// definitions, indexes and table statistics.
type Manager struct {
	tableManager *TableManager
	viewManager  *ViewManager
	statManager  *StatManager
	indexManager *IndexManager
}

type Option func(*options)

type options struct {
	layoutCacheSize int64
}

func WithLayoutCacheSize(n int64) Option {
	return func(o *options) {
		o.layoutCacheSize = n
	}
}

// NewManager opens the catalog. When isNew is set the catalog tables are
// created in tx, which the caller must commit.
func NewManager(isNew bool, tx *transaction.Transaction, opts ...Option) (*Manager, error) {
	o := options{layoutCacheSize: DefaultLayoutCacheSize}
	for _, opt := range opts {
		opt(&o)
	}

	tableManager, err := NewTableManager(isNew, tx, o.layoutCacheSize)
	if err != nil {
		return nil, err
	}
	viewManager, err := NewViewManager(isNew, tableManager, tx)
	if err != nil {
		tableManager.Close()
		return nil, err
	}

	statManager := NewStatManager(tableManager)
	indexManager, err := NewIndexManager(isNew, tableManager, statManager, tx)
	if err != nil {
		tableManager.Close()
		return nil, err
	}

	return &Manager{
		tableManager: tableManager,
		viewManager:  viewManager,
		statManager:  statManager,
		indexManager: indexManager,
	}, nil
}

func (m *Manager) CreateTable(tableName string, schema *record.Schema, tx *transaction.Transaction) error {
	return m.tableManager.CreateTable(tableName, schema, tx)
}

func (m *Manager) Layout(tableName string, tx *transaction.Transaction) (*record.Layout, error) {
	return m.tableManager.Layout(tableName, tx)
}

func (m *Manager) TableNames(tx *transaction.Transaction) ([]string, error) {
	return m.tableManager.TableNames(tx)
}

func (m *Manager) CreateView(viewName string, viewDef string, tx *transaction.Transaction) error {
	return m.viewManager.CreateView(viewName, viewDef, tx)
}

func (m *Manager) ViewDef(viewName string, tx *transaction.Transaction) (string, bool, error) {
	return m.viewManager.ViewDef(viewName, tx)
}

func (m *Manager) CreateIndex(indexName, tableName, fieldName string, tx *transaction.Transaction) error {
	return m.indexManager.CreateIndex(indexName, tableName, fieldName, tx)
}

func (m *Manager) IndexInfo(tableName string, tx *transaction.Transaction) (map[string]*IndexInfo, error) {
	return m.indexManager.IndexInfo(tableName, tx)
}

func (m *Manager) StatInfo(tableName string, layout *record.Layout, tx *transaction.Transaction) (StatInfo, error) {
	return m.statManager.StatInfo(tableName, layout, tx)
}

// TableModified tells the statistics that a table's contents changed.
func (m *Manager) TableModified(tableName string) {
	m.statManager.Forget(tableName)
}

func (m *Manager) Close() {
	m.tableManager.Close()
}
