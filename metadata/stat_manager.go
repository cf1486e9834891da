package metadata

import (
	"sync"

	"minidb/record"
	"minidb/transaction"
)

// refreshInterval is the number of StatInfo calls between full statistics
// refreshes.
const refreshInterval = 100

// StatInfo holds the size estimates of one table.
type StatInfo struct {
	numBlocks  int32
	numRecords int32
}

func NewStatInfo(numBlocks int32, numRecords int32) StatInfo {
	return StatInfo{numBlocks: numBlocks, numRecords: numRecords}
}

func (si StatInfo) BlocksAccessed() int32 {
	return si.numBlocks
}

func (si StatInfo) RecordsOutput() int32 {
	return si.numRecords
}

// DistinctValues assumes that about a third of the values of any field are
// distinct.
func (si StatInfo) DistinctValues(fieldName string) int32 {
	return 1 + (si.numRecords / 3)
}

// StatManager keeps per-table statistics in memory. They are computed on
// first use and recomputed for every table after refreshInterval calls.
type StatManager struct {
	mu           sync.Mutex
	tableManager *TableManager
	tableStats   map[string]StatInfo
	numCalls     int32
}

func NewStatManager(tableManager *TableManager) *StatManager {
	return &StatManager{
		tableManager: tableManager,
		tableStats:   make(map[string]StatInfo),
	}
}

func (sm *StatManager) StatInfo(tableName string, layout *record.Layout, tx *transaction.Transaction) (StatInfo, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.numCalls++
	if sm.numCalls > refreshInterval {
		if err := sm.refreshStatistics(tx); err != nil {
			return StatInfo{}, err
		}
	}

	info, exist := sm.tableStats[tableName]
	if !exist {
		var err error
		info, err = calcTableStats(tableName, layout, tx)
		if err != nil {
			return StatInfo{}, err
		}
		sm.tableStats[tableName] = info
	}
	return info, nil
}

// Forget drops the statistics of a table so that the next call recomputes
// them.
func (sm *StatManager) Forget(tableName string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.tableStats, tableName)
}

func (sm *StatManager) refreshStatistics(tx *transaction.Transaction) error {
	names, err := sm.tableManager.TableNames(tx)
	if err != nil {
		return err
	}

	tableStats := make(map[string]StatInfo, len(names))
	for _, tableName := range names {
		layout, err := sm.tableManager.Layout(tableName, tx)
		if err != nil {
			return err
		}
		info, err := calcTableStats(tableName, layout, tx)
		if err != nil {
			return err
		}
		tableStats[tableName] = info
	}

	sm.tableStats = tableStats
	sm.numCalls = 0
	return nil
}

func calcTableStats(tableName string, layout *record.Layout, tx *transaction.Transaction) (StatInfo, error) {
	var numRecords, numBlocks int32
	tableScan, err := record.NewTableScan(tx, tableName, layout)
	if err != nil {
		return StatInfo{}, err
	}
	defer tableScan.Close()

	for {
		ok, err := tableScan.Next()
		if err != nil {
			return StatInfo{}, err
		}
		if !ok {
			break
		}
		numRecords++
		numBlocks = tableScan.RID().BlockNum + 1
	}
	return NewStatInfo(numBlocks, numRecords), nil
}
