// Package server assembles the storage, log, buffer, lock and catalog
// managers into a database that hands out transactions.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"minidb/buffer"
	"minidb/file"
	"minidb/log"
	"minidb/metadata"
	"minidb/plan"
	"minidb/transaction"
)

// ErrActiveTransactions is returned by Checkpoint while a transaction is
// running.
var ErrActiveTransactions = errors.New("server: transactions are active")

type Config struct {
	Dir             string
	BlockSize       int32
	BufferCount     int32
	LogFile         string
	LockTimeout     time.Duration
	BufferTimeout   time.Duration
	Isolation       transaction.Isolation
	LayoutCacheSize int64
	Logger          *slog.Logger
}

func DefaultConfig(dir string) Config {
	return Config{
		Dir:             dir,
		BlockSize:       400,
		BufferCount:     8,
		LogFile:         "simpledb.log",
		LockTimeout:     transaction.DefaultMaxWait,
		BufferTimeout:   buffer.DefaultMaxWait,
		Isolation:       transaction.Serializable,
		LayoutCacheSize: metadata.DefaultLayoutCacheSize,
	}
}

// DB is an open database. Its methods are safe for concurrent use; each
// Transaction it returns belongs to one goroutine.
type DB struct {
	cfg           Config
	logger        *slog.Logger
	fileManager   *file.Manager
	logManager    *log.Manager
	bufferManager *buffer.Manager
	lockTable     *transaction.LockTable
	metadata      *metadata.Manager
	planner       *plan.Planner
	recovery      transaction.RecoveryStats
	recoveryTxNum int32

	nextTxNum atomic.Int32
	mu        sync.Mutex
	active    map[int32]*transaction.Transaction
}

// Stats is a snapshot of engine activity.
type Stats struct {
	Disk          file.Stats
	Buffers       buffer.Stats
	LatestLSN     int32
	LastSavedLSN  int32
	LockTimeouts  int64
	ActiveTxs     int
	NextTxNum     int32
	Recovery      transaction.RecoveryStats
	RecoveryTxNum int32
	LogFileBlocks int32
}

// Open opens the database in cfg.Dir, creating it if needed. Recovery runs
// before Open returns, so the database reflects only finished transactions.
func Open(cfg Config) (*DB, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fileManager, err := file.NewManager(cfg.Dir, cfg.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("server: open %s: %w", cfg.Dir, err)
	}
	logManager, err := log.NewManager(fileManager, cfg.LogFile)
	if err != nil {
		fileManager.Close()
		return nil, fmt.Errorf("server: open %s: %w", cfg.Dir, err)
	}

	bufferManager := buffer.NewManager(fileManager, logManager, cfg.BufferCount,
		buffer.WithMaxWait(cfg.BufferTimeout),
		buffer.WithLogger(logger),
	)
	lockTable := transaction.NewLockTable(
		transaction.WithLockTimeout(cfg.LockTimeout),
		transaction.WithLockLogger(logger),
	)

	db := &DB{
		cfg:           cfg,
		logger:        logger,
		fileManager:   fileManager,
		logManager:    logManager,
		bufferManager: bufferManager,
		lockTable:     lockTable,
		active:        make(map[int32]*transaction.Transaction),
	}

	if err := db.open(); err != nil {
		fileManager.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) open() error {
	isNew := db.fileManager.IsNew()
	if isNew {
		db.logger.Info("creating new database", "dir", db.cfg.Dir)
	} else {
		db.logger.Info("recovering existing database", "dir", db.cfg.Dir)
	}

	// Recovery runs as a transaction of its own, numbered past every
	// transaction in the log. Its START record precedes the checkpoint it
	// writes, so later recoveries never see it as unfinished.
	lastTxNum, err := transaction.LastTxNum(db.logManager)
	if err != nil {
		return fmt.Errorf("server: recovery: %w", err)
	}
	db.recoveryTxNum = lastTxNum + 1
	tx, err := transaction.NewTransaction(db.fileManager, db.logManager, db.bufferManager, db.lockTable, db.recoveryTxNum,
		transaction.WithLogger(db.logger))
	if err != nil {
		return fmt.Errorf("server: recovery: %w", err)
	}
	stats, err := tx.Recover()
	if err != nil {
		return fmt.Errorf("server: recovery: %w", err)
	}
	db.recovery = stats
	db.nextTxNum.Store(max(stats.MaxTxNum, db.recoveryTxNum) + 1)
	db.logger.Info("recovery finished",
		"unfinished", stats.Unfinished,
		"undone", stats.Undone,
		"checkpoint_lsn", stats.CheckpointLSN,
		"recovery_tx", db.recoveryTxNum,
		"next_tx", db.nextTxNum.Load(),
	)

	tx, err = db.NewTx()
	if err != nil {
		return err
	}
	md, err := metadata.NewManager(isNew, tx, metadata.WithLayoutCacheSize(db.cfg.LayoutCacheSize))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("server: catalog: %w", err)
	}
	if err := tx.Commit(); err != nil {
		md.Close()
		return fmt.Errorf("server: catalog: %w", err)
	}

	db.metadata = md
	db.planner = plan.NewPlanner(md, plan.WithLogger(db.logger))
	return nil
}

// NewTx starts a transaction with the configured isolation level. Options
// override the defaults.
func (db *DB) NewTx(opts ...transaction.Option) (*transaction.Transaction, error) {
	opts = append([]transaction.Option{
		transaction.WithIsolation(db.cfg.Isolation),
		transaction.WithLogger(db.logger),
	}, opts...)

	db.mu.Lock()
	defer db.mu.Unlock()

	txNum := db.nextTxNum.Add(1) - 1
	tx, err := transaction.NewTransaction(db.fileManager, db.logManager, db.bufferManager, db.lockTable, txNum, opts...)
	if err != nil {
		return nil, fmt.Errorf("server: begin: %w", err)
	}

	db.active[txNum] = tx
	tx.OnFinish(func() {
		db.mu.Lock()
		delete(db.active, txNum)
		db.mu.Unlock()
	})
	return tx, nil
}

func (db *DB) BlockSize() int32 {
	return db.fileManager.BlockSize()
}

func (db *DB) Planner() *plan.Planner {
	return db.planner
}

func (db *DB) Metadata() *metadata.Manager {
	return db.metadata
}

// Checkpoint flushes every modified page and writes a checkpoint record, so
// that later recoveries stop reading the log there. It fails with
// ErrActiveTransactions unless the database is idle.
func (db *DB) Checkpoint() (int32, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if n := len(db.active); n > 0 {
		return 0, fmt.Errorf("%w: %d running", ErrActiveTransactions, n)
	}

	if err := db.bufferManager.FlushDirty(); err != nil {
		return 0, fmt.Errorf("server: checkpoint: %w", err)
	}
	lsn, err := transaction.WriteCheckpoint(db.logManager)
	if err != nil {
		return 0, fmt.Errorf("server: checkpoint: %w", err)
	}
	if err := db.logManager.Flush(lsn); err != nil {
		return 0, fmt.Errorf("server: checkpoint: %w", err)
	}

	db.logger.Info("checkpoint written", "lsn", lsn)
	return lsn, nil
}

// ActiveTxs returns the numbers of the running transactions.
func (db *DB) ActiveTxs() []int32 {
	db.mu.Lock()
	defer db.mu.Unlock()

	nums := make([]int32, 0, len(db.active))
	for txNum := range db.active {
		nums = append(nums, txNum)
	}
	slices.Sort(nums)
	return nums
}

func (db *DB) Stats() Stats {
	db.mu.Lock()
	activeTxs := len(db.active)
	db.mu.Unlock()

	logBlocks, _ := db.fileManager.Size(db.cfg.LogFile)
	return Stats{
		Disk:          db.fileManager.Stats(),
		Buffers:       db.bufferManager.Stats(),
		LatestLSN:     db.logManager.LatestLSN(),
		LastSavedLSN:  db.logManager.LastSavedLSN(),
		LockTimeouts:  db.lockTable.Timeouts(),
		ActiveTxs:     activeTxs,
		NextTxNum:     db.nextTxNum.Load(),
		Recovery:      db.recovery,
		RecoveryTxNum: db.recoveryTxNum,
		LogFileBlocks: logBlocks,
	}
}

// Close writes every modified page to disk and closes the database files.
// Transactions still running are not rolled back; recovery undoes them on
// the next Open.
func (db *DB) Close() error {
	if n := len(db.ActiveTxs()); n > 0 {
		db.logger.Warn("closing with active transactions", "count", n)
	}

	db.metadata.Close()
	flushErr := db.bufferManager.FlushDirty()
	if flushErr == nil {
		flushErr = db.logManager.Flush(db.logManager.LatestLSN())
	}
	closeErr := db.fileManager.Close()
	db.logger.Info("database closed", "dir", db.cfg.Dir)
	return errors.Join(flushErr, closeErr)
}
