package transaction

import (
	"errors"
	"fmt"
	"log/slog"

	"minidb/buffer"
	"minidb/file"
	"minidb/log"
)

var (
	// ErrLockAbort is returned when a lock request times out. The transaction
	// must be rolled back.
	ErrLockAbort = errors.New("transaction: lock request aborted due to timeout")

	// ErrTxCompleted is returned by any operation on a committed or rolled
	// back transaction.
	ErrTxCompleted = errors.New("transaction: already completed")

	// ErrBlockNotPinned is returned when reading or writing a block the
	// transaction has not pinned.
	ErrBlockNotPinned = errors.New("transaction: block not pinned")
)

// IsAbort reports whether err means the transaction lost a wait for a lock or
// a buffer and must be rolled back.
func IsAbort(err error) bool {
	return errors.Is(err, ErrLockAbort) || errors.Is(err, buffer.ErrBufferTimeout)
}

// endOfFile is the block number of the marker locked by Size and Append.
const endOfFile = -1

type State int32

const (
	Active State = iota
	Committing
	RollingBack
	Completed
)

func (s State) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Committing:
		return "COMMITTING"
	case RollingBack:
		return "ROLLING_BACK"
	case Completed:
		return "COMPLETED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Transaction ties buffer access, logging and locking together for one unit
// of work. A Transaction must be used by one goroutine at a time.
type Transaction struct {
	txNum              int32
	state              State
	isolation          Isolation
	fileManager        *file.Manager
	logManager         *log.Manager
	bufferManager      *buffer.Manager
	recoveryManager    *RecoveryManager
	concurrencyManager *ConcurrencyManager
	bufferList         *BufferList
	onRollback         []func()
	onFinish           []func()
	logger             *slog.Logger
}

type Option func(*Transaction)

func WithIsolation(level Isolation) Option {
	return func(tx *Transaction) {
		tx.isolation = level
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(tx *Transaction) {
		tx.logger = logger
	}
}

// NewTransaction starts transaction txNum and writes its START record. The
// caller owns transaction numbering and must never reuse a number.
func NewTransaction(fileManager *file.Manager, logManager *log.Manager, bufferManager *buffer.Manager, lockTable *LockTable, txNum int32, opts ...Option) (*Transaction, error) {
	tx := &Transaction{
		txNum:         txNum,
		fileManager:   fileManager,
		logManager:    logManager,
		bufferManager: bufferManager,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(tx)
	}

	recoveryManager, err := NewRecoveryManager(logManager, bufferManager, tx, txNum)
	if err != nil {
		return nil, fmt.Errorf("transaction %d: start: %w", txNum, err)
	}

	tx.recoveryManager = recoveryManager
	tx.concurrencyManager = NewConcurrencyManager(lockTable, txNum, tx.isolation)
	tx.bufferList = NewBufferList(bufferManager)

	return tx, nil
}

func (tx *Transaction) TxNum() int32 {
	return tx.txNum
}

func (tx *Transaction) State() State {
	return tx.state
}

func (tx *Transaction) Isolation() Isolation {
	return tx.isolation
}

// Commit makes the transaction's changes durable, then releases its locks and
// pins. If Commit fails before the COMMIT record is durable, the transaction
// keeps its locks and must be rolled back. A failure after that point still
// completes the transaction, since its changes can no longer be undone.
func (tx *Transaction) Commit() error {
	if tx.state != Active {
		return ErrTxCompleted
	}

	tx.state = Committing
	durable, err := tx.recoveryManager.Commit()
	if err != nil {
		err = fmt.Errorf("transaction %d: commit: %w", tx.txNum, err)
		if durable {
			tx.finish()
		}
		return err
	}

	tx.finish()
	tx.logger.Debug("transaction committed", "tx", tx.txNum)
	return nil
}

// Rollback undoes the transaction's changes, then releases its locks and pins.
// A transaction whose commit failed can be rolled back. If Rollback itself
// fails, typically because undoing a change had to wait too long for a
// buffer, the transaction keeps its locks and Rollback can be called again:
// undoing a change a second time writes the same old value.
func (tx *Transaction) Rollback() error {
	switch tx.state {
	case Active, Committing, RollingBack:
	default:
		return ErrTxCompleted
	}

	tx.state = RollingBack
	undone, err := tx.recoveryManager.Rollback()
	if err != nil {
		tx.logger.Warn("transaction rollback failed", "tx", tx.txNum, "error", err)
		return fmt.Errorf("transaction %d: rollback: %w", tx.txNum, err)
	}

	tx.finish()
	for _, fn := range tx.onRollback {
		fn()
	}
	tx.logger.Debug("transaction rolled back", "tx", tx.txNum, "undone", undone)
	return nil
}

// OnRollback registers fn to run after the transaction rolls back. Callers
// that cache state derived from the transaction's writes use it to discard
// that state.
func (tx *Transaction) OnRollback(fn func()) {
	tx.onRollback = append(tx.onRollback, fn)
}

// OnFinish registers fn to run once the transaction has committed or rolled
// back and released its locks.
func (tx *Transaction) OnFinish(fn func()) {
	tx.onFinish = append(tx.onFinish, fn)
}

// Recover restores the database to a state that reflects only finished
// transactions and writes a checkpoint. It must run before any other
// transaction starts. The transaction is completed afterwards.
func (tx *Transaction) Recover() (RecoveryStats, error) {
	if tx.state != Active {
		return RecoveryStats{}, ErrTxCompleted
	}

	tx.state = RollingBack
	stats, err := tx.recoveryManager.Recover()
	if err != nil {
		return stats, fmt.Errorf("transaction %d: recover: %w", tx.txNum, err)
	}

	tx.finish()
	return stats, nil
}

func (tx *Transaction) finish() {
	tx.concurrencyManager.Release()
	tx.bufferList.UnpinAll()
	tx.state = Completed
	for _, fn := range tx.onFinish {
		fn()
	}
}

func (tx *Transaction) Pin(block file.Block) error {
	if tx.state == Completed {
		return ErrTxCompleted
	}
	return tx.bufferList.Pin(block)
}

func (tx *Transaction) Unpin(block file.Block) {
	tx.bufferList.Unpin(block)
}

func (tx *Transaction) GetInt(block file.Block, offset int32) (int32, error) {
	buf, err := tx.readable(block)
	if err != nil {
		return 0, err
	}
	defer tx.concurrencyManager.afterRead(block)

	return buf.Contents().ReadInt32At(offset)
}

func (tx *Transaction) GetString(block file.Block, offset int32) (string, error) {
	buf, err := tx.readable(block)
	if err != nil {
		return "", err
	}
	defer tx.concurrencyManager.afterRead(block)

	return buf.Contents().ReadStringAt(offset)
}

func (tx *Transaction) GetBytes(block file.Block, offset int32) ([]byte, error) {
	buf, err := tx.readable(block)
	if err != nil {
		return nil, err
	}
	defer tx.concurrencyManager.afterRead(block)

	return buf.Contents().ReadBytesAt(offset)
}

// SetInt writes val at offset. When okToLog is set, the old value is logged
// first so that the write can be undone.
func (tx *Transaction) SetInt(block file.Block, offset int32, val int32, okToLog bool) error {
	buf, err := tx.writable(block)
	if err != nil {
		return err
	}

	lsn := int32(-1)
	if okToLog {
		lsn, err = tx.recoveryManager.SetInt(buf, offset)
		if err != nil {
			return err
		}
	}

	if err := buf.Contents().WriteInt32At(offset, val); err != nil {
		return err
	}

	tx.bufferManager.SetModified(buf, tx.txNum, lsn)
	return nil
}

func (tx *Transaction) SetString(block file.Block, offset int32, val string, okToLog bool) error {
	return tx.SetBytes(block, offset, []byte(val), okToLog)
}

func (tx *Transaction) SetBytes(block file.Block, offset int32, val []byte, okToLog bool) error {
	buf, err := tx.writable(block)
	if err != nil {
		return err
	}

	lsn := int32(-1)
	if okToLog {
		lsn, err = tx.recoveryManager.SetBytes(buf, offset)
		if err != nil {
			return err
		}
	}

	if err := buf.Contents().WriteBytesAt(offset, val); err != nil {
		return err
	}

	tx.bufferManager.SetModified(buf, tx.txNum, lsn)
	return nil
}

// Size returns the number of blocks in the file.
func (tx *Transaction) Size(filename string) (int32, error) {
	if tx.state == Completed {
		return 0, ErrTxCompleted
	}

	if err := tx.concurrencyManager.beforeSize(file.NewBlock(filename, endOfFile)); err != nil {
		return 0, err
	}
	return tx.fileManager.Size(filename)
}

// Append adds a block to the end of the file. The end-of-file marker is
// locked exclusively so that concurrent scans cannot see a phantom block.
func (tx *Transaction) Append(filename string) (file.Block, error) {
	if tx.state == Completed {
		return file.Block{}, ErrTxCompleted
	}

	if err := tx.concurrencyManager.XLock(file.NewBlock(filename, endOfFile)); err != nil {
		return file.Block{}, err
	}
	return tx.fileManager.Append(filename)
}

func (tx *Transaction) BlockSize() int32 {
	return tx.fileManager.BlockSize()
}

func (tx *Transaction) AvailableBuffers() int32 {
	return tx.bufferManager.Available()
}

func (tx *Transaction) readable(block file.Block) (*buffer.Buffer, error) {
	if tx.state == Completed {
		return nil, ErrTxCompleted
	}

	buf, ok := tx.bufferList.Buffer(block)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotPinned, block)
	}

	if err := tx.concurrencyManager.beforeRead(block); err != nil {
		return nil, err
	}
	return buf, nil
}

func (tx *Transaction) writable(block file.Block) (*buffer.Buffer, error) {
	if tx.state == Completed {
		return nil, ErrTxCompleted
	}

	buf, ok := tx.bufferList.Buffer(block)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotPinned, block)
	}

	if err := tx.concurrencyManager.XLock(block); err != nil {
		return nil, err
	}
	return buf, nil
}
