package transaction

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"minidb/file"
)

// DefaultMaxWait defines the maximum time to wait for a lock.
const DefaultMaxWait = 10 * time.Second

type lockMode int8

const (
	sharedLock lockMode = iota + 1
	exclusiveLock
)

func (m lockMode) String() string {
	if m == exclusiveLock {
		return "X"
	}
	return "S"
}

// LockTable grants shared and exclusive locks on blocks to transactions.
// There is one lock table per engine; every transaction shares it.
//
// A block has either any number of shared holders or a single exclusive
// holder. A request that cannot be granted waits until another transaction
// releases a lock, or fails with ErrLockAbort once the wait bound passes.
type LockTable struct {
	mu       sync.Mutex
	locks    map[file.Block]map[int32]lockMode
	held     map[int32]map[file.Block]struct{}
	released chan struct{} // closed and replaced whenever a lock is released
	maxWait  time.Duration
	logger   *slog.Logger
	timeouts int64
}

type LockTableOption func(*LockTable)

// WithLockTimeout sets how long a lock request waits before aborting.
func WithLockTimeout(d time.Duration) LockTableOption {
	return func(lt *LockTable) {
		lt.maxWait = d
	}
}

func WithLockLogger(logger *slog.Logger) LockTableOption {
	return func(lt *LockTable) {
		lt.logger = logger
	}
}

func NewLockTable(opts ...LockTableOption) *LockTable {
	lt := &LockTable{
		locks:    make(map[file.Block]map[int32]lockMode),
		held:     make(map[int32]map[file.Block]struct{}),
		released: make(chan struct{}),
		maxWait:  DefaultMaxWait,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(lt)
	}
	return lt
}

// SLock grants a shared (read) lock on the block to txNum. It waits while
// another transaction holds an exclusive lock on the block.
func (lt *LockTable) SLock(block file.Block, txNum int32) error {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	return lt.slock(block, txNum)
}

// XLock grants an exclusive (write) lock on the block to txNum. The caller
// first gets a shared lock, then waits until it is the only holder.
func (lt *LockTable) XLock(block file.Block, txNum int32) error {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if lt.locks[block][txNum] == exclusiveLock {
		return nil
	}
	if err := lt.slock(block, txNum); err != nil {
		return err
	}

	err := lt.await(block, txNum, func() bool {
		return !lt.hasOtherHolders(block, txNum)
	})
	if err != nil {
		return err
	}

	lt.locks[block][txNum] = exclusiveLock
	return nil
}

// Unlock releases whatever lock txNum holds on the block.
func (lt *LockTable) Unlock(block file.Block, txNum int32) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if lt.release(block, txNum) {
		lt.notify()
	}
}

// UnlockAll releases every lock held by txNum.
func (lt *LockTable) UnlockAll(txNum int32) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	released := false
	for block := range lt.held[txNum] {
		if lt.release(block, txNum) {
			released = true
		}
	}
	delete(lt.held, txNum)

	if released {
		lt.notify()
	}
}

// Holders reports the transactions holding a lock on the block. exclusive is
// -1 when no transaction holds an exclusive lock.
func (lt *LockTable) Holders(block file.Block) (shared []int32, exclusive int32) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	exclusive = -1
	for txNum, mode := range lt.locks[block] {
		if mode == exclusiveLock {
			exclusive = txNum
		} else {
			shared = append(shared, txNum)
		}
	}
	slices.Sort(shared)
	return shared, exclusive
}

// Timeouts returns the number of lock requests that gave up waiting.
func (lt *LockTable) Timeouts() int64 {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.timeouts
}

// slock must be called with the mutex held.
func (lt *LockTable) slock(block file.Block, txNum int32) error {
	if _, ok := lt.locks[block][txNum]; ok {
		return nil
	}

	err := lt.await(block, txNum, func() bool {
		return !lt.hasOtherXLock(block, txNum)
	})
	if err != nil {
		return err
	}

	holders, ok := lt.locks[block]
	if !ok {
		holders = make(map[int32]lockMode)
		lt.locks[block] = holders
	}
	holders[txNum] = sharedLock

	blocks, ok := lt.held[txNum]
	if !ok {
		blocks = make(map[file.Block]struct{})
		lt.held[txNum] = blocks
	}
	blocks[block] = struct{}{}
	return nil
}

// await blocks until ready reports true or the wait bound passes. It must be
// called with the mutex held; the mutex is released while waiting.
func (lt *LockTable) await(block file.Block, txNum int32, ready func() bool) error {
	var timer *time.Timer
	for !ready() {
		if timer == nil {
			timer = time.NewTimer(lt.maxWait)
			defer timer.Stop()
		}

		released := lt.released
		lt.mu.Unlock()
		select {
		case <-released:
			lt.mu.Lock()
		case <-timer.C:
			lt.mu.Lock()
			lt.timeouts++
			lt.logger.Warn("lock request timed out", "tx", txNum, "block", block.String(), "wait", lt.maxWait)
			return fmt.Errorf("%w: tx %d on %s", ErrLockAbort, txNum, block)
		}
	}
	return nil
}

// release must be called with the mutex held.
func (lt *LockTable) release(block file.Block, txNum int32) bool {
	holders := lt.locks[block]
	if _, ok := holders[txNum]; !ok {
		return false
	}

	delete(holders, txNum)
	if len(holders) == 0 {
		delete(lt.locks, block)
	}
	delete(lt.held[txNum], block)
	return true
}

// notify wakes every waiting request so it can re-check its condition.
func (lt *LockTable) notify() {
	close(lt.released)
	lt.released = make(chan struct{})
}

func (lt *LockTable) hasOtherXLock(block file.Block, txNum int32) bool {
	for holder, mode := range lt.locks[block] {
		if holder != txNum && mode == exclusiveLock {
			return true
		}
	}
	return false
}

func (lt *LockTable) hasOtherHolders(block file.Block, txNum int32) bool {
	for holder := range lt.locks[block] {
		if holder != txNum {
			return true
		}
	}
	return false
}
