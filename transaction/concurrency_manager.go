package transaction

import (
	"fmt"
	"strings"

	"minidb/file"
)

// Isolation selects how long a transaction keeps its read locks.
type Isolation int

const (
	// Serializable holds shared locks until the transaction ends and locks
	// the end-of-file marker when reading a file's size, preventing phantoms.
	Serializable Isolation = iota
	// RepeatableRead holds shared locks until the transaction ends.
	RepeatableRead
	// ReadCommitted releases each shared lock as soon as the read completes.
	ReadCommitted
	// ReadUncommitted takes no shared locks at all.
	ReadUncommitted
)

func (i Isolation) String() string {
	switch i {
	case Serializable:
		return "serializable"
	case RepeatableRead:
		return "repeatable-read"
	case ReadCommitted:
		return "read-committed"
	case ReadUncommitted:
		return "read-uncommitted"
	default:
		return fmt.Sprintf("Isolation(%d)", int(i))
	}
}

// ParseIsolation converts a level name such as "read-committed" to an
// Isolation. Underscores and spaces are accepted in place of dashes.
func ParseIsolation(s string) (Isolation, error) {
	name := strings.NewReplacer("_", "-", " ", "-").Replace(strings.ToLower(strings.TrimSpace(s)))
	for _, level := range []Isolation{Serializable, RepeatableRead, ReadCommitted, ReadUncommitted} {
		if level.String() == name {
			return level, nil
		}
	}
	return 0, fmt.Errorf("transaction: unknown isolation level %q", s)
}

// ConcurrencyManager tracks the locks held by one transaction and requests
// new ones from the shared lock table.
type ConcurrencyManager struct {
	lockTable *LockTable
	txNum     int32
	isolation Isolation
	locks     map[file.Block]lockMode
}

func NewConcurrencyManager(lockTable *LockTable, txNum int32, isolation Isolation) *ConcurrencyManager {
	return &ConcurrencyManager{
		lockTable: lockTable,
		txNum:     txNum,
		isolation: isolation,
		locks:     make(map[file.Block]lockMode),
	}
}

func (cm *ConcurrencyManager) SLock(block file.Block) error {
	if _, ok := cm.locks[block]; ok {
		return nil
	}

	if err := cm.lockTable.SLock(block, cm.txNum); err != nil {
		return err
	}

	cm.locks[block] = sharedLock
	return nil
}

func (cm *ConcurrencyManager) XLock(block file.Block) error {
	if cm.hasXLock(block) {
		return nil
	}

	if err := cm.lockTable.XLock(block, cm.txNum); err != nil {
		// The lock table may have granted the implied shared lock before
		// timing out on the upgrade.
		if _, ok := cm.locks[block]; !ok {
			cm.lockTable.Unlock(block, cm.txNum)
		}
		return err
	}

	cm.locks[block] = exclusiveLock
	return nil
}

// beforeRead takes the lock a read needs under the transaction's isolation level.
func (cm *ConcurrencyManager) beforeRead(block file.Block) error {
	if cm.isolation == ReadUncommitted {
		return nil
	}
	return cm.SLock(block)
}

// afterRead gives up a shared lock that the isolation level does not keep.
func (cm *ConcurrencyManager) afterRead(block file.Block) {
	if cm.isolation != ReadCommitted {
		return
	}
	if cm.locks[block] == sharedLock {
		cm.lockTable.Unlock(block, cm.txNum)
		delete(cm.locks, block)
	}
}

// beforeSize locks the end-of-file marker when the isolation level rules out
// phantoms.
func (cm *ConcurrencyManager) beforeSize(marker file.Block) error {
	if cm.isolation != Serializable {
		return nil
	}
	return cm.SLock(marker)
}

func (cm *ConcurrencyManager) Release() {
	cm.lockTable.UnlockAll(cm.txNum)
	clear(cm.locks)
}

func (cm *ConcurrencyManager) hasXLock(block file.Block) bool {
	return cm.locks[block] == exclusiveLock
}
