package transaction

import (
	"minidb/buffer"
	"minidb/log"
)

// RecoveryManager writes a transaction's log records and undoes its changes.
// Logging is undo-only: a SET record holds the old value, never the new one.
type RecoveryManager struct {
	logManager    *log.Manager
	bufferManager *buffer.Manager
	tx            *Transaction
	txNum         int32
}

// RecoveryStats summarizes a Recover run.
type RecoveryStats struct {
	Unfinished    int   // transactions found without a COMMIT or ROLLBACK
	Undone        int   // SET records reversed
	MaxTxNum      int32 // highest transaction number anywhere in the log
	CheckpointLSN int32
}

// NewRecoveryManager writes a START record for the transaction.
func NewRecoveryManager(logManager *log.Manager, bufferManager *buffer.Manager, tx *Transaction, txNum int32) (*RecoveryManager, error) {
	if _, err := writeStatusRecord(logManager, Start, txNum); err != nil {
		return nil, err
	}

	return &RecoveryManager{
		logManager:    logManager,
		bufferManager: bufferManager,
		tx:            tx,
		txNum:         txNum,
	}, nil
}

// Commit makes the transaction durable. Its pages reach disk before the
// COMMIT record does, because recovery never redoes a committed change.
// durable reports whether the COMMIT record reached the log, which makes the
// transaction committed even if a later step fails.
func (m *RecoveryManager) Commit() (durable bool, err error) {
	if err := m.logManager.Flush(m.logManager.LatestLSN()); err != nil {
		return false, err
	}
	if err := m.bufferManager.FlushAll(m.txNum); err != nil {
		return false, err
	}

	lsn, err := writeStatusRecord(m.logManager, Commit, m.txNum)
	if err != nil {
		return false, err
	}
	if err := m.logManager.Flush(lsn); err != nil {
		return false, err
	}

	return true, m.bufferManager.FlushAll(m.txNum)
}

// Rollback undoes the transaction's changes, then writes a ROLLBACK record.
func (m *RecoveryManager) Rollback() (int, error) {
	undone, err := m.doRollback()
	if err != nil {
		return undone, err
	}

	if err := m.bufferManager.FlushAll(m.txNum); err != nil {
		return undone, err
	}

	lsn, err := writeStatusRecord(m.logManager, Rollback, m.txNum)
	if err != nil {
		return undone, err
	}

	return undone, m.logManager.Flush(lsn)
}

// Recover undoes every change made by a transaction that neither committed
// nor rolled back, then writes a checkpoint.
func (m *RecoveryManager) Recover() (RecoveryStats, error) {
	finished, unfinished, maxTxNum, err := m.scanFinished()
	if err != nil {
		return RecoveryStats{}, err
	}

	stats := RecoveryStats{Unfinished: len(unfinished), MaxTxNum: maxTxNum}
	stats.Undone, err = m.doRecover(finished)
	if err != nil {
		return stats, err
	}

	if err := m.bufferManager.FlushAll(m.txNum); err != nil {
		return stats, err
	}

	lsn, err := WriteCheckpoint(m.logManager)
	if err != nil {
		return stats, err
	}
	stats.CheckpointLSN = lsn

	return stats, m.logManager.Flush(lsn)
}

// SetInt logs the value currently at offset so that it can be restored.
func (m *RecoveryManager) SetInt(buf *buffer.Buffer, offset int32) (int32, error) {
	old, err := buf.Contents().ReadInt32At(offset)
	if err != nil {
		return 0, err
	}

	block, _ := buf.Block()
	return writeSetIntRecord(m.logManager, m.txNum, block, offset, old)
}

// SetBytes logs the length-prefixed value currently at offset so that it can
// be restored. Strings are logged through it too.
func (m *RecoveryManager) SetBytes(buf *buffer.Buffer, offset int32) (int32, error) {
	old, err := buf.Contents().ReadBytesAt(offset)
	if err != nil {
		return 0, err
	}

	block, _ := buf.Block()
	return writeSetStringRecord(m.logManager, m.txNum, block, offset, old)
}

// doRollback walks the log backwards undoing this transaction's records
// until it reaches the transaction's START record.
func (m *RecoveryManager) doRollback() (int, error) {
	iter, err := NewRecordIterator(m.logManager)
	if err != nil {
		return 0, err
	}

	undone := 0
	for iter.HasNext() {
		record, err := iter.Next()
		if err != nil {
			return undone, err
		}

		if record.TxNum() != m.txNum {
			continue
		}
		if record.Op() == Start {
			return undone, nil
		}
		if err := record.Undo(m.tx); err != nil {
			return undone, err
		}
		if isSet(record) {
			undone++
		}
	}

	return undone, nil
}

// scanFinished reads the log from oldest to newest. It reports which
// transactions after the last checkpoint finished, which did not, and the
// highest transaction number in the whole log.
func (m *RecoveryManager) scanFinished() (finished, unfinished map[int32]bool, maxTxNum int32, err error) {
	iter, err := m.logManager.ForwardIterator()
	if err != nil {
		return nil, nil, 0, err
	}

	finished = make(map[int32]bool)
	unfinished = make(map[int32]bool)
	for {
		ok, err := iter.HasNext()
		if err != nil {
			return nil, nil, 0, err
		}
		if !ok {
			break
		}

		b, err := iter.Next()
		if err != nil {
			return nil, nil, 0, err
		}
		record, err := ParseRecord(b)
		if err != nil {
			return nil, nil, 0, err
		}

		txNum := record.TxNum()
		maxTxNum = max(maxTxNum, txNum)
		switch record.Op() {
		case Checkpoint:
			clear(finished)
			clear(unfinished)
		case Commit, Rollback:
			finished[txNum] = true
			delete(unfinished, txNum)
		default:
			if txNum != m.txNum && !finished[txNum] {
				unfinished[txNum] = true
			}
		}
	}
	return finished, unfinished, maxTxNum, nil
}

// LastTxNum returns the highest transaction number in the log, or 0 for an
// empty log. A process numbers its transactions, recovery included, from one
// past it so that no number is ever written to the log twice.
func LastTxNum(logManager *log.Manager) (int32, error) {
	iter, err := logManager.ForwardIterator()
	if err != nil {
		return 0, err
	}

	var last int32
	for {
		ok, err := iter.HasNext()
		if err != nil {
			return 0, err
		}
		if !ok {
			return last, nil
		}
		b, err := iter.Next()
		if err != nil {
			return 0, err
		}
		record, err := ParseRecord(b)
		if err != nil {
			return 0, err
		}
		last = max(last, record.TxNum())
	}
}

// doRecover walks the log backwards, undoing the changes of every transaction
// not in finished, until it reaches a checkpoint or the start of the log.
func (m *RecoveryManager) doRecover(finished map[int32]bool) (int, error) {
	iter, err := NewRecordIterator(m.logManager)
	if err != nil {
		return 0, err
	}

	undone := 0
	for iter.HasNext() {
		record, err := iter.Next()
		if err != nil {
			return undone, err
		}

		if record.Op() == Checkpoint {
			return undone, nil
		}
		if !isSet(record) || finished[record.TxNum()] {
			continue
		}
		if err := record.Undo(m.tx); err != nil {
			return undone, err
		}
		undone++
	}

	return undone, nil
}

func isSet(record Record) bool {
	return record.Op() == SetInt || record.Op() == SetString
}
