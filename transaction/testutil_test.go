package transaction

import (
	"sync/atomic"
	"testing"
	"time"

	"minidb/buffer"
	"minidb/file"
	"minidb/log"
)

// testEngine wires the managers a transaction needs on top of one directory.
type testEngine struct {
	dir    string
	fm     *file.Manager
	lm     *log.Manager
	bm     *buffer.Manager
	lt     *LockTable
	nextTx *atomic.Int32
}

func newTestEngine(t *testing.T, dir string, lockWait time.Duration) *testEngine {
	t.Helper()

	e := &testEngine{dir: dir, nextTx: new(atomic.Int32)}
	e.open(t, lockWait)
	return e
}

func (e *testEngine) open(t *testing.T, lockWait time.Duration) {
	t.Helper()

	fm, err := file.NewManager(e.dir, 400)
	if err != nil {
		t.Fatalf("failed to create file manager: %v", err)
	}
	t.Cleanup(func() { fm.Close() })

	lm, err := log.NewManager(fm, "testlogfile")
	if err != nil {
		t.Fatalf("failed to create log manager: %v", err)
	}

	e.fm = fm
	e.lm = lm
	e.bm = buffer.NewManager(fm, lm, 8, buffer.WithMaxWait(time.Second))
	e.lt = NewLockTable(WithLockTimeout(lockWait))
}

// crash abandons the current managers without flushing anything and opens
// fresh ones on the same directory. Transaction numbers keep increasing.
func (e *testEngine) crash(t *testing.T) {
	t.Helper()
	e.open(t, e.lt.maxWait)
}

func (e *testEngine) begin(t *testing.T, opts ...Option) *Transaction {
	t.Helper()

	tx, err := NewTransaction(e.fm, e.lm, e.bm, e.lt, e.nextTx.Add(1), opts...)
	if err != nil {
		t.Fatalf("failed to create transaction: %v", err)
	}
	return tx
}

func (e *testEngine) recover(t *testing.T) RecoveryStats {
	t.Helper()

	stats, err := e.begin(t).Recover()
	if err != nil {
		t.Fatalf("Recover() failed: %v", err)
	}
	return stats
}
