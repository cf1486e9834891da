package metadata

import (
	"testing"
	"time"

	"minidb/buffer"
	"minidb/file"
	"minidb/log"
	"minidb/transaction"
)

type testDB struct {
	fm     *file.Manager
	lm     *log.Manager
	bm     *buffer.Manager
	lt     *transaction.LockTable
	nextTx int32
}

func newTestDB(t *testing.T) *testDB {
	t.Helper()

	fm, err := file.NewManager(t.TempDir(), 400)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { fm.Close() })

	lm, err := log.NewManager(fm, "testlogfile")
	if err != nil {
		t.Fatal(err)
	}

	return &testDB{
		fm: fm,
		lm: lm,
		bm: buffer.NewManager(fm, lm, 8),
		lt: transaction.NewLockTable(transaction.WithLockTimeout(500 * time.Millisecond)),
	}
}

func (db *testDB) begin(t *testing.T) *transaction.Transaction {
	t.Helper()

	db.nextTx++
	tx, err := transaction.NewTransaction(db.fm, db.lm, db.bm, db.lt, db.nextTx)
	if err != nil {
		t.Fatal(err)
	}
	return tx
}
