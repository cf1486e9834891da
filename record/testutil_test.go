package record

import (
	"testing"

	"minidb/buffer"
	"minidb/file"
	"minidb/log"
	"minidb/transaction"
)

func newTx(t *testing.T) *transaction.Transaction {
	t.Helper()

	fileManager, err := file.NewManager(t.TempDir(), 400)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { fileManager.Close() })

	logManager, err := log.NewManager(fileManager, "testlogfile")
	if err != nil {
		t.Fatal(err)
	}

	bufferManager := buffer.NewManager(fileManager, logManager, 8)

	tx, err := transaction.NewTransaction(fileManager, logManager, bufferManager, transaction.NewLockTable(), 1)
	if err != nil {
		t.Fatal(err)
	}
	return tx
}
