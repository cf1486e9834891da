package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"minidb/file"
	"minidb/logging"
	"minidb/server"
	"minidb/transaction"
)

func openDB(t *testing.T) *server.DB {
	t.Helper()

	cfg := server.DefaultConfig(t.TempDir())
	cfg.Logger = logging.Discard()
	db, err := server.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func runScript(t *testing.T, db *server.DB, script string) string {
	t.Helper()

	var out bytes.Buffer
	if err := newSession(db, &out, false).run(strings.NewReader(script)); err != nil {
		t.Fatal(err)
	}
	return out.String()
}

func TestSession_Autocommit(t *testing.T) {
	db := openDB(t)

	out := runScript(t, db, `
create table pet (id int, name varchar(8));
insert into pet (id, name) values (1, 'rex');
insert into pet (id, name)
  values (2, 'tom');
select id, name from pet where id = 2;
`)

	for _, want := range []string{"0 records affected", "1 record affected", "tom", "1 row"} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "rex") {
		t.Errorf("selection returned a filtered row:\n%s", out)
	}
	if n := len(db.ActiveTxs()); n != 0 {
		t.Errorf("active transactions: got %d, want 0", n)
	}
}

func TestSession_IndexAndOrdering(t *testing.T) {
	db := openDB(t)

	out := runScript(t, db, `
create table pet (id int, name varchar(8), kind varchar(8));
insert into pet (id, name, kind) values (1, 'rex', 'dog');
insert into pet (id, name, kind) values (2, 'tom', 'cat');
insert into pet (id, name, kind) values (3, 'ace', 'dog');
create index kindidx on pet (kind);
explain select name from pet where kind = 'dog';
select name from pet where kind = 'dog' order by name desc limit 1;
select distinct kind from pet order by kind;
`)

	for _, want := range []string{"3 records affected", "IndexSelect(index=kindidx,value='dog',", "rex", "1 row", "2 rows"} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "ace") {
		t.Errorf("limit let a second row through:\n%s", out)
	}
	if cat, dog := strings.Index(out, "cat"), strings.LastIndex(out, "dog"); cat < 0 || dog < cat {
		t.Errorf("distinct kinds not in order:\n%s", out)
	}
}

func TestSession_ExplicitTransaction(t *testing.T) {
	db := openDB(t)

	out := runScript(t, db, `
create table pet (id int, name varchar(8));
begin;
insert into pet (id, name) values (1, 'rex');
rollback;
begin;
insert into pet (id, name) values (2, 'tom');
commit;
select name from pet;
commit;
`)

	for _, want := range []string{"rolled back", "committed", "tom", "1 row", "error: no transaction open"} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "rex") {
		t.Errorf("rolled back insert is visible:\n%s", out)
	}
}

func TestSession_ErrorRollsBackTransaction(t *testing.T) {
	db := openDB(t)

	out := runScript(t, db, `
create table pet (id int, name varchar(8));
begin;
insert into pet (id, name) values (1, 'rex');
insert into nosuch (id) values (2);
select name from pet;
`)

	if !strings.Contains(out, "unknown table") || !strings.Contains(out, "transaction rolled back") {
		t.Errorf("missing error report:\n%s", out)
	}
	if strings.Contains(out, "rex") {
		t.Errorf("insert survived the failed transaction:\n%s", out)
	}
	if !strings.Contains(out, "0 rows") {
		t.Errorf("want empty result:\n%s", out)
	}
}

func TestSession_MetaCommands(t *testing.T) {
	db := openDB(t)

	out := runScript(t, db, `
create table pet (id int);
:tables
:stats
:checkpoint
:bogus
:exit
select id from pet;
`)

	for _, want := range []string{"pet", "tblcat", "blocks read", "buffer hits", "checkpoint written", "unknown command :bogus"} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "0 rows") {
		t.Errorf("statement after :exit ran:\n%s", out)
	}
	if n := len(db.ActiveTxs()); n != 0 {
		t.Errorf("active transactions after :tables: got %d, want 0", n)
	}
}

func TestSession_RollbackRetry(t *testing.T) {
	cfg := server.DefaultConfig(t.TempDir())
	cfg.Logger = logging.Discard()
	cfg.BufferCount = 3
	cfg.BufferTimeout = 100 * time.Millisecond
	cfg.LockTimeout = 200 * time.Millisecond
	db, err := server.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	var out bytes.Buffer
	s := newSession(db, &out, false)
	for _, sql := range []string{
		"create table pet (id int);",
		"begin;",
		"insert into pet (id) values (1);",
	} {
		if err := s.execute(sql); err != nil {
			t.Fatalf("%s: %v", sql, err)
		}
	}

	// Another transaction holds every buffer, so the undo cannot pin the
	// table block.
	other, err := db.NewTx()
	if err != nil {
		t.Fatal(err)
	}
	for i := range int32(cfg.BufferCount) {
		if err := other.Pin(file.NewBlock("filler", i)); err != nil {
			t.Fatalf("Pin() failed: %v", err)
		}
	}

	if err := s.execute("rollback;"); !transaction.IsAbort(err) {
		t.Fatalf("rollback with a full pool: got %v, want a buffer timeout", err)
	}
	if s.tx == nil {
		t.Fatalf("session dropped a transaction that still holds locks")
	}
	if err := s.execute("select id from pet;"); err == nil || !strings.Contains(err.Error(), "must be rolled back") {
		t.Errorf("statement on a half rolled back transaction: got %v", err)
	}

	if err := other.Rollback(); err != nil {
		t.Fatal(err)
	}
	if err := s.execute("rollback;"); err != nil {
		t.Fatalf("retried rollback failed: %v", err)
	}
	if s.tx != nil {
		t.Errorf("transaction still open after rollback")
	}

	out.Reset()
	if err := s.execute("select id from pet;"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "0 rows") {
		t.Errorf("rolled back insert is visible:\n%s", out.String())
	}
	if n := len(db.ActiveTxs()); n != 0 {
		t.Errorf("active transactions: got %d, want 0", n)
	}
}

func TestSession_Explain(t *testing.T) {
	db := openDB(t)

	out := runScript(t, db, `
create table a (x int);
create table b (y int);
explain select x from a, b where x = y;
`)
	if !strings.Contains(out, "Project(fields=x") || !strings.Contains(out, "Product(") {
		t.Errorf("unexpected plan:\n%s", out)
	}
}
