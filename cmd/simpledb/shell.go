package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"minidb/parse"
	"minidb/plan"
	"minidb/server"
	"minidb/transaction"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

const helpText = `Statements end with ';' and may span lines.
Each statement runs in its own transaction unless BEGIN starts one;
COMMIT or ROLLBACK ends it.

  select [distinct] f, ... from t, ... [where a = b and ...]
         [order by f [asc|desc], ...] [limit n]
  insert into t (f, ...) values (c, ...)
  update t set f = expr [where ...]
  delete from t [where ...]
  create table t (f int, g varchar(n), ...)
  create view v as select ...
  create index i on t (f)
  explain select ...
  begin | commit | rollback

Meta commands:
  :help        show this text
  :tables      list tables
  :stats       show engine statistics
  :checkpoint  write a checkpoint (no transaction may be running)
  :exit        leave the shell`

var errExit = errors.New("exit")

// session runs statements against a database, tracking the transaction
// opened by BEGIN.
type session struct {
	db          *server.DB
	out         io.Writer
	interactive bool
	tx          *transaction.Transaction
}

func newSession(db *server.DB, out io.Writer, interactive bool) *session {
	return &session{db: db, out: out, interactive: interactive}
}

// run reads statements from r until EOF or :exit. Statement errors are
// reported and do not stop the session. A transaction left open at the end is
// rolled back.
func (s *session) run(r io.Reader) error {
	defer func() {
		if s.tx == nil {
			return
		}
		if err := s.tx.Rollback(); err != nil {
			s.report(err)
			return
		}
		fmt.Fprintln(s.out, mutedStyle.Render("open transaction rolled back"))
		s.tx = nil
	}()

	scanner := bufio.NewScanner(r)
	var pending strings.Builder
	s.prompt(pending.Len() > 0)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if pending.Len() == 0 && strings.HasPrefix(line, ":") {
			if err := s.meta(line); err != nil {
				if errors.Is(err, errExit) {
					return nil
				}
				s.report(err)
			}
			s.prompt(false)
			continue
		}

		if line != "" {
			if pending.Len() > 0 {
				pending.WriteByte(' ')
			}
			pending.WriteString(line)
		}

		if strings.HasSuffix(line, ";") {
			if err := s.execute(pending.String()); err != nil {
				s.report(err)
			}
			pending.Reset()
		}
		s.prompt(pending.Len() > 0)
	}
	return scanner.Err()
}

func (s *session) prompt(continued bool) {
	if !s.interactive {
		return
	}
	p := "sql> "
	if continued {
		p = "...> "
	}
	fmt.Fprint(s.out, promptStyle.Render(p))
}

func (s *session) report(err error) {
	fmt.Fprintln(s.out, errorStyle.Render("error: "+err.Error()))
}

// execute runs one statement. Outside BEGIN ... COMMIT it runs in its own
// transaction, committed on success and rolled back on failure. Inside, a
// failed statement rolls the whole transaction back.
func (s *session) execute(sql string) error {
	stmt, err := parse.Parse(sql)
	if err != nil {
		return err
	}

	if cmd, ok := stmt.(parse.TxCommand); ok {
		return s.control(cmd)
	}

	tx := s.tx
	if tx != nil && tx.State() != transaction.Active {
		return fmt.Errorf("transaction %d must be rolled back", tx.TxNum())
	}
	if tx == nil {
		tx, err = s.db.NewTx()
		if err != nil {
			return err
		}
	}

	if err := s.apply(sql, stmt, tx); err != nil {
		return s.abort(tx, err)
	}

	if s.tx == nil {
		if err := tx.Commit(); err != nil {
			return s.abort(tx, err)
		}
	}
	return nil
}

// abort rolls tx back after err. A transaction whose rollback fails still
// holds its locks, so it stays open in the session and ROLLBACK retries it.
func (s *session) abort(tx *transaction.Transaction, err error) error {
	if tx.State() == transaction.Completed {
		if s.tx == tx {
			s.tx = nil
		}
		return err
	}

	if rbErr := tx.Rollback(); rbErr != nil {
		s.tx = tx
		return fmt.Errorf("%w (rollback failed, run ROLLBACK to retry: %w)", err, rbErr)
	}
	if s.tx != nil {
		s.tx = nil
		return fmt.Errorf("%w (transaction rolled back)", err)
	}
	return err
}

func (s *session) control(cmd parse.TxCommand) error {
	switch cmd {
	case parse.Begin:
		if s.tx != nil {
			return fmt.Errorf("transaction %d already open", s.tx.TxNum())
		}
		tx, err := s.db.NewTx()
		if err != nil {
			return err
		}
		s.tx = tx
		fmt.Fprintf(s.out, "transaction %d started\n", tx.TxNum())
	case parse.Commit:
		if s.tx == nil {
			return fmt.Errorf("no transaction open")
		}
		tx := s.tx
		if tx.State() != transaction.Active {
			return fmt.Errorf("transaction %d must be rolled back", tx.TxNum())
		}
		if err := tx.Commit(); err != nil {
			return s.abort(tx, err)
		}
		s.tx = nil
		fmt.Fprintf(s.out, "transaction %d committed\n", tx.TxNum())
	case parse.Rollback:
		if s.tx == nil {
			return fmt.Errorf("no transaction open")
		}
		tx := s.tx
		if err := tx.Rollback(); err != nil {
			return fmt.Errorf("%w (run ROLLBACK to retry)", err)
		}
		s.tx = nil
		fmt.Fprintf(s.out, "transaction %d rolled back\n", tx.TxNum())
	}
	return nil
}

func (s *session) apply(sql string, stmt parse.Statement, tx *transaction.Transaction) error {
	planner := s.db.Planner()
	switch data := stmt.(type) {
	case *parse.QueryData:
		p, err := planner.CreateQueryPlan(data, tx)
		if err != nil {
			return err
		}
		return s.printQuery(p)
	case *parse.ExplainData:
		out, err := planner.Explain(sql, tx)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, out)
		return nil
	default:
		n, err := planner.Apply(stmt, tx)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s affected\n", plural(n, "record"))
		return nil
	}
}

func (s *session) printQuery(p plan.Plan) error {
	scan, err := p.Open()
	if err != nil {
		return err
	}
	defer scan.Close()

	fields := p.Schema().Fields()
	var rows [][]string
	for {
		ok, err := scan.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		row := make([]string, len(fields))
		for i, fieldName := range fields {
			val, err := scan.GetVal(fieldName)
			if err != nil {
				return err
			}
			if val.IsString() {
				row[i] = val.AsString()
			} else {
				row[i] = val.String()
			}
		}
		rows = append(rows, row)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(fields...).
		Rows(rows...)

	fmt.Fprintln(s.out, t.String())
	fmt.Fprintln(s.out, mutedStyle.Render(plural(len(rows), "row")))
	return nil
}

func (s *session) meta(cmd string) error {
	switch strings.ToLower(strings.TrimSuffix(cmd, ";")) {
	case ":exit", ":quit", ":q":
		return errExit
	case ":help":
		fmt.Fprintln(s.out, helpText)
	case ":tables":
		return s.tables()
	case ":stats":
		s.stats()
	case ":checkpoint":
		lsn, err := s.db.Checkpoint()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "checkpoint written at LSN %d\n", lsn)
	default:
		return fmt.Errorf("unknown command %s (try :help)", cmd)
	}
	return nil
}

func (s *session) tables() error {
	tx := s.tx
	if tx == nil {
		var err error
		tx, err = s.db.NewTx()
		if err != nil {
			return err
		}
	}

	names, err := s.db.Metadata().TableNames(tx)
	if err != nil {
		if s.tx == nil {
			return s.abort(tx, err)
		}
		return err
	}
	if s.tx == nil {
		if err := tx.Commit(); err != nil {
			return s.abort(tx, err)
		}
	}

	for _, name := range names {
		fmt.Fprintln(s.out, name)
	}
	return nil
}

func (s *session) stats() {
	st := s.db.Stats()
	blockSize := uint64(s.db.BlockSize())

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Rows(
			[]string{"blocks read", fmt.Sprintf("%s (%s)", humanize.Comma(st.Disk.BlocksRead), humanize.Bytes(uint64(st.Disk.BlocksRead)*blockSize))},
			[]string{"blocks written", fmt.Sprintf("%s (%s)", humanize.Comma(st.Disk.BlocksWritten), humanize.Bytes(uint64(st.Disk.BlocksWritten)*blockSize))},
			[]string{"log size", humanize.Bytes(uint64(st.LogFileBlocks) * blockSize)},
			[]string{"buffers free", fmt.Sprintf("%d of %d", st.Buffers.Available, st.Buffers.Size)},
			[]string{"buffer hits", humanize.Comma(st.Buffers.Hits)},
			[]string{"buffer misses", humanize.Comma(st.Buffers.Misses)},
			[]string{"buffer waits", humanize.Comma(st.Buffers.Waits)},
			[]string{"buffer timeouts", humanize.Comma(st.Buffers.Timeouts)},
			[]string{"lock timeouts", humanize.Comma(st.LockTimeouts)},
			[]string{"latest LSN", fmt.Sprintf("%d (saved %d)", st.LatestLSN, st.LastSavedLSN)},
			[]string{"active transactions", fmt.Sprint(st.ActiveTxs)},
			[]string{"next transaction", fmt.Sprint(st.NextTxNum)},
			[]string{"recovery", fmt.Sprintf("%d unfinished, %d undone", st.Recovery.Unfinished, st.Recovery.Undone)},
		)
	fmt.Fprintln(s.out, t.String())
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}
