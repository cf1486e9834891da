package plan

import (
	"fmt"
	"log/slog"

	"minidb/metadata"
	"minidb/parse"
	"minidb/record"
	"minidb/transaction"
)

// maxViewDepth bounds view expansion so that a view defined in terms of
// itself cannot recurse forever.
const maxViewDepth = 16

// Planner turns SQL statements into plans and executes updates. It is safe
// for concurrent use by transactions running in different goroutines.
type Planner struct {
	md     *metadata.Manager
	logger *slog.Logger
}

type Option func(*Planner)

func WithLogger(logger *slog.Logger) Option {
	return func(pl *Planner) {
		pl.logger = logger
	}
}

func NewPlanner(md *metadata.Manager, opts ...Option) *Planner {
	pl := &Planner{
		md:     md,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(pl)
	}
	return pl
}

func (pl *Planner) layout(tableName string, tx *transaction.Transaction) (*record.Layout, error) {
	return tableLayout(pl.md, tableName, tx)
}

// ExecuteQuery parses a SELECT statement and returns its plan. The caller
// opens the plan to read the result.
func (pl *Planner) ExecuteQuery(sql string, tx *transaction.Transaction) (Plan, error) {
	data, err := parse.ParseQuery(sql)
	if err != nil {
		return nil, err
	}
	return pl.CreateQueryPlan(data, tx)
}

func (pl *Planner) CreateQueryPlan(data *parse.QueryData, tx *transaction.Transaction) (Plan, error) {
	p, err := pl.createQueryPlan(data, tx, 0)
	if err != nil {
		return nil, err
	}
	pl.logger.Debug("query planned", "tx", tx.TxNum(), "query", data.String(), "blocks", p.BlocksAccessed(), "records", p.RecordsOutput())
	return p, nil
}

// ExecuteUpdate parses and runs an INSERT, UPDATE, DELETE, CREATE TABLE,
// CREATE VIEW or CREATE INDEX statement and returns the number of affected
// records. For CREATE INDEX that is the number of records indexed.
func (pl *Planner) ExecuteUpdate(sql string, tx *transaction.Transaction) (int, error) {
	stmt, err := parse.Parse(sql)
	if err != nil {
		return 0, err
	}
	return pl.Apply(stmt, tx)
}

// Apply runs an already parsed update statement.
func (pl *Planner) Apply(stmt parse.Statement, tx *transaction.Transaction) (int, error) {
	var n int
	var err error
	switch data := stmt.(type) {
	case *parse.InsertData:
		n, err = pl.executeInsert(data, tx)
	case *parse.DeleteData:
		n, err = pl.executeDelete(data, tx)
	case *parse.ModifyData:
		n, err = pl.executeModify(data, tx)
	case *parse.CreateTableData:
		n, err = pl.executeCreateTable(data, tx)
	case *parse.CreateViewData:
		n, err = pl.executeCreateView(data, tx)
	case *parse.CreateIndexData:
		n, err = pl.executeCreateIndex(data, tx)
	default:
		return 0, fmt.Errorf("plan: not an update statement: %s", stmt)
	}
	if err != nil {
		return n, err
	}

	pl.logger.Debug("update executed", "tx", tx.TxNum(), "statement", stmt.String(), "records", n)
	return n, nil
}

// Explain plans a query, or the query of an EXPLAIN statement, and returns
// the plan tree with the cost estimates of every node.
func (pl *Planner) Explain(sql string, tx *transaction.Transaction) (string, error) {
	stmt, err := parse.Parse(sql)
	if err != nil {
		return "", err
	}

	var data *parse.QueryData
	switch s := stmt.(type) {
	case *parse.ExplainData:
		data = s.Query
	case *parse.QueryData:
		data = s
	default:
		return "", fmt.Errorf("plan: only queries can be explained: %s", stmt)
	}

	p, err := pl.CreateQueryPlan(data, tx)
	if err != nil {
		return "", err
	}
	return Describe(p), nil
}
