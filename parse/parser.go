// Package parse turns SQL text into the statement objects the planner
// executes.
package parse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"minidb/query"
	"minidb/record"
)

// ErrSyntax is returned for any statement the grammar does not accept.
var ErrSyntax = errors.New("parse: syntax error")

// Statement is one parsed SQL statement. It is one of *QueryData,
// *InsertData, *ModifyData, *DeleteData, *CreateTableData, *CreateViewData,
// *CreateIndexData, *ExplainData or TxCommand.
type Statement interface {
	String() string
}

// QueryData is a SELECT statement. Fields is nil for "SELECT *" and Limit
// is nil when there is no LIMIT clause.
type QueryData struct {
	Distinct bool
	Fields   []string
	Tables   []string
	Pred     *query.Predicate
	OrderBy  []query.SortKey
	Limit    *int32
}

func (d *QueryData) String() string {
	var sb strings.Builder
	sb.WriteString("select ")
	if d.Distinct {
		sb.WriteString("distinct ")
	}
	if d.Fields == nil {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(d.Fields, ", "))
	}
	sb.WriteString(" from ")
	sb.WriteString(strings.Join(d.Tables, ", "))
	if !d.Pred.IsEmpty() {
		sb.WriteString(" where ")
		sb.WriteString(d.Pred.String())
	}
	if len(d.OrderBy) > 0 {
		keys := make([]string, len(d.OrderBy))
		for i, k := range d.OrderBy {
			keys[i] = k.String()
		}
		sb.WriteString(" order by ")
		sb.WriteString(strings.Join(keys, ", "))
	}
	if d.Limit != nil {
		fmt.Fprintf(&sb, " limit %d", *d.Limit)
	}
	return sb.String()
}

type InsertData struct {
	Table  string
	Fields []string
	Values []query.Constant
}

func (d *InsertData) String() string {
	values := make([]string, len(d.Values))
	for i, v := range d.Values {
		values[i] = v.String()
	}
	return fmt.Sprintf("insert into %s (%s) values (%s)", d.Table, strings.Join(d.Fields, ", "), strings.Join(values, ", "))
}

// ModifyData is an UPDATE statement setting one field.
type ModifyData struct {
	Table string
	Field string
	Value query.Expression
	Pred  *query.Predicate
}

func (d *ModifyData) String() string {
	s := fmt.Sprintf("update %s set %s = %s", d.Table, d.Field, d.Value)
	if !d.Pred.IsEmpty() {
		s += " where " + d.Pred.String()
	}
	return s
}

type DeleteData struct {
	Table string
	Pred  *query.Predicate
}

func (d *DeleteData) String() string {
	s := "delete from " + d.Table
	if !d.Pred.IsEmpty() {
		s += " where " + d.Pred.String()
	}
	return s
}

type CreateTableData struct {
	Table  string
	Schema *record.Schema
}

func (d *CreateTableData) String() string {
	defs := make([]string, 0, len(d.Schema.Fields()))
	for _, f := range d.Schema.Fields() {
		if d.Schema.FieldType(f) == record.Varchar {
			defs = append(defs, fmt.Sprintf("%s varchar(%d)", f, d.Schema.FieldLength(f)))
		} else {
			defs = append(defs, f+" int")
		}
	}
	return fmt.Sprintf("create table %s (%s)", d.Table, strings.Join(defs, ", "))
}

type CreateViewData struct {
	View  string
	Query *QueryData
}

// ViewDef returns the query text stored in the catalog for the view.
func (d *CreateViewData) ViewDef() string {
	return d.Query.String()
}

func (d *CreateViewData) String() string {
	return fmt.Sprintf("create view %s as %s", d.View, d.ViewDef())
}

type CreateIndexData struct {
	Index string
	Table string
	Field string
}

func (d *CreateIndexData) String() string {
	return fmt.Sprintf("create index %s on %s (%s)", d.Index, d.Table, d.Field)
}

type ExplainData struct {
	Query *QueryData
}

func (d *ExplainData) String() string {
	return "explain " + d.Query.String()
}

// TxCommand is a transaction control statement.
type TxCommand int

const (
	Begin TxCommand = iota
	Commit
	Rollback
)

func (c TxCommand) String() string {
	switch c {
	case Begin:
		return "begin"
	case Commit:
		return "commit"
	case Rollback:
		return "rollback"
	default:
		return fmt.Sprintf("TxCommand(%d)", int(c))
	}
}

// Parse parses a single SQL statement. A trailing semicolon is optional.
func Parse(sql string) (Statement, error) {
	stmt, err := sqlParser.ParseString("", sql)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyntax, err)
	}

	switch {
	case stmt.Explain != nil:
		q, err := stmt.Explain.build()
		if err != nil {
			return nil, err
		}
		return &ExplainData{Query: q}, nil
	case stmt.Select != nil:
		return stmt.Select.build()
	case stmt.Insert != nil:
		return stmt.Insert.build()
	case stmt.Update != nil:
		return stmt.Update.build()
	case stmt.Delete != nil:
		return stmt.Delete.build()
	case stmt.Create != nil && stmt.Create.Table != nil:
		return stmt.Create.Table.build()
	case stmt.Create != nil && stmt.Create.View != nil:
		return stmt.Create.View.build()
	case stmt.Create != nil && stmt.Create.Index != nil:
		idx := stmt.Create.Index
		return &CreateIndexData{Index: idx.Name, Table: idx.Table, Field: idx.Field}, nil
	case stmt.Begin:
		return Begin, nil
	case stmt.Commit:
		return Commit, nil
	case stmt.Rollback:
		return Rollback, nil
	default:
		return nil, fmt.Errorf("%w: empty statement", ErrSyntax)
	}
}

// ParseQuery parses a SELECT statement, as stored in a view definition.
func ParseQuery(sql string) (*QueryData, error) {
	stmt, err := Parse(sql)
	if err != nil {
		return nil, err
	}
	q, ok := stmt.(*QueryData)
	if !ok {
		return nil, fmt.Errorf("%w: not a query: %s", ErrSyntax, sql)
	}
	return q, nil
}

func (s *selectStmt) build() (*QueryData, error) {
	pred, err := s.Where.build()
	if err != nil {
		return nil, err
	}
	q := &QueryData{Distinct: s.Distinct, Tables: s.Tables, Pred: pred}
	if !s.Star {
		q.Fields = s.Fields
	}
	for _, item := range s.OrderBy {
		q.OrderBy = append(q.OrderBy, query.SortKey{Field: item.Field, Desc: item.Desc})
	}
	if s.Limit != nil {
		n, err := strconv.ParseInt(*s.Limit, 10, 32)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: bad limit %s", ErrSyntax, *s.Limit)
		}
		limit := int32(n)
		q.Limit = &limit
	}
	return q, nil
}

func (s *insertStmt) build() (*InsertData, error) {
	if len(s.Fields) != len(s.Values) {
		return nil, fmt.Errorf("%w: %d fields but %d values", ErrSyntax, len(s.Fields), len(s.Values))
	}
	values := make([]query.Constant, len(s.Values))
	for i, v := range s.Values {
		c, err := v.build()
		if err != nil {
			return nil, err
		}
		values[i] = c
	}
	return &InsertData{Table: s.Table, Fields: s.Fields, Values: values}, nil
}

func (s *updateStmt) build() (*ModifyData, error) {
	value, err := s.Value.build()
	if err != nil {
		return nil, err
	}
	pred, err := s.Where.build()
	if err != nil {
		return nil, err
	}
	return &ModifyData{Table: s.Table, Field: s.Field, Value: value, Pred: pred}, nil
}

func (s *deleteStmt) build() (*DeleteData, error) {
	pred, err := s.Where.build()
	if err != nil {
		return nil, err
	}
	return &DeleteData{Table: s.Table, Pred: pred}, nil
}

func (s *createTableStmt) build() (*CreateTableData, error) {
	schema := record.NewSchema()
	for _, f := range s.Fields {
		if schema.HasField(f.Name) {
			return nil, fmt.Errorf("%w: duplicate field %s", ErrSyntax, f.Name)
		}
		if f.Int {
			schema.AddIntField(f.Name)
			continue
		}
		n, err := strconv.ParseInt(*f.Varchar, 10, 32)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: bad varchar length %s", ErrSyntax, *f.Varchar)
		}
		schema.AddStringField(f.Name, int32(n))
	}
	return &CreateTableData{Table: s.Name, Schema: schema}, nil
}

func (s *createViewStmt) build() (*CreateViewData, error) {
	q, err := s.Query.build()
	if err != nil {
		return nil, err
	}
	return &CreateViewData{View: s.Name, Query: q}, nil
}

func (p *predicate) build() (*query.Predicate, error) {
	if p == nil {
		return nil, nil
	}
	pred := &query.Predicate{}
	for _, t := range p.Terms {
		lhs, err := t.LHS.build()
		if err != nil {
			return nil, err
		}
		rhs, err := t.RHS.build()
		if err != nil {
			return nil, err
		}
		pred.ConjoinWith(query.NewPredicate(query.NewTerm(lhs, rhs)))
	}
	return pred, nil
}

func (e *expression) build() (query.Expression, error) {
	if e.Field != nil {
		return query.NewFieldExpression(*e.Field), nil
	}
	c, err := e.Constant.build()
	if err != nil {
		return query.Expression{}, err
	}
	return query.NewConstantExpression(c), nil
}

func (c *constant) build() (query.Constant, error) {
	if c.String != nil {
		return query.NewStringConstant(*c.String), nil
	}
	n, err := strconv.ParseInt(*c.Int, 10, 32)
	if err != nil {
		return query.Constant{}, fmt.Errorf("%w: integer out of range: %s", ErrSyntax, *c.Int)
	}
	return query.NewIntConstant(int32(n)), nil
}
