package query

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// SortKey orders records by one field.
type SortKey struct {
	Field string
	Desc  bool
}

func (k SortKey) String() string {
	if k.Desc {
		return k.Field + " desc"
	}
	return k.Field
}

// Materialize reads the remaining records of scan into memory, keeping the
// listed fields in order.
func Materialize(scan Scan, fields []string) ([][]Constant, error) {
	var rows [][]Constant
	for {
		ok, err := scan.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		row := make([]Constant, len(fields))
		for i, fieldName := range fields {
			if row[i], err = scan.GetVal(fieldName); err != nil {
				return nil, err
			}
		}
		rows = append(rows, row)
	}
}

// SortRows sorts rows by keys. Rows that compare equal keep their order.
func SortRows(rows [][]Constant, fields []string, keys []SortKey) {
	positions := make([]int, len(keys))
	for i, k := range keys {
		positions[i] = slices.Index(fields, k.Field)
	}
	slices.SortStableFunc(rows, func(a, b []Constant) int {
		for i, k := range keys {
			c := a[positions[i]].Compare(b[positions[i]])
			if k.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

// DistinctRows drops every row equal to an earlier one.
func DistinctRows(rows [][]Constant) [][]Constant {
	seen := make(map[string]struct{}, len(rows))
	out := rows[:0]
	var sb strings.Builder
	for _, row := range rows {
		sb.Reset()
		for _, c := range row {
			sb.WriteString(c.String())
			sb.WriteByte(0)
		}
		if _, ok := seen[sb.String()]; ok {
			continue
		}
		seen[sb.String()] = struct{}{}
		out = append(out, row)
	}
	return out
}

// RowScan iterates over records held in memory.
type RowScan struct {
	fields []string
	rows   [][]Constant
	pos    int
}

func NewRowScan(fields []string, rows [][]Constant) *RowScan {
	return &RowScan{fields: fields, rows: rows, pos: -1}
}

func (rs *RowScan) BeforeFirst() error {
	rs.pos = -1
	return nil
}

func (rs *RowScan) Next() (bool, error) {
	if rs.pos < len(rs.rows) {
		rs.pos++
	}
	return rs.pos < len(rs.rows), nil
}

func (rs *RowScan) GetInt(fieldName string) (int32, error) {
	c, err := rs.GetVal(fieldName)
	if err != nil {
		return 0, err
	}
	if c.IsString() {
		return 0, fmt.Errorf("%w: field %s is varchar", ErrTypeMismatch, fieldName)
	}
	return c.AsInt(), nil
}

func (rs *RowScan) GetString(fieldName string) (string, error) {
	c, err := rs.GetVal(fieldName)
	if err != nil {
		return "", err
	}
	if !c.IsString() {
		return "", fmt.Errorf("%w: field %s is int", ErrTypeMismatch, fieldName)
	}
	return c.AsString(), nil
}

func (rs *RowScan) GetVal(fieldName string) (Constant, error) {
	i := slices.Index(rs.fields, fieldName)
	if i < 0 {
		return Constant{}, fmt.Errorf("%w: %s", ErrFieldNotFound, fieldName)
	}
	if rs.pos < 0 || rs.pos >= len(rs.rows) {
		return Constant{}, errors.New("query: no current record")
	}
	return rs.rows[rs.pos][i], nil
}

func (rs *RowScan) HasField(fieldName string) bool {
	return slices.Contains(rs.fields, fieldName)
}

func (rs *RowScan) Close() {
	rs.rows = nil
}

// LimitScan outputs at most limit records of its underlying scan.
type LimitScan struct {
	scan  Scan
	limit int32
	count int32
}

func NewLimitScan(scan Scan, limit int32) *LimitScan {
	return &LimitScan{scan: scan, limit: limit}
}

func (ls *LimitScan) BeforeFirst() error {
	ls.count = 0
	return ls.scan.BeforeFirst()
}

func (ls *LimitScan) Next() (bool, error) {
	if ls.count >= ls.limit {
		return false, nil
	}
	ok, err := ls.scan.Next()
	if err != nil || !ok {
		return false, err
	}
	ls.count++
	return true, nil
}

func (ls *LimitScan) GetInt(fieldName string) (int32, error) {
	return ls.scan.GetInt(fieldName)
}

func (ls *LimitScan) GetString(fieldName string) (string, error) {
	return ls.scan.GetString(fieldName)
}

func (ls *LimitScan) GetVal(fieldName string) (Constant, error) {
	return ls.scan.GetVal(fieldName)
}

func (ls *LimitScan) HasField(fieldName string) bool {
	return ls.scan.HasField(fieldName)
}

func (ls *LimitScan) Close() {
	ls.scan.Close()
}
