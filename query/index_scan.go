package query

import "minidb/record"

// Index is the read side of a secondary index: it yields the RIDs of the
// records whose indexed field equals a search key.
type Index interface {
	BeforeFirst(key Constant) error
	Next() (bool, error)
	DataRID() (record.RID, error)
	Close()
}

// IndexSelectScan outputs the records of a table whose indexed field equals
// val, reading only the records the index points to.
type IndexSelectScan struct {
	ts  *TableScan
	idx Index
	val Constant
}

func NewIndexSelectScan(ts *TableScan, idx Index, val Constant) (*IndexSelectScan, error) {
	s := &IndexSelectScan{ts: ts, idx: idx, val: val}
	if err := s.BeforeFirst(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *IndexSelectScan) BeforeFirst() error {
	return s.idx.BeforeFirst(s.val)
}

func (s *IndexSelectScan) Next() (bool, error) {
	ok, err := s.idx.Next()
	if err != nil || !ok {
		return false, err
	}
	rid, err := s.idx.DataRID()
	if err != nil {
		return false, err
	}
	return true, s.ts.MoveToRID(rid)
}

func (s *IndexSelectScan) GetInt(fieldName string) (int32, error) {
	return s.ts.GetInt(fieldName)
}

func (s *IndexSelectScan) GetString(fieldName string) (string, error) {
	return s.ts.GetString(fieldName)
}

func (s *IndexSelectScan) GetVal(fieldName string) (Constant, error) {
	return s.ts.GetVal(fieldName)
}

func (s *IndexSelectScan) HasField(fieldName string) bool {
	return s.ts.HasField(fieldName)
}

func (s *IndexSelectScan) Close() {
	s.idx.Close()
	s.ts.Close()
}

// IndexJoinScan joins lhs with a table: for each lhs record it looks up the
// table records whose indexed field equals the lhs value of joinField.
type IndexJoinScan struct {
	lhs       Scan
	idx       Index
	joinField string
	rhs       *TableScan
	done      bool // lhs is exhausted
}

func NewIndexJoinScan(lhs Scan, idx Index, joinField string, rhs *TableScan) (*IndexJoinScan, error) {
	s := &IndexJoinScan{lhs: lhs, idx: idx, joinField: joinField, rhs: rhs}
	if err := s.BeforeFirst(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *IndexJoinScan) BeforeFirst() error {
	if err := s.lhs.BeforeFirst(); err != nil {
		return err
	}
	return s.advanceLHS()
}

func (s *IndexJoinScan) advanceLHS() error {
	ok, err := s.lhs.Next()
	if err != nil {
		return err
	}
	s.done = !ok
	if s.done {
		return nil
	}
	key, err := s.lhs.GetVal(s.joinField)
	if err != nil {
		return err
	}
	return s.idx.BeforeFirst(key)
}

func (s *IndexJoinScan) Next() (bool, error) {
	for !s.done {
		ok, err := s.idx.Next()
		if err != nil {
			return false, err
		}
		if ok {
			rid, err := s.idx.DataRID()
			if err != nil {
				return false, err
			}
			return true, s.rhs.MoveToRID(rid)
		}
		if err := s.advanceLHS(); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (s *IndexJoinScan) GetInt(fieldName string) (int32, error) {
	if s.rhs.HasField(fieldName) {
		return s.rhs.GetInt(fieldName)
	}
	return s.lhs.GetInt(fieldName)
}

func (s *IndexJoinScan) GetString(fieldName string) (string, error) {
	if s.rhs.HasField(fieldName) {
		return s.rhs.GetString(fieldName)
	}
	return s.lhs.GetString(fieldName)
}

func (s *IndexJoinScan) GetVal(fieldName string) (Constant, error) {
	if s.rhs.HasField(fieldName) {
		return s.rhs.GetVal(fieldName)
	}
	return s.lhs.GetVal(fieldName)
}

func (s *IndexJoinScan) HasField(fieldName string) bool {
	return s.rhs.HasField(fieldName) || s.lhs.HasField(fieldName)
}

func (s *IndexJoinScan) Close() {
	s.lhs.Close()
	s.idx.Close()
	s.rhs.Close()
}
