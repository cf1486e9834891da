package query

import (
	"fmt"

	"minidb/record"
)

// SelectScan outputs the records of its underlying scan that satisfy a
// predicate. It is updatable when the underlying scan is.
type SelectScan struct {
	scan Scan
	pred *Predicate
}

func NewSelectScan(scan Scan, pred *Predicate) *SelectScan {
	return &SelectScan{
		scan: scan,
		pred: pred,
	}
}

func (ss *SelectScan) BeforeFirst() error {
	return ss.scan.BeforeFirst()
}

func (ss *SelectScan) Next() (bool, error) {
	for {
		ok, err := ss.scan.Next()
		if err != nil || !ok {
			return false, err
		}
		ok, err = ss.pred.IsSatisfied(ss.scan)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
}

func (ss *SelectScan) GetInt(fieldName string) (int32, error) {
	return ss.scan.GetInt(fieldName)
}

func (ss *SelectScan) GetString(fieldName string) (string, error) {
	return ss.scan.GetString(fieldName)
}

func (ss *SelectScan) GetVal(fieldName string) (Constant, error) {
	return ss.scan.GetVal(fieldName)
}

func (ss *SelectScan) HasField(fieldName string) bool {
	return ss.scan.HasField(fieldName)
}

func (ss *SelectScan) Close() {
	ss.scan.Close()
}

func (ss *SelectScan) SetInt(fieldName string, value int32) error {
	us, err := ss.updateScan()
	if err != nil {
		return err
	}
	return us.SetInt(fieldName, value)
}

func (ss *SelectScan) SetString(fieldName string, value string) error {
	us, err := ss.updateScan()
	if err != nil {
		return err
	}
	return us.SetString(fieldName, value)
}

func (ss *SelectScan) SetVal(fieldName string, value Constant) error {
	us, err := ss.updateScan()
	if err != nil {
		return err
	}
	return us.SetVal(fieldName, value)
}

func (ss *SelectScan) Insert() error {
	us, err := ss.updateScan()
	if err != nil {
		return err
	}
	return us.Insert()
}

func (ss *SelectScan) Delete() error {
	us, err := ss.updateScan()
	if err != nil {
		return err
	}
	return us.Delete()
}

func (ss *SelectScan) RID() record.RID {
	us, err := ss.updateScan()
	if err != nil {
		return record.RID{BlockNum: -1, Slot: -1}
	}
	return us.RID()
}

func (ss *SelectScan) MoveToRID(rid record.RID) error {
	us, err := ss.updateScan()
	if err != nil {
		return err
	}
	return us.MoveToRID(rid)
}

func (ss *SelectScan) updateScan() (UpdateScan, error) {
	us, ok := ss.scan.(UpdateScan)
	if !ok {
		return nil, fmt.Errorf("query: %T is not updatable", ss.scan)
	}
	return us, nil
}
