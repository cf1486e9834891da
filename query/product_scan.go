package query

// ProductScan outputs every combination of a record from scan1 with a record
// from scan2.
type ProductScan struct {
	scan1 Scan
	scan2 Scan
	empty bool // scan1 has no records
}

func NewProductScan(scan1 Scan, scan2 Scan) (*ProductScan, error) {
	ps := &ProductScan{
		scan1: scan1,
		scan2: scan2,
	}
	if err := ps.BeforeFirst(); err != nil {
		return nil, err
	}
	return ps, nil
}

// BeforeFirst positions scan1 on its first record and scan2 before its first.
func (ps *ProductScan) BeforeFirst() error {
	if err := ps.scan1.BeforeFirst(); err != nil {
		return err
	}
	ok, err := ps.scan1.Next()
	if err != nil {
		return err
	}
	ps.empty = !ok
	return ps.scan2.BeforeFirst()
}

func (ps *ProductScan) Next() (bool, error) {
	if ps.empty {
		return false, nil
	}

	ok, err := ps.scan2.Next()
	if err != nil || ok {
		return ok, err
	}

	if err := ps.scan2.BeforeFirst(); err != nil {
		return false, err
	}
	ok, err = ps.scan2.Next()
	if err != nil || !ok {
		return false, err
	}
	return ps.scan1.Next()
}

func (ps *ProductScan) GetInt(fieldName string) (int32, error) {
	if ps.scan1.HasField(fieldName) {
		return ps.scan1.GetInt(fieldName)
	}
	return ps.scan2.GetInt(fieldName)
}

func (ps *ProductScan) GetString(fieldName string) (string, error) {
	if ps.scan1.HasField(fieldName) {
		return ps.scan1.GetString(fieldName)
	}
	return ps.scan2.GetString(fieldName)
}

func (ps *ProductScan) GetVal(fieldName string) (Constant, error) {
	if ps.scan1.HasField(fieldName) {
		return ps.scan1.GetVal(fieldName)
	}
	return ps.scan2.GetVal(fieldName)
}

func (ps *ProductScan) HasField(fieldName string) bool {
	return ps.scan1.HasField(fieldName) || ps.scan2.HasField(fieldName)
}

func (ps *ProductScan) Close() {
	ps.scan1.Close()
	ps.scan2.Close()
}
