package transaction

import (
	"errors"
	"fmt"

	"minidb/file"
	"minidb/log"
)

// Op identifies the kind of a log record. It is the first field of every
// record on disk.
type Op int32

const (
	Checkpoint Op = iota
	Start
	Commit
	Rollback
	SetInt
	SetString
)

func (op Op) String() string {
	switch op {
	case Checkpoint:
		return "CHECKPOINT"
	case Start:
		return "START"
	case Commit:
		return "COMMIT"
	case Rollback:
		return "ROLLBACK"
	case SetInt:
		return "SETINT"
	case SetString:
		return "SETSTRING"
	default:
		return fmt.Sprintf("Op(%d)", int32(op))
	}
}

// ErrBadRecord is returned when a log record cannot be decoded.
var ErrBadRecord = errors.New("transaction: malformed log record")

// Record is a decoded log record.
type Record interface {
	Op() Op
	TxNum() int32
	// Undo reverses the change the record describes, writing through tx
	// without logging.
	Undo(tx *Transaction) error
	String() string
}

// ParseRecord decodes a raw log record.
func ParseRecord(b []byte) (Record, error) {
	p := file.NewPageFromBuf(b)

	op, err := p.ReadInt32At(0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}

	var rec Record
	switch Op(op) {
	case Checkpoint:
		rec = CheckpointRecord{}
	case Start, Commit, Rollback:
		rec, err = parseStatusRecord(Op(op), p)
	case SetInt:
		rec, err = parseSetIntRecord(p)
	case SetString:
		rec, err = parseSetStringRecord(p)
	default:
		return nil, fmt.Errorf("%w: opcode %d", ErrBadRecord, op)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadRecord, Op(op), err)
	}
	return rec, nil
}

// RecordIterator decodes the records of a log iterator, newest first.
type RecordIterator struct {
	it *log.Iterator
}

// NewRecordIterator flushes the log and positions the iterator at its most
// recent record.
func NewRecordIterator(logManager *log.Manager) (*RecordIterator, error) {
	it, err := logManager.Iterator()
	if err != nil {
		return nil, err
	}
	return &RecordIterator{it: it}, nil
}

func (ri *RecordIterator) HasNext() bool {
	return ri.it.HasNext()
}

func (ri *RecordIterator) Next() (Record, error) {
	b, err := ri.it.Next()
	if err != nil {
		return nil, err
	}
	return ParseRecord(b)
}

// CheckpointRecord marks a point before which no unfinished transaction's
// changes remain in the log.
type CheckpointRecord struct{}

func (CheckpointRecord) Op() Op {
	return Checkpoint
}

func (CheckpointRecord) TxNum() int32 {
	return -1
}

// Undo does nothing because a checkpoint record contains no undo information.
func (CheckpointRecord) Undo(*Transaction) error {
	return nil
}

func (CheckpointRecord) String() string {
	return "<CHECKPOINT>"
}

// WriteCheckpoint appends a checkpoint record and returns its LSN.
func WriteCheckpoint(logManager *log.Manager) (int32, error) {
	return writeStatusRecord(logManager, Checkpoint, -1)
}

// StatusRecord is a START, COMMIT or ROLLBACK record. None of them carries
// undo information.
type StatusRecord struct {
	op    Op
	txNum int32
}

func parseStatusRecord(op Op, p *file.Page) (StatusRecord, error) {
	txNum, err := p.ReadInt32At(4)
	if err != nil {
		return StatusRecord{}, err
	}
	return StatusRecord{op: op, txNum: txNum}, nil
}

func (r StatusRecord) Op() Op {
	return r.op
}

func (r StatusRecord) TxNum() int32 {
	return r.txNum
}

func (r StatusRecord) Undo(*Transaction) error {
	return nil
}

func (r StatusRecord) String() string {
	return fmt.Sprintf("<%s %d>", r.op, r.txNum)
}

func writeStatusRecord(logManager *log.Manager, op Op, txNum int32) (int32, error) {
	p := file.NewPage(2 * 4)
	if err := p.WriteInt32At(0, int32(op)); err != nil {
		return 0, err
	}
	if err := p.WriteInt32At(4, txNum); err != nil {
		return 0, err
	}
	return logManager.Append(p.Buf())
}

// setHeader holds the fields shared by SETINT and SETSTRING records:
//
//	[op][txNum][filename][block number][offset][old value]
type setHeader struct {
	txNum  int32
	block  file.Block
	offset int32
}

// parseSetHeader decodes the common fields and returns the position of the
// old value.
func parseSetHeader(p *file.Page) (setHeader, int32, error) {
	txNum, err := p.ReadInt32At(4)
	if err != nil {
		return setHeader{}, 0, err
	}

	filename, err := p.ReadStringAt(8)
	if err != nil {
		return setHeader{}, 0, err
	}

	bpos := 8 + file.MaxLength(len(filename))
	blockNum, err := p.ReadInt32At(bpos)
	if err != nil {
		return setHeader{}, 0, err
	}

	offset, err := p.ReadInt32At(bpos + 4)
	if err != nil {
		return setHeader{}, 0, err
	}

	return setHeader{
		txNum:  txNum,
		block:  file.NewBlock(filename, blockNum),
		offset: offset,
	}, bpos + 8, nil
}

// encode writes the common fields into a page with room for valSize bytes of
// old value, and returns the page and the position of the value.
func (h setHeader) encode(op Op, valSize int32) (*file.Page, int32, error) {
	fpos := int32(8)
	bpos := fpos + file.MaxLength(len(h.block.Filename()))
	opos := bpos + 4
	vpos := opos + 4

	p := file.NewPage(vpos + valSize)
	for _, err := range []error{
		p.WriteInt32At(0, int32(op)),
		p.WriteInt32At(4, h.txNum),
		p.WriteStringAt(fpos, h.block.Filename()),
		p.WriteInt32At(bpos, h.block.Number()),
		p.WriteInt32At(opos, h.offset),
	} {
		if err != nil {
			return nil, 0, err
		}
	}
	return p, vpos, nil
}

// SetIntRecord holds the value an integer field had before a transaction
// changed it.
type SetIntRecord struct {
	setHeader
	old int32
}

func parseSetIntRecord(p *file.Page) (SetIntRecord, error) {
	h, vpos, err := parseSetHeader(p)
	if err != nil {
		return SetIntRecord{}, err
	}

	old, err := p.ReadInt32At(vpos)
	if err != nil {
		return SetIntRecord{}, err
	}
	return SetIntRecord{setHeader: h, old: old}, nil
}

func (r SetIntRecord) Op() Op {
	return SetInt
}

func (r SetIntRecord) TxNum() int32 {
	return r.txNum
}

func (r SetIntRecord) Block() file.Block {
	return r.block
}

func (r SetIntRecord) Undo(tx *Transaction) error {
	if err := tx.Pin(r.block); err != nil {
		return err
	}
	defer tx.Unpin(r.block)

	return tx.SetInt(r.block, r.offset, r.old, false)
}

func (r SetIntRecord) String() string {
	return fmt.Sprintf("<SETINT %d %s %d %d>", r.txNum, r.block, r.offset, r.old)
}

func writeSetIntRecord(logManager *log.Manager, txNum int32, block file.Block, offset, old int32) (int32, error) {
	h := setHeader{txNum: txNum, block: block, offset: offset}
	p, vpos, err := h.encode(SetInt, 4)
	if err != nil {
		return 0, err
	}
	if err := p.WriteInt32At(vpos, old); err != nil {
		return 0, err
	}
	return logManager.Append(p.Buf())
}

// SetStringRecord holds the bytes a string or byte field had before a
// transaction changed it. Strings and byte slices share the same
// length-prefixed layout, so one record kind serves both.
type SetStringRecord struct {
	setHeader
	old []byte
}

func parseSetStringRecord(p *file.Page) (SetStringRecord, error) {
	h, vpos, err := parseSetHeader(p)
	if err != nil {
		return SetStringRecord{}, err
	}

	old, err := p.ReadBytesAt(vpos)
	if err != nil {
		return SetStringRecord{}, err
	}
	return SetStringRecord{setHeader: h, old: old}, nil
}

func (r SetStringRecord) Op() Op {
	return SetString
}

func (r SetStringRecord) TxNum() int32 {
	return r.txNum
}

func (r SetStringRecord) Block() file.Block {
	return r.block
}

func (r SetStringRecord) Undo(tx *Transaction) error {
	if err := tx.Pin(r.block); err != nil {
		return err
	}
	defer tx.Unpin(r.block)

	return tx.SetBytes(r.block, r.offset, r.old, false)
}

func (r SetStringRecord) String() string {
	return fmt.Sprintf("<SETSTRING %d %s %d %q>", r.txNum, r.block, r.offset, r.old)
}

func writeSetStringRecord(logManager *log.Manager, txNum int32, block file.Block, offset int32, old []byte) (int32, error) {
	h := setHeader{txNum: txNum, block: block, offset: offset}
	p, vpos, err := h.encode(SetString, file.MaxLength(len(old)))
	if err != nil {
		return 0, err
	}
	if err := p.WriteBytesAt(vpos, old); err != nil {
		return 0, err
	}
	return logManager.Append(p.Buf())
}
