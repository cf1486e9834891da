package log

import (
	"fmt"
	"slices"

	"minidb/file"
)

// Iterator provides a way to read log records from the log file in reverse order.
// It allows clients to iterate over the log records from most recent to oldest.
type Iterator struct {
	fileManager *file.Manager
	block       file.Block
	page        *file.Page
	currentPos  int32
}

// NewIterator creates a new iterator for the log records in a file, starting
// from a specific block. The iterator is positioned at the most recent log record
// in that block.
func NewIterator(fileManager *file.Manager, block file.Block) (*Iterator, error) {
	i := &Iterator{
		fileManager: fileManager,
		block:       block,
		page:        file.NewPage(fileManager.BlockSize()),
	}

	if err := i.moveToBlock(block); err != nil {
		return nil, err
	}

	return i, nil
}

// HasNext returns true if there are more log records to be read. It checks if
// the iterator has reached the end of the current block and if there are previous
// blocks to move to.
func (i *Iterator) HasNext() bool {
	return i.currentPos < i.fileManager.BlockSize() || i.block.Number() > 0
}

// Next returns the next log record as a byte slice. It reads records from the
// current block. If the end of a block is reached, it automatically moves to the
// previous block to continue iteration. The iteration proceeds from the most
// recent record to the oldest.
func (i *Iterator) Next() ([]byte, error) {
	for i.currentPos == i.fileManager.BlockSize() {
		if i.block.Number() == 0 {
			return nil, fmt.Errorf("%w: unexpected start of log", ErrCorruptLog)
		}
		block := file.NewBlock(i.block.Filename(), i.block.Number()-1)
		if err := i.moveToBlock(block); err != nil {
			return nil, err
		}
	}

	log, err := i.page.ReadBytesAt(i.currentPos)
	if err != nil {
		return nil, err
	}

	i.currentPos += file.MaxLength(len(log))
	return log, nil
}

// moveToBlock loads the contents of a specified block into the iterator's page
// and positions the iterator at the first log record in that block. The log
// records are stored from the end of the block, and the boundary of the used
// space is stored at the beginning of the block.
func (i *Iterator) moveToBlock(block file.Block) error {
	if err := readBlock(i.fileManager, block, i.page); err != nil {
		return err
	}

	boundary, err := i.page.ReadInt32At(boundaryPos)
	if err != nil {
		return err
	}
	i.block = block
	i.currentPos = boundary

	return nil
}

// ForwardIterator reads log records from the oldest to the most recent.
// Records inside a block are stored newest first, so each block is decoded
// in full and replayed in reverse.
type ForwardIterator struct {
	fileManager *file.Manager
	logFile     string
	lastBlock   int32
	nextBlock   int32
	page        *file.Page
	pending     [][]byte
}

// NewForwardIterator creates an iterator over blocks 0 through lastBlock of logFile.
func NewForwardIterator(fileManager *file.Manager, logFile string, lastBlock int32) (*ForwardIterator, error) {
	return &ForwardIterator{
		fileManager: fileManager,
		logFile:     logFile,
		lastBlock:   lastBlock,
		page:        file.NewPage(fileManager.BlockSize()),
	}, nil
}

// HasNext reports whether another record is available. It may read ahead
// past empty blocks, so it returns an error alongside the answer.
func (f *ForwardIterator) HasNext() (bool, error) {
	for len(f.pending) == 0 {
		if f.nextBlock > f.lastBlock {
			return false, nil
		}
		if err := f.loadBlock(file.NewBlock(f.logFile, f.nextBlock)); err != nil {
			return false, err
		}
		f.nextBlock++
	}
	return true, nil
}

// Next returns the next record in chronological order.
func (f *ForwardIterator) Next() ([]byte, error) {
	ok, err := f.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	rec := f.pending[0]
	f.pending = f.pending[1:]
	return rec, nil
}

func (f *ForwardIterator) loadBlock(block file.Block) error {
	if err := readBlock(f.fileManager, block, f.page); err != nil {
		return err
	}

	pos, err := f.page.ReadInt32At(boundaryPos)
	if err != nil {
		return err
	}

	var records [][]byte
	for pos < f.page.Size() {
		rec, err := f.page.ReadBytesAt(pos)
		if err != nil {
			return err
		}
		records = append(records, rec)
		pos += file.MaxLength(len(rec))
	}
	slices.Reverse(records)
	f.pending = records
	return nil
}
