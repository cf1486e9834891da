package buffer

import (
	"minidb/file"
)

// BlockStore is the disk side of a buffer. *file.Manager implements it.
type BlockStore interface {
	Read(block file.Block, page *file.Page) error
	Write(block file.Block, page *file.Page) error
	BlockSize() int32
}

// LogFlusher forces the log up to a given LSN. *log.Manager implements it.
type LogFlusher interface {
	Flush(lsn int32) error
}

type Buffer struct {
	store      BlockStore
	log        LogFlusher
	contents   *file.Page
	block      file.Block
	assigned   bool
	pins       int32
	modifiedBy int32 // transaction number that made the change
	lsn        int32 // LSN of the most recent log record
}

func NewBuffer(store BlockStore, log LogFlusher) *Buffer {
	return &Buffer{
		store:      store,
		log:        log,
		contents:   file.NewPage(store.BlockSize()),
		modifiedBy: -1,
		lsn:        -1,
	}
}

func (b *Buffer) Contents() *file.Page {
	return b.contents
}

// Block returns the block the buffer is assigned to. The second result is
// false while the buffer has never been assigned.
func (b *Buffer) Block() (file.Block, bool) {
	return b.block, b.assigned
}

func (b *Buffer) setModified(txNum, lsn int32) {
	b.modifiedBy = txNum
	if lsn >= 0 {
		b.lsn = lsn
	}
}

func (b *Buffer) IsPinned() bool {
	return b.pins > 0
}

func (b *Buffer) ModifyingTx() int32 {
	return b.modifiedBy
}

func (b *Buffer) LSN() int32 {
	return b.lsn
}

func (b *Buffer) assignToBlock(block file.Block) error {
	// Flush the buffer, so that any modifications to the previous block are preserved.
	if err := b.flush(); err != nil {
		return err
	}

	b.assigned = false
	if err := b.store.Read(block, b.contents); err != nil {
		return err
	}
	b.block = block
	b.assigned = true
	b.pins = 0
	b.lsn = -1
	return nil
}

// flush writes the page to disk if it is dirty. The log is forced up to the
// buffer's LSN first.
func (b *Buffer) flush() error {
	if b.modifiedBy >= 0 {
		if err := b.log.Flush(b.lsn); err != nil {
			return err
		}
		if err := b.store.Write(b.block, b.contents); err != nil {
			return err
		}
		b.modifiedBy = -1
	}
	return nil
}

func (b *Buffer) pin() {
	b.pins++
}

func (b *Buffer) unpin() {
	if b.pins > 0 {
		b.pins--
	}
}
