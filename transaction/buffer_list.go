package transaction

import (
	"slices"

	"minidb/buffer"
	"minidb/file"
)

// BufferList records the buffers a transaction has pinned. A block pinned
// several times appears in pins once per pin.
type BufferList struct {
	buffers       map[file.Block]*buffer.Buffer
	pins          []file.Block
	bufferManager *buffer.Manager
}

func NewBufferList(bufferManager *buffer.Manager) *BufferList {
	return &BufferList{
		buffers:       make(map[file.Block]*buffer.Buffer),
		bufferManager: bufferManager,
	}
}

// Buffer returns the buffer pinned to the block, if any.
func (bl *BufferList) Buffer(block file.Block) (*buffer.Buffer, bool) {
	buf, ok := bl.buffers[block]
	return buf, ok
}

func (bl *BufferList) Pin(block file.Block) error {
	buf, err := bl.bufferManager.Pin(block)
	if err != nil {
		return err
	}

	bl.buffers[block] = buf
	bl.pins = append(bl.pins, block)
	return nil
}

func (bl *BufferList) Unpin(block file.Block) {
	buf, ok := bl.buffers[block]
	if !ok {
		return
	}

	bl.bufferManager.Unpin(buf)
	if i := slices.Index(bl.pins, block); i >= 0 {
		bl.pins = slices.Delete(bl.pins, i, i+1)
	}
	if !slices.Contains(bl.pins, block) {
		delete(bl.buffers, block)
	}
}

func (bl *BufferList) UnpinAll() {
	for _, block := range bl.pins {
		if buf, ok := bl.buffers[block]; ok {
			bl.bufferManager.Unpin(buf)
		}
	}

	clear(bl.buffers)
	bl.pins = bl.pins[:0]
}
