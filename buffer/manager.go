package buffer

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"minidb/file"
)

// DefaultMaxWait bounds how long Pin waits for a buffer to become free.
const DefaultMaxWait = 10 * time.Second

// ErrBufferTimeout is returned when a client's request for a buffer times out.
// The caller's transaction must be rolled back.
var ErrBufferTimeout = errors.New("buffer manager: request timed out")

type Manager struct {
	mu         sync.Mutex
	bufferPool []*Buffer
	available  int32
	hand       int           // next replacement candidate
	freed      chan struct{} // closed and replaced whenever a buffer becomes unpinned
	maxWait    time.Duration
	logger     *slog.Logger
	stats      Stats
}

// Stats counts pool activity since construction.
type Stats struct {
	Hits      int64 // pins satisfied by a buffer already holding the block
	Misses    int64 // pins that had to read the block from disk
	Flushes   int64 // dirty pages written on replacement
	Waits     int64 // pins that had to wait for a free buffer
	Timeouts  int64
	Available int32
	Size      int32
}

type Option func(*Manager)

// WithMaxWait sets how long Pin waits for a free buffer.
func WithMaxWait(d time.Duration) Option {
	return func(m *Manager) {
		m.maxWait = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func NewManager(store BlockStore, log LogFlusher, numBufs int32, opts ...Option) *Manager {
	m := &Manager{
		bufferPool: make([]*Buffer, numBufs),
		available:  numBufs,
		freed:      make(chan struct{}),
		maxWait:    DefaultMaxWait,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	for i := range numBufs {
		m.bufferPool[i] = NewBuffer(store, log)
	}

	return m
}

// Available returns the number of available (unpinned) buffers.
func (m *Manager) Available() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stats
	s.Available = m.available
	s.Size = int32(len(m.bufferPool))
	return s
}

// FlushAll flushes all dirty buffers modified by the specified transaction.
func (m *Manager) FlushAll(txNum int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, buffer := range m.bufferPool {
		if buffer.ModifyingTx() == txNum {
			if err := buffer.flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetModified marks buf dirty on behalf of txNum. A negative lsn means the
// change was not logged and leaves the buffer's LSN unchanged. The dirty
// state is pool state, so it changes only under the manager's lock.
func (m *Manager) SetModified(buf *Buffer, txNum, lsn int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf.setModified(txNum, lsn)
}

// FlushDirty flushes every dirty buffer regardless of the modifying
// transaction. It is used on clean shutdown.
func (m *Manager) FlushDirty() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, buffer := range m.bufferPool {
		if err := buffer.flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) Unpin(buf *Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !buf.IsPinned() {
		return
	}
	buf.unpin()
	if !buf.IsPinned() {
		m.available++
		// Wake up any waiting goroutines (in Pin) since a buffer is now free.
		close(m.freed)
		m.freed = make(chan struct{})
	}
}

// Pin pins a buffer for the specified block. The method blocks if no buffers
// are available, waiting up to the configured timeout.
func (m *Manager) Pin(block file.Block) (*Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var timer *time.Timer
	for {
		buf, err := m.tryToPin(block)
		if err != nil {
			return nil, err
		}
		if buf != nil {
			return buf, nil
		}

		// No buffer is available. Wait for an Unpin or the deadline.
		if timer == nil {
			timer = time.NewTimer(m.maxWait)
			defer timer.Stop()
			m.stats.Waits++
		}
		freed := m.freed
		m.mu.Unlock()
		select {
		case <-freed:
			m.mu.Lock()
		case <-timer.C:
			m.mu.Lock()
			m.stats.Timeouts++
			m.logger.Warn("buffer pin timed out", "block", block.String(), "wait", m.maxWait)
			return nil, ErrBufferTimeout
		}
	}
}

// tryToPin attempts to pin a buffer for the specified block.
// It first looks for an existing buffer holding that block. If not found,
// it tries to find an unpinned buffer to use.
// This method must be called with the mutex lock already held.
func (m *Manager) tryToPin(block file.Block) (*Buffer, error) {
	// First, try to find a buffer already assigned to this block.
	buf := m.findExistingBuffer(block)

	if buf != nil {
		m.stats.Hits++
	} else {
		// If no existing buffer, try to find a free one to replace.
		buf = m.chooseUnpinnedBuffer()
		if buf == nil {
			return nil, nil // No buffers available (all are pinned).
		}
		if buf.ModifyingTx() >= 0 {
			m.stats.Flushes++
		}
		// Assign the free buffer to the new block.
		if err := buf.assignToBlock(block); err != nil {
			return nil, err
		}
		m.stats.Misses++
	}

	// If the chosen buffer was not pinned, it is now becoming pinned.
	if !buf.IsPinned() {
		m.available--
	}
	buf.pin()
	return buf, nil
}

// findExistingBuffer searches the buffer pool for a buffer
// already allocated to the specified block.
// This method must be called with the mutex lock already held.
func (m *Manager) findExistingBuffer(block file.Block) *Buffer {
	for _, buf := range m.bufferPool {
		b, ok := buf.Block()
		if ok && b == block {
			return buf
		}
	}
	return nil
}

// chooseUnpinnedBuffer picks the next unpinned buffer in round-robin order,
// starting after the buffer chosen last time.
// This method must be called with the mutex lock already held.
func (m *Manager) chooseUnpinnedBuffer() *Buffer {
	n := len(m.bufferPool)
	for i := range n {
		idx := (m.hand + i) % n
		buf := m.bufferPool[idx]
		if !buf.IsPinned() {
			m.hand = (idx + 1) % n
			return buf
		}
	}
	return nil
}
