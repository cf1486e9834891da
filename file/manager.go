package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

type Manager struct {
	mu        sync.Mutex
	directory string
	blockSize int32
	isNew     bool
	openFiles map[string]*os.File

	blocksRead    atomic.Int64
	blocksWritten atomic.Int64
}

// Stats is a snapshot of the disk traffic seen by a Manager.
type Stats struct {
	BlocksRead    int64
	BlocksWritten int64
}

// NewManager creates a new file manager for a given database directory.
// It creates the directory if it does not already exist.
// It also removes any temporary files that may have been leftover from
// previous database sessions.
func NewManager(directory string, blockSize int32) (*Manager, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("file: invalid block size %d", blockSize)
	}

	_, statErr := os.Stat(directory)
	isNew := errors.Is(statErr, os.ErrNotExist)

	// Create the directory if the database is new.
	err := os.MkdirAll(directory, os.ModePerm)
	if err != nil {
		return nil, err
	}

	// Remove any leftover temporary tables.
	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "temp") {
			err := os.Remove(filepath.Join(directory, entry.Name()))
			if err != nil {
				return nil, err
			}
		}
	}

	return &Manager{
		directory: directory,
		blockSize: blockSize,
		isNew:     isNew,
		openFiles: make(map[string]*os.File),
	}, nil
}

func (m *Manager) BlockSize() int32 {
	return m.blockSize
}

// IsNew reports whether the database directory was created by this manager.
func (m *Manager) IsNew() bool {
	return m.isNew
}

func (m *Manager) Stats() Stats {
	return Stats{
		BlocksRead:    m.blocksRead.Load(),
		BlocksWritten: m.blocksWritten.Load(),
	}
}

// Read reads the contents of a disk block into a page.
// A block past the end of the file reads as zeros.
// It is safe for concurrent use.
func (m *Manager) Read(block Block, page *Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := m.getOpenFile(block.Filename())
	if err != nil {
		return err
	}

	buf := page.Buf()
	n, err := f.ReadAt(buf, int64(block.Number())*int64(m.blockSize))
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("file: read %s: %w", block, err)
	}
	clear(buf[n:])

	m.blocksRead.Add(1)
	return nil
}

// Write writes the contents of a page to a disk block.
// It is safe for concurrent use.
func (m *Manager) Write(block Block, page *Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := m.getOpenFile(block.Filename())
	if err != nil {
		return err
	}

	if _, err := f.WriteAt(page.Buf(), int64(block.Number())*int64(m.blockSize)); err != nil {
		return fmt.Errorf("file: write %s: %w", block, err)
	}

	m.blocksWritten.Add(1)
	return nil
}

// Append appends a new block to the end of the specified file.
// It calculates the new block number based on the current file size,
// extends the file by writing a block of zeros at that position, and
// returns a Block identifier for the new block.
// This method is safe for concurrent use.
func (m *Manager) Append(filename string) (Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	size, err := m.size(filename)
	if err != nil {
		return Block{}, err
	}

	block := NewBlock(filename, size)
	b := make([]byte, m.blockSize)

	f, err := m.getOpenFile(filename)
	if err != nil {
		return Block{}, err
	}

	if _, err := f.WriteAt(b, int64(block.Number())*int64(m.blockSize)); err != nil {
		return Block{}, fmt.Errorf("file: append %s: %w", block, err)
	}

	m.blocksWritten.Add(1)
	return block, nil
}

// Size returns the number of blocks in the specified file.
func (m *Manager) Size(filename string) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size(filename)
}

// Length returns the length of the specified file in bytes. The log manager
// uses it to detect a file truncated in the middle of a block.
func (m *Manager) Length(filename string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := m.getOpenFile(filename)
	if err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("file: stat %s: %w", filename, err)
	}
	return info.Size(), nil
}

// Close closes every open file handle.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, f := range m.openFiles {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("file: close %s: %w", name, err))
		}
		delete(m.openFiles, name)
	}
	return errors.Join(errs...)
}

// size must be called with the mutex held.
func (m *Manager) size(filename string) (int32, error) {
	f, err := m.getOpenFile(filename)
	if err != nil {
		return 0, err
	}

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("file: stat %s: %w", filename, err)
	}

	return int32(info.Size() / int64(m.blockSize)), nil
}

// getOpenFile retrieves or creates a file handle for the specified filename.
// It first checks a cache of open files. If a handle is not found, it opens
// the file from the disk and adds the new handle to the cache.
func (m *Manager) getOpenFile(filename string) (*os.File, error) {
	if f, ok := m.openFiles[filename]; ok {
		return f, nil
	}

	path := filepath.Join(m.directory, filename)

	// O_SYNC: a block write is durable once WriteAt returns.
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_SYNC, 0666)
	if err != nil {
		return nil, err
	}

	m.openFiles[filename] = f
	return f, nil
}
