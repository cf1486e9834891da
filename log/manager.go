package log

import (
	"errors"
	"fmt"
	"sync"

	"minidb/file"
)

// How a log block is laid out:
//
//	+----------+--------------+-------------+----------+-----+----------+
//	| boundary | checksum (8) | free space  | record N | ... | record 1 |
//	+----------+--------------+-------------+----------+-----+----------+
//	0          4              12            boundary              blockSize
//
// Records are written from the end of the block towards the header, so the
// boundary always points at the most recent record in the block.
const (
	boundaryPos  int32 = 0
	checksumPos  int32 = 4
	checksumSize int32 = 8
	headerSize         = checksumPos + checksumSize
)

var (
	// ErrCorruptLog is returned when a log block fails validation. The engine
	// must not be opened on a corrupt log.
	ErrCorruptLog = errors.New("log: corrupt log file")

	// ErrRecordTooLarge is returned when a record cannot fit in an empty block.
	ErrRecordTooLarge = errors.New("log: record larger than a log block")
)

type Manager struct {
	mu           sync.Mutex
	fileManager  *file.Manager
	logFile      string
	logPage      *file.Page
	currentBlock file.Block
	latestLSN    int32
	lastSavedLSN int32
}

// NewManager creates a new log manager for a given log file.
// If the log file does not exist, it creates a new one with a single, empty block.
// If the log file exists, it validates every block and reads the last one into
// its internal log page, so that new records are appended to the existing log.
func NewManager(fileManager *file.Manager, logFile string) (*Manager, error) {
	if fileManager.BlockSize() <= headerSize+4 {
		return nil, fmt.Errorf("log: block size %d too small", fileManager.BlockSize())
	}

	logPage := file.NewPage(fileManager.BlockSize())

	length, err := fileManager.Length(logFile)
	if err != nil {
		return nil, err
	}
	if length%int64(fileManager.BlockSize()) != 0 {
		return nil, fmt.Errorf("%w: %s is %d bytes, not a multiple of the block size", ErrCorruptLog, logFile, length)
	}

	logSize, err := fileManager.Size(logFile)
	if err != nil {
		return nil, err
	}

	var currentBlock file.Block
	if logSize == 0 {
		currentBlock, err = appendNewBlock(fileManager, logFile, logPage)
		if err != nil {
			return nil, err
		}
	} else {
		if err := validateFile(fileManager, logFile, logSize); err != nil {
			return nil, err
		}
		currentBlock = file.NewBlock(logFile, logSize-1) // block number is 0-indexed
		if err := readBlock(fileManager, currentBlock, logPage); err != nil {
			return nil, err
		}
	}

	return &Manager{
		fileManager:  fileManager,
		logFile:      logFile,
		logPage:      logPage,
		currentBlock: currentBlock,
	}, nil
}

// Flush ensures that all log records with LSN values less than or equal to the
// specified LSN have been written to disk.
func (m *Manager) Flush(lsn int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lsn > m.lastSavedLSN {
		return m.flush()
	}
	return nil
}

// Iterator returns a log iterator starting from the most recent log record.
// It ensures all current logs are flushed to disk before creating the iterator.
// The iterator must not be used while other goroutines append to the log.
func (m *Manager) Iterator() (*Iterator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.flush(); err != nil {
		return nil, err
	}

	return NewIterator(m.fileManager, m.currentBlock)
}

// ForwardIterator returns an iterator over the log from the oldest record to
// the most recent one. Like Iterator, it flushes the log first.
func (m *Manager) ForwardIterator() (*ForwardIterator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.flush(); err != nil {
		return nil, err
	}

	return NewForwardIterator(m.fileManager, m.logFile, m.currentBlock.Number())
}

// Append adds a new log record to the log file and returns its assigned LSN.
// It handles block switching if the log record doesn't fit in the current block
// and ensures proper synchronization for concurrent access.
func (m *Manager) Append(log []byte) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	needBytes := file.MaxLength(len(log))
	if headerSize+needBytes > m.fileManager.BlockSize() {
		return 0, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, len(log))
	}

	boundary, err := m.logPage.ReadInt32At(boundaryPos)
	if err != nil {
		return 0, err
	}

	if boundary-needBytes < headerSize {
		// It doesn't fit, so move to the next block.
		if err := m.flush(); err != nil {
			return 0, err
		}

		m.currentBlock, err = appendNewBlock(m.fileManager, m.logFile, m.logPage)
		if err != nil {
			return 0, err
		}

		boundary, err = m.logPage.ReadInt32At(boundaryPos)
		if err != nil {
			return 0, err
		}
	}

	logPos := boundary - needBytes
	if err := m.logPage.WriteBytesAt(logPos, log); err != nil {
		return 0, err
	}

	if err := m.logPage.WriteInt32At(boundaryPos, logPos); err != nil {
		return 0, err
	}

	m.latestLSN++

	return m.latestLSN, nil
}

// LatestLSN returns the LSN of the most recently appended record.
func (m *Manager) LatestLSN() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latestLSN
}

// LastSavedLSN returns the highest LSN known to be durable.
func (m *Manager) LastSavedLSN() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSavedLSN
}

// flush must be called with the mutex held.
func (m *Manager) flush() error {
	if err := writeBlock(m.fileManager, m.currentBlock, m.logPage); err != nil {
		return err
	}
	m.lastSavedLSN = m.latestLSN
	return nil
}

func appendNewBlock(fileManager *file.Manager, logFile string, logPage *file.Page) (file.Block, error) {
	block, err := fileManager.Append(logFile)
	if err != nil {
		return file.Block{}, err
	}

	clear(logPage.Buf())
	if err := logPage.WriteInt32At(boundaryPos, fileManager.BlockSize()); err != nil {
		return file.Block{}, err
	}

	if err := writeBlock(fileManager, block, logPage); err != nil {
		return file.Block{}, err
	}

	return block, nil
}

func writeBlock(fileManager *file.Manager, block file.Block, page *file.Page) error {
	seal(page)
	return fileManager.Write(block, page)
}

// readBlock reads and validates a log block. A block that is entirely zero is
// the result of a crash between extending the file and writing the block
// header; it is treated as an empty block.
func readBlock(fileManager *file.Manager, block file.Block, page *file.Page) error {
	if err := fileManager.Read(block, page); err != nil {
		return err
	}
	if isZero(page.Buf()) {
		return page.WriteInt32At(boundaryPos, page.Size())
	}
	if err := verify(page); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptLog, block, err)
	}
	return nil
}

func validateFile(fileManager *file.Manager, logFile string, numBlocks int32) error {
	page := file.NewPage(fileManager.BlockSize())
	for i := range numBlocks {
		if err := readBlock(fileManager, file.NewBlock(logFile, i), page); err != nil {
			return err
		}
	}
	return nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
