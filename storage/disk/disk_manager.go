package disk

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/jobala/basalt/internal/sys"
)

const (
	PAGE_SIZE       = 4096
	INVALID_PAGE_ID = int64(-1)
)

// Manager reads and writes fixed-size pages at pageId*PAGE_SIZE offsets in
// the db file. A page read past the end of the file is not an error; the
// missing tail is zero filled and the caller treats an all-zero page as
// uninitialized. A small log sidecar stores the page allocator's counter so
// allocation resumes correctly after reopen.
type Manager struct {
	dbFile  *os.File
	logFile *os.File
}

func NewManager(file *os.File) *Manager {
	return &Manager{dbFile: file}
}

// NewManagerWithLog opens fileName as the db file and fileName + ".log" as
// the allocator log.
func NewManagerWithLog(fileName string) (*Manager, error) {
	dbFile, err := os.OpenFile(fileName, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("error opening db file %s: %w", fileName, err)
	}

	logFile, err := os.OpenFile(fileName+".log", os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		_ = dbFile.Close()
		return nil, fmt.Errorf("error opening log file %s.log: %w", fileName, err)
	}

	return &Manager{dbFile: dbFile, logFile: logFile}, nil
}

func (dm *Manager) writePage(pageId int64, data []byte) error {
	offset := pageId * PAGE_SIZE

	n, err := dm.dbFile.WriteAt(data[:PAGE_SIZE], offset)
	if err != nil {
		return fmt.Errorf("error writing page %d at offset %d: %w", pageId, offset, err)
	}
	if n < PAGE_SIZE {
		return fmt.Errorf("short write for page %d: wrote %d bytes", pageId, n)
	}

	return sys.DataSync(dm.dbFile)
}

func (dm *Manager) readPage(pageId int64) ([]byte, error) {
	offset := pageId * PAGE_SIZE

	buf := make([]byte, PAGE_SIZE)
	n, err := dm.dbFile.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("error reading page %d at offset %d: %w", pageId, offset, err)
	}

	// a short or past-EOF read leaves the tail zeroed, the caller sees an
	// uninitialized page
	for i := n; i < PAGE_SIZE; i++ {
		buf[i] = 0
	}

	return buf, nil
}

// WriteLog persists the next page id as a single little-endian u32.
func (dm *Manager) WriteLog(nextPageId int64) error {
	if dm.logFile == nil {
		return fmt.Errorf("disk manager has no log file")
	}

	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(nextPageId))
	if _, err := dm.logFile.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("error writing log record: %w", err)
	}

	return sys.DataSync(dm.logFile)
}

// ReadLog restores the next page id. An empty or missing record yields 1,
// page 0 being the header page.
func (dm *Manager) ReadLog() int64 {
	if dm.logFile == nil {
		return 1
	}

	buf := make([]byte, 4)
	if n, err := dm.logFile.ReadAt(buf, 0); err != nil || n < 4 {
		return 1
	}

	return int64(binary.LittleEndian.Uint32(buf))
}

func (dm *Manager) Close() error {
	if dm.logFile != nil {
		if err := dm.logFile.Close(); err != nil {
			return err
		}
	}
	return dm.dbFile.Close()
}
