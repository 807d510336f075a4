package monitor

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DiskMonitor reports how much disk an embedded store's data directory uses.
// Walking the directory is expensive, so results are cached.
type DiskMonitor struct {
	dataDir       string
	maxBytes      int64
	cachedUsage   int64
	lastCheck     time.Time
	cacheDuration time.Duration
	mu            sync.Mutex
}

// NewDiskMonitor creates a monitor for dataDir. maxBytes of 0 means no limit.
func NewDiskMonitor(dataDir string, maxBytes int64) *DiskMonitor {
	return &DiskMonitor{
		dataDir:       dataDir,
		maxBytes:      maxBytes,
		cacheDuration: 10 * time.Second,
	}
}

// Usage returns the bytes used by the data directory.
func (m *DiskMonitor) Usage() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lastCheck.IsZero() && time.Since(m.lastCheck) < m.cacheDuration {
		return m.cachedUsage, nil
	}

	usage, err := dirSize(m.dataDir)
	if err != nil {
		return 0, err
	}
	m.cachedUsage = usage
	m.lastCheck = time.Now()
	return usage, nil
}

// Limit returns the configured limit in bytes.
func (m *DiskMonitor) Limit() int64 {
	return m.maxBytes
}

// Exceeded reports whether usage is above the limit.
func (m *DiskMonitor) Exceeded() (bool, error) {
	if m.maxBytes <= 0 {
		return false, nil
	}
	used, err := m.Usage()
	if err != nil {
		return false, err
	}
	return used > m.maxBytes, nil
}

// dirSize sums allocated disk usage under path, falling back to logical size
// when a file's allocation cannot be read.
func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if allocated, err := allocatedSize(filePath, info); err == nil {
			size += allocated
		} else {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
