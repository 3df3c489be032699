package diaglog

import (
	"fmt"
	"os"
	"sync"
)

// RollingFile is a mutex-guarded append-only writer. When the next write
// would exceed maxSize the current file is moved to <path>.old (replacing
// any previous backup) and a fresh file is started, so at most two
// generations are kept on disk.
type RollingFile struct {
	path    string
	maxSize int64
	f       *os.File
	size    int64
	mu      sync.Mutex
}

// OpenRolling opens path (creating it if needed) and returns a writer
// capped at maxSize bytes per generation.
func OpenRolling(path string, maxSize int64) (*RollingFile, error) {
	rf := &RollingFile{path: path, maxSize: maxSize}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *RollingFile) open() error {
	f, err := os.OpenFile(rf.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	rf.f = f
	rf.size = info.Size()
	return nil
}

// Write appends p to the file, rolling over first if p would not fit.
// A single write larger than maxSize still lands in a fresh file.
func (rf *RollingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.size > 0 && rf.size+int64(len(p)) > rf.maxSize {
		if err := rf.rollover(); err != nil {
			return 0, err
		}
	}

	n, err := rf.f.Write(p)
	rf.size += int64(n)
	if err != nil {
		return n, err
	}
	_ = rf.f.Sync()
	return n, nil
}

// rollover moves the current file to .old and reopens path empty
func (rf *RollingFile) rollover() error {
	if err := rf.f.Close(); err != nil {
		return err
	}
	oldPath := rf.path + ".old"
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old log: %w", err)
	}
	if err := os.Rename(rf.path, oldPath); err != nil {
		return err
	}
	return rf.open()
}

// Close flushes and closes the file.
func (rf *RollingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	_ = rf.f.Sync()
	return rf.f.Close()
}
