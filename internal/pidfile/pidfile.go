// Package pidfile keeps a second scanner daemon from attaching to the same
// camera feed.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// AlreadyRunningError reports the PID holding the lock
type AlreadyRunningError struct {
	PID int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("another instance is already running (PID %d)", e.PID)
}

// PIDFile is a held PID lock
type PIDFile struct {
	path string
	pid  int
}

// Acquire writes the current PID to path. It fails with
// *AlreadyRunningError when path names a live process; a stale file is
// replaced.
func Acquire(path string) (*PIDFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create PID directory: %w", err)
	}

	if existing, ok := readPID(path); ok {
		if isProcessRunning(existing) {
			return nil, &AlreadyRunningError{PID: existing}
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove stale PID file: %w", err)
		}
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return &PIDFile{path: path, pid: pid}, nil
}

// Path returns the file location
func (p *PIDFile) Path() string {
	return p.path
}

// Release deletes the file if it still holds our PID
func (p *PIDFile) Release() error {
	if p == nil {
		return nil
	}
	if pid, ok := readPID(p.path); ok && pid == p.pid {
		return os.Remove(p.path)
	}
	return nil
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// isProcessRunning probes pid with signal 0
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return true
	case errors.Is(err, syscall.EPERM):
		// Exists, owned by someone else
		return true
	default:
		return false
	}
}

// DefaultPath returns <stateDir>/<appName>.pid
func DefaultPath(stateDir, appName string) string {
	return filepath.Join(stateDir, appName+".pid")
}
