package pidfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// A PID above any default pid_max, so never a live process
const deadPID = 4194303

func readFilePID(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read PID file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("Invalid PID in file: %q", data)
	}
	return pid
}

func TestAcquire(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "nested", "scand.pid")

	pf, err := Acquire(pidPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer pf.Release()

	if pf.Path() != pidPath {
		t.Errorf("Path = %s", pf.Path())
	}
	if pid := readFilePID(t, pidPath); pid != os.Getpid() {
		t.Errorf("PID mismatch: got %d, want %d", pid, os.Getpid())
	}
}

func TestAcquire_DuplicateInstance(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "scand.pid")

	pf, err := Acquire(pidPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer pf.Release()

	_, err = Acquire(pidPath)
	var running *AlreadyRunningError
	if !errors.As(err, &running) {
		t.Fatalf("expected AlreadyRunningError, got %v", err)
	}
	if running.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", running.PID, os.Getpid())
	}
}

func TestAcquire_ReplacesStaleOrGarbageFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "dead process", content: strconv.Itoa(deadPID) + "\n"},
		{name: "garbage", content: "not-a-pid"},
		{name: "empty", content: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pidPath := filepath.Join(t.TempDir(), "scand.pid")
			if err := os.WriteFile(pidPath, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}

			pf, err := Acquire(pidPath)
			if err != nil {
				t.Fatalf("Acquire over stale file: %v", err)
			}
			defer pf.Release()

			if pid := readFilePID(t, pidPath); pid != os.Getpid() {
				t.Errorf("PID = %d, want %d", pid, os.Getpid())
			}
		})
	}
}

func TestRelease(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "scand.pid")
	pf, err := Acquire(pidPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if err := pf.Release(); err != nil {
		t.Errorf("Release: %v", err)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Error("PID file still exists after release")
	}

	var nilFile *PIDFile
	if err := nilFile.Release(); err != nil {
		t.Errorf("nil Release: %v", err)
	}
}

func TestRelease_OnlyOwnPID(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "scand.pid")
	pf, err := Acquire(pidPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	other := os.Getpid() + 1
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(other)+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_ = pf.Release()

	if pid := readFilePID(t, pidPath); pid != other {
		t.Errorf("PID changed unexpectedly: got %d, want %d", pid, other)
	}
}

func TestDefaultPath(t *testing.T) {
	got := DefaultPath("/var/lib/trackii", "trackii-scand")
	if got != filepath.Join("/var/lib/trackii", "trackii-scand.pid") {
		t.Errorf("DefaultPath = %s", got)
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Error("Current process should be detected as running")
	}
	if isProcessRunning(deadPID) {
		t.Error("Non-existent process should not be detected as running")
	}
}
