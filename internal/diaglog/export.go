package diaglog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Version is injected at link time from the main package; defaults to "dev".
var Version = "dev"

// DiagBundle is the header line of an export file
type DiagBundle struct {
	ExportedAt     string   `json:"exported_at"`
	ScannerVersion string   `json:"scanner_version"`
	GoVersion      string   `json:"go_version"`
	OS             string   `json:"os"`
	Arch           string   `json:"arch"`
	LogFiles       []string `json:"log_files"`
	EntryCount     int      `json:"entry_count"`
}

// Export copies the scan log, preceded by its rolled-over generation
// (<logPath>.old) when present, into dest/trackii-diag-<ts>.ndjson behind a
// DiagBundle header line. Blank lines are skipped. Returns the written path
// and the number of log entries copied.
func Export(logPath, dest string) (path string, entries int, err error) {
	if _, err := os.Stat(logPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", 0, fmt.Errorf("log file not found at %s: %w", logPath, os.ErrNotExist)
		}
		return "", 0, fmt.Errorf("log file unreadable: %w", err)
	}
	sources := []string{logPath}
	if _, err := os.Stat(logPath + ".old"); err == nil {
		sources = []string{logPath + ".old", logPath}
	}

	// First pass only counts, so the header can lead the file
	for _, src := range sources {
		n, err := eachLine(src, nil)
		if err != nil {
			return "", 0, fmt.Errorf("log file unreadable: %w", err)
		}
		entries += n
	}

	outPath := filepath.Join(dest, "trackii-diag-"+time.Now().UTC().Format("20060102T150405")+".ndjson")
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", 0, fmt.Errorf("output file could not be created: %w", err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)
	if err := enc.Encode(DiagBundle{
		ExportedAt:     time.Now().UTC().Format(time.RFC3339),
		ScannerVersion: Version,
		GoVersion:      runtime.Version(),
		OS:             runtime.GOOS,
		Arch:           runtime.GOARCH,
		LogFiles:       sources,
		EntryCount:     entries,
	}); err != nil {
		return "", 0, err
	}

	for _, src := range sources {
		if _, err := eachLine(src, w); err != nil {
			return "", 0, fmt.Errorf("copy %s: %w", src, err)
		}
	}
	if err := w.Flush(); err != nil {
		return "", 0, err
	}
	return outPath, entries, nil
}

// eachLine counts the non-blank lines of path, copying each one to w when
// w is non-nil
func eachLine(path string, w io.Writer) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	n := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		n++
		if w == nil {
			continue
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return n, err
		}
	}
	return n, scanner.Err()
}
