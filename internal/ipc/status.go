package ipc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// StatusFile is the status snapshot file name inside the state dir
const StatusFile = "status.json"

// StatusSnapshot represents the scanner state at a point in time
type StatusSnapshot struct {
	SessionID        string    `json:"session_id"`
	Lot              string    `json:"lot"`               // Accepted lot number, empty until captured
	Part             string    `json:"part"`              // Accepted part number, empty until captured
	LotStreak        int       `json:"lot_streak"`        // Consecutive reads of the lot candidate
	PartStreak       int       `json:"part_streak"`       // Consecutive reads of the part candidate
	Complete         bool      `json:"complete"`          // Both fields captured
	Validation       string    `json:"validation"`        // pending, found, not_found or error
	ValidationMsg    string    `json:"validation_message,omitempty"`
	DecoderConnected bool      `json:"decoder_connected"` // Frame source connection status
	FramesDropped    uint64    `json:"frames_dropped"`
	LastAction       string    `json:"last_action"` // Last action taken
	LastError        string    `json:"last_error"`  // Last error message
	Timestamp        time.Time `json:"timestamp"`   // Snapshot time
}

// DefaultStateDir returns ~/.cache/trackii
func DefaultStateDir() string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "trackii")
}

// WriteStatus persists status to <dir>/status.json using atomic write
func WriteStatus(dir string, status *StatusSnapshot) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return atomicWriteJSON(filepath.Join(dir, StatusFile), status)
}

// ReadStatus loads the snapshot from <dir>/status.json
func ReadStatus(dir string) (*StatusSnapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, StatusFile))
	if err != nil {
		return nil, err
	}

	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// atomicWriteJSON writes data to a file atomically using temp file + rename
func atomicWriteJSON(path string, data interface{}) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	tmpFile = nil

	return os.Rename(tmpPath, path)
}
