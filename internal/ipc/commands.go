package ipc

import (
	"os"
	"path/filepath"
	"strings"
)

// CommandFile is the command file name inside the state dir
const CommandFile = "cmd.txt"

// Command is an operator request to the daemon
type Command string

const (
	CmdRescan Command = "rescan" // Discard the current capture and start over
	CmdQuit   Command = "quit"   // Shutdown daemon
)

// CommandPath returns <dir>/cmd.txt
func CommandPath(dir string) string {
	return filepath.Join(dir, CommandFile)
}

// WriteCommand writes cmd to <dir>/cmd.txt
func WriteCommand(dir string, cmd Command) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(CommandPath(dir), []byte(string(cmd)), 0644)
}

// ReadCommand reads and clears <dir>/cmd.txt.
// Returns empty string if no command is pending or the command is unknown.
func ReadCommand(dir string) (Command, error) {
	cmdPath := CommandPath(dir)

	data, err := os.ReadFile(cmdPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	// Clear first so a command never runs twice
	if err := os.WriteFile(cmdPath, []byte(""), 0644); err != nil {
		return "", err
	}

	cmd := Command(strings.ToLower(strings.TrimSpace(string(data))))
	switch cmd {
	case CmdRescan, CmdQuit:
		return cmd, nil
	default:
		return "", nil
	}
}
