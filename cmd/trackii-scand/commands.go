package main

import (
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ttelectronics/trackii-scan/internal/ipc"
)

// commandSettle lets a writer finish before cmd.txt is read
const commandSettle = 50 * time.Millisecond

// watchCommands dispatches operator commands written to <stateDir>/cmd.txt
// until stop is closed. fsnotify is preferred; a 1s poll backs it up.
func (d *daemon) watchCommands(stop <-chan struct{}) {
	cmdPath := ipc.CommandPath(d.stateDir)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.log.Warnf("fsnotify not available, falling back to polling: %v", err)
		d.pollCommands(cmdPath, stop)
		return
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			d.log.Errorf("Failed to close watcher: %v", err)
		}
	}()

	if err := os.MkdirAll(d.stateDir, 0755); err != nil {
		d.log.Errorf("Failed to create state directory: %v", err)
	}
	if err := watcher.Add(d.stateDir); err != nil {
		d.log.Warnf("Failed to watch command directory, falling back to polling: %v", err)
		d.pollCommands(cmdPath, stop)
		return
	}

	d.log.Info("Command watcher started (using fsnotify)")

	pollTicker := time.NewTicker(1 * time.Second)
	defer pollTicker.Stop()

	lastCheckTime := time.Now()

	for {
		select {
		case <-stop:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				d.log.Info("fsnotify watcher closed, switching to polling")
				d.pollCommands(cmdPath, stop)
				return
			}
			if event.Name == cmdPath && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				time.Sleep(commandSettle)
				if d.readAndHandle() {
					lastCheckTime = time.Now()
				}
			}

		case <-pollTicker.C:
			if info, err := os.Stat(cmdPath); err == nil && info.ModTime().After(lastCheckTime) {
				time.Sleep(commandSettle)
				d.readAndHandle()
				lastCheckTime = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				d.log.Info("fsnotify error channel closed, switching to polling")
				d.pollCommands(cmdPath, stop)
				return
			}
			d.log.Errorf("File watcher error: %v", err)
		}
	}
}

// pollCommands is the polling-only fallback
func (d *daemon) pollCommands(cmdPath string, stop <-chan struct{}) {
	d.log.Info("Command watcher started (using polling fallback, 1s interval)")

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	lastCheckTime := time.Now()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			info, err := os.Stat(cmdPath)
			if err != nil {
				continue
			}
			if info.ModTime().After(lastCheckTime) {
				time.Sleep(commandSettle)
				d.readAndHandle()
				lastCheckTime = time.Now()
			}
		}
	}
}

// readAndHandle reports whether a command was dispatched
func (d *daemon) readAndHandle() bool {
	cmd, err := ipc.ReadCommand(d.stateDir)
	if err != nil {
		d.log.Errorf("Failed to read command: %v", err)
		return false
	}
	if cmd == "" {
		return false
	}
	d.handleCommand(cmd)
	return true
}
