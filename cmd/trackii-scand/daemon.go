package main

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ttelectronics/trackii-scan/internal/barcode"
	"github.com/ttelectronics/trackii-scan/internal/diaglog"
	"github.com/ttelectronics/trackii-scan/internal/framesource"
	"github.com/ttelectronics/trackii-scan/internal/ipc"
	"github.com/ttelectronics/trackii-scan/internal/journal"
	"github.com/ttelectronics/trackii-scan/internal/statemachine"
)

// decoderState is implemented by live frame sources
type decoderState interface {
	IsConnected() bool
	Dropped() uint64
}

// daemon ties the capture session to its outputs: status file, journal
// and operational log.
type daemon struct {
	log      logrus.FieldLogger
	diag     *diaglog.Logger
	session  *statemachine.Session
	journal  journal.Store // nil when disabled
	stateDir string

	mu         sync.Mutex
	source     framesource.Source
	lastAction string
	lastError  string

	quit     chan struct{}
	quitOnce sync.Once
}

func newDaemon(log logrus.FieldLogger, diag *diaglog.Logger, session *statemachine.Session, j journal.Store, stateDir string) *daemon {
	d := &daemon{
		log:      log,
		diag:     diag,
		session:  session,
		journal:  j,
		stateDir: stateDir,
		quit:     make(chan struct{}),
	}
	session.SetLogger(diag)
	session.OnFieldCaptured(d.fieldCaptured)
	session.OnCaptureComplete(d.captureComplete)
	session.OnResolved(d.resolved)
	return d
}

func (d *daemon) setSource(src framesource.Source) {
	d.mu.Lock()
	d.source = src
	d.mu.Unlock()
}

func (d *daemon) note(action, errMsg string) {
	d.mu.Lock()
	d.lastAction = action
	if errMsg != "" {
		d.lastError = errMsg
	}
	d.mu.Unlock()
}

func (d *daemon) fieldCaptured(kind barcode.FieldKind, value string) {
	d.log.Infof("[EVENT] %s captured: %s", kind, value)
	d.note(string(kind)+"_captured", "")
	d.writeStatus()
}

func (d *daemon) captureComplete(sessionID, lot, part string) {
	d.log.Infof("[EVENT] capture complete: lot=%s part=%s, validating part", lot, part)
	d.note("capture_complete", "")

	if d.journal != nil {
		rec := &journal.Record{
			ID:          sessionID,
			Lot:         lot,
			Part:        part,
			State:       string(statemachine.OutcomePending),
			CompletedAt: time.Now(),
		}
		if err := d.journal.Save(rec); err != nil {
			d.log.Errorf("Failed to journal capture %s: %v", rec.ID, err)
		}
	}
	d.writeStatus()
}

// resolved runs on the validation goroutine
func (d *daemon) resolved(o statemachine.Outcome) {
	errMsg := ""
	switch o.State {
	case statemachine.OutcomeFound:
		d.log.Infof("[EVENT] part %s validated", o.PartNumber)
	case statemachine.OutcomeNotFound:
		d.log.Warnf("[EVENT] part %s not found: %s", o.PartNumber, o.Message)
	default:
		errMsg = o.Message
		d.log.Errorf("[EVENT] validation of part %s failed: %s", o.PartNumber, o.Message)
	}
	d.note("validation_"+string(o.State), errMsg)

	if d.journal != nil && o.SessionID != "" {
		rec, err := d.journal.Get(o.SessionID)
		if errors.Is(err, journal.ErrNotFound) {
			rec = &journal.Record{ID: o.SessionID, Part: o.PartNumber, CompletedAt: o.ResolvedAt}
		} else if err != nil {
			d.log.Errorf("Failed to read journal entry %s: %v", o.SessionID, err)
			rec = nil
		}
		if rec != nil {
			rec.State = string(o.State)
			rec.Message = o.Message
			rec.ResolvedAt = o.ResolvedAt
			if err := d.journal.Save(rec); err != nil {
				d.log.Errorf("Failed to journal outcome %s: %v", o.SessionID, err)
			}
		}
	}
	d.writeStatus()
}

func (d *daemon) ingest(f framesource.Frame) {
	d.session.Ingest(f.Detections, f.CapturedAt)
}

// Snapshot implements httpapi.Scanner
func (d *daemon) Snapshot() statemachine.Snapshot {
	return d.session.Snapshot()
}

// Rescan implements httpapi.Scanner
func (d *daemon) Rescan() {
	prev := d.session.ID()
	d.session.Reset()
	d.log.Infof("[EVENT] rescan: discarded session %s, now %s", prev, d.session.ID())
	d.note("rescan", "")
	d.writeStatus()
}

func (d *daemon) handleCommand(cmd ipc.Command) {
	d.log.Infof("Received command: %s", cmd)
	d.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentDaemon,
		Event:     diaglog.EventOperatorCommand,
		SessionID: d.session.ID(),
		Reason:    string(cmd),
	})

	switch cmd {
	case ipc.CmdRescan:
		d.Rescan()
	case ipc.CmdQuit:
		d.log.Info("Quit command received - shutting down")
		d.requestQuit()
	default:
		d.log.Warnf("Unknown command: %s", cmd)
	}
}

func (d *daemon) requestQuit() {
	d.quitOnce.Do(func() { close(d.quit) })
}

func (d *daemon) status() *ipc.StatusSnapshot {
	snap := d.session.Snapshot()
	status := &ipc.StatusSnapshot{
		SessionID:     snap.SessionID,
		Lot:           snap.Lot,
		Part:          snap.Part,
		LotStreak:     snap.LotStreak,
		PartStreak:    snap.PartStreak,
		Complete:      snap.Complete,
		Validation:    string(snap.Validation.State),
		ValidationMsg: snap.Validation.Message,
		Timestamp:     time.Now(),
	}

	d.mu.Lock()
	status.LastAction = d.lastAction
	status.LastError = d.lastError
	src := d.source
	d.mu.Unlock()

	if ds, ok := src.(decoderState); ok {
		status.DecoderConnected = ds.IsConnected()
		status.FramesDropped = ds.Dropped()
	} else if src != nil {
		// Replays are always "connected"
		status.DecoderConnected = true
	}
	return status
}

func (d *daemon) writeStatus() {
	if err := ipc.WriteStatus(d.stateDir, d.status()); err != nil {
		d.log.Errorf("Failed to write status: %v", err)
	}
}
