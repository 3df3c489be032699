package statemachine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ttelectronics/trackii-scan/internal/barcode"
	"github.com/ttelectronics/trackii-scan/internal/config"
	"github.com/ttelectronics/trackii-scan/internal/diaglog"
)

// Snapshot is a point-in-time copy of session state
type Snapshot struct {
	SessionID     string  `json:"session_id"`
	Lot           string  `json:"lot"`
	Part          string  `json:"part"`
	LotCandidate  string  `json:"lot_candidate,omitempty"`
	LotStreak     int     `json:"lot_streak"`
	PartCandidate string  `json:"part_candidate,omitempty"`
	PartStreak    int     `json:"part_streak"`
	Complete      bool    `json:"complete"`
	Frames        uint64  `json:"frames"`
	Validation    Outcome `json:"validation"`
	Validating    bool    `json:"validating"`
}

// Session captures one lot number and one part number from a stream of
// frames, then hands the part number to the validation gate.
// All methods are safe for concurrent use; a single mutex serializes them
// so tracker updates never interleave.
type Session struct {
	cfg config.StabilityConfig

	mu       sync.Mutex
	id       string
	lot      string
	part     string
	trackers map[barcode.FieldKind]*Tracker
	frames   uint64
	gate     *Gate

	onFieldCaptured   func(kind barcode.FieldKind, value string)
	onCaptureComplete func(sessionID, lot, part string)

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewSession creates an empty session validating parts with v
func NewSession(cfg *config.StabilityConfig, v PartValidator) *Session {
	s := &Session{
		cfg:  *cfg,
		gate: NewGate(v),
	}
	s.clear()
	return s
}

// clear restores the initial state; callers hold mu or own s exclusively
func (s *Session) clear() {
	s.id = uuid.NewString()
	s.lot = ""
	s.part = ""
	s.frames = 0
	s.trackers = map[barcode.FieldKind]*Tracker{
		barcode.FieldLot:  NewTracker(barcode.FieldLot, s.cfg),
		barcode.FieldPart: NewTracker(barcode.FieldPart, s.cfg),
	}
}

// SetLogger injects a diaglog.Logger into the session and its gate
func (s *Session) SetLogger(l *diaglog.Logger) {
	s.loggerMu.Lock()
	s.logger = l
	s.loggerMu.Unlock()
	s.gate.SetLogger(l)
}

func (s *Session) log(entry diaglog.LogEntry) {
	s.loggerMu.RLock()
	l := s.logger
	s.loggerMu.RUnlock()
	if l == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentSession
	}
	l.Log(entry)
}

// OnFieldCaptured registers fn for the first field of a pair being accepted.
// The field that completes the pair reports through OnCaptureComplete instead.
func (s *Session) OnFieldCaptured(fn func(kind barcode.FieldKind, value string)) {
	s.mu.Lock()
	s.onFieldCaptured = fn
	s.mu.Unlock()
}

// OnCaptureComplete registers fn for the moment both fields are set.
// sessionID is the capture's ID, stable even if Reset runs before fn returns.
func (s *Session) OnCaptureComplete(fn func(sessionID, lot, part string)) {
	s.mu.Lock()
	s.onCaptureComplete = fn
	s.mu.Unlock()
}

// OnResolved registers fn for validation outcomes
func (s *Session) OnResolved(fn func(Outcome)) {
	s.gate.OnResolved(fn)
}

type capturedField struct {
	kind  barcode.FieldKind
	value string
}

// Ingest processes the detections of one frame captured at now. Frames must
// be ingested in capture order. Once both fields are set the trackers are
// not consulted again until Reset.
func (s *Session) Ingest(detections []barcode.Detection, now time.Time) {
	s.mu.Lock()
	if s.isCompleteLocked() {
		s.mu.Unlock()
		return
	}
	s.frames++

	var candidates barcode.Candidates
	if len(detections) > 0 {
		candidates = barcode.Best(detections)
	}

	var captured []capturedField
	for _, kind := range barcode.Kinds {
		if s.valueLocked(kind) != "" {
			continue
		}
		value, ok := s.trackers[kind].Observe(candidates.ForKind(kind), now)
		if !ok {
			continue
		}
		s.setValueLocked(kind, value)
		captured = append(captured, capturedField{kind: kind, value: value})
	}

	var (
		complete   = len(captured) > 0 && s.isCompleteLocked()
		sessionID  = s.id
		lot, part  = s.lot, s.part
		gen        = s.gate.Generation()
		onField    = s.onFieldCaptured
		onComplete = s.onCaptureComplete
	)
	s.mu.Unlock()

	for i, c := range captured {
		s.log(diaglog.LogEntry{
			Event:     diaglog.EventFieldAccepted,
			SessionID: sessionID,
			Reason:    string(c.kind),
			Payload:   map[string]interface{}{"value": c.value},
		})
		// The pair-completing field is announced by the completion event
		if complete && i == len(captured)-1 {
			break
		}
		s.log(diaglog.LogEntry{Event: diaglog.EventFieldCaptured, SessionID: sessionID, Reason: string(c.kind)})
		if onField != nil {
			onField(c.kind, c.value)
		}
	}

	if !complete {
		return
	}
	s.log(diaglog.LogEntry{
		Event:     diaglog.EventCaptureComplete,
		SessionID: sessionID,
		Payload:   map[string]interface{}{"lot": lot, "part": part},
	})
	if onComplete != nil {
		onComplete(sessionID, lot, part)
	}
	s.gate.triggerAt(gen, sessionID, part)
}

// Reset discards captured values and tracker progress, re-arms the gate and
// starts a new session ID. A validation still in flight is ignored.
func (s *Session) Reset() {
	s.mu.Lock()
	prev := s.id
	s.gate.Reset()
	s.clear()
	next := s.id
	s.mu.Unlock()

	s.log(diaglog.LogEntry{
		Event:     diaglog.EventSessionReset,
		SessionID: next,
		Payload:   map[string]interface{}{"previous_session_id": prev},
	})
}

// Close cancels any in-flight validation and waits for it to finish
func (s *Session) Close() {
	s.gate.Close()
}

// Wait blocks until in-flight validation calls have returned
func (s *Session) Wait() {
	s.gate.Wait()
}

func (s *Session) valueLocked(kind barcode.FieldKind) string {
	if kind == barcode.FieldLot {
		return s.lot
	}
	return s.part
}

func (s *Session) setValueLocked(kind barcode.FieldKind, value string) {
	if kind == barcode.FieldLot {
		s.lot = value
	} else {
		s.part = value
	}
}

func (s *Session) isCompleteLocked() bool {
	return s.lot != "" && s.part != ""
}

// ID returns the current session identifier
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Lot returns the accepted lot number, or ""
func (s *Session) Lot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lot
}

// Part returns the accepted part number, or ""
func (s *Session) Part() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.part
}

// IsComplete reports whether both fields are set
func (s *Session) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isCompleteLocked()
}

// Outcome returns the validation gate state
func (s *Session) Outcome() Outcome {
	return s.gate.Outcome()
}

// Snapshot returns a copy of the session state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		SessionID:     s.id,
		Lot:           s.lot,
		Part:          s.part,
		LotCandidate:  s.trackers[barcode.FieldLot].Candidate(),
		LotStreak:     s.trackers[barcode.FieldLot].Streak(),
		PartCandidate: s.trackers[barcode.FieldPart].Candidate(),
		PartStreak:    s.trackers[barcode.FieldPart].Streak(),
		Complete:      s.isCompleteLocked(),
		Frames:        s.frames,
	}
	s.mu.Unlock()

	snap.Validation = s.gate.Outcome()
	snap.Validating = s.gate.HasFired() && !snap.Validation.Terminal()
	return snap
}
