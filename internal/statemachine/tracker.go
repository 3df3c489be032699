package statemachine

import (
	"time"

	"github.com/ttelectronics/trackii-scan/internal/barcode"
	"github.com/ttelectronics/trackii-scan/internal/config"
)

// Tracker decides, frame by frame, when a repeatedly seen value for one
// field is stable enough to accept. Not safe for concurrent use; Session
// serializes calls.
type Tracker struct {
	kind         barcode.FieldKind
	cfg          config.StabilityConfig
	candidate    string
	streak       int       // Consecutive frames reporting candidate
	lastAccepted time.Time // Zero until the first acceptance
}

// NewTracker creates an empty tracker for kind
func NewTracker(kind barcode.FieldKind, cfg config.StabilityConfig) *Tracker {
	return &Tracker{kind: kind, cfg: cfg}
}

// Observe feeds the best candidate of this tracker's kind for one frame,
// or nil when the frame had none. It returns the accepted value and true
// when the candidate just became stable.
func (t *Tracker) Observe(c *barcode.Detection, now time.Time) (string, bool) {
	// Lost sight: a single empty frame wipes progress
	if c == nil {
		t.Reset()
		return "", false
	}

	if c.Value != "" && c.Value == t.candidate {
		t.streak++
	} else {
		t.candidate = c.Value
		t.streak = 1
	}

	if t.streak < t.cfg.RequiredReads(c.Confidence) || t.coolingDown(now) {
		return "", false
	}

	value := t.candidate
	t.lastAccepted = now
	t.Reset()
	return value, true
}

func (t *Tracker) coolingDown(now time.Time) bool {
	if t.lastAccepted.IsZero() {
		return false
	}
	return now.Sub(t.lastAccepted) <= t.cfg.MinAcceptInterval()
}

// Reset clears the candidate and streak. The cooldown is kept.
func (t *Tracker) Reset() {
	t.candidate = ""
	t.streak = 0
}

// Kind returns the field this tracker feeds
func (t *Tracker) Kind() barcode.FieldKind {
	return t.kind
}

// Candidate returns the value currently accumulating reads
func (t *Tracker) Candidate() string {
	return t.candidate
}

// Streak returns the consecutive read count for Candidate
func (t *Tracker) Streak() int {
	return t.streak
}

// LastAcceptedAt returns when the tracker last accepted a value
func (t *Tracker) LastAcceptedAt() time.Time {
	return t.lastAccepted
}
