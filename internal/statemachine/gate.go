package statemachine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ttelectronics/trackii-scan/internal/diaglog"
)

// OutcomeState is the validation gate state
type OutcomeState string

const (
	OutcomePending  OutcomeState = "pending"   // Not fired yet, or call in flight
	OutcomeFound    OutcomeState = "found"     // Part matches a known order
	OutcomeNotFound OutcomeState = "not_found" // Part has no order
	OutcomeError    OutcomeState = "error"     // Validation could not be completed
)

// DefaultNotFoundMessage is reported when the validator gives no message
const DefaultNotFoundMessage = "no order found for this part number"

// ErrPartNotFound lets a validator report "not found" with its own message
// by returning an error wrapping it.
var ErrPartNotFound = errors.New("part not found")

// PartValidator checks whether a part number belongs to a known order.
// Implementations must be safe for concurrent use.
type PartValidator interface {
	Exists(ctx context.Context, partNumber string) (bool, error)
}

// Outcome is the result of one validation attempt
type Outcome struct {
	State      OutcomeState `json:"state"`
	Message    string       `json:"message,omitempty"`
	PartNumber string       `json:"part_number,omitempty"`
	SessionID  string       `json:"session_id,omitempty"`
	ResolvedAt time.Time    `json:"resolved_at,omitempty"`
}

// Terminal reports whether the outcome is final
func (o Outcome) Terminal() bool {
	return o.State == OutcomeFound || o.State == OutcomeNotFound || o.State == OutcomeError
}

// Gate runs at most one validation per capture until Reset.
// Results that arrive after a Reset are discarded.
type Gate struct {
	validator PartValidator

	mu         sync.Mutex
	fired      bool
	outcome    Outcome
	generation uint64
	cancel     context.CancelFunc
	onResolved func(Outcome)
	inflight   sync.WaitGroup

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewGate creates a gate in the Pending state
func NewGate(v PartValidator) *Gate {
	return &Gate{
		validator: v,
		outcome:   Outcome{State: OutcomePending},
	}
}

// SetLogger injects a diaglog.Logger
func (g *Gate) SetLogger(l *diaglog.Logger) {
	g.loggerMu.Lock()
	g.logger = l
	g.loggerMu.Unlock()
}

func (g *Gate) log(entry diaglog.LogEntry) {
	g.loggerMu.RLock()
	l := g.logger
	g.loggerMu.RUnlock()
	if l == nil {
		return
	}
	entry.Component = diaglog.ComponentGate
	l.Log(entry)
}

// OnResolved registers fn to receive every terminal outcome. fn runs on the
// validation goroutine.
func (g *Gate) OnResolved(fn func(Outcome)) {
	g.mu.Lock()
	g.onResolved = fn
	g.mu.Unlock()
}

// Trigger starts validation of partNumber unless one already ran since the
// last Reset. Returns whether a call was started.
func (g *Gate) Trigger(sessionID, partNumber string) bool {
	g.mu.Lock()
	gen := g.generation
	g.mu.Unlock()
	return g.triggerAt(gen, sessionID, partNumber)
}

// triggerAt is Trigger pinned to a generation; a stale generation is a no-op
func (g *Gate) triggerAt(gen uint64, sessionID, partNumber string) bool {
	g.mu.Lock()
	if g.fired || gen != g.generation {
		g.mu.Unlock()
		return false
	}
	g.fired = true
	g.outcome = Outcome{State: OutcomePending, PartNumber: partNumber, SessionID: sessionID}

	if partNumber == "" || g.validator == nil {
		msg := "part number is required"
		if g.validator == nil {
			msg = "no part validator configured"
		}
		g.outcome.State = OutcomeError
		g.outcome.Message = msg
		g.outcome.ResolvedAt = time.Now()
		out, cb := g.outcome, g.onResolved
		g.mu.Unlock()
		g.log(diaglog.LogEntry{Event: diaglog.EventValidationResolved, SessionID: sessionID, Reason: msg})
		if cb != nil {
			cb(out)
		}
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.inflight.Add(1)
	g.mu.Unlock()

	g.log(diaglog.LogEntry{
		Event:     diaglog.EventValidationStart,
		SessionID: sessionID,
		Payload:   map[string]interface{}{"part_number": partNumber},
	})

	go func() {
		defer g.inflight.Done()
		defer cancel()
		found, err := g.validator.Exists(ctx, partNumber)
		g.resolve(gen, found, err)
	}()
	return true
}

// resolve applies a validator result if its generation is still current
func (g *Gate) resolve(gen uint64, found bool, err error) {
	g.mu.Lock()
	if gen != g.generation {
		g.mu.Unlock()
		g.log(diaglog.LogEntry{Event: diaglog.EventValidationStale, Reason: "session reset"})
		return
	}

	switch {
	case errors.Is(err, ErrPartNotFound):
		g.outcome.State = OutcomeNotFound
		g.outcome.Message = err.Error()
	case err != nil:
		g.outcome.State = OutcomeError
		g.outcome.Message = err.Error()
	case found:
		g.outcome.State = OutcomeFound
	default:
		g.outcome.State = OutcomeNotFound
		g.outcome.Message = DefaultNotFoundMessage
	}
	g.outcome.ResolvedAt = time.Now()
	g.cancel = nil
	out, cb := g.outcome, g.onResolved
	g.mu.Unlock()

	g.log(diaglog.LogEntry{
		Event:     diaglog.EventValidationResolved,
		SessionID: out.SessionID,
		Reason:    string(out.State),
		Payload:   map[string]interface{}{"part_number": out.PartNumber, "message": out.Message},
	})
	if cb != nil {
		cb(out)
	}
}

// Reset re-arms the gate. An in-flight call is cancelled and its result
// will be discarded.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.resetLocked()
	g.mu.Unlock()
}

func (g *Gate) resetLocked() {
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.generation++
	g.fired = false
	g.outcome = Outcome{State: OutcomePending}
}

// Close cancels any in-flight call and waits for it to return
func (g *Gate) Close() {
	g.Reset()
	g.Wait()
}

// Wait blocks until every started validation call has returned
func (g *Gate) Wait() {
	g.inflight.Wait()
}

// Outcome returns the current state
func (g *Gate) Outcome() Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outcome
}

// HasFired reports whether validation ran since the last Reset
func (g *Gate) HasFired() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fired
}

// Generation identifies the current capture attempt
func (g *Gate) Generation() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generation
}
