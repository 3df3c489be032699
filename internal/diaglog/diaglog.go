// Package diaglog provides structured NDJSON diagnostic logging for the
// scanner daemon. Activated by TRACKII_DEBUG_SCAN=true. When the env var is
// absent, all Log calls are no-ops and no file is created.
package diaglog

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// ── Component labels ─────────────────────────────────────────────────────────

const (
	ComponentSession     = "capture-session"
	ComponentGate        = "validation-gate"
	ComponentFrameSource = "frame-source"
	ComponentPartCheck   = "part-check"
	ComponentDaemon      = "trackii-scand"
)

// ── Event names ──────────────────────────────────────────────────────────────

const (
	EventFieldAccepted      = "field_accepted"
	EventFieldCaptured      = "field_captured"
	EventCaptureComplete    = "capture_complete"
	EventSessionReset       = "session_reset"
	EventValidationStart    = "validation_start"
	EventValidationResolved = "validation_resolved"
	EventValidationStale    = "validation_stale"
	EventDecoderConnect     = "decoder_connect"
	EventDecoderDisconnect  = "decoder_disconnect"
	EventFrameDropped       = "frame_dropped"
	EventLookupRetry        = "lookup_retry"
	EventOperatorCommand    = "operator_command"
)

// ── LogEntry ─────────────────────────────────────────────────────────────────

// LogEntry is one structured event record written as a single JSON line.
type LogEntry struct {
	Time      time.Time   // zero means now
	Component string      // see Component* constants
	Event     string      // see Event* constants
	SessionID string      // capture session the event belongs to
	Reason    string      // why the event happened, free form
	Payload   interface{} // redacted before write
}

// ── Logger ───────────────────────────────────────────────────────────────────

// Logger writes LogEntry values to a rolling NDJSON file. When debug mode is
// disabled every Log call is a no-op.
type Logger struct {
	rw      *RollingFile
	out     *logrus.Logger
	enabled bool
}

// New opens (or creates) the NDJSON log file at path. If debug mode is
// disabled, path is ignored and a no-op logger is returned.
func New(path string) (*Logger, error) {
	if !IsDebugEnabled() {
		return &Logger{enabled: false}, nil
	}
	rw, err := OpenRolling(path, 10*1024*1024)
	if err != nil {
		return nil, err
	}

	out := logrus.New()
	out.SetOutput(rw)
	out.SetLevel(logrus.InfoLevel)
	out.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat:   time.RFC3339Nano,
		DisableHTMLEscape: true,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "ts",
			logrus.FieldKeyMsg:  "event",
		},
	})
	return &Logger{rw: rw, out: out, enabled: true}, nil
}

// Log writes entry as one JSON line. Sensitive payload fields are redacted
// before serialisation.
func (l *Logger) Log(entry LogEntry) {
	if l == nil || !l.enabled {
		return
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}

	fields := logrus.Fields{"component": entry.Component}
	if entry.SessionID != "" {
		fields["session_id"] = entry.SessionID
	}
	if entry.Reason != "" {
		fields["reason"] = entry.Reason
	}
	if entry.Payload != nil {
		fields["payload"] = Redact(entry.Payload)
	}
	l.out.WithTime(entry.Time.UTC()).WithFields(fields).Info(entry.Event)
}

// Close flushes and closes the underlying file. Safe on nil/disabled logger.
func (l *Logger) Close() error {
	if l == nil || !l.enabled || l.rw == nil {
		return nil
	}
	return l.rw.Close()
}

// IsDebugEnabled reports whether TRACKII_DEBUG_SCAN is set to "true".
func IsDebugEnabled() bool {
	return os.Getenv("TRACKII_DEBUG_SCAN") == "true"
}

// NewNoOp returns a logger where every Log call is a no-op. Use as a safe
// fallback when New fails (e.g., disk full, permissions error).
func NewNoOp() *Logger {
	return &Logger{enabled: false}
}
