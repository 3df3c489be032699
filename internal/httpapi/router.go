// Package httpapi exposes scanner status and control over HTTP for the
// line supervisor dashboard.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/ttelectronics/trackii-scan/internal/journal"
	"github.com/ttelectronics/trackii-scan/internal/partcheck"
	"github.com/ttelectronics/trackii-scan/internal/statemachine"
)

// Scanner is the live capture the API reports on
type Scanner interface {
	Snapshot() statemachine.Snapshot
	Rescan()
}

// PartLookup resolves part numbers
type PartLookup interface {
	Lookup(ctx context.Context, partNumber string) (*partcheck.PartInfo, error)
}

// Server holds handler dependencies. Parts and Journal are optional.
type Server struct {
	Scanner Scanner
	Parts   PartLookup
	Journal journal.Store
	Log     logrus.FieldLogger
}

// NewRouter registers all routes
func NewRouter(s *Server) *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "no route for "+r.URL.Path)
	})

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}).Methods("GET")
	r.HandleFunc("/status", s.getStatus).Methods("GET")
	r.HandleFunc("/rescan", s.postRescan).Methods("POST")
	// Part numbers may contain '/', escaped or not
	r.HandleFunc("/parts/{partNumber:.+}", s.getPart).Methods("GET")
	r.HandleFunc("/captures", s.listCaptures).Methods("GET")
	r.HandleFunc("/captures/{id}", s.getCapture).Methods("GET")
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.Log == nil {
			return
		}
		s.Log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Debug("[HTTP] request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
