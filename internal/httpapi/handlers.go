package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/ttelectronics/trackii-scan/internal/journal"
	"github.com/ttelectronics/trackii-scan/internal/partcheck"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Scanner.Snapshot())
}

// postRescan discards the current capture and returns the fresh state
func (s *Server) postRescan(w http.ResponseWriter, r *http.Request) {
	s.Scanner.Rescan()
	writeJSON(w, http.StatusAccepted, s.Scanner.Snapshot())
}

func (s *Server) getPart(w http.ResponseWriter, r *http.Request) {
	if s.Parts == nil {
		writeError(w, http.StatusServiceUnavailable, "part lookup not configured")
		return
	}
	partNumber := strings.TrimSpace(mux.Vars(r)["partNumber"])
	if partNumber == "" {
		writeError(w, http.StatusBadRequest, "part number is required")
		return
	}

	info, err := s.Parts.Lookup(r.Context(), partNumber)
	var apiErr *partcheck.APIError
	switch {
	case errors.Is(err, partcheck.ErrNotFound):
		writeError(w, http.StatusNotFound, "part not found: "+partNumber)
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, apiErr.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	case !info.IsFound():
		writeError(w, http.StatusNotFound, "part not found: "+partNumber)
	default:
		writeJSON(w, http.StatusOK, info)
	}
}

func (s *Server) listCaptures(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.Journal.List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) getCapture(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}
	rec, err := s.Journal.Get(mux.Vars(r)["id"])
	if errors.Is(err, journal.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
