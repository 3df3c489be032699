package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ttelectronics/trackii-scan/internal/journal"
	"github.com/ttelectronics/trackii-scan/internal/partcheck"
	"github.com/ttelectronics/trackii-scan/internal/statemachine"
	"github.com/ttelectronics/trackii-scan/testutil"
)

type fakeScanner struct {
	snap    statemachine.Snapshot
	rescans int
}

func (f *fakeScanner) Snapshot() statemachine.Snapshot { return f.snap }

func (f *fakeScanner) Rescan() {
	f.rescans++
	f.snap = statemachine.Snapshot{SessionID: fmt.Sprintf("session-%d", f.rescans+1)}
}

type fakeLookup struct {
	info *partcheck.PartInfo
	err  error
}

func (f *fakeLookup) Lookup(ctx context.Context, partNumber string) (*partcheck.PartInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	info := *f.info
	info.PartNumber = partNumber
	return &info, nil
}

type memJournal struct {
	records []*journal.Record
}

func (m *memJournal) Save(rec *journal.Record) error { m.records = append(m.records, rec); return nil }
func (m *memJournal) Close() error                   { return nil }

func (m *memJournal) Get(id string) (*journal.Record, error) {
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", journal.ErrNotFound, id)
}

func (m *memJournal) List(limit int) ([]*journal.Record, error) {
	if limit > 0 && limit < len(m.records) {
		return m.records[:limit], nil
	}
	return m.records, nil
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	NewRouter(s).ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, &Server{Scanner: &fakeScanner{}}, http.MethodGet, "/health")
	testutil.AssertEqual(t, http.StatusOK, rec.Code, "status code")
	testutil.AssertEqual(t, "OK", rec.Body.String(), "body")
}

func TestStatus(t *testing.T) {
	scanner := &fakeScanner{snap: statemachine.Snapshot{
		SessionID:  "session-1",
		Lot:        "1234567",
		PartStreak: 1,
		Validation: statemachine.Outcome{State: statemachine.OutcomePending},
	}}
	rec := do(t, &Server{Scanner: scanner}, http.MethodGet, "/status")

	testutil.AssertEqual(t, http.StatusOK, rec.Code, "status code")
	testutil.AssertEqual(t, "application/json", rec.Header().Get("Content-Type"), "content type")
	testutil.AssertJSONField(t, rec.Body.Bytes(), "lot", "1234567", "status body")
	testutil.AssertJSONField(t, rec.Body.Bytes(), "complete", false, "status body")
}

func TestRescan(t *testing.T) {
	scanner := &fakeScanner{snap: statemachine.Snapshot{SessionID: "session-1", Lot: "1234567"}}
	s := &Server{Scanner: scanner}

	rec := do(t, s, http.MethodPost, "/rescan")
	testutil.AssertEqual(t, http.StatusAccepted, rec.Code, "status code")
	testutil.AssertEqual(t, 1, scanner.rescans, "rescans")
	testutil.AssertJSONField(t, rec.Body.Bytes(), "session_id", "session-2", "fresh session")

	rec = do(t, s, http.MethodGet, "/rescan")
	testutil.AssertEqual(t, http.StatusMethodNotAllowed, rec.Code, "GET /rescan")
}

func TestGetPart(t *testing.T) {
	found, missing := true, false
	tests := []struct {
		name       string
		lookup     *fakeLookup
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "found",
			lookup:     &fakeLookup{info: &partcheck.PartInfo{Found: &found, Area: "SMT"}},
			path:       "/parts/AB12X",
			wantStatus: http.StatusOK,
			wantBody:   `"area":"SMT"`,
		},
		{
			name:       "not found error",
			lookup:     &fakeLookup{err: partcheck.ErrNotFound},
			path:       "/parts/ZZ99",
			wantStatus: http.StatusNotFound,
			wantBody:   "part not found: ZZ99",
		},
		{
			name:       "found flag false",
			lookup:     &fakeLookup{info: &partcheck.PartInfo{Found: &missing}},
			path:       "/parts/ZZ99",
			wantStatus: http.StatusNotFound,
			wantBody:   "part not found: ZZ99",
		},
		{
			name:       "upstream error",
			lookup:     &fakeLookup{err: &partcheck.APIError{StatusCode: 503, Message: "busy"}},
			path:       "/parts/AB12X",
			wantStatus: http.StatusBadGateway,
			wantBody:   "Error 503: busy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, &Server{Scanner: &fakeScanner{}, Parts: tt.lookup}, http.MethodGet, tt.path)
			testutil.AssertEqual(t, tt.wantStatus, rec.Code, "status code")
			testutil.AssertTrue(t, strings.Contains(rec.Body.String(), tt.wantBody), "body "+rec.Body.String())
		})
	}
}

func TestGetPart_SlashInPartNumber(t *testing.T) {
	found := true
	s := &Server{Scanner: &fakeScanner{}, Parts: &fakeLookup{info: &partcheck.PartInfo{Found: &found}}}

	for _, path := range []string{"/parts/AB/12", "/parts/AB%2F12"} {
		t.Run(path, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, path)
			testutil.AssertEqual(t, http.StatusOK, rec.Code, "status code")
			testutil.AssertJSONField(t, rec.Body.Bytes(), "partNumber", "AB/12", "looked-up part number")
		})
	}
}

func TestUnknownRoute_JSONError(t *testing.T) {
	rec := do(t, &Server{Scanner: &fakeScanner{}}, http.MethodGet, "/parts/")
	testutil.AssertEqual(t, http.StatusNotFound, rec.Code, "status code")
	testutil.AssertEqual(t, "application/json", rec.Header().Get("Content-Type"), "content type")
	testutil.AssertJSONField(t, rec.Body.Bytes(), "error", "no route for /parts/", "error body")
}

func TestGetPart_NotConfigured(t *testing.T) {
	rec := do(t, &Server{Scanner: &fakeScanner{}}, http.MethodGet, "/parts/AB12X")
	testutil.AssertEqual(t, http.StatusServiceUnavailable, rec.Code, "status code")
}

func TestCaptures(t *testing.T) {
	base := time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)
	j := &memJournal{records: []*journal.Record{
		{ID: "s2", Lot: "1234567", Part: "AB12X", State: "found", CompletedAt: base.Add(time.Minute)},
		{ID: "s1", Lot: "7654321", Part: "ZZ99", State: "not_found", CompletedAt: base},
	}}
	s := &Server{Scanner: &fakeScanner{}, Journal: j}

	rec := do(t, s, http.MethodGet, "/captures?limit=1")
	testutil.AssertEqual(t, http.StatusOK, rec.Code, "list status")
	var records []journal.Record
	testutil.AssertNoError(t, json.Unmarshal(rec.Body.Bytes(), &records), "decode list")
	testutil.AssertEqual(t, 1, len(records), "limit applied")
	testutil.AssertEqual(t, "s2", records[0].ID, "newest first")

	rec = do(t, s, http.MethodGet, "/captures?limit=abc")
	testutil.AssertEqual(t, http.StatusBadRequest, rec.Code, "bad limit")

	rec = do(t, s, http.MethodGet, "/captures/s1")
	testutil.AssertEqual(t, http.StatusOK, rec.Code, "get status")
	testutil.AssertJSONField(t, rec.Body.Bytes(), "state", "not_found", "record")

	rec = do(t, s, http.MethodGet, "/captures/nope")
	testutil.AssertEqual(t, http.StatusNotFound, rec.Code, "missing record")
}

func TestCaptures_JournalDisabled(t *testing.T) {
	rec := do(t, &Server{Scanner: &fakeScanner{}}, http.MethodGet, "/captures")
	testutil.AssertEqual(t, http.StatusServiceUnavailable, rec.Code, "status code")
}

func TestRequestLogging(t *testing.T) {
	logger, capture := testutil.NewLogCapture()
	do(t, &Server{Scanner: &fakeScanner{}, Log: logger}, http.MethodGet, "/health")
	testutil.AssertTrue(t, capture.Contains("path=/health"), "request logged: "+capture.String())
	testutil.AssertTrue(t, capture.Contains("status=200"), "status logged")
}
