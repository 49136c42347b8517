package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/lucasnoah/autofix/internal/db"
)

func newTestServer(t *testing.T) (*Server, *db.DB) {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "autofix.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return NewServer(d, 0, nil), d
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestHandleRuns(t *testing.T) {
	s, d := newTestServer(t)
	for _, id := range []string{"run-a", "run-b"} {
		if err := d.StartRun(id, false); err != nil {
			t.Fatal(err)
		}
	}

	w := httptest.NewRecorder()
	s.handleRuns(w, httptest.NewRequest(http.MethodGet, "/api/runs?limit=1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var runs []db.RunRecord
	if err := json.Unmarshal(w.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("got %d runs, limit was 1", len(runs))
	}
}

func TestHandleRuns_EmptyIsArray(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	s.handleRuns(w, httptest.NewRequest(http.MethodGet, "/api/runs", nil))

	if got := w.Body.String(); got != "[]\n" {
		t.Errorf("empty list rendered as %q, want JSON array", got)
	}
}

func TestHandleLatestRun(t *testing.T) {
	s, d := newTestServer(t)
	if err := d.StartRun("run-1", true); err != nil {
		t.Fatal(err)
	}
	if err := d.FinishRun("run-1", 2, 1, 0, `{"summary":{"totalGroups":2}}`); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	s.handleLatestRun(w, httptest.NewRequest(http.MethodGet, "/api/runs/latest", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["run_id"] != "run-1" || body["dry_run"] != true {
		t.Errorf("body = %v", body)
	}
	// Stored report is inlined, not double-encoded.
	report, ok := body["report"].(map[string]interface{})
	if !ok {
		t.Fatalf("report = %T, want inlined object", body["report"])
	}
	if _, ok := report["summary"]; !ok {
		t.Errorf("report = %v", report)
	}
}

func TestHandleLatestRun_Empty(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	s.handleLatestRun(w, httptest.NewRequest(http.MethodGet, "/api/runs/latest", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHandleRunDetail(t *testing.T) {
	s, d := newTestServer(t)
	if err := d.StartRun("run-1", false); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	s.handleRunDetail(w, httptest.NewRequest(http.MethodGet, "/api/runs/run-1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["run_id"] != "run-1" {
		t.Errorf("body = %v", body)
	}
}

func TestHandleRunDetail_NotFound(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	s.handleRunDetail(w, httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHandleRunDetail_Events(t *testing.T) {
	s, d := newTestServer(t)
	if err := d.StartRun("run-1", false); err != nil {
		t.Fatal(err)
	}
	if err := d.LogRunEvent("run-1", "g1", "init", "stage_entered", ""); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	s.handleRunDetail(w, httptest.NewRequest(http.MethodGet, "/api/runs/run-1/events", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var events []db.RunEvent
	if err := json.Unmarshal(w.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 || events[0].Stage != "init" {
		t.Errorf("events = %v", events)
	}
}

func TestHandleRunDetail_EventsEmpty(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	s.handleRunDetail(w, httptest.NewRequest(http.MethodGet, "/api/runs/run-x/events", nil))

	if got := w.Body.String(); got != "[]\n" {
		t.Errorf("empty events rendered as %q, want JSON array", got)
	}
}
