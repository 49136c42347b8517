// Package web serves a read-only JSON API over recorded runs, for dashboards
// and scripts that want run history without touching the database.
package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lucasnoah/autofix/internal/db"
)

// Server is the read-only status API server.
type Server struct {
	db   *db.DB
	port int
	log  *zap.Logger
}

// NewServer creates a Server.
func NewServer(database *db.DB, port int, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{db: database, port: port, log: log}
}

// Start blocks serving HTTP on the configured port.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/latest", s.handleLatestRun)
	mux.HandleFunc("/api/runs/", s.handleRunDetail)

	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info("status server listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, mux)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.db.ListRuns(limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []db.RunRecord{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.db.LatestRun()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		s.writeError(w, http.StatusNotFound, "no runs recorded")
		return
	}
	s.writeRun(w, run)
}

// handleRunDetail serves /api/runs/{id} and /api/runs/{id}/events.
func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		s.writeError(w, http.StatusNotFound, "run ID required")
		return
	}
	runID := parts[0]

	if len(parts) == 2 && parts[1] == "events" {
		events, err := s.db.GetRunEvents(runID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if events == nil {
			events = []db.RunEvent{}
		}
		s.writeJSON(w, http.StatusOK, events)
		return
	}

	run, err := s.db.GetRun(runID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", runID))
		return
	}
	s.writeRun(w, run)
}

// writeRun serves the run row with the stored report inlined as JSON
// rather than a double-encoded string.
func (s *Server) writeRun(w http.ResponseWriter, run *db.RunRecord) {
	out := map[string]interface{}{
		"run_id":       run.RunID,
		"started_at":   run.StartedAt,
		"finished_at":  run.FinishedAt,
		"total_groups": run.TotalGroups,
		"total_prs":    run.TotalPRs,
		"total_failed": run.TotalFailed,
		"dry_run":      run.DryRun,
	}
	if run.SummaryJSON != "" {
		var report json.RawMessage
		if err := json.Unmarshal([]byte(run.SummaryJSON), &report); err == nil {
			out["report"] = report
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}
