package db

import (
	"database/sql"
	"fmt"
)

// RunRecord is one row of the runs table.
type RunRecord struct {
	RunID       string `json:"run_id"`
	StartedAt   string `json:"started_at"`
	FinishedAt  string `json:"finished_at,omitempty"`
	TotalGroups int    `json:"total_groups"`
	TotalPRs    int    `json:"total_prs"`
	TotalFailed int    `json:"total_failed"`
	DryRun      bool   `json:"dry_run"`
	SummaryJSON string `json:"summary_json,omitempty"`
}

// RunEvent is one row of the run_events table.
type RunEvent struct {
	ID        int64  `json:"id"`
	RunID     string `json:"run_id"`
	GroupID   string `json:"group_id"`
	Stage     string `json:"stage"`
	Event     string `json:"event"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

// StartRun inserts a new run row.
func (d *DB) StartRun(runID string, dryRun bool) error {
	_, err := d.conn.Exec(`INSERT INTO runs (run_id, dry_run) VALUES (?, ?)`, runID, boolToInt(dryRun))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}
	return nil
}

// FinishRun records totals and the serialized report for a run.
func (d *DB) FinishRun(runID string, totalGroups, totalPRs, totalFailed int, summaryJSON string) error {
	res, err := d.conn.Exec(`UPDATE runs
		SET finished_at = datetime('now'), total_groups = ?, total_prs = ?, total_failed = ?, summary_json = ?
		WHERE run_id = ?`,
		totalGroups, totalPRs, totalFailed, summaryJSON, runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("finish run %s: run not found", runID)
	}
	return nil
}

// LogRunEvent appends one stage event for a group within a run.
func (d *DB) LogRunEvent(runID, groupID, stage, event, detail string) error {
	_, err := d.conn.Exec(`INSERT INTO run_events (run_id, group_id, stage, event, detail) VALUES (?, ?, ?, ?, ?)`,
		runID, groupID, stage, event, detail)
	if err != nil {
		return fmt.Errorf("log run event: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (d *DB) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(`SELECT run_id, started_at, COALESCE(finished_at, ''),
		total_groups, total_prs, total_failed, dry_run, COALESCE(summary_json, '')
		FROM runs ORDER BY started_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var dryRun int
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.TotalGroups, &r.TotalPRs, &r.TotalFailed, &dryRun, &r.SummaryJSON); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.DryRun = dryRun != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recent run, or nil when none exist.
func (d *DB) LatestRun() (*RunRecord, error) {
	runs, err := d.ListRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// GetRunEvents returns all events for a run in insertion order.
func (d *DB) GetRunEvents(runID string) ([]RunEvent, error) {
	rows, err := d.conn.Query(`SELECT id, run_id, group_id, stage, event, COALESCE(detail, ''), timestamp
		FROM run_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("get run events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.GroupID, &e.Stage, &e.Event, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetRun fetches one run by ID, or nil when absent.
func (d *DB) GetRun(runID string) (*RunRecord, error) {
	row := d.conn.QueryRow(`SELECT run_id, started_at, COALESCE(finished_at, ''),
		total_groups, total_prs, total_failed, dry_run, COALESCE(summary_json, '')
		FROM runs WHERE run_id = ?`, runID)
	var r RunRecord
	var dryRun int
	err := row.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.TotalGroups, &r.TotalPRs, &r.TotalFailed, &dryRun, &r.SummaryJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	r.DryRun = dryRun != 0
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
