package analytics

import (
	"path/filepath"
	"testing"

	"github.com/lucasnoah/autofix/internal/db"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "autofix.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return d
}

// insertEvent writes an event with an explicit timestamp so durations are
// deterministic.
func insertEvent(t *testing.T, d *db.DB, runID, groupID, stage, event, ts string) {
	t.Helper()
	_, err := d.Conn().Exec(
		`INSERT INTO run_events (run_id, group_id, stage, event, timestamp) VALUES (?, ?, ?, ?, ?)`,
		runID, groupID, stage, event, ts)
	if err != nil {
		t.Fatalf("insert event: %v", err)
	}
}

func TestQueryStageDurations(t *testing.T) {
	d := openTestDB(t)

	// One group: init takes 5s, checks takes 30s, last event has no
	// successor and is dropped.
	insertEvent(t, d, "r1", "g1", "init", "stage_entered", "2026-08-29 10:00:00")
	insertEvent(t, d, "r1", "g1", "checks", "stage_entered", "2026-08-29 10:00:05")
	insertEvent(t, d, "r1", "g1", "done", "stage_entered", "2026-08-29 10:00:35")

	// A second group's init takes 15s.
	insertEvent(t, d, "r1", "g2", "init", "stage_entered", "2026-08-29 10:00:00")
	insertEvent(t, d, "r1", "g2", "checks", "stage_entered", "2026-08-29 10:00:15")

	durations, err := QueryStageDurations(d, "")
	if err != nil {
		t.Fatalf("QueryStageDurations: %v", err)
	}

	byStage := make(map[string]StageDuration)
	for _, sd := range durations {
		byStage[sd.Stage] = sd
	}

	init := byStage["init"]
	if init.Count != 2 {
		t.Errorf("init count = %d, want 2", init.Count)
	}
	if init.Avg != 10.0 {
		t.Errorf("init avg = %f, want 10.0", init.Avg)
	}

	checks := byStage["checks"]
	if checks.Count != 1 || checks.Avg != 30.0 {
		t.Errorf("checks = %+v", checks)
	}

	// "done" has no successor in g1, so it never shows up.
	if _, ok := byStage["done"]; ok {
		t.Error("stage without a successor produced a duration")
	}
}

func TestQueryStageDurations_SinceFilter(t *testing.T) {
	d := openTestDB(t)

	insertEvent(t, d, "r1", "g1", "init", "stage_entered", "2026-01-01 10:00:00")
	insertEvent(t, d, "r1", "g1", "checks", "stage_entered", "2026-01-01 10:00:10")
	insertEvent(t, d, "r2", "g1", "init", "stage_entered", "2026-08-01 10:00:00")
	insertEvent(t, d, "r2", "g1", "checks", "stage_entered", "2026-08-01 10:00:20")

	durations, err := QueryStageDurations(d, "2026-06-01")
	if err != nil {
		t.Fatalf("QueryStageDurations: %v", err)
	}
	if len(durations) != 1 {
		t.Fatalf("got %d stages, want only the recent run's init", len(durations))
	}
	if durations[0].Stage != "init" || durations[0].Avg != 20.0 {
		t.Errorf("got %+v", durations[0])
	}
}

func TestQueryStageDurations_Empty(t *testing.T) {
	d := openTestDB(t)
	durations, err := QueryStageDurations(d, "")
	if err != nil {
		t.Fatalf("QueryStageDurations: %v", err)
	}
	if len(durations) != 0 {
		t.Errorf("got %d stages on empty db", len(durations))
	}
}

func TestQueryStageFailureRates(t *testing.T) {
	d := openTestDB(t)

	// checks entered 4 times, failed twice.
	for i := 0; i < 4; i++ {
		insertEvent(t, d, "r1", "g1", "checks", "stage_entered", "2026-08-29 10:00:00")
	}
	insertEvent(t, d, "r1", "g1", "checks", "group_failed", "2026-08-29 10:01:00")
	insertEvent(t, d, "r1", "g2", "checks", "group_failed", "2026-08-29 10:01:00")
	insertEvent(t, d, "r1", "g1", "init", "stage_entered", "2026-08-29 10:00:00")

	rates, err := QueryStageFailureRates(d, "")
	if err != nil {
		t.Fatalf("QueryStageFailureRates: %v", err)
	}

	byStage := make(map[string]StageFailureRate)
	for _, r := range rates {
		byStage[r.Stage] = r
	}

	checks := byStage["checks"]
	if checks.Entered != 4 || checks.Failed != 2 {
		t.Errorf("checks = %+v", checks)
	}
	if checks.FailRate != 50.0 {
		t.Errorf("FailRate = %f, want 50.0", checks.FailRate)
	}

	init := byStage["init"]
	if init.Failed != 0 || init.FailRate != 0 {
		t.Errorf("init = %+v", init)
	}
}

func TestParseTimestamp(t *testing.T) {
	for _, s := range []string{
		"2026-08-29 10:00:00",
		"2026-08-29T10:00:00Z",
		"2026-08-29T10:00:00",
		"2026-08-29 10:00:00.000",
	} {
		if _, err := parseTimestamp(s); err != nil {
			t.Errorf("parseTimestamp(%q): %v", s, err)
		}
	}
	if _, err := parseTimestamp("yesterday"); err == nil {
		t.Error("expected error for unrecognized format")
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(sorted, 50); got != 5 {
		t.Errorf("p50 = %f, want 5", got)
	}
	if got := percentile(sorted, 95); got != 10 {
		t.Errorf("p95 = %f, want 10", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("p50 of empty = %f", got)
	}
}
