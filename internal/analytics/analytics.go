// Package analytics answers "where does pipeline time go" and "which stages
// fail" from the recorded run events.
package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
}

// StageDuration holds duration stats for a stage.
type StageDuration struct {
	Stage string  `json:"stage"`
	Count int     `json:"count"`
	Avg   float64 `json:"avg_seconds"`
	P50   float64 `json:"p50_seconds"`
	P95   float64 `json:"p95_seconds"`
}

// StageFailureRate holds failure stats per stage.
type StageFailureRate struct {
	Stage    string  `json:"stage"`
	Entered  int     `json:"entered"`
	Failed   int     `json:"failed"`
	FailRate float64 `json:"fail_rate_pct"`
}

// timestamp formats to try when parsing timestamps from the database
var timestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, f := range timestampFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

// QueryStageDurations returns average and percentile stage durations. Each
// stage_entered event is paired with the next stage_entered (or terminal
// group event) for the same group; the gap is attributed to the earlier
// stage.
func QueryStageDurations(database DB, since string) ([]StageDuration, error) {
	query := `
		SELECT e1.group_id, e1.stage, e1.timestamp,
			(SELECT MIN(e2.timestamp) FROM run_events e2
			 WHERE e2.run_id = e1.run_id
			 AND e2.group_id = e1.group_id
			 AND e2.id > e1.id) as next_ts
		FROM run_events e1
		WHERE e1.event = 'stage_entered'`

	args := []interface{}{}
	if since != "" {
		query += ` AND e1.timestamp >= ?`
		args = append(args, since)
	}

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stage durations: %w", err)
	}
	defer rows.Close()

	stageDurations := make(map[string][]float64)
	for rows.Next() {
		var groupID, stage, startTS string
		var nextTS sql.NullString
		if err := rows.Scan(&groupID, &stage, &startTS, &nextTS); err != nil {
			return nil, fmt.Errorf("scan stage duration: %w", err)
		}
		if !nextTS.Valid {
			continue
		}
		start, err := parseTimestamp(startTS)
		if err != nil {
			continue
		}
		end, err := parseTimestamp(nextTS.String)
		if err != nil {
			continue
		}
		seconds := end.Sub(start).Seconds()
		if seconds >= 0 {
			stageDurations[stage] = append(stageDurations[stage], seconds)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []StageDuration
	for stage, durations := range stageDurations {
		sort.Float64s(durations)
		results = append(results, StageDuration{
			Stage: stage,
			Count: len(durations),
			Avg:   avg(durations),
			P50:   percentile(durations, 50),
			P95:   percentile(durations, 95),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Stage < results[j].Stage
	})
	return results, nil
}

// QueryStageFailureRates returns, per stage, how often entering it ended in
// the group failing there.
func QueryStageFailureRates(database DB, since string) ([]StageFailureRate, error) {
	query := `
		SELECT e.stage,
			SUM(CASE WHEN e.event = 'stage_entered' THEN 1 ELSE 0 END) as entered,
			SUM(CASE WHEN e.event = 'group_failed' THEN 1 ELSE 0 END) as failed
		FROM run_events e
		WHERE e.stage != ''`

	args := []interface{}{}
	if since != "" {
		query += ` AND e.timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY e.stage ORDER BY e.stage`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stage failure rates: %w", err)
	}
	defer rows.Close()

	var results []StageFailureRate
	for rows.Next() {
		var r StageFailureRate
		if err := rows.Scan(&r.Stage, &r.Entered, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan failure rate: %w", err)
		}
		if r.Entered > 0 {
			r.FailRate = round1(float64(r.Failed) / float64(r.Entered) * 100)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return round1(sum / float64(len(values)))
}

// percentile computes the p-th percentile of sorted values.
func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(p)/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return round1(sorted[idx])
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
