package report

import (
	"time"

	"github.com/lucasnoah/autofix/internal/pipeline"
)

// Stats reduces a batch of group results.
type Stats struct {
	ByStatus      map[pipeline.GroupStatus]int `json:"by_status"`
	AvgDurationMs int64                        `json:"avg_duration_ms"`
	ChecksRun     int                          `json:"checks_run"`
	ChecksPassed  int                          `json:"checks_passed"`
}

// AutofixResult is the whole-run record: every group result plus derived
// totals.
type AutofixResult struct {
	Groups      []*pipeline.GroupResult `json:"groups"`
	TotalGroups int                     `json:"total_groups"`
	TotalIssues int                     `json:"total_issues"`
	TotalPRs    int                     `json:"total_prs"`
	TotalFailed int                     `json:"total_failed"`
	DurationMs  int64                   `json:"duration_ms"`
	DryRun      bool                    `json:"dry_run"`
	Stats       Stats                   `json:"stats"`
}

// allStatuses is the fixed enum stats are counted over; statuses with no
// groups still appear with a zero count.
var allStatuses = []pipeline.GroupStatus{
	pipeline.StatusPending,
	pipeline.StatusProcessing,
	pipeline.StatusChecksRunning,
	pipeline.StatusPRCreating,
	pipeline.StatusCompleted,
	pipeline.StatusFailed,
}

// CalculateStats reduces group results into counts by status, average
// duration, and check totals.
func CalculateStats(groups []*pipeline.GroupResult) Stats {
	stats := Stats{ByStatus: make(map[pipeline.GroupStatus]int, len(allStatuses))}
	for _, s := range allStatuses {
		stats.ByStatus[s] = 0
	}

	var totalDuration int64
	for _, g := range groups {
		stats.ByStatus[g.Status]++
		totalDuration += g.DurationMs
		if g.Checks != nil {
			stats.ChecksRun += len(g.Checks.Results)
			for _, r := range g.Checks.Results {
				if r.Passed {
					stats.ChecksPassed++
				}
			}
		}
	}
	if len(groups) > 0 {
		stats.AvgDurationMs = totalDuration / int64(len(groups))
	}
	return stats
}

// NewAutofixResult derives the run totals from a batch of group results.
func NewAutofixResult(groups []*pipeline.GroupResult, dryRun bool, startTime time.Time) *AutofixResult {
	res := &AutofixResult{
		Groups:      groups,
		TotalGroups: len(groups),
		DryRun:      dryRun,
		DurationMs:  time.Since(startTime).Milliseconds(),
		Stats:       CalculateStats(groups),
	}
	for _, g := range groups {
		res.TotalIssues += g.IssueCount
		if g.PR != nil {
			res.TotalPRs++
		}
		if g.Status == pipeline.StatusFailed {
			res.TotalFailed++
		}
	}
	return res
}

// SuccessRate is the fraction of groups that completed, in [0,1].
func (r *AutofixResult) SuccessRate() float64 {
	if r.TotalGroups == 0 {
		return 0
	}
	return float64(r.TotalGroups-r.TotalFailed) / float64(r.TotalGroups)
}
