package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/lucasnoah/autofix/internal/agent"
	"github.com/lucasnoah/autofix/internal/checks"
	"github.com/lucasnoah/autofix/internal/github"
	"github.com/lucasnoah/autofix/internal/group"
	"github.com/lucasnoah/autofix/internal/worktree"
)

// Stage is one step of the fixed processing sequence.
type Stage string

const (
	StageInit           Stage = "init"
	StageWorktreeCreate Stage = "worktree_create"
	StageAIAnalysis     Stage = "ai_analysis"
	StageAIFix          Stage = "ai_fix"
	StageInstallDeps    Stage = "install_deps"
	StageChecks         Stage = "checks"
	StageCommit         Stage = "commit"
	StagePRCreate       Stage = "pr_create"
	StageIssueUpdate    Stage = "issue_update"
	StageCleanup        Stage = "cleanup"
	StageDone           Stage = "done"
)

// recoverableStages classifies stages where a different attempt might
// succeed. Reporting only; retry is the coordinator's decision.
var recoverableStages = map[Stage]bool{
	StageChecks: true,
	StageAIFix:  true,
}

// dryRunSkipped is the exact set of stages whose side-effecting body is not
// executed in dry-run mode. The stages are still entered so observers see
// every transition.
var dryRunSkipped = map[Stage]bool{
	StageAIFix:       true,
	StageCommit:      true,
	StagePRCreate:    true,
	StageIssueUpdate: true,
}

// StageError records one stage failure. Appended, never removed.
type StageError struct {
	Stage       Stage     `json:"stage"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	Recoverable bool      `json:"recoverable"`
}

// GroupStatus is the lifecycle status of one group.
type GroupStatus string

const (
	StatusPending       GroupStatus = "pending"
	StatusProcessing    GroupStatus = "processing"
	StatusChecksRunning GroupStatus = "checks_running"
	StatusPRCreating    GroupStatus = "pr_creating"
	StatusCompleted     GroupStatus = "completed"
	StatusFailed        GroupStatus = "failed"
)

// Context is the per-group mutable state threaded through all stages. Owned
// by exactly one pipeline run; discarded after the GroupResult is built.
type Context struct {
	Stage      Stage
	Group      *group.IssueGroup
	Attempt    int
	MaxRetries int
	DryRun     bool
	StartedAt  time.Time
	Errors     []StageError

	Worktree    *worktree.Worktree
	Analysis    *agent.AnalysisResult
	Fix         *agent.FixResult
	CheckResult *checks.CheckResult
	PR          *github.PullRequest

	CleanupWarnings    []string
	UpdatedIssues      []int
	FailedIssueUpdates []int
}

// GroupResult is the terminal record for one group. Immutable once built.
type GroupResult struct {
	GroupID            string              `json:"group_id"`
	GroupName          string              `json:"group_name"`
	Status             GroupStatus         `json:"status"`
	Attempts           int                 `json:"attempts"`
	IssueCount         int                 `json:"issue_count"`
	StartedAt          time.Time           `json:"started_at"`
	FinishedAt         time.Time           `json:"finished_at"`
	DurationMs         int64               `json:"duration_ms"`
	PR                 *github.PullRequest `json:"pr,omitempty"`
	Worktree           *worktree.Worktree  `json:"worktree,omitempty"`
	Checks             *checks.CheckResult `json:"checks,omitempty"`
	Error              string              `json:"error,omitempty"`
	ErrorDetails       string              `json:"error_details,omitempty"`
	CleanupWarnings    []string            `json:"cleanup_warnings,omitempty"`
	UpdatedIssues      []int               `json:"updated_issues,omitempty"`
	FailedIssueUpdates []int               `json:"failed_issue_updates,omitempty"`
}

// errorDetails joins every recorded stage error into the human trail
// surfaced on the result, one "[stage] message" line per error.
func (c *Context) errorDetails() string {
	if len(c.Errors) == 0 {
		return ""
	}
	lines := make([]string, len(c.Errors))
	for i, e := range c.Errors {
		lines[i] = fmt.Sprintf("[%s] %s", e.Stage, e.Message)
	}
	return strings.Join(lines, "\n")
}
