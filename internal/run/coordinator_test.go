package run

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lucasnoah/autofix/internal/agent"
	"github.com/lucasnoah/autofix/internal/budget"
	"github.com/lucasnoah/autofix/internal/checks"
	"github.com/lucasnoah/autofix/internal/db"
	"github.com/lucasnoah/autofix/internal/github"
	"github.com/lucasnoah/autofix/internal/group"
	"github.com/lucasnoah/autofix/internal/pipeline"
	"github.com/lucasnoah/autofix/internal/worktree"
)

// slowWorktree tracks how many groups hold a worktree at once so the
// parallelism bound is observable.
type slowWorktree struct {
	mu      sync.Mutex
	active  int32
	maxSeen int32
}

func (s *slowWorktree) Create(ctx context.Context, branchName, baseBranch string, issues []int) (*worktree.Worktree, error) {
	cur := atomic.AddInt32(&s.active, 1)
	s.mu.Lock()
	if cur > s.maxSeen {
		s.maxSeen = cur
	}
	s.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	atomic.AddInt32(&s.active, -1)
	return &worktree.Worktree{Path: "/w/" + branchName, Branch: branchName}, nil
}

func (s *slowWorktree) ExecInWorktree(ctx context.Context, path string, args ...string) (*worktree.ExecResult, error) {
	if len(args) >= 2 && args[0] == "status" && args[1] == "--porcelain" {
		return &worktree.ExecResult{Stdout: " M a.go\n"}, nil
	}
	return &worktree.ExecResult{}, nil
}

func (s *slowWorktree) Remove(ctx context.Context, path string, force, deleteBranch bool) error {
	return nil
}

type stubAgent struct{}

func (stubAgent) AnalyzeGroup(ctx context.Context, g *group.IssueGroup, worktreePath, model string) (*agent.AnalysisResult, error) {
	return &agent.AnalysisResult{Summary: "ok"}, nil
}

func (stubAgent) ApplyFix(ctx context.Context, g *group.IssueGroup, analysis *agent.AnalysisResult, worktreePath, model string) (*agent.FixResult, error) {
	return &agent.FixResult{FilesModified: []string{"a.go"}, CommitMessage: "fix"}, nil
}

type stubChecker struct {
	failFor map[string]bool // worktree path suffixes that should fail
}

func (s stubChecker) RunChecks(ctx context.Context, opts checks.RunOpts) (*checks.CheckResult, error) {
	if s.failFor[filepath.Base(opts.WorktreePath)] {
		return &checks.CheckResult{
			Passed:  false,
			Results: []checks.RunResult{{Check: checks.Test, Passed: false, Status: "failed"}},
		}, nil
	}
	return &checks.CheckResult{Passed: true}, nil
}

type stubInstaller struct{}

func (stubInstaller) Install(ctx context.Context, dir string) error { return nil }

type stubHost struct {
	mu   sync.Mutex
	next int
}

func (s *stubHost) CreatePRFromIssues(issues []group.Issue, branchName, baseBranch string) (*github.PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return &github.PullRequest{Number: s.next, URL: fmt.Sprintf("https://github.com/acme/repo/pull/%d", s.next)}, nil
}

func (s *stubHost) MarkFixed(issueNumber, prNumber int, prURL string) error { return nil }

func makeGroups(n int) []*group.IssueGroup {
	groups := make([]*group.IssueGroup, n)
	for i := range groups {
		key := fmt.Sprintf("g%d", i)
		groups[i] = &group.IssueGroup{
			ID:         "label-" + key,
			Name:       key,
			BranchName: "autofix/label-" + key,
			Issues:     []group.Issue{{Number: 100 + i, Title: key}},
		}
	}
	return groups
}

func newTestPipeline(wt pipeline.WorktreeManager, checker pipeline.CheckRunner) *pipeline.Pipeline {
	tracker := budget.NewTracker(budget.Config{
		PreferredModel: "opus", FallbackModel: "sonnet", CheapModel: "haiku",
	})
	return pipeline.New(wt, stubAgent{}, checker, stubInstaller{}, &stubHost{}, tracker, pipeline.Config{BaseBranch: "main"})
}

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

func TestRun_AllGroupsProcessed(t *testing.T) {
	wt := &slowWorktree{}
	c := NewCoordinator(newTestPipeline(wt, stubChecker{}), nil, 2, false, nil)

	res, err := c.Run(context.Background(), makeGroups(5))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TotalGroups != 5 || res.TotalFailed != 0 {
		t.Errorf("totals = %d groups / %d failed", res.TotalGroups, res.TotalFailed)
	}
	if res.TotalPRs != 5 {
		t.Errorf("TotalPRs = %d, want 5", res.TotalPRs)
	}
	for i, g := range res.Groups {
		if g == nil {
			t.Fatalf("result %d missing", i)
		}
		if g.Status != pipeline.StatusCompleted {
			t.Errorf("group %s status = %s: %s", g.GroupID, g.Status, g.Error)
		}
	}
}

func TestRun_BoundedParallelism(t *testing.T) {
	wt := &slowWorktree{}
	c := NewCoordinator(newTestPipeline(wt, stubChecker{}), nil, 2, false, nil)

	if _, err := c.Run(context.Background(), makeGroups(6)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if wt.maxSeen > 2 {
		t.Errorf("observed %d concurrent worktree creations, limit is 2", wt.maxSeen)
	}
	if wt.maxSeen < 2 {
		t.Logf("parallelism under the limit (%d); not an error but unexpected", wt.maxSeen)
	}
}

func TestRun_FailuresDoNotFailTheRun(t *testing.T) {
	wt := &slowWorktree{}
	checker := stubChecker{failFor: map[string]bool{
		"label-g1": true,
		"label-g3": true,
	}}
	c := NewCoordinator(newTestPipeline(wt, checker), nil, 3, false, nil)

	res, err := c.Run(context.Background(), makeGroups(4))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TotalFailed != 2 {
		t.Errorf("TotalFailed = %d, want 2", res.TotalFailed)
	}
	if res.TotalPRs != 2 {
		t.Errorf("TotalPRs = %d, want 2", res.TotalPRs)
	}
}

func TestRun_RecordsHistory(t *testing.T) {
	d := openTestDB(t)
	wt := &slowWorktree{}
	checker := stubChecker{failFor: map[string]bool{"label-g0": true}}
	c := NewCoordinator(newTestPipeline(wt, checker), d, 2, true, nil)

	res, err := c.Run(context.Background(), makeGroups(2))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Dry run skips ai_fix, so checks run against an unverified worktree and
	// the failing group still fails there.
	if res.TotalFailed != 1 {
		t.Errorf("TotalFailed = %d, want 1", res.TotalFailed)
	}

	latest, err := d.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest == nil {
		t.Fatal("no run recorded")
	}
	if !latest.DryRun {
		t.Error("dry_run not recorded")
	}
	if latest.FinishedAt == "" {
		t.Error("run never finished")
	}
	if latest.TotalGroups != 2 || latest.TotalFailed != 1 {
		t.Errorf("recorded totals = %d/%d", latest.TotalGroups, latest.TotalFailed)
	}
	if latest.SummaryJSON == "" {
		t.Error("summary JSON not stored")
	}

	events, err := d.GetRunEvents(latest.RunID)
	if err != nil {
		t.Fatalf("GetRunEvents: %v", err)
	}
	var entered, completed, failed int
	for _, e := range events {
		switch e.Event {
		case "stage_entered":
			entered++
		case "group_completed":
			completed++
		case "group_failed":
			failed++
		}
	}
	if entered == 0 {
		t.Error("no stage_entered events recorded")
	}
	if completed != 1 || failed != 1 {
		t.Errorf("terminal events = %d completed / %d failed, want 1/1", completed, failed)
	}
}
