// Package pipeline drives one issue group through the fixed stage sequence
// worktree → analysis → fix → install → checks → commit → PR → issue update
// → cleanup. Errors never cross ProcessGroup's boundary: every outcome is a
// GroupResult, and cleanup is attempted on both paths.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/autofix/internal/agent"
	"github.com/lucasnoah/autofix/internal/budget"
	"github.com/lucasnoah/autofix/internal/checks"
	"github.com/lucasnoah/autofix/internal/github"
	"github.com/lucasnoah/autofix/internal/group"
	"github.com/lucasnoah/autofix/internal/worktree"
)

// WorktreeManager is the workspace capability the pipeline consumes.
type WorktreeManager interface {
	Create(ctx context.Context, branchName, baseBranch string, issues []int) (*worktree.Worktree, error)
	ExecInWorktree(ctx context.Context, path string, args ...string) (*worktree.ExecResult, error)
	Remove(ctx context.Context, path string, force, deleteBranch bool) error
}

// CheckRunner is the verification capability.
type CheckRunner interface {
	RunChecks(ctx context.Context, opts checks.RunOpts) (*checks.CheckResult, error)
}

// DepInstaller installs a worktree's dependencies.
type DepInstaller interface {
	Install(ctx context.Context, dir string) error
}

// Host is the issue/PR host capability.
type Host interface {
	CreatePRFromIssues(issues []group.Issue, branchName, baseBranch string) (*github.PullRequest, error)
	MarkFixed(issueNumber, prNumber int, prURL string) error
}

// StageCallback observes every stage transition, including entry into done.
type StageCallback func(stage Stage, pc *Context)

// Config holds per-run pipeline settings.
type Config struct {
	BaseBranch string
	RepoPath   string
	DryRun     bool
	MaxRetries int
	// Per-call spend estimates used for the CanSpend guard before agent
	// invocations; actual reported cost is what gets recorded.
	AnalysisCostEstimate float64
	FixCostEstimate      float64
}

// Pipeline processes one group at a time. Instances are cheap; the
// coordinator builds one per concurrent slot sharing the same collaborators.
type Pipeline struct {
	wt        WorktreeManager
	agent     agent.Client
	checker   CheckRunner
	installer DepInstaller
	host      Host
	budget    *budget.Tracker
	cfg       Config
	onStage   StageCallback
	log       *zap.Logger
}

// New creates a pipeline. All collaborators are injected; there are no
// package-level singletons.
func New(wt WorktreeManager, ai agent.Client, checker CheckRunner, installer DepInstaller, host Host, tracker *budget.Tracker, cfg Config) *Pipeline {
	return &Pipeline{
		wt:        wt,
		agent:     ai,
		checker:   checker,
		installer: installer,
		host:      host,
		budget:    tracker,
		cfg:       cfg,
		log:       zap.NewNop(),
	}
}

// SetOnStageChange registers the stage-transition observer.
func (p *Pipeline) SetOnStageChange(cb StageCallback) {
	p.onStage = cb
}

// SetLogger sets the structured logger.
func (p *Pipeline) SetLogger(log *zap.Logger) {
	if log != nil {
		p.log = log
	}
}

type stageFn struct {
	stage Stage
	run   func(ctx context.Context, pc *Context) error
}

// ProcessGroup drives the group to a terminal result. It never returns an
// error; failures are carried inside the GroupResult.
func (p *Pipeline) ProcessGroup(ctx context.Context, g *group.IssueGroup) *GroupResult {
	pc := &Context{
		Stage:      StageInit,
		Group:      g,
		Attempt:    1,
		MaxRetries: p.cfg.MaxRetries,
		DryRun:     p.cfg.DryRun,
		StartedAt:  time.Now(),
	}

	stages := []stageFn{
		{StageInit, p.stageInit},
		{StageWorktreeCreate, p.stageWorktreeCreate},
		{StageAIAnalysis, p.stageAIAnalysis},
		{StageAIFix, p.stageAIFix},
		{StageInstallDeps, p.stageInstallDeps},
		{StageChecks, p.stageChecks},
		{StageCommit, p.stageCommit},
		{StagePRCreate, p.stagePRCreate},
		{StageIssueUpdate, p.stageIssueUpdate},
	}

	for _, s := range stages {
		p.enterStage(s.stage, pc)

		if err := ctx.Err(); err != nil {
			return p.fail(ctx, pc, fmt.Errorf("canceled: %w", err))
		}
		if pc.DryRun && dryRunSkipped[s.stage] {
			p.log.Debug("dry-run: stage body skipped",
				zap.String("group", g.ID), zap.String("stage", string(s.stage)))
			continue
		}
		if err := s.run(ctx, pc); err != nil {
			return p.fail(ctx, pc, err)
		}
	}

	p.enterStage(StageCleanup, pc)
	// Completed: the worktree goes, the branch stays behind the open PR.
	p.cleanup(ctx, pc, false)

	p.enterStage(StageDone, pc)
	return p.result(pc, StatusCompleted)
}

func (p *Pipeline) enterStage(s Stage, pc *Context) {
	pc.Stage = s
	p.log.Debug("stage", zap.String("group", pc.Group.ID), zap.String("stage", string(s)))
	if p.onStage != nil {
		p.onStage(s, pc)
	}
}

// fail records the stage error, runs cleanup (deleting the abandoned
// branch), and produces the failed result.
func (p *Pipeline) fail(ctx context.Context, pc *Context, err error) *GroupResult {
	pc.Errors = append(pc.Errors, StageError{
		Stage:       pc.Stage,
		Message:     err.Error(),
		Timestamp:   time.Now(),
		Recoverable: recoverableStages[pc.Stage],
	})
	p.log.Warn("group failed",
		zap.String("group", pc.Group.ID),
		zap.String("stage", string(pc.Stage)),
		zap.Error(err))

	p.enterStage(StageCleanup, pc)
	p.cleanup(ctx, pc, true)

	return p.result(pc, StatusFailed)
}

// cleanup removes the worktree. Its own failures never escalate: they are
// recorded as warnings so they cannot mask the primary failure.
func (p *Pipeline) cleanup(ctx context.Context, pc *Context, deleteBranch bool) {
	if pc.Worktree == nil {
		return
	}
	// Cleanup still runs when ctx is canceled.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
	defer cancel()

	if err := p.wt.Remove(cleanupCtx, pc.Worktree.Path, true, deleteBranch); err != nil {
		pc.CleanupWarnings = append(pc.CleanupWarnings, err.Error())
		p.log.Warn("cleanup failed",
			zap.String("group", pc.Group.ID),
			zap.String("path", pc.Worktree.Path),
			zap.Error(err))
	}
}

func (p *Pipeline) result(pc *Context, status GroupStatus) *GroupResult {
	now := time.Now()
	res := &GroupResult{
		GroupID:            pc.Group.ID,
		GroupName:          pc.Group.Name,
		Status:             status,
		Attempts:           pc.Attempt,
		IssueCount:         len(pc.Group.Issues),
		StartedAt:          pc.StartedAt,
		FinishedAt:         now,
		DurationMs:         now.Sub(pc.StartedAt).Milliseconds(),
		PR:                 pc.PR,
		Worktree:           pc.Worktree,
		Checks:             pc.CheckResult,
		ErrorDetails:       pc.errorDetails(),
		CleanupWarnings:    pc.CleanupWarnings,
		UpdatedIssues:      pc.UpdatedIssues,
		FailedIssueUpdates: pc.FailedIssueUpdates,
	}
	if len(pc.Errors) > 0 {
		res.Error = pc.Errors[len(pc.Errors)-1].Message
	}
	return res
}

// --- Stage bodies ---

func (p *Pipeline) stageInit(ctx context.Context, pc *Context) error {
	if len(pc.Group.Issues) == 0 {
		return fmt.Errorf("group %s has no issues", pc.Group.ID)
	}
	if pc.Group.BranchName == "" {
		return fmt.Errorf("group %s has no branch name", pc.Group.ID)
	}
	return nil
}

func (p *Pipeline) stageWorktreeCreate(ctx context.Context, pc *Context) error {
	wt, err := p.wt.Create(ctx, pc.Group.BranchName, p.cfg.BaseBranch, pc.Group.IssueNumbers())
	if err != nil {
		return fmt.Errorf("create worktree: %w", err)
	}
	pc.Worktree = wt
	return nil
}

func (p *Pipeline) stageAIAnalysis(ctx context.Context, pc *Context) error {
	if pc.Worktree == nil {
		return fmt.Errorf("no worktree available for analysis")
	}

	model, err := p.reserveSpend(pc, p.cfg.AnalysisCostEstimate)
	if err != nil {
		return err
	}

	analysis, err := p.agent.AnalyzeGroup(ctx, pc.Group, pc.Worktree.Path, model)
	if err != nil {
		return fmt.Errorf("AI analysis: %w", err)
	}
	p.recordSpend(pc, analysis.CostUSD, p.cfg.AnalysisCostEstimate)
	pc.Analysis = analysis
	return nil
}

func (p *Pipeline) stageAIFix(ctx context.Context, pc *Context) error {
	if pc.Worktree == nil || pc.Analysis == nil {
		return fmt.Errorf("fix requires a worktree and an analysis")
	}

	model, err := p.reserveSpend(pc, p.cfg.FixCostEstimate)
	if err != nil {
		return err
	}

	fix, err := p.agent.ApplyFix(ctx, pc.Group, pc.Analysis, pc.Worktree.Path, model)
	if err != nil {
		return fmt.Errorf("AI fix: %w", err)
	}
	p.recordSpend(pc, fix.CostUSD, p.cfg.FixCostEstimate)
	pc.Fix = fix

	// The agent's word is not enough: verify the worktree actually changed.
	out, execErr := p.wt.ExecInWorktree(ctx, pc.Worktree.Path, "status", "--porcelain")
	if execErr != nil {
		return fmt.Errorf("verify fix: %w", execErr)
	}
	if strings.TrimSpace(out.Stdout) == "" {
		return fmt.Errorf("AI reported success but no files were actually modified")
	}
	return nil
}

func (p *Pipeline) stageInstallDeps(ctx context.Context, pc *Context) error {
	if err := p.installer.Install(ctx, pc.Worktree.Path); err != nil {
		return fmt.Errorf("install dependencies: %w", err)
	}
	return nil
}

func (p *Pipeline) stageChecks(ctx context.Context, pc *Context) error {
	result, err := p.checker.RunChecks(ctx, checks.RunOpts{
		WorktreePath: pc.Worktree.Path,
		Checks:       checks.DefaultChecks,
		FailFast:     true,
	})
	if err != nil {
		return fmt.Errorf("run checks: %w", err)
	}
	pc.CheckResult = result
	if !result.Passed {
		return fmt.Errorf("%s", FormatCheckFailure(result))
	}
	return nil
}

func (p *Pipeline) stageCommit(ctx context.Context, pc *Context) error {
	message := ""
	if pc.Fix != nil {
		message = pc.Fix.CommitMessage
	}
	if message == "" {
		message = fmt.Sprintf("fix: %s", pc.Group.Name)
	}

	if _, err := p.wt.ExecInWorktree(ctx, pc.Worktree.Path, "add", "-A"); err != nil {
		return fmt.Errorf("stage changes: %w", err)
	}
	// The message travels as a single argv element, so shell
	// interpretation is impossible by construction.
	if _, err := p.wt.ExecInWorktree(ctx, pc.Worktree.Path, "commit", "-m", message); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	// Push only after the commit landed.
	if _, err := p.wt.ExecInWorktree(ctx, pc.Worktree.Path, "push", "-u", "origin", pc.Worktree.Branch); err != nil {
		return fmt.Errorf("push branch %s: %w", pc.Worktree.Branch, err)
	}
	return nil
}

func (p *Pipeline) stagePRCreate(ctx context.Context, pc *Context) error {
	pr, err := p.host.CreatePRFromIssues(pc.Group.Issues, pc.Worktree.Branch, p.cfg.BaseBranch)
	if err != nil {
		return fmt.Errorf("create PR: %w", err)
	}
	pc.PR = pr
	return nil
}

// stageIssueUpdate marks every issue fixed. Per-issue failures do not stop
// the loop; they are collected and raised together afterwards.
func (p *Pipeline) stageIssueUpdate(ctx context.Context, pc *Context) error {
	if pc.PR == nil {
		return fmt.Errorf("no PR to reference")
	}
	for _, iss := range pc.Group.Issues {
		if err := p.host.MarkFixed(iss.Number, pc.PR.Number, pc.PR.URL); err != nil {
			pc.FailedIssueUpdates = append(pc.FailedIssueUpdates, iss.Number)
			p.log.Warn("issue update failed",
				zap.String("group", pc.Group.ID),
				zap.Int("issue", iss.Number),
				zap.Error(err))
			continue
		}
		pc.UpdatedIssues = append(pc.UpdatedIssues, iss.Number)
	}
	if len(pc.FailedIssueUpdates) > 0 {
		return fmt.Errorf("failed to update %d of %d issues: %v",
			len(pc.FailedIssueUpdates), len(pc.Group.Issues), pc.FailedIssueUpdates)
	}
	return nil
}

// reserveSpend picks the model tier for the next agent call and enforces
// the budget via CanSpend; the tracker itself never blocks.
func (p *Pipeline) reserveSpend(pc *Context, estimate float64) (string, error) {
	if p.budget == nil {
		return "", nil
	}
	if estimate > 0 && !p.budget.CanSpend(pc.Group.ID, estimate) {
		return "", fmt.Errorf("budget exhausted for group %s", pc.Group.ID)
	}
	return p.budget.CurrentModel(), nil
}

// recordSpend adds the agent-reported cost, falling back to the estimate
// when the agent did not report one.
func (p *Pipeline) recordSpend(pc *Context, reported, estimate float64) {
	if p.budget == nil {
		return
	}
	cost := reported
	if cost <= 0 {
		cost = estimate
	}
	if cost > 0 {
		p.budget.AddCost(pc.Group.ID, cost)
	}
}

const maxCheckOutput = 500

// FormatCheckFailure renders the aggregated diagnostic for a failed
// verification pass: one [check] block per failing check with its status,
// error text, and up to 500 characters of stderr (stdout when stderr is
// empty). Passing checks never appear.
func FormatCheckFailure(result *checks.CheckResult) string {
	failing := 0
	for _, r := range result.Results {
		if !r.Passed {
			failing++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d check(s) failed:", failing)
	for _, r := range result.Results {
		if r.Passed {
			continue
		}
		fmt.Fprintf(&b, "\n[%s] %s", r.Check, r.Status)
		if r.Error != "" {
			fmt.Fprintf(&b, ": %s", r.Error)
		}
		out := r.Stderr
		if out == "" {
			out = r.Stdout
		}
		if out != "" {
			b.WriteString("\n")
			if len(out) > maxCheckOutput {
				b.WriteString(out[:maxCheckOutput])
				b.WriteString("...(truncated)")
			} else {
				b.WriteString(out)
			}
		}
	}
	return b.String()
}
