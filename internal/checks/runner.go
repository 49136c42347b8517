package checks

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CheckType names a verification check. The pipeline runs the fixed set
// Lint, Typecheck, Test in that order.
type CheckType string

const (
	Lint      CheckType = "lint"
	Typecheck CheckType = "typecheck"
	Test      CheckType = "test"
)

// DefaultChecks is the fixed ordered set the pipeline verifies with.
var DefaultChecks = []CheckType{Lint, Typecheck, Test}

// RunResult holds the outcome of one check.
type RunResult struct {
	Check      CheckType `json:"check"`
	Passed     bool      `json:"passed"`
	Status     string    `json:"status"` // "passed", "failed", "timeout", "skipped"
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Stdout     string    `json:"stdout,omitempty"`
	Stderr     string    `json:"stderr,omitempty"`
}

// CheckResult aggregates one verification pass over a worktree.
type CheckResult struct {
	Passed          bool        `json:"passed"`
	Results         []RunResult `json:"results"`
	TotalDurationMs int64       `json:"total_duration_ms"`
}

// RunOpts configures one verification pass.
type RunOpts struct {
	WorktreePath string
	Checks       []CheckType
	FailFast     bool
}

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, command string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// Runner executes verification checks inside a worktree.
type Runner struct {
	cmd      CommandRunner
	commands map[CheckType]string
	timeout  time.Duration
}

// NewRunner creates a Runner. commands maps each check to the shell command
// that runs it; checks without a command are reported as skipped-pass.
func NewRunner(cmd CommandRunner, commands map[CheckType]string, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Runner{cmd: cmd, commands: commands, timeout: timeout}
}

// RunChecks executes the requested checks in order. With FailFast set, the
// first failure stops the pass and the remaining checks are not run.
func (r *Runner) RunChecks(ctx context.Context, opts RunOpts) (*CheckResult, error) {
	if opts.WorktreePath == "" {
		return nil, fmt.Errorf("worktree path is required")
	}
	checks := opts.Checks
	if len(checks) == 0 {
		checks = DefaultChecks
	}

	result := &CheckResult{Passed: true}
	start := time.Now()

	for _, check := range checks {
		rr := r.runOne(ctx, opts.WorktreePath, check)
		result.Results = append(result.Results, rr)
		if !rr.Passed {
			result.Passed = false
			if opts.FailFast {
				break
			}
		}
	}

	result.TotalDurationMs = time.Since(start).Milliseconds()
	return result, nil
}

func (r *Runner) runOne(ctx context.Context, dir string, check CheckType) RunResult {
	command, ok := r.commands[check]
	if !ok || command == "" {
		return RunResult{Check: check, Passed: true, Status: "skipped"}
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, exitCode, err := r.cmd.Run(runCtx, dir, command)
	durationMs := time.Since(start).Milliseconds()

	rr := RunResult{
		Check:      check,
		DurationMs: durationMs,
		Stdout:     stdout,
		Stderr:     stderr,
	}

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		rr.Status = "timeout"
		rr.Error = fmt.Sprintf("timeout after %s", r.timeout)
	case err != nil:
		rr.Status = "failed"
		rr.Error = err.Error()
	case exitCode != 0:
		rr.Status = "failed"
		rr.Error = fmt.Sprintf("exit code %d", exitCode)
	default:
		rr.Status = "passed"
		rr.Passed = true
	}
	return rr
}
