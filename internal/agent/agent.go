// Package agent wraps the external AI coding agent behind the two
// capabilities the pipeline needs: analyze a group, apply a fix. The agent
// is opaque; results are structured JSON or a failure.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/lucasnoah/autofix/internal/group"
)

// AnalysisResult is the agent's structured read of a group.
type AnalysisResult struct {
	Summary       string   `json:"summary"`
	RootCause     string   `json:"root_cause,omitempty"`
	Approach      string   `json:"approach,omitempty"`
	FilesToModify []string `json:"files_to_modify,omitempty"`
	Complexity    string   `json:"complexity,omitempty"` // "low", "medium", "high"
	CostUSD       float64  `json:"cost_usd,omitempty"`
}

// FixResult is the agent's report after applying changes.
type FixResult struct {
	FilesModified []string `json:"files_modified"`
	CommitMessage string   `json:"commit_message"`
	Summary       string   `json:"summary,omitempty"`
	CostUSD       float64  `json:"cost_usd,omitempty"`
}

// Client is the AI capability surface the pipeline consumes.
type Client interface {
	AnalyzeGroup(ctx context.Context, g *group.IssueGroup, worktreePath, model string) (*AnalysisResult, error)
	ApplyFix(ctx context.Context, g *group.IssueGroup, analysis *AnalysisResult, worktreePath, model string) (*FixResult, error)
}

// CmdRunner executes the agent CLI. Interface for testing.
type CmdRunner interface {
	Run(ctx context.Context, dir string, args ...string) (stdout string, stderr string, err error)
}

// ExecRunner runs the agent binary via exec.
type ExecRunner struct {
	Binary string // e.g. "claude"
}

func (r *ExecRunner) Run(ctx context.Context, dir string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, r.Binary, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return stdout.String(), stderr.String(), fmt.Errorf("%s: %s: %w", r.Binary, strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), stderr.String(), nil
}

// CLIAgent drives a headless agent CLI: one print-mode invocation per
// capability, prompt on stdin-equivalent argument, JSON on stdout.
type CLIAgent struct {
	cmd     CmdRunner
	timeout time.Duration
}

// NewCLIAgent creates a CLIAgent.
func NewCLIAgent(cmd CmdRunner, timeout time.Duration) *CLIAgent {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &CLIAgent{cmd: cmd, timeout: timeout}
}

// AnalyzeGroup asks the agent to analyze the group without changing files.
func (a *CLIAgent) AnalyzeGroup(ctx context.Context, g *group.IssueGroup, worktreePath, model string) (*AnalysisResult, error) {
	prompt, err := buildAnalyzePrompt(g, worktreePath)
	if err != nil {
		return nil, fmt.Errorf("build analyze prompt: %w", err)
	}

	out, err := a.invoke(ctx, worktreePath, prompt, model)
	if err != nil {
		return nil, fmt.Errorf("analyze group %s: %w", g.ID, err)
	}

	var result AnalysisResult
	if err := json.Unmarshal([]byte(extractJSON(out)), &result); err != nil {
		return nil, fmt.Errorf("parse analysis JSON: %w", err)
	}
	return &result, nil
}

// ApplyFix asks the agent to implement the fix in the worktree.
func (a *CLIAgent) ApplyFix(ctx context.Context, g *group.IssueGroup, analysis *AnalysisResult, worktreePath, model string) (*FixResult, error) {
	prompt, err := buildFixPrompt(g, analysis, worktreePath)
	if err != nil {
		return nil, fmt.Errorf("build fix prompt: %w", err)
	}

	out, err := a.invoke(ctx, worktreePath, prompt, model)
	if err != nil {
		return nil, fmt.Errorf("apply fix for group %s: %w", g.ID, err)
	}

	var result FixResult
	if err := json.Unmarshal([]byte(extractJSON(out)), &result); err != nil {
		return nil, fmt.Errorf("parse fix JSON: %w", err)
	}
	if result.CommitMessage == "" {
		result.CommitMessage = fmt.Sprintf("fix: %s", g.Name)
	}
	return &result, nil
}

func (a *CLIAgent) invoke(ctx context.Context, dir, prompt, model string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	args := []string{"--print", "--output-format", "json"}
	if model != "" {
		args = append(args, "--model", model)
	}
	args = append(args, prompt)

	stdout, _, err := a.cmd.Run(runCtx, dir, args...)
	if runCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("agent timed out after %s", a.timeout)
	}
	if err != nil {
		return "", err
	}
	return stdout, nil
}

// extractJSON pulls the outermost JSON object out of agent output, which
// may carry log noise before or after it.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
