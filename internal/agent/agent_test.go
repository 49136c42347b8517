package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lucasnoah/autofix/internal/group"
)

type agentCall struct {
	dir  string
	args []string
}

type mockRunner struct {
	stdout string
	err    error
	calls  []agentCall
}

func (m *mockRunner) Run(ctx context.Context, dir string, args ...string) (string, string, error) {
	m.calls = append(m.calls, agentCall{dir: dir, args: args})
	return m.stdout, "", m.err
}

func testGroup() *group.IssueGroup {
	return &group.IssueGroup{
		ID:   "label-bug",
		Name: "label: bug (2 issues)",
		Issues: []group.Issue{
			{Number: 1, Title: "crash", Body: "stack trace here"},
			{Number: 2, Title: "hang"},
		},
		Files: []string{"parser.go"},
	}
}

func TestAnalyzeGroup(t *testing.T) {
	runner := &mockRunner{stdout: `Some log noise
{"summary": "null deref", "root_cause": "missing guard", "complexity": "low", "cost_usd": 0.3}
trailing noise`}
	a := NewCLIAgent(runner, time.Minute)

	res, err := a.AnalyzeGroup(context.Background(), testGroup(), "/w/x", "opus")
	if err != nil {
		t.Fatalf("AnalyzeGroup: %v", err)
	}
	if res.Summary != "null deref" || res.RootCause != "missing guard" {
		t.Errorf("result = %+v", res)
	}
	if res.CostUSD != 0.3 {
		t.Errorf("CostUSD = %f", res.CostUSD)
	}

	call := runner.calls[0]
	if call.dir != "/w/x" {
		t.Errorf("ran in %q, want the worktree", call.dir)
	}
	joined := strings.Join(call.args, " ")
	if !strings.Contains(joined, "--print") || !strings.Contains(joined, "--output-format json") {
		t.Errorf("args = %v", call.args)
	}
	if !strings.Contains(joined, "--model opus") {
		t.Errorf("model not passed: %v", call.args)
	}

	prompt := call.args[len(call.args)-1]
	if !strings.Contains(prompt, "#1: crash") || !strings.Contains(prompt, "stack trace here") {
		t.Errorf("prompt missing issue content: %q", prompt)
	}
	if !strings.Contains(prompt, "- parser.go") {
		t.Errorf("prompt missing related files: %q", prompt)
	}
	if !strings.Contains(prompt, "Do not modify any files") {
		t.Errorf("analyze prompt must forbid edits: %q", prompt)
	}
}

func TestAnalyzeGroup_NoModel(t *testing.T) {
	runner := &mockRunner{stdout: `{"summary": "x"}`}
	a := NewCLIAgent(runner, time.Minute)

	if _, err := a.AnalyzeGroup(context.Background(), testGroup(), "/w/x", ""); err != nil {
		t.Fatalf("AnalyzeGroup: %v", err)
	}
	joined := strings.Join(runner.calls[0].args, " ")
	if strings.Contains(joined, "--model") {
		t.Errorf("empty model should be omitted: %v", runner.calls[0].args)
	}
}

func TestAnalyzeGroup_BadJSON(t *testing.T) {
	runner := &mockRunner{stdout: "no json at all"}
	a := NewCLIAgent(runner, time.Minute)

	if _, err := a.AnalyzeGroup(context.Background(), testGroup(), "/w/x", "opus"); err == nil {
		t.Error("expected parse error")
	}
}

func TestAnalyzeGroup_RunnerError(t *testing.T) {
	runner := &mockRunner{err: fmt.Errorf("claude: exit status 1")}
	a := NewCLIAgent(runner, time.Minute)

	_, err := a.AnalyzeGroup(context.Background(), testGroup(), "/w/x", "opus")
	if err == nil || !strings.Contains(err.Error(), "analyze group label-bug") {
		t.Errorf("error = %v", err)
	}
}

func TestApplyFix(t *testing.T) {
	runner := &mockRunner{stdout: `{"files_modified": ["parser.go"], "commit_message": "fix: guard nil node (#1, #2)", "cost_usd": 1.2}`}
	a := NewCLIAgent(runner, time.Minute)

	analysis := &AnalysisResult{Summary: "null deref", Approach: "add a guard"}
	res, err := a.ApplyFix(context.Background(), testGroup(), analysis, "/w/x", "sonnet")
	if err != nil {
		t.Fatalf("ApplyFix: %v", err)
	}
	if len(res.FilesModified) != 1 || res.FilesModified[0] != "parser.go" {
		t.Errorf("FilesModified = %v", res.FilesModified)
	}
	if res.CommitMessage != "fix: guard nil node (#1, #2)" {
		t.Errorf("CommitMessage = %q", res.CommitMessage)
	}

	prompt := runner.calls[0].args[len(runner.calls[0].args)-1]
	if !strings.Contains(prompt, "null deref") || !strings.Contains(prompt, "Approach: add a guard") {
		t.Errorf("prompt missing analysis: %q", prompt)
	}
	if !strings.Contains(prompt, "#1, #2") {
		t.Errorf("prompt missing issue refs: %q", prompt)
	}
}

func TestApplyFix_DefaultCommitMessage(t *testing.T) {
	runner := &mockRunner{stdout: `{"files_modified": ["a.go"]}`}
	a := NewCLIAgent(runner, time.Minute)

	res, err := a.ApplyFix(context.Background(), testGroup(), &AnalysisResult{Summary: "x"}, "/w/x", "")
	if err != nil {
		t.Fatalf("ApplyFix: %v", err)
	}
	if res.CommitMessage != "fix: label: bug (2 issues)" {
		t.Errorf("CommitMessage = %q, want derived fallback", res.CommitMessage)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{"log line\n{\"a\": 1}\ndone", `{"a": 1}`},
		{`prefix {"a": {"nested": 2}} suffix`, `{"a": {"nested": 2}}`},
		{"no braces", "no braces"},
	}
	for _, tt := range tests {
		if got := extractJSON(tt.in); got != tt.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
