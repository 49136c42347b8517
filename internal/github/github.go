// Package github talks to the issue/PR host through the gh CLI. It owns the
// operations the pipeline consumes: fetch issues, open a PR for a group,
// mark issues fixed.
package github

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/lucasnoah/autofix/internal/group"
)

// CmdRunner provides gh command execution. Interface for testing.
type CmdRunner interface {
	Run(args ...string) (string, error)
}

// ExecRunner runs gh commands via exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(args ...string) (string, error) {
	cmd := exec.Command("gh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("gh %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// PullRequest is a created pull request.
type PullRequest struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Branch string `json:"branch"`
}

// Client provides GitHub operations.
type Client struct {
	cmd CmdRunner
}

// NewClient creates a GitHub client.
func NewClient(cmd CmdRunner) *Client {
	return &Client{cmd: cmd}
}

// rawIssue mirrors the gh issue list JSON fields.
type rawIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

// FetchOpenIssues lists open issues, optionally filtered by label, as the
// intake for grouping. Priority and component are derived from labels.
func (c *Client) FetchOpenIssues(label string, limit int) ([]group.Issue, error) {
	if limit <= 0 {
		limit = 100
	}
	args := []string{"issue", "list", "--state", "open", "--limit", fmt.Sprintf("%d", limit), "--json", "number,title,body,labels"}
	if label != "" {
		args = append(args, "--label", label)
	}
	out, err := c.cmd.Run(args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}

	var raw []rawIssue
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("parse issue list JSON: %w", err)
	}

	issues := make([]group.Issue, 0, len(raw))
	for _, r := range raw {
		iss := group.Issue{
			Number: r.Number,
			Title:  r.Title,
			Body:   r.Body,
		}
		for _, l := range r.Labels {
			iss.Labels = append(iss.Labels, l.Name)
		}
		iss.Priority = priorityFromLabels(iss.Labels)
		iss.Component = componentFromLabels(iss.Labels)
		issues = append(issues, iss)
	}
	return issues, nil
}

// CreatePRFromIssues opens a pull request for a group's branch against the
// base branch, with a body linking every issue in the group.
func (c *Client) CreatePRFromIssues(issues []group.Issue, branchName, baseBranch string) (*PullRequest, error) {
	if len(issues) == 0 {
		return nil, fmt.Errorf("no issues to link")
	}

	title := issues[0].Title
	if len(issues) > 1 {
		title = fmt.Sprintf("%s (+%d more)", issues[0].Title, len(issues)-1)
	}
	title = "autofix: " + title

	var body strings.Builder
	body.WriteString("Automated fix for:\n\n")
	for _, iss := range issues {
		fmt.Fprintf(&body, "- Fixes #%d: %s\n", iss.Number, iss.Title)
	}

	out, err := c.cmd.Run("pr", "create",
		"--head", branchName,
		"--base", baseBranch,
		"--title", title,
		"--body", body.String())
	if err != nil {
		return nil, fmt.Errorf("create PR for branch %s: %w", branchName, err)
	}

	// gh prints the PR URL on success.
	url := lastLine(out)
	pr := &PullRequest{URL: url, Title: title, Branch: branchName}
	pr.Number = prNumberFromURL(url)
	return pr, nil
}

// MarkFixed comments on and labels an issue to record the PR that fixes it.
// Closing is left to the PR's "Fixes #N" links on merge.
func (c *Client) MarkFixed(issueNumber, prNumber int, prURL string) error {
	if issueNumber <= 0 {
		return fmt.Errorf("invalid issue number %d: must be positive", issueNumber)
	}
	comment := fmt.Sprintf("Automated fix opened in PR #%d: %s", prNumber, prURL)
	if _, err := c.cmd.Run("issue", "comment", fmt.Sprintf("%d", issueNumber), "--body", comment); err != nil {
		return fmt.Errorf("comment on issue %d: %w", issueNumber, err)
	}
	if _, err := c.cmd.Run("issue", "edit", fmt.Sprintf("%d", issueNumber), "--add-label", "autofix-pr-open"); err != nil {
		return fmt.Errorf("label issue %d: %w", issueNumber, err)
	}
	return nil
}

// priorityFromLabels maps priority labels to a numeric priority, higher is
// more urgent. Unlabeled issues get 0.
func priorityFromLabels(labels []string) int {
	for _, l := range labels {
		switch strings.ToLower(l) {
		case "p0", "priority:critical", "critical":
			return 3
		case "p1", "priority:high", "high":
			return 2
		case "p2", "priority:medium", "medium":
			return 1
		}
	}
	return 0
}

// componentFromLabels extracts a "component:<name>"-style label.
func componentFromLabels(labels []string) string {
	for _, l := range labels {
		lower := strings.ToLower(l)
		for _, prefix := range []string{"component:", "area:", "module:"} {
			if strings.HasPrefix(lower, prefix) {
				return strings.TrimPrefix(lower, prefix)
			}
		}
	}
	return ""
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// prNumberFromURL parses the trailing number of a PR URL, 0 if absent.
func prNumberFromURL(url string) int {
	idx := strings.LastIndex(url, "/")
	if idx < 0 {
		return 0
	}
	n := 0
	if _, err := fmt.Sscanf(url[idx+1:], "%d", &n); err != nil {
		return 0
	}
	return n
}
