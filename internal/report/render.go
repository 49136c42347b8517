package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/lucasnoah/autofix/internal/pipeline"
)

// Format names a report rendering.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Render produces the report in the requested format.
func Render(res *AutofixResult, format Format) (string, error) {
	switch format {
	case FormatText:
		return RenderText(res), nil
	case FormatJSON:
		return RenderJSON(res)
	case FormatMarkdown:
		return RenderMarkdown(res), nil
	default:
		return "", fmt.Errorf("unknown report format %q", format)
	}
}

// Summary produces the one-line run summary:
// "[SUCCESS|PARTIAL] X/Y groups processed, Z PRs created", plus the first
// failing group's error truncated to 100 characters when any group failed.
func Summary(res *AutofixResult) string {
	tag := "SUCCESS"
	if res.TotalFailed > 0 {
		tag = "PARTIAL"
	}
	processed := res.TotalGroups - res.TotalFailed
	line := fmt.Sprintf("[%s] %d/%d groups processed, %d PRs created",
		tag, processed, res.TotalGroups, res.TotalPRs)

	if res.TotalFailed > 0 {
		for _, g := range res.Groups {
			if g.Status == pipeline.StatusFailed {
				line += "\n" + truncate(g.Error, 100)
				break
			}
		}
	}
	return line
}

// RenderText renders a human-readable report with color.
func RenderText(res *AutofixResult) string {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	var b strings.Builder
	b.WriteString(bold("Autofix run report") + "\n")
	if res.DryRun {
		b.WriteString("(dry run)\n")
	}
	fmt.Fprintf(&b, "Groups: %d  Issues: %d  PRs: %d  Failed: %d  Duration: %s\n\n",
		res.TotalGroups, res.TotalIssues, res.TotalPRs, res.TotalFailed,
		(time.Duration(res.DurationMs) * time.Millisecond).Round(time.Second))

	for _, g := range res.Groups {
		marker := green("✓")
		if g.Status == pipeline.StatusFailed {
			marker = red("✗")
		}
		fmt.Fprintf(&b, "%s %s (%d issues, %s)\n",
			marker, g.GroupName, g.IssueCount,
			(time.Duration(g.DurationMs) * time.Millisecond).Round(time.Second))
		if g.PR != nil {
			fmt.Fprintf(&b, "    PR #%d %s\n", g.PR.Number, g.PR.URL)
		}
		if g.Error != "" {
			fmt.Fprintf(&b, "    error: %s\n", truncate(g.Error, 200))
		}
		for _, w := range g.CleanupWarnings {
			fmt.Fprintf(&b, "    cleanup warning: %s\n", w)
		}
	}

	b.WriteString("\n" + Summary(res) + "\n")
	return b.String()
}

// jsonReport is the stable JSON report shape.
type jsonReport struct {
	Summary struct {
		TotalGroups int     `json:"totalGroups"`
		TotalIssues int     `json:"totalIssues"`
		TotalPRs    int     `json:"totalPRs"`
		TotalFailed int     `json:"totalFailed"`
		DurationMs  int64   `json:"durationMs"`
		DryRun      bool    `json:"dryRun"`
		SuccessRate float64 `json:"successRate"`
	} `json:"summary"`
	Groups     []*pipeline.GroupResult `json:"groups"`
	Statistics Stats                   `json:"statistics"`
	Timestamp  string                  `json:"timestamp"`
}

// RenderJSON renders the machine-readable report.
func RenderJSON(res *AutofixResult) (string, error) {
	var rep jsonReport
	rep.Summary.TotalGroups = res.TotalGroups
	rep.Summary.TotalIssues = res.TotalIssues
	rep.Summary.TotalPRs = res.TotalPRs
	rep.Summary.TotalFailed = res.TotalFailed
	rep.Summary.DurationMs = res.DurationMs
	rep.Summary.DryRun = res.DryRun
	rep.Summary.SuccessRate = res.SuccessRate()
	rep.Groups = res.Groups
	rep.Statistics = res.Stats
	rep.Timestamp = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(&rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	return string(data), nil
}

// RenderMarkdown renders the report as a markdown document.
func RenderMarkdown(res *AutofixResult) string {
	var b strings.Builder
	b.WriteString("# Autofix run report\n\n")
	if res.DryRun {
		b.WriteString("_Dry run — no commits, PRs, or issue updates were made._\n\n")
	}
	b.WriteString("| Groups | Issues | PRs | Failed | Duration |\n")
	b.WriteString("|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %s |\n\n",
		res.TotalGroups, res.TotalIssues, res.TotalPRs, res.TotalFailed,
		(time.Duration(res.DurationMs) * time.Millisecond).Round(time.Second))

	b.WriteString("## Groups\n\n")
	for _, g := range res.Groups {
		status := "✅"
		if g.Status == pipeline.StatusFailed {
			status = "❌"
		}
		fmt.Fprintf(&b, "### %s %s\n\n", status, g.GroupName)
		fmt.Fprintf(&b, "- Status: `%s`\n- Issues: %d\n", g.Status, g.IssueCount)
		if g.PR != nil {
			fmt.Fprintf(&b, "- PR: [#%d](%s)\n", g.PR.Number, g.PR.URL)
		}
		if g.Error != "" {
			fmt.Fprintf(&b, "- Error: %s\n", truncate(g.Error, 200))
		}
		if g.ErrorDetails != "" {
			fmt.Fprintf(&b, "\n```\n%s\n```\n", g.ErrorDetails)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\n\n%s\n", Summary(res))
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
