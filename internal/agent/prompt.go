package agent

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/lucasnoah/autofix/internal/group"
)

const analyzeTemplate = `# Analyze issue group: {{.Group.Name}}

You are analyzing a group of related issues before a fix is attempted.
Do not modify any files. Working directory: {{.WorktreePath}}

## Issues
{{range .Group.Issues}}### #{{.Number}}: {{.Title}}
{{.Body}}

{{end}}{{if .Group.Files}}## Related files
{{range .Group.Files}}- {{.}}
{{end}}{{end}}
Respond with a single JSON object:
{"summary": "...", "root_cause": "...", "approach": "...", "files_to_modify": ["..."], "complexity": "low|medium|high"}
`

const fixTemplate = `# Fix issue group: {{.Group.Name}}

Apply the fix for the issues below in the working directory {{.WorktreePath}}.
Edit files directly; do not commit.

## Analysis
{{.Analysis.Summary}}
{{if .Analysis.Approach}}
Approach: {{.Analysis.Approach}}
{{end}}
## Issues
{{range .Group.Issues}}### #{{.Number}}: {{.Title}}
{{.Body}}

{{end}}
When done, respond with a single JSON object:
{"files_modified": ["..."], "commit_message": "...", "summary": "..."}
The commit message must reference the issues ({{.IssueRefs}}).
`

var (
	analyzeTmpl = template.Must(template.New("analyze").Parse(analyzeTemplate))
	fixTmpl     = template.Must(template.New("fix").Parse(fixTemplate))
)

type promptData struct {
	Group        *group.IssueGroup
	Analysis     *AnalysisResult
	WorktreePath string
	IssueRefs    string
}

func buildAnalyzePrompt(g *group.IssueGroup, worktreePath string) (string, error) {
	var buf bytes.Buffer
	err := analyzeTmpl.Execute(&buf, promptData{Group: g, WorktreePath: worktreePath})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildFixPrompt(g *group.IssueGroup, analysis *AnalysisResult, worktreePath string) (string, error) {
	var buf bytes.Buffer
	err := fixTmpl.Execute(&buf, promptData{
		Group:        g,
		Analysis:     analysis,
		WorktreePath: worktreePath,
		IssueRefs:    issueRefs(g),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func issueRefs(g *group.IssueGroup) string {
	refs := make([]string, len(g.Issues))
	for i, iss := range g.Issues {
		refs[i] = fmt.Sprintf("#%d", iss.Number)
	}
	return strings.Join(refs, ", ")
}
