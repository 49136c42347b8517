package group

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Strategy names how issues were bundled into a group.
type Strategy string

const (
	ByComponent Strategy = "component"
	ByFile      Strategy = "file"
	ByLabel     Strategy = "label"
	ByType      Strategy = "type"
	ByPriority  Strategy = "priority"
)

// Issue is the slice of an issue the pipeline needs: identity, text for the
// agent, and the signals grouping runs on.
type Issue struct {
	Number    int      `json:"number"`
	Title     string   `json:"title"`
	Body      string   `json:"body,omitempty"`
	Labels    []string `json:"labels,omitempty"`
	Component string   `json:"component,omitempty"`
	Files     []string `json:"files,omitempty"`
	Priority  int      `json:"priority"`
}

// IssueGroup is one unit of work: a set of related issues that share a
// branch and a PR. Immutable once handed to a pipeline.
type IssueGroup struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Strategy   Strategy `json:"strategy"`
	Key        string   `json:"key"`
	Issues     []Issue  `json:"issues"`
	BranchName string   `json:"branch_name"`
	Files      []string `json:"files,omitempty"`
	Priority   int      `json:"priority"`
}

// IssueNumbers returns the issue numbers in the group, in order.
func (g *IssueGroup) IssueNumbers() []int {
	nums := make([]int, len(g.Issues))
	for i, iss := range g.Issues {
		nums[i] = iss.Number
	}
	return nums
}

// GroupIssues bundles issues into groups using the given strategy. Groups
// are sorted by priority (highest first), then by key for stable output.
// Branch names are derived per group and are unique as long as keys are.
func GroupIssues(issues []Issue, strategy Strategy) []*IssueGroup {
	buckets := make(map[string][]Issue)
	for _, iss := range issues {
		key := keyFor(iss, strategy)
		buckets[key] = append(buckets[key], iss)
	}

	groups := make([]*IssueGroup, 0, len(buckets))
	for key, bucket := range buckets {
		groups = append(groups, newGroup(strategy, key, bucket))
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Priority != groups[j].Priority {
			return groups[i].Priority > groups[j].Priority
		}
		return groups[i].Key < groups[j].Key
	})
	return groups
}

func newGroup(strategy Strategy, key string, issues []Issue) *IssueGroup {
	g := &IssueGroup{
		ID:       fmt.Sprintf("%s-%s", strategy, key),
		Name:     fmt.Sprintf("%s: %s (%d issues)", strategy, key, len(issues)),
		Strategy: strategy,
		Key:      key,
		Issues:   issues,
	}
	g.BranchName = SanitizeBranch(fmt.Sprintf("autofix/%s-%s", strategy, key))

	seen := make(map[string]bool)
	for _, iss := range issues {
		if iss.Priority > g.Priority {
			g.Priority = iss.Priority
		}
		for _, f := range iss.Files {
			if !seen[f] {
				seen[f] = true
				g.Files = append(g.Files, f)
			}
		}
	}
	sort.Strings(g.Files)
	return g
}

// keyFor picks the bucket key for one issue under a strategy.
func keyFor(iss Issue, strategy Strategy) string {
	switch strategy {
	case ByComponent:
		if iss.Component != "" {
			return strings.ToLower(iss.Component)
		}
	case ByFile:
		if len(iss.Files) > 0 {
			return strings.ToLower(iss.Files[0])
		}
	case ByLabel:
		if len(iss.Labels) > 0 {
			return strings.ToLower(iss.Labels[0])
		}
	case ByType:
		for _, l := range iss.Labels {
			lower := strings.ToLower(l)
			if lower == "bug" || lower == "enhancement" || lower == "documentation" || lower == "refactor" {
				return lower
			}
		}
	case ByPriority:
		return fmt.Sprintf("p%d", iss.Priority)
	}
	return "misc"
}

var nonBranchChars = regexp.MustCompile(`[^a-zA-Z0-9/_-]+`)

// SanitizeBranch cleans a derived branch name so git accepts it.
func SanitizeBranch(name string) string {
	s := nonBranchChars.ReplaceAllString(name, "-")
	s = strings.Trim(s, "-")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}
