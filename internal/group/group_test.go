package group

import (
	"strings"
	"testing"
)

func TestGroupIssues_ByLabel(t *testing.T) {
	issues := []Issue{
		{Number: 1, Title: "a", Labels: []string{"bug"}},
		{Number: 2, Title: "b", Labels: []string{"bug"}},
		{Number: 3, Title: "c", Labels: []string{"docs"}},
		{Number: 4, Title: "d"},
	}

	groups := GroupIssues(issues, ByLabel)
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}

	byKey := make(map[string]*IssueGroup)
	for _, g := range groups {
		byKey[g.Key] = g
	}
	if g := byKey["bug"]; g == nil || len(g.Issues) != 2 {
		t.Errorf("bug group = %+v, want 2 issues", byKey["bug"])
	}
	if g := byKey["misc"]; g == nil || g.Issues[0].Number != 4 {
		t.Errorf("unlabeled issue should land in misc, got %+v", byKey["misc"])
	}
}

func TestGroupIssues_ByComponent(t *testing.T) {
	issues := []Issue{
		{Number: 1, Component: "Parser"},
		{Number: 2, Component: "parser"},
		{Number: 3, Component: "lexer"},
	}

	groups := GroupIssues(issues, ByComponent)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2 (component keys are case-insensitive)", len(groups))
	}
}

func TestGroupIssues_PriorityOrder(t *testing.T) {
	issues := []Issue{
		{Number: 1, Labels: []string{"low"}, Priority: 1},
		{Number: 2, Labels: []string{"high"}, Priority: 3},
		{Number: 3, Labels: []string{"mid"}, Priority: 2},
	}

	groups := GroupIssues(issues, ByLabel)
	if groups[0].Key != "high" || groups[1].Key != "mid" || groups[2].Key != "low" {
		keys := []string{groups[0].Key, groups[1].Key, groups[2].Key}
		t.Errorf("group order = %v, want highest priority first", keys)
	}
}

func TestGroupIssues_ByType(t *testing.T) {
	issues := []Issue{
		{Number: 1, Labels: []string{"urgent", "Bug"}},
		{Number: 2, Labels: []string{"enhancement"}},
		{Number: 3, Labels: []string{"wontfix"}},
	}

	groups := GroupIssues(issues, ByType)
	byKey := make(map[string]int)
	for _, g := range groups {
		byKey[g.Key] = len(g.Issues)
	}
	if byKey["bug"] != 1 || byKey["enhancement"] != 1 || byKey["misc"] != 1 {
		t.Errorf("type buckets = %v", byKey)
	}
}

func TestGroupIssues_ByPriority(t *testing.T) {
	issues := []Issue{
		{Number: 1, Priority: 3},
		{Number: 2, Priority: 3},
		{Number: 3, Priority: 0},
	}

	groups := GroupIssues(issues, ByPriority)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if groups[0].Key != "p3" || len(groups[0].Issues) != 2 {
		t.Errorf("first group = %s with %d issues, want p3 with 2", groups[0].Key, len(groups[0].Issues))
	}
}

func TestNewGroup_Derived(t *testing.T) {
	issues := []Issue{
		{Number: 7, Priority: 2, Files: []string{"a.go", "b.go"}},
		{Number: 8, Priority: 3, Files: []string{"b.go", "c.go"}},
	}

	groups := GroupIssues(issues, ByLabel)
	g := groups[0]

	if g.BranchName != "autofix/label-misc" {
		t.Errorf("BranchName = %q", g.BranchName)
	}
	if g.Priority != 3 {
		t.Errorf("Priority = %d, want max of members", g.Priority)
	}
	want := []string{"a.go", "b.go", "c.go"}
	if len(g.Files) != len(want) {
		t.Fatalf("Files = %v, want deduplicated union %v", g.Files, want)
	}
	for i := range want {
		if g.Files[i] != want[i] {
			t.Errorf("Files[%d] = %q, want %q", i, g.Files[i], want[i])
		}
	}
}

func TestIssueNumbers(t *testing.T) {
	g := &IssueGroup{Issues: []Issue{{Number: 5}, {Number: 9}}}
	nums := g.IssueNumbers()
	if len(nums) != 2 || nums[0] != 5 || nums[1] != 9 {
		t.Errorf("IssueNumbers() = %v", nums)
	}
}

func TestSanitizeBranch(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"autofix/label-bug", "autofix/label-bug"},
		{"autofix/file-src/main.go", "autofix/file-src/main-go"},
		{"autofix/label-needs triage!", "autofix/label-needs-triage"},
		{"--weird--", "weird"},
	}
	for _, tt := range tests {
		if got := SanitizeBranch(tt.in); got != tt.want {
			t.Errorf("SanitizeBranch(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeBranch_Caps(t *testing.T) {
	long := "autofix/" + strings.Repeat("a", 200)
	got := SanitizeBranch(long)
	if len(got) != 100 {
		t.Errorf("len = %d, want 100", len(got))
	}
}
