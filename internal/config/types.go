package config

import "github.com/lucasnoah/autofix/internal/budget"

// AutofixConfig is the top-level configuration structure parsed from YAML.
type AutofixConfig struct {
	Autofix Autofix `yaml:"autofix"`
}

// Autofix defines the full run configuration: repository, concurrency,
// agent, budget, and checks.
type Autofix struct {
	RepoPath    string `yaml:"repo_path"`
	BaseBranch  string `yaml:"base_branch"`
	WorktreeDir string `yaml:"worktree_dir"`
	MaxParallel int    `yaml:"max_parallel"`
	MaxRetries  int    `yaml:"max_retries"`
	GroupBy     string `yaml:"group_by"`
	IssueLabel  string `yaml:"issue_label"`
	IssueLimit  int    `yaml:"issue_limit"`

	Agent   Agent         `yaml:"agent"`
	Budget  budget.Config `yaml:"budget"`
	Install Install       `yaml:"install"`
	Checks  Checks        `yaml:"checks"`
}

// Agent configures the external AI agent invocation.
type Agent struct {
	Binary               string  `yaml:"binary"`
	Timeout              string  `yaml:"timeout"`
	AnalysisCostEstimate float64 `yaml:"analysis_cost_estimate"`
	FixCostEstimate      float64 `yaml:"fix_cost_estimate"`
}

// Install configures dependency installation.
type Install struct {
	Timeout string `yaml:"timeout"`
}

// Checks maps each verification check to its shell command.
type Checks struct {
	Timeout   string `yaml:"timeout"`
	Lint      string `yaml:"lint"`
	Typecheck string `yaml:"typecheck"`
	Test      string `yaml:"test"`
}
