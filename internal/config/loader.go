package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses an autofix configuration from the given YAML file
// path. After parsing, defaults are applied to unset fields.
func Load(path string) (*AutofixConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg AutofixConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./autofix.yaml, ~/.autofix/config.yaml
func LoadDefault() (*AutofixConfig, error) {
	candidates := []string{"autofix.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".autofix", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return nil, fmt.Errorf("no autofix config found (searched: %v)", candidates)
}

// applyDefaults fills unset fields with working defaults.
func applyDefaults(cfg *AutofixConfig) {
	a := &cfg.Autofix

	if a.RepoPath == "" {
		a.RepoPath = "."
	}
	if a.BaseBranch == "" {
		a.BaseBranch = "main"
	}
	if a.WorktreeDir == "" {
		a.WorktreeDir = filepath.Join(a.RepoPath, "worktrees")
	}
	if a.MaxParallel == 0 {
		a.MaxParallel = 3
	}
	if a.MaxRetries == 0 {
		a.MaxRetries = 1
	}
	if a.GroupBy == "" {
		a.GroupBy = "label"
	}
	if a.IssueLimit == 0 {
		a.IssueLimit = 100
	}

	if a.Agent.Binary == "" {
		a.Agent.Binary = "claude"
	}
	if a.Agent.Timeout == "" {
		a.Agent.Timeout = "15m"
	}
	if a.Agent.AnalysisCostEstimate == 0 {
		a.Agent.AnalysisCostEstimate = 0.5
	}
	if a.Agent.FixCostEstimate == 0 {
		a.Agent.FixCostEstimate = 2.0
	}

	if a.Budget.PreferredModel == "" {
		a.Budget.PreferredModel = "opus"
	}
	if a.Budget.FallbackModel == "" {
		a.Budget.FallbackModel = "sonnet"
	}
	if a.Budget.CheapModel == "" {
		a.Budget.CheapModel = "haiku"
	}

	if a.Install.Timeout == "" {
		a.Install.Timeout = "10m"
	}
	if a.Checks.Timeout == "" {
		a.Checks.Timeout = "5m"
	}
}
