package config

import (
	"fmt"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// recognizedStrategies is the set of valid group_by values.
var recognizedStrategies = map[string]bool{
	"component": true,
	"file":      true,
	"label":     true,
	"type":      true,
	"priority":  true,
}

// Validate checks an AutofixConfig for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *AutofixConfig) []ValidationError {
	var errs []ValidationError
	a := cfg.Autofix

	if a.RepoPath == "" {
		errs = append(errs, ValidationError{Field: "autofix.repo_path", Message: "is required"})
	}
	if a.BaseBranch == "" {
		errs = append(errs, ValidationError{Field: "autofix.base_branch", Message: "is required"})
	}
	if a.MaxParallel < 1 {
		errs = append(errs, ValidationError{Field: "autofix.max_parallel", Message: "must be at least 1"})
	}
	if a.MaxRetries < 0 {
		errs = append(errs, ValidationError{Field: "autofix.max_retries", Message: "must not be negative"})
	}
	if !recognizedStrategies[a.GroupBy] {
		errs = append(errs, ValidationError{
			Field:   "autofix.group_by",
			Message: fmt.Sprintf("unrecognized strategy %q (component, file, label, type, priority)", a.GroupBy),
		})
	}

	if a.Agent.Binary == "" {
		errs = append(errs, ValidationError{Field: "autofix.agent.binary", Message: "is required"})
	}
	for field, value := range map[string]string{
		"autofix.agent.timeout":   a.Agent.Timeout,
		"autofix.install.timeout": a.Install.Timeout,
		"autofix.checks.timeout":  a.Checks.Timeout,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid duration %q", value),
			})
		}
	}

	if err := a.Budget.Validate(); err != nil {
		errs = append(errs, ValidationError{Field: "autofix.budget", Message: err.Error()})
	}

	return errs
}

// Duration parses a config duration string, returning fallback for empty or
// invalid values.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
