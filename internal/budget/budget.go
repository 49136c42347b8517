// Package budget tracks AI spend per issue and per session and picks which
// model tier to request next. The tracker is a pure decision function: it
// never blocks a call itself — enforcement is the caller's job via CanSpend.
package budget

import (
	"fmt"
	"sync"
)

// Config holds budget limits and the model tiers to degrade through.
// A zero limit means unbounded.
type Config struct {
	MaxPerIssue    float64 `yaml:"max_per_issue"`
	MaxPerSession  float64 `yaml:"max_per_session"`
	PreferredModel string  `yaml:"preferred_model"`
	FallbackModel  string  `yaml:"fallback_model"`
	CheapModel     string  `yaml:"cheap_model"`
}

// Validate checks the config is usable.
func (c *Config) Validate() error {
	if c.MaxPerIssue < 0 || c.MaxPerSession < 0 {
		return fmt.Errorf("budget limits must not be negative")
	}
	if c.PreferredModel == "" {
		return fmt.Errorf("preferred_model is required")
	}
	if c.FallbackModel == "" {
		return fmt.Errorf("fallback_model is required")
	}
	if c.CheapModel == "" {
		return fmt.Errorf("cheap_model is required")
	}
	return nil
}

// Usage is a point-in-time view of spend, derived on demand.
type Usage struct {
	CurrentIssue     float64 `json:"current_issue"`
	CurrentSession   float64 `json:"current_session"`
	RemainingIssue   float64 `json:"remaining_issue"`
	RemainingSession float64 `json:"remaining_session"`
}

// Tracker accumulates spend for one session and the issue currently being
// worked. Safe for concurrent use.
type Tracker struct {
	cfg Config

	mu           sync.Mutex
	currentIssue string
	issueCost    float64
	sessionCost  float64
}

// NewTracker creates a tracker. The config must already be validated.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg}
}

// AddCost records spend against an issue and the session. Switching to a
// different issue resets the per-issue counter first; the session total
// always grows.
func (t *Tracker) AddCost(issueID string, cost float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if issueID != t.currentIssue {
		t.currentIssue = issueID
		t.issueCost = 0
	}
	t.issueCost += cost
	t.sessionCost += cost
}

// CanSpend reports whether adding amount for issueID would stay within both
// limits. It does not mutate state: the issue switch that AddCost would do
// is simulated.
func (t *Tracker) CanSpend(issueID string, amount float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	issueCost := t.issueCost
	if issueID != t.currentIssue {
		issueCost = 0
	}
	if t.cfg.MaxPerIssue > 0 && issueCost+amount > t.cfg.MaxPerIssue {
		return false
	}
	if t.cfg.MaxPerSession > 0 && t.sessionCost+amount > t.cfg.MaxPerSession {
		return false
	}
	return true
}

// CurrentModel selects the model tier from the worse of issue and session
// utilization: strictly above 90% the cheap tier, at 80% and above the
// fallback tier, otherwise the preferred tier. Unbounded limits count as
// zero utilization. Evaluated fresh on every call.
func (t *Tracker) CurrentModel() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	util := 0.0
	if t.cfg.MaxPerIssue > 0 {
		util = t.issueCost / t.cfg.MaxPerIssue
	}
	if t.cfg.MaxPerSession > 0 {
		if s := t.sessionCost / t.cfg.MaxPerSession; s > util {
			util = s
		}
	}

	switch {
	case util > 0.9:
		return t.cfg.CheapModel
	case util >= 0.8:
		return t.cfg.FallbackModel
	default:
		return t.cfg.PreferredModel
	}
}

// Usage returns current spend and headroom. Remaining values are zero when
// the corresponding limit is unbounded.
func (t *Tracker) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()

	u := Usage{
		CurrentIssue:   t.issueCost,
		CurrentSession: t.sessionCost,
	}
	if t.cfg.MaxPerIssue > 0 {
		u.RemainingIssue = t.cfg.MaxPerIssue - t.issueCost
		if u.RemainingIssue < 0 {
			u.RemainingIssue = 0
		}
	}
	if t.cfg.MaxPerSession > 0 {
		u.RemainingSession = t.cfg.MaxPerSession - t.sessionCost
		if u.RemainingSession < 0 {
			u.RemainingSession = 0
		}
	}
	return u
}

// ResetIssue clears the per-issue counter for a new unit of work.
func (t *Tracker) ResetIssue(issueID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentIssue = issueID
	t.issueCost = 0
}

// Reset clears all counters.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentIssue = ""
	t.issueCost = 0
	t.sessionCost = 0
}
