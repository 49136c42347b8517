package worktree

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lucasnoah/autofix/internal/group"
)

// Status describes whether a worktree is idle or owned by a pipeline.
type Status string

const (
	StatusReady Status = "ready"
	StatusInUse Status = "in_use"
)

// Worktree represents one isolated checkout bound to one branch.
type Worktree struct {
	Path       string    `json:"path"`
	Branch     string    `json:"branch"`
	Status     Status    `json:"status"`
	Issues     []int     `json:"issues"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	Head       string    `json:"head,omitempty"`
}

// ExecResult carries both output streams of a command run in a worktree.
type ExecResult struct {
	Stdout string
	Stderr string
}

// GitRunner provides git commands with separately captured streams.
// Interface for testing.
type GitRunner interface {
	Run(ctx context.Context, dir string, args ...string) (stdout, stderr string, err error)
}

// ExecGit implements GitRunner using exec.Command.
type ExecGit struct{}

func (g *ExecGit) Run(ctx context.Context, dir string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	out := strings.TrimSpace(stdout.String())
	errOut := strings.TrimSpace(stderr.String())
	if err != nil {
		return out, errOut, fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), errOut, err)
	}
	return out, errOut, nil
}

// Manager creates and destroys git worktrees and tracks the live ones.
// At most one live worktree may exist per branch; Create enforces this with
// an in-process registry, so unique branch naming across concurrent groups
// is a precondition the caller (the grouping step) must uphold.
type Manager struct {
	git     GitRunner
	repoDir string // git repo root
	baseDir string // where worktrees are created (repo-root/worktrees/)

	mu     sync.Mutex
	active map[string]*Worktree // branch → live worktree
}

// NewManager creates a worktree manager.
func NewManager(git GitRunner, repoDir, baseDir string) *Manager {
	return &Manager{
		git:     git,
		repoDir: repoDir,
		baseDir: baseDir,
		active:  make(map[string]*Worktree),
	}
}

// Create makes a new worktree on a fresh branch cut from baseBranch.
// On failure nothing is registered and no usable directory is reported.
func (m *Manager) Create(ctx context.Context, branchName, baseBranch string, issues []int) (*Worktree, error) {
	branch := group.SanitizeBranch(branchName)
	if branch == "" {
		return nil, newError(ErrCreateFailed, "empty branch name", "", nil)
	}
	if baseBranch == "" {
		return nil, newError(ErrCreateFailed, "empty base branch", "", nil)
	}

	m.mu.Lock()
	if _, ok := m.active[branch]; ok {
		m.mu.Unlock()
		return nil, newError(ErrAlreadyExists, fmt.Sprintf("branch %q already has a live worktree", branch), "", nil)
	}
	// Reserve the branch while the git command runs so a concurrent Create
	// for the same branch fails fast instead of racing git.
	m.active[branch] = nil
	m.mu.Unlock()

	wt, err := m.createWorktree(ctx, branch, baseBranch, issues)
	m.mu.Lock()
	if err != nil {
		delete(m.active, branch)
	} else {
		m.active[branch] = wt
	}
	m.mu.Unlock()
	return wt, err
}

func (m *Manager) createWorktree(ctx context.Context, branch, baseBranch string, issues []int) (*Worktree, error) {
	path := filepath.Join(m.baseDir, branch)

	// Best-effort fetch so the branch is cut from an up-to-date base.
	_, _, _ = m.git.Run(ctx, m.repoDir, "fetch", "origin", baseBranch)

	if _, stderr, err := m.git.Run(ctx, m.repoDir, "worktree", "add", path, "-b", branch, baseBranch); err != nil {
		return nil, classifyGitError("create worktree", stderr, err)
	}

	head, _, err := m.git.Run(ctx, path, "rev-parse", "HEAD")
	if err != nil {
		// The directory exists but is not git-valid; tear it down so no
		// partial worktree is left registered as usable.
		_, _, _ = m.git.Run(ctx, m.repoDir, "worktree", "remove", "--force", path)
		return nil, newError(ErrCreateFailed, "new worktree is not git-valid", "", err)
	}

	now := time.Now()
	return &Worktree{
		Path:       path,
		Branch:     branch,
		Status:     StatusInUse,
		Issues:     issues,
		CreatedAt:  now,
		LastActive: now,
		Head:       head,
	}, nil
}

// ExecInWorktree runs a git command with the worktree as working directory.
// Non-zero exit surfaces as a typed error carrying both captured streams,
// never as lost output.
func (m *Manager) ExecInWorktree(ctx context.Context, path string, args ...string) (*ExecResult, error) {
	wt := m.byPath(path)
	if wt == nil {
		return nil, newError(ErrNotFound, fmt.Sprintf("no live worktree at %s", path), "", nil)
	}

	stdout, stderr, err := m.git.Run(ctx, path, args...)
	m.mu.Lock()
	wt.LastActive = time.Now()
	m.mu.Unlock()

	if err != nil {
		return &ExecResult{Stdout: stdout, Stderr: stderr}, classifyGitError(fmt.Sprintf("git %s", strings.Join(args, " ")), stderr, err)
	}
	return &ExecResult{Stdout: stdout, Stderr: stderr}, nil
}

// Remove deletes the worktree directory and, if deleteBranch is set, the
// local branch. Removing an unknown path reports ErrNotFound; callers on
// the cleanup path treat that as non-fatal.
func (m *Manager) Remove(ctx context.Context, path string, force, deleteBranch bool) error {
	wt := m.byPath(path)
	if wt == nil {
		return newError(ErrNotFound, fmt.Sprintf("no live worktree at %s", path), "", nil)
	}

	if !force {
		out, _, err := m.git.Run(ctx, path, "status", "--porcelain")
		if err == nil && strings.TrimSpace(out) != "" {
			return newError(ErrDirty, fmt.Sprintf("worktree %s has uncommitted changes", path), "", nil)
		}
	}

	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	if _, stderr, err := m.git.Run(ctx, m.repoDir, args...); err != nil {
		return classifyGitError("remove worktree", stderr, err)
	}

	if deleteBranch && wt.Branch != "" && wt.Branch != "main" && wt.Branch != "master" {
		if _, stderr, err := m.git.Run(ctx, m.repoDir, "branch", "-D", wt.Branch); err != nil {
			return classifyGitError(fmt.Sprintf("delete branch %q", wt.Branch), stderr, err)
		}
	}

	m.mu.Lock()
	delete(m.active, wt.Branch)
	m.mu.Unlock()
	return nil
}

// List enumerates live worktrees, sorted by branch. Diagnostics only.
func (m *Manager) List() []*Worktree {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Worktree, 0, len(m.active))
	for _, wt := range m.active {
		if wt != nil {
			out = append(out, wt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Branch < out[j].Branch })
	return out
}

// byPath finds a registered worktree by its path.
func (m *Manager) byPath(path string) *Worktree {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, wt := range m.active {
		if wt != nil && wt.Path == path {
			return wt
		}
	}
	return nil
}

// classifyGitError maps git output to a typed worktree error.
func classifyGitError(action, stderr string, err error) *Error {
	combined := stderr
	if combined == "" {
		combined = err.Error()
	}
	lower := strings.ToLower(combined)
	switch {
	case strings.Contains(lower, "already exists"), strings.Contains(lower, "already checked out"):
		return newError(ErrAlreadyExists, action, stderr, err)
	case strings.Contains(lower, "index.lock"), strings.Contains(lower, "is locked"):
		return newError(ErrLocked, action, stderr, err)
	case strings.Contains(lower, "contains modified or untracked files"):
		return newError(ErrDirty, action, stderr, err)
	default:
		return newError(ErrGitError, action, stderr, err)
	}
}
