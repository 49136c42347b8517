// Package deps detects a worktree's package manager and installs
// dependencies with a bounded timeout. Each worktree is a separate checkout,
// so installs are never shared between groups.
package deps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, command string) (stdout string, stderr string, exitCode int, err error)
}

// PackageManager describes a detected package manager and its install command.
type PackageManager struct {
	Name           string
	LockFile       string
	InstallCommand string
}

// detection order matters: the most specific lock file wins.
var managers = []PackageManager{
	{Name: "pnpm", LockFile: "pnpm-lock.yaml", InstallCommand: "pnpm install --frozen-lockfile"},
	{Name: "yarn", LockFile: "yarn.lock", InstallCommand: "yarn install --frozen-lockfile"},
	{Name: "npm", LockFile: "package-lock.json", InstallCommand: "npm ci"},
	{Name: "npm", LockFile: "package.json", InstallCommand: "npm install"},
}

// Detect probes dir for lock files in priority order. ok is false when no
// manifest exists at all, in which case install is skipped entirely.
func Detect(dir string) (pm PackageManager, ok bool) {
	for _, m := range managers {
		if _, err := os.Stat(filepath.Join(dir, m.LockFile)); err == nil {
			return m, true
		}
	}
	return PackageManager{}, false
}

// Installer runs dependency installs.
type Installer struct {
	cmd     CommandRunner
	timeout time.Duration
}

// NewInstaller creates an Installer with the given wall-clock timeout.
func NewInstaller(cmd CommandRunner, timeout time.Duration) *Installer {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Installer{cmd: cmd, timeout: timeout}
}

// Install detects the package manager in dir and runs its install command.
// A missing manifest is a no-op; anything else failing is an error.
func (i *Installer) Install(ctx context.Context, dir string) error {
	pm, ok := Detect(dir)
	if !ok {
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	stdout, stderr, exitCode, err := i.cmd.Run(runCtx, dir, pm.InstallCommand)
	if runCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%s install timed out after %s", pm.Name, i.timeout)
	}
	if err != nil {
		return fmt.Errorf("%s install: %w", pm.Name, err)
	}
	if exitCode != 0 {
		detail := stderr
		if detail == "" {
			detail = stdout
		}
		return fmt.Errorf("%s install failed with exit code %d: %s", pm.Name, exitCode, truncate(detail, 500))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
