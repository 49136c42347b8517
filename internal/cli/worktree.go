package cli

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/autofix/internal/config"
	"github.com/lucasnoah/autofix/internal/worktree"
)

var worktreeCmd = &cobra.Command{
	Use:   "worktree",
	Short: "Inspect and clean autofix worktrees",
}

var worktreeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List worktrees under the configured worktree directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadDefault()
		if err != nil {
			return err
		}

		// The in-process registry is empty outside a run; ask git directly
		// so leftovers from crashed runs are visible too.
		out, err := gitWorktreeList(cfg.Autofix.RepoPath)
		if err != nil {
			return err
		}

		prefix := cfg.Autofix.WorktreeDir
		found := 0
		for _, line := range strings.Split(out, "\n") {
			if !strings.HasPrefix(line, "worktree ") {
				continue
			}
			path := strings.TrimPrefix(line, "worktree ")
			if strings.HasPrefix(path, prefix) {
				fmt.Fprintln(cmd.OutOrStdout(), path)
				found++
			}
		}
		if found == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No autofix worktrees.")
		}
		return nil
	},
}

var worktreeCleanCmd = &cobra.Command{
	Use:   "clean [path]",
	Short: "Force-remove an autofix worktree left behind by a failed run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadDefault()
		if err != nil {
			return err
		}
		deleteBranch, _ := cmd.Flags().GetBool("delete-branch")

		git := &worktree.ExecGit{}
		ctx := context.Background()
		if _, _, err := git.Run(ctx, cfg.Autofix.RepoPath, "worktree", "remove", "--force", args[0]); err != nil {
			return err
		}
		if deleteBranch {
			branch, _ := cmd.Flags().GetString("branch")
			if branch == "" {
				return fmt.Errorf("--delete-branch requires --branch")
			}
			if _, _, err := git.Run(ctx, cfg.Autofix.RepoPath, "branch", "-D", branch); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

func gitWorktreeList(repoDir string) (string, error) {
	cmd := exec.Command("git", "worktree", "list", "--porcelain")
	cmd.Dir = repoDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git worktree list: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return string(out), nil
}

func init() {
	worktreeCleanCmd.Flags().Bool("delete-branch", false, "also delete the worktree's branch")
	worktreeCleanCmd.Flags().String("branch", "", "branch name to delete with --delete-branch")
	worktreeCmd.AddCommand(worktreeListCmd)
	worktreeCmd.AddCommand(worktreeCleanCmd)
}
