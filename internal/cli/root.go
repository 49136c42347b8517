package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "autofix",
	Short: "autofix — batch issue-to-PR processing",
	Long: `autofix turns a batch of triaged issues into merged-ready pull requests:
it groups open issues, gives each group an isolated git worktree, asks an AI
agent to analyze and fix the group, verifies the fix with lint/typecheck/test,
then commits, pushes, and opens a PR linking the issues.

Run history is stored in ~/.autofix/ (SQLite).`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(worktreeCmd)
	rootCmd.AddCommand(budgetCmd)
	rootCmd.AddCommand(analyticsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}
