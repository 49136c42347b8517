package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/autofix/internal/agent"
	"github.com/lucasnoah/autofix/internal/budget"
	"github.com/lucasnoah/autofix/internal/checks"
	"github.com/lucasnoah/autofix/internal/config"
	"github.com/lucasnoah/autofix/internal/db"
	"github.com/lucasnoah/autofix/internal/deps"
	"github.com/lucasnoah/autofix/internal/github"
	"github.com/lucasnoah/autofix/internal/group"
	"github.com/lucasnoah/autofix/internal/pipeline"
	"github.com/lucasnoah/autofix/internal/report"
	"github.com/lucasnoah/autofix/internal/run"
	"github.com/lucasnoah/autofix/internal/worktree"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch issues, group them, and process each group to a PR",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		label, _ := cmd.Flags().GetString("label")
		groupBy, _ := cmd.Flags().GetString("group-by")
		format, _ := cmd.Flags().GetString("format")
		verbose, _ := cmd.Flags().GetBool("verbose")

		cfg, err := config.LoadDefault()
		if err != nil {
			return err
		}
		if errs := config.Validate(cfg); len(errs) > 0 {
			for _, e := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "config: %s\n", e)
			}
			return fmt.Errorf("invalid config (%d problems)", len(errs))
		}
		a := cfg.Autofix
		if label != "" {
			a.IssueLabel = label
		}
		if groupBy != "" {
			a.GroupBy = groupBy
		}

		log, err := newLogger(verbose)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer log.Sync()

		// Ctrl-C cancels in-flight groups; cleanup still runs per group.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		gh := github.NewClient(&github.ExecRunner{})
		issues, err := gh.FetchOpenIssues(a.IssueLabel, a.IssueLimit)
		if err != nil {
			return fmt.Errorf("fetch issues: %w", err)
		}
		if len(issues) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No open issues to process.")
			return nil
		}

		groups := group.GroupIssues(issues, group.Strategy(a.GroupBy))
		fmt.Fprintf(cmd.ErrOrStderr(), "Processing %d issues in %d groups (max %d in parallel)\n",
			len(issues), len(groups), a.MaxParallel)

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		pipe := buildPipeline(&a, gh, dryRun, log)
		coord := run.NewCoordinator(pipe, database, a.MaxParallel, dryRun, log)

		result, err := coord.Run(ctx, groups)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}

		rendered, err := report.Render(result, report.Format(format))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), rendered)

		agg := report.NewAggregator()
		for _, g := range result.Groups {
			for _, w := range g.CleanupWarnings {
				agg.AddWarning(fmt.Sprintf("%s: cleanup: %s", g.GroupID, w))
			}
		}
		for _, w := range agg.Warnings() {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
		}

		if result.TotalFailed > 0 {
			return fmt.Errorf("%d of %d groups failed", result.TotalFailed, result.TotalGroups)
		}
		return nil
	},
}

// buildPipeline wires the pipeline from config. Every collaborator is
// constructed here and injected; nothing is a package-level singleton.
func buildPipeline(a *config.Autofix, gh *github.Client, dryRun bool, log *zap.Logger) *pipeline.Pipeline {
	wt := worktree.NewManager(&worktree.ExecGit{}, a.RepoPath, a.WorktreeDir)

	ai := agent.NewCLIAgent(
		&agent.ExecRunner{Binary: a.Agent.Binary},
		config.Duration(a.Agent.Timeout, 0))

	checker := checks.NewRunner(&checks.ExecRunner{}, map[checks.CheckType]string{
		checks.Lint:      a.Checks.Lint,
		checks.Typecheck: a.Checks.Typecheck,
		checks.Test:      a.Checks.Test,
	}, config.Duration(a.Checks.Timeout, 0))

	installer := deps.NewInstaller(&checks.ExecRunner{}, config.Duration(a.Install.Timeout, 0))
	tracker := budget.NewTracker(a.Budget)

	pipe := pipeline.New(wt, ai, checker, installer, gh, tracker, pipeline.Config{
		BaseBranch:           a.BaseBranch,
		RepoPath:             a.RepoPath,
		DryRun:               dryRun,
		MaxRetries:           a.MaxRetries,
		AnalysisCostEstimate: a.Agent.AnalysisCostEstimate,
		FixCostEstimate:      a.Agent.FixCostEstimate,
	})
	pipe.SetLogger(log)
	return pipe
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func openDatabase() (*db.DB, error) {
	dbPath, err := db.DefaultDBPath()
	if err != nil {
		return nil, fmt.Errorf("db path: %w", err)
	}
	database, err := db.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := database.Init(); err != nil {
		database.Close()
		return nil, fmt.Errorf("init db: %w", err)
	}
	return database, nil
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "run analysis and checks but skip fix, commit, PR, and issue updates")
	runCmd.Flags().String("label", "", "only process issues with this label (overrides config)")
	runCmd.Flags().String("group-by", "", "grouping strategy: component, file, label, type, priority (overrides config)")
	runCmd.Flags().String("format", "text", "report format: text, json, markdown")
	runCmd.Flags().BoolP("verbose", "v", false, "verbose logging")
}
