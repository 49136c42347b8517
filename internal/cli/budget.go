package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/autofix/internal/config"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show the configured AI budget and model tiers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadDefault()
		if err != nil {
			return err
		}
		b := cfg.Autofix.Budget

		out := cmd.OutOrStdout()
		if b.MaxPerIssue > 0 {
			fmt.Fprintf(out, "Per-issue limit:   $%.2f\n", b.MaxPerIssue)
		} else {
			fmt.Fprintln(out, "Per-issue limit:   unbounded")
		}
		if b.MaxPerSession > 0 {
			fmt.Fprintf(out, "Per-session limit: $%.2f\n", b.MaxPerSession)
		} else {
			fmt.Fprintln(out, "Per-session limit: unbounded")
		}
		fmt.Fprintf(out, "Preferred model:   %s (under 80%% utilization)\n", b.PreferredModel)
		fmt.Fprintf(out, "Fallback model:    %s (80-90%%)\n", b.FallbackModel)
		fmt.Fprintf(out, "Cheap model:       %s (over 90%%)\n", b.CheapModel)
		return nil
	},
}
