package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/autofix/internal/analytics"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Stage duration and failure statistics across recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetString("since")

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		durations, err := analytics.QueryStageDurations(database, since)
		if err != nil {
			return err
		}
		failures, err := analytics.QueryStageFailureRates(database, since)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Stage durations (seconds):")
		if len(durations) == 0 {
			fmt.Fprintln(out, "  no data")
		}
		for _, d := range durations {
			fmt.Fprintf(out, "  %-16s n=%-4d avg=%-8.1f p50=%-8.1f p95=%.1f\n",
				d.Stage, d.Count, d.Avg, d.P50, d.P95)
		}

		fmt.Fprintln(out, "\nStage failure rates:")
		if len(failures) == 0 {
			fmt.Fprintln(out, "  no data")
		}
		for _, f := range failures {
			fmt.Fprintf(out, "  %-16s entered=%-4d failed=%-4d rate=%.1f%%\n",
				f.Stage, f.Entered, f.Failed, f.FailRate)
		}
		return nil
	},
}

func init() {
	analyticsCmd.Flags().String("since", "", "only include events at or after this timestamp (e.g. 2026-08-01)")
}
