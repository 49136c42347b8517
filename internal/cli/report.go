package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report [run-id]",
	Short: "Show the report for a recorded run (latest by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		record, err := lookupRun(database, args)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("no runs recorded")
		}
		if record.SummaryJSON == "" {
			return fmt.Errorf("run %s has no stored report (still in progress?)", record.RunID)
		}

		// The stored report is already the JSON rendering; re-indent for
		// output hygiene and print.
		var pretty json.RawMessage
		if err := json.Unmarshal([]byte(record.SummaryJSON), &pretty); err != nil {
			return fmt.Errorf("parse stored report: %w", err)
		}
		out, err := json.MarshalIndent(pretty, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		runs, err := database.ListRuns(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}
		for _, r := range runs {
			status := "done"
			if r.FinishedAt == "" {
				status = "running"
			}
			dry := ""
			if r.DryRun {
				dry = " (dry run)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s  groups=%d prs=%d failed=%d%s\n",
				r.RunID, r.StartedAt, status, r.TotalGroups, r.TotalPRs, r.TotalFailed, dry)
		}
		return nil
	},
}

func init() {
	reportListCmd.Flags().Int("limit", 20, "maximum runs to list")
	reportCmd.AddCommand(reportListCmd)
}
