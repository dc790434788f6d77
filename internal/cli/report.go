package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftworks/conductor/internal/report"
)

var reportRuns int

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize run history",
	Long: `Report aggregates the run-history database: stage attempt counts and
first-pass rates, debugging cycles by failure category, and the most
recent runs.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().IntVar(&reportRuns, "runs", 10, "how many recent runs to list")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	out := cmd.OutOrStdout()

	stages, err := report.QueryStageStats(database)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Stage attempts:")
	if len(stages) == 0 {
		fmt.Fprintln(out, "  (no attempts recorded)")
	}
	for _, s := range stages {
		fmt.Fprintf(out, "  %-10s %4d attempts, %4d passed, %4d failed, %5.1f%% first-pass\n",
			s.Stage, s.Attempts, s.Successes, s.Failures, s.FirstPassPct)
	}

	cats, err := report.QueryCategoryStats(database)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "\nDebugging cycles:")
	if len(cats) == 0 {
		fmt.Fprintln(out, "  (no cycles recorded)")
	}
	for _, c := range cats {
		fmt.Fprintf(out, "  %-10s %4d cycles, %4d attempts, %5.1f%% resolved, avg %.0f min\n",
			c.Category, c.Cycles, c.Attempts, c.ResolvedPct, c.AvgMinutes)
	}

	runs, err := report.QueryRecentRuns(database, reportRuns)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "\nRecent runs:")
	if len(runs) == 0 {
		fmt.Fprintln(out, "  (no runs recorded)")
	}
	for _, r := range runs {
		fmt.Fprintf(out, "  %s  %-20s %s  %d completed, %d failed, %d skipped\n",
			r.RunID[:8], r.Project, r.StartedAt, r.Completed, r.Failed, r.Skipped)
	}
	return nil
}
