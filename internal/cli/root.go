package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "conductor — automated issue-backlog delivery",
	Long: `conductor drives an issue backlog from plan to merged code. Each issue
moves through planning, coding, testing and review stages, with every
verified stage confirmed against a green CI pipeline for the commit the
agent actually produced.

Run state is recorded in SQLite (~/.conductor/conductor.db) and the plan
document tracks per-issue status across restarts.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(dbCmd)
}
