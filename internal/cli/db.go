package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dbResetForce bool

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the run-history database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()
		fmt.Fprintln(cmd.OutOrStdout(), "database schema up to date")
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop all run history and recreate the schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !dbResetForce {
			return fmt.Errorf("refusing to drop run history without --force")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "database reset")
		return nil
	},
}

func init() {
	dbResetCmd.Flags().BoolVar(&dbResetForce, "force", false, "confirm dropping all run history")
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbResetCmd)
}
