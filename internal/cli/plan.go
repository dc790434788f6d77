package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftworks/conductor/internal/ci"
	"github.com/driftworks/conductor/internal/issue"
	"github.com/driftworks/conductor/internal/plan"
	"github.com/driftworks/conductor/internal/scheduler"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage the plan document",
}

var planInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the plan from the open issue backlog",
	Long: `Init pulls the open issues from the tracker, parses their dependency
declarations and writes a fresh plan document. It refuses to overwrite
an existing plan.`,
	RunE: runPlanInit,
}

var planValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the plan for duplicate ids and dependency cycles",
	RunE:  runPlanValidate,
}

func init() {
	planCmd.AddCommand(planInitCmd)
	planCmd.AddCommand(planValidateCmd)
}

func runPlanInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := ci.NewClient(&ci.ExecRunner{}, cfg.Project.Repo)
	issues, err := client.Issues(cmd.Context())
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		return fmt.Errorf("no open issues in %s", cfg.Project.Repo)
	}

	doc := &plan.Document{
		Project: cfg.Project.Name,
	}
	for _, iss := range issues {
		doc.Issues = append(doc.Issues, plan.IssueRecord{
			ID:           iss.ID,
			Title:        iss.Title,
			Description:  iss.Description,
			Dependencies: iss.DependsOn,
			Status:       issue.StatusPending,
		})
	}

	store := plan.NewStore(cfg.Project.PlanPath)
	if err := store.Init(doc); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "plan written to %s (%d issues)\n", store.Path(), len(doc.Issues))
	return nil
}

func runPlanValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store := plan.NewStore(cfg.Project.PlanPath)
	doc, err := store.Load()
	if err != nil {
		return err
	}

	order, err := scheduler.New().Order(doc.BacklogIssues(), nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "plan ok: %d issues, delivery order %v\n", len(doc.Issues), order)
	return nil
}
