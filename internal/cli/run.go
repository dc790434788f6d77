package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/driftworks/conductor/internal/agent"
	"github.com/driftworks/conductor/internal/ci"
	"github.com/driftworks/conductor/internal/orchestrator"
	"github.com/driftworks/conductor/internal/plan"
	"github.com/driftworks/conductor/internal/stage"
	"github.com/driftworks/conductor/internal/verifier"
)

var runWorkers int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Deliver the issue backlog",
	Long: `Run delivers every pending issue in the plan: dependencies first, up to
the configured number of issues in parallel. Each issue is driven through
planning, coding, testing and review; testing and review only pass once a
green pipeline for the branch head is observed, and review ends with the
branch merged into the target.

Interrupting the run (Ctrl-C) stops in-flight issues at their next
suspension point and marks unstarted issues skipped. Completed issues
keep their status in the plan, so the next run resumes where this one
stopped.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "concurrent issues (overrides config)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store := plan.NewStore(cfg.Project.PlanPath)
	doc, err := store.Load()
	if err != nil {
		return err
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	client := ci.NewClient(&ci.ExecRunner{}, cfg.Project.Repo)

	ver := verifier.New(client)
	ver.SetPollInterval(cfg.PollInterval())
	ver.SetBudget(cfg.VerifyBudget())
	ver.SetTransientRetries(cfg.Pipeline.TransientRetries)
	ver.SetProgress(cmd.ErrOrStderr())

	invoker := agent.NewClaudeInvoker(cfg.Agent.Command, cfg.Agent.Model, cfg.Agent.Flags, cfg.AgentTimeout())

	machine := stage.NewMachine(stage.Opts{
		Agent:       invoker,
		Verifier:    ver,
		Integrator:  client,
		Commits:     client,
		DB:          database,
		Project:     cfg.Project.Name,
		Target:      cfg.Project.TargetBranch,
		MaxRetries:  cfg.Run.MaxRetries,
		TrustMerged: cfg.TrustAlreadyMerged(),
	})
	machine.SetProgress(cmd.ErrOrStderr())

	workers := cfg.Run.Workers
	if runWorkers > 0 {
		workers = runWorkers
	}
	orch := orchestrator.New(orchestrator.Opts{
		Runner:       machine,
		DB:           database,
		Statuses:     store,
		Project:      cfg.Project.Name,
		BranchPrefix: cfg.Project.BranchPrefix,
		Workers:      workers,
	})
	orch.SetProgress(cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := orch.Run(ctx, doc.BacklogIssues())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d completed, %d failed, %d skipped\n",
		report.RunID, report.Completed, report.Failed, report.Skipped)
	for _, r := range report.Results {
		if r.Stage != nil && r.Stage.Escalation != nil {
			esc := r.Stage.Escalation
			fmt.Fprintf(out, "  issue #%d needs attention (%s): %s\n", esc.Issue, esc.Stage, esc.Reason)
		}
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d issue(s) failed", report.Failed)
	}
	return nil
}
