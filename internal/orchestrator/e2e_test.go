package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/driftworks/conductor/internal/issue"
	"github.com/driftworks/conductor/internal/plan"
	"github.com/driftworks/conductor/internal/stage"
	"github.com/driftworks/conductor/internal/verifier"
)

// scriptedAgent answers every task by stage marker, keyed off the task
// text, so the real parser and stage machine drive the flow.
type scriptedAgent struct {
	mu    sync.Mutex
	calls []string
	// failTestingOnce makes the first testing attempt of issue 2 report a
	// pipeline failure.
	failTestingOnce bool
	failedOnce      bool
}

func (a *scriptedAgent) Invoke(ctx context.Context, task string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, task)

	switch {
	case strings.Contains(task, "Stage: planning"):
		return "PLANNING_PHASE_COMPLETE: plan ready", nil
	case strings.Contains(task, "Stage: coding"):
		return "CODING_PHASE_COMPLETE: pushed", nil
	case strings.Contains(task, "Stage: testing"):
		if a.failTestingOnce && !a.failedOnce && strings.Contains(task, "Issue #2") {
			a.failedOnce = true
			return "PIPELINE_FAILED_TESTS: 1 failure in model_test", nil
		}
		return "TESTING_PHASE_COMPLETE: pipeline #41 passed", nil
	case strings.Contains(task, "Stage: review"):
		return "REVIEW_PHASE_COMPLETE: pipeline #42 passed", nil
	}
	return "", fmt.Errorf("unrecognized task:\n%s", task)
}

type passVerifier struct{}

func (passVerifier) Verify(ctx context.Context, branch, commit string) (*verifier.Result, error) {
	return &verifier.Result{Verdict: verifier.VerdictSuccess, Run: &verifier.PipelineRun{ID: 41, Commit: commit, Status: "success"}}, nil
}

type recordingIntegrator struct {
	mu     sync.Mutex
	merged []string
}

func (r *recordingIntegrator) Integrate(ctx context.Context, branch, target, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.merged = append(r.merged, branch)
	return nil
}

func (r *recordingIntegrator) Merged(ctx context.Context, branch string) (bool, error) {
	return false, nil
}

type fixedCommits struct{}

func (fixedCommits) HeadCommit(ctx context.Context, branch string) (string, error) {
	return "4e5f6071a2b", nil
}

// TestEndToEnd_BacklogDelivery wires the real stage machine, parser, and
// scheduler together; only the agent, CI, and tracker edges are scripted.
func TestEndToEnd_BacklogDelivery(t *testing.T) {
	planPath := filepath.Join(t.TempDir(), "plan.json")
	store := plan.NewStore(planPath)
	if err := store.Init(&plan.Document{
		Project: "widget-service",
		Issues: []plan.IssueRecord{
			{ID: 1, Title: "Skeleton"},
			{ID: 2, Title: "Model", Dependencies: []int{1}},
			{ID: 3, Title: "Endpoint", Dependencies: []int{2}},
		},
	}); err != nil {
		t.Fatalf("init plan: %v", err)
	}

	agent := &scriptedAgent{failTestingOnce: true}
	integ := &recordingIntegrator{}
	machine := stage.NewMachine(stage.Opts{
		Agent:       agent,
		Verifier:    passVerifier{},
		Integrator:  integ,
		Commits:     fixedCommits{},
		Project:     "group/widget-service",
		Target:      "main",
		MaxRetries:  3,
		TrustMerged: true,
	})

	o := New(Opts{
		Runner:       machine,
		Statuses:     store,
		Project:      "widget-service",
		BranchPrefix: "feature",
		Workers:      2,
	})

	doc, err := store.Load()
	if err != nil {
		t.Fatalf("load plan: %v", err)
	}
	report, err := o.Run(context.Background(), doc.BacklogIssues())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if report.Completed != 3 || report.Failed != 0 || report.Skipped != 0 {
		t.Fatalf("report = %d completed, %d failed, %d skipped", report.Completed, report.Failed, report.Skipped)
	}

	// Every issue merged exactly once.
	if len(integ.merged) != 3 {
		t.Errorf("merged branches = %v", integ.merged)
	}

	// Issue 2's pipeline failure cost one extra testing attempt, and the
	// retry task carried the failure reason.
	sawRetryContext := false
	for _, task := range agent.calls {
		if strings.Contains(task, "Stage: testing") && strings.Contains(task, "pipeline failed (tests)") {
			sawRetryContext = true
		}
	}
	if !sawRetryContext {
		t.Error("testing retry did not carry the pipeline failure context")
	}

	// The plan reflects final statuses.
	doc, err = store.Load()
	if err != nil {
		t.Fatalf("reload plan: %v", err)
	}
	for _, rec := range doc.Issues {
		if rec.Status != issue.StatusCompleted {
			t.Errorf("issue %d status = %s, want completed", rec.ID, rec.Status)
		}
	}
}
