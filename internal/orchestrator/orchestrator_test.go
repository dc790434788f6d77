package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/driftworks/conductor/internal/issue"
	"github.com/driftworks/conductor/internal/stage"
)

// mockRunner resolves each issue according to a scripted outcome map and
// records execution order and concurrency.
type mockRunner struct {
	mu       sync.Mutex
	outcomes map[int]stage.Stage // Done or Failed; missing means Done
	delay    time.Duration
	started  []int
	active   int
	peak     int
}

func (m *mockRunner) Run(ctx context.Context, wu *stage.WorkUnit) *stage.Result {
	m.mu.Lock()
	m.started = append(m.started, wu.Issue.ID)
	m.active++
	if m.active > m.peak {
		m.peak = m.active
	}
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	m.active--
	status, ok := m.outcomes[wu.Issue.ID]
	m.mu.Unlock()
	if !ok {
		status = stage.Done
	}

	res := &stage.Result{Issue: wu.Issue.ID, Status: status, FinalStage: status}
	if status == stage.Failed {
		res.FinalStage = stage.Coding
		res.Escalation = &stage.Escalation{Issue: wu.Issue.ID, Stage: stage.Coding, Reason: "retry budget exhausted"}
	}
	return res
}

// statusRecorder captures plan status transitions.
type statusRecorder struct {
	mu          sync.Mutex
	transitions map[int][]issue.Status
}

func newStatusRecorder() *statusRecorder {
	return &statusRecorder{transitions: make(map[int][]issue.Status)}
}

func (s *statusRecorder) UpdateStatus(id int, status issue.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions[id] = append(s.transitions[id], status)
	return nil
}

func backlog() []*issue.Issue {
	return []*issue.Issue{
		{ID: 1, Title: "Skeleton", Status: issue.StatusPending},
		{ID: 2, Title: "Model", DependsOn: []int{1}, Status: issue.StatusPending},
		{ID: 3, Title: "Endpoint", DependsOn: []int{1, 2}, Status: issue.StatusPending},
	}
}

func TestRun_DependencyOrder(t *testing.T) {
	runner := &mockRunner{}
	o := New(Opts{Runner: runner, Project: "p", BranchPrefix: "feature", Workers: 1})

	report, err := o.Run(context.Background(), backlog())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Completed != 3 || report.Failed != 0 || report.Skipped != 0 {
		t.Fatalf("report = %d/%d/%d", report.Completed, report.Failed, report.Skipped)
	}
	want := []int{1, 2, 3}
	for i, id := range want {
		if runner.started[i] != id {
			t.Fatalf("execution order = %v, want %v", runner.started, want)
		}
	}
}

func TestRun_FailedPrerequisiteSkipsDependents(t *testing.T) {
	runner := &mockRunner{outcomes: map[int]stage.Stage{1: stage.Failed}}
	statuses := newStatusRecorder()
	o := New(Opts{Runner: runner, Statuses: statuses, Project: "p", BranchPrefix: "feature", Workers: 1})

	report, err := o.Run(context.Background(), backlog())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Failed != 1 || report.Skipped != 2 || report.Completed != 0 {
		t.Fatalf("report = %d completed, %d failed, %d skipped", report.Completed, report.Failed, report.Skipped)
	}
	if len(runner.started) != 1 {
		t.Errorf("only issue 1 should run, ran %v", runner.started)
	}

	var skipped *IssueResult
	for i := range report.Results {
		if report.Results[i].Issue == 2 {
			skipped = &report.Results[i]
		}
	}
	if skipped == nil || skipped.Status != issue.StatusSkipped {
		t.Fatalf("issue 2 result = %+v", skipped)
	}
	if skipped.Reason == "" {
		t.Error("skip reason should name the failed prerequisite")
	}
	if got := statuses.transitions[2]; len(got) != 1 || got[0] != issue.StatusSkipped {
		t.Errorf("issue 2 transitions = %v", got)
	}
}

func TestRun_IndependentIssuesRunConcurrently(t *testing.T) {
	issues := []*issue.Issue{
		{ID: 1, Title: "A", Status: issue.StatusPending},
		{ID: 2, Title: "B", Status: issue.StatusPending},
		{ID: 3, Title: "C", Status: issue.StatusPending},
	}
	runner := &mockRunner{delay: 50 * time.Millisecond}
	o := New(Opts{Runner: runner, Project: "p", BranchPrefix: "feature", Workers: 3})

	report, err := o.Run(context.Background(), issues)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Completed != 3 {
		t.Fatalf("completed = %d", report.Completed)
	}
	if runner.peak < 2 {
		t.Errorf("peak concurrency = %d, want >= 2", runner.peak)
	}
}

func TestRun_WorkersNeverOutrunDependencies(t *testing.T) {
	// Plenty of workers, but the chain forces serial execution.
	runner := &mockRunner{delay: 20 * time.Millisecond}
	o := New(Opts{Runner: runner, Project: "p", BranchPrefix: "feature", Workers: 4})

	if _, err := o.Run(context.Background(), backlog()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.peak != 1 {
		t.Errorf("peak concurrency = %d, want 1 for a strict chain", runner.peak)
	}
	want := []int{1, 2, 3}
	for i, id := range want {
		if runner.started[i] != id {
			t.Fatalf("execution order = %v, want %v", runner.started, want)
		}
	}
}

func TestRun_CompletedIssuesExcluded(t *testing.T) {
	issues := backlog()
	issues[0].Status = issue.StatusCompleted
	runner := &mockRunner{}
	o := New(Opts{Runner: runner, Project: "p", BranchPrefix: "feature", Workers: 1})

	report, err := o.Run(context.Background(), issues)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Completed != 2 {
		t.Fatalf("completed = %d, want 2 (issue 1 pre-completed)", report.Completed)
	}
	for _, id := range runner.started {
		if id == 1 {
			t.Error("pre-completed issue must not run again")
		}
	}
}

func TestRun_CycleAborts(t *testing.T) {
	issues := []*issue.Issue{
		{ID: 1, Title: "A", DependsOn: []int{2}, Status: issue.StatusPending},
		{ID: 2, Title: "B", DependsOn: []int{1}, Status: issue.StatusPending},
	}
	o := New(Opts{Runner: &mockRunner{}, Project: "p", BranchPrefix: "feature", Workers: 1})

	if _, err := o.Run(context.Background(), issues); err == nil {
		t.Fatal("a dependency cycle must abort the run")
	}
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &mockRunner{delay: 30 * time.Millisecond}
	o := New(Opts{Runner: runner, Project: "p", BranchPrefix: "feature", Workers: 1})

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	report, err := o.Run(ctx, backlog())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Whatever had not started is skipped, nothing hangs.
	if got := report.Completed + report.Failed + report.Skipped; got != 3 {
		t.Errorf("all issues must be accounted for, got %d", got)
	}
	if report.Skipped == 0 {
		t.Error("cancellation should skip unstarted issues")
	}
}

func TestRun_EmptyBacklog(t *testing.T) {
	o := New(Opts{Runner: &mockRunner{}, Project: "p", BranchPrefix: "feature"})
	report, err := o.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Results) != 0 {
		t.Errorf("results = %v", report.Results)
	}
}

func TestRun_StatusTransitions(t *testing.T) {
	runner := &mockRunner{}
	statuses := newStatusRecorder()
	o := New(Opts{Runner: runner, Statuses: statuses, Project: "p", BranchPrefix: "feature", Workers: 1})

	if _, err := o.Run(context.Background(), backlog()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, id := range []int{1, 2, 3} {
		got := statuses.transitions[id]
		if len(got) != 2 || got[0] != issue.StatusInProgress || got[1] != issue.StatusCompleted {
			t.Errorf("issue %d transitions = %v, want [in_progress completed]", id, got)
		}
	}
}
