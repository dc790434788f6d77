// Package orchestrator runs a backlog: it orders issues by dependency,
// dispatches ready issues to a bounded worker pool, and records progress in
// the plan and run history. Issues whose prerequisites fail are skipped,
// never run against an incomplete base.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/driftworks/conductor/internal/db"
	"github.com/driftworks/conductor/internal/issue"
	"github.com/driftworks/conductor/internal/scheduler"
	"github.com/driftworks/conductor/internal/stage"
)

// StageRunner drives one issue through the delivery lifecycle.
type StageRunner interface {
	Run(ctx context.Context, wu *stage.WorkUnit) *stage.Result
}

// StatusSink receives per-issue status transitions (e.g. the plan store).
type StatusSink interface {
	UpdateStatus(id int, status issue.Status) error
}

// Orchestrator coordinates a run over the backlog.
type Orchestrator struct {
	runner       StageRunner
	db           *db.DB // optional; nil disables run history
	statuses     StatusSink
	project      string
	branchPrefix string
	workers      int
	progress     io.Writer // live progress output; nil = silent
}

// Opts configures an Orchestrator.
type Opts struct {
	Runner       StageRunner
	DB           *db.DB
	Statuses     StatusSink
	Project      string
	BranchPrefix string
	Workers      int // defaults to 1
}

// New creates an Orchestrator.
func New(opts Opts) *Orchestrator {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Orchestrator{
		runner:       opts.Runner,
		db:           opts.DB,
		statuses:     opts.Statuses,
		project:      opts.Project,
		branchPrefix: opts.BranchPrefix,
		workers:      workers,
	}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (o *Orchestrator) SetProgress(w io.Writer) {
	o.progress = w
}

// logf prints a progress line if a progress writer is configured.
func (o *Orchestrator) logf(format string, args ...interface{}) {
	if o.progress != nil {
		fmt.Fprintf(o.progress, "→ "+format+"\n", args...)
	}
}

// IssueResult is one issue's final state in the run report.
type IssueResult struct {
	Issue  int
	Title  string
	Status issue.Status
	Stage  *stage.Result // nil for skipped issues
	Reason string        // why a skipped issue was skipped
}

// RunReport summarizes a whole run.
type RunReport struct {
	RunID     string
	Results   []IssueResult
	Completed int
	Failed    int
	Skipped   int
}

// runState is the shared dispatch state guarded by mu.
type runState struct {
	mu        sync.Mutex
	cond      *sync.Cond
	order     []int
	byID      map[int]*issue.Issue
	completed map[int]bool
	failed    map[int]bool
	inFlight  map[int]bool
	results   map[int]IssueResult
}

// Run delivers the backlog. It returns an error only when no work can be
// attempted at all (an empty order after a dependency cycle, for example);
// per-issue failures are reported in the RunReport.
func (o *Orchestrator) Run(ctx context.Context, issues []*issue.Issue) (*RunReport, error) {
	runID := uuid.New().String()
	report := &RunReport{RunID: runID}

	completed := make(map[int]bool)
	for _, iss := range issues {
		if iss.Status == issue.StatusCompleted {
			completed[iss.ID] = true
		}
	}

	sched := scheduler.New()
	sched.SetProgress(o.progress)
	order, err := sched.Order(issues, completed)
	if err != nil {
		return nil, fmt.Errorf("schedule backlog: %w", err)
	}
	if len(order) == 0 {
		o.logf("nothing to do: backlog is complete")
		return report, nil
	}

	if o.db != nil {
		if err := o.db.CreateRun(runID, o.project); err != nil {
			return nil, fmt.Errorf("record run: %w", err)
		}
	}
	o.logf("run %s: %d issues, %d workers", runID[:8], len(order), o.workers)

	st := &runState{
		order:     order,
		byID:      make(map[int]*issue.Issue, len(issues)),
		completed: completed,
		failed:    make(map[int]bool),
		inFlight:  make(map[int]bool),
		results:   make(map[int]IssueResult),
	}
	st.cond = sync.NewCond(&st.mu)
	for _, iss := range issues {
		st.byID[iss.ID] = iss
	}
	for _, id := range order {
		o.logEvent(runID, id, "scheduled", "", "")
	}

	// Wake blocked workers when the context is canceled so they can drain.
	stopWake := context.AfterFunc(ctx, func() {
		st.mu.Lock()
		st.cond.Broadcast()
		st.mu.Unlock()
	})
	defer stopWake()

	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.worker(ctx, runID, st)
		}()
	}
	wg.Wait()

	for _, id := range order {
		if r, ok := st.results[id]; ok {
			report.Results = append(report.Results, r)
			switch r.Status {
			case issue.StatusCompleted:
				report.Completed++
			case issue.StatusFailed:
				report.Failed++
			case issue.StatusSkipped:
				report.Skipped++
			}
		}
	}
	if o.db != nil {
		_ = o.db.FinishRun(runID, report.Completed, report.Failed, report.Skipped)
	}
	o.logf("run %s finished: %d completed, %d failed, %d skipped", runID[:8], report.Completed, report.Failed, report.Skipped)
	return report, nil
}

// worker repeatedly claims a dispatchable issue and runs it until the
// backlog drains or the context is canceled.
func (o *Orchestrator) worker(ctx context.Context, runID string, st *runState) {
	for {
		iss, action := o.claim(ctx, st)
		switch action {
		case claimDone:
			return
		case claimSkip:
			o.finish(st, IssueResult{
				Issue:  iss.ID,
				Title:  iss.Title,
				Status: issue.StatusSkipped,
				Reason: fmt.Sprintf("prerequisite failed: %s", o.failedDeps(st, iss)),
			})
			o.setStatus(iss.ID, issue.StatusSkipped)
			o.logEvent(runID, iss.ID, "skipped", "", o.failedDeps(st, iss))
			o.logf("issue #%d skipped: %s", iss.ID, o.failedDeps(st, iss))
		case claimRun:
			o.deliver(ctx, runID, st, iss)
		}
	}
}

type claimAction int

const (
	claimDone claimAction = iota
	claimRun
	claimSkip
)

// claim atomically picks the next actionable issue. Readiness is evaluated
// under the lock at dequeue time, so an issue never starts before its
// prerequisites finished. Workers block until something becomes actionable
// or the run ends.
func (o *Orchestrator) claim(ctx context.Context, st *runState) (*issue.Issue, claimAction) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for {
		pendingAny := false
		for _, id := range st.order {
			if st.completed[id] || st.failed[id] || st.inFlight[id] {
				continue
			}
			if _, decided := st.results[id]; decided {
				continue
			}
			pendingAny = true
			iss := st.byID[id]

			if ctx.Err() != nil {
				// Drain: mark everything undecided as skipped.
				st.results[id] = IssueResult{Issue: id, Title: iss.Title, Status: issue.StatusSkipped, Reason: "run cancelled"}
				continue
			}

			ready := true
			blocked := false
			for _, dep := range iss.DependsOn {
				if st.failed[dep] || isSkipped(st, dep) {
					blocked = true
					break
				}
				if !st.completed[dep] {
					ready = false
				}
			}
			if blocked {
				st.inFlight[id] = true
				return iss, claimSkip
			}
			if ready {
				st.inFlight[id] = true
				return iss, claimRun
			}
		}

		if !pendingAny || ctx.Err() != nil {
			st.cond.Broadcast()
			return nil, claimDone
		}
		st.cond.Wait()
	}
}

// deliver runs one issue through the stage machine and records the result.
func (o *Orchestrator) deliver(ctx context.Context, runID string, st *runState, iss *issue.Issue) {
	branch := issue.BranchName(o.branchPrefix, iss.ID)
	o.setStatus(iss.ID, issue.StatusInProgress)
	o.logEvent(runID, iss.ID, "started", string(stage.Planning), "")
	o.logf("issue #%d (%s) started on %s", iss.ID, iss.Title, branch)

	wu := stage.NewWorkUnit(runID, iss, branch)
	res := o.runner.Run(ctx, wu)

	status := issue.StatusCompleted
	if res.Status != stage.Done {
		status = issue.StatusFailed
	}
	o.setStatus(iss.ID, status)
	if status == issue.StatusCompleted {
		o.logEvent(runID, iss.ID, "completed", string(res.FinalStage), "")
		o.logf("issue #%d completed", iss.ID)
	} else {
		detail := ""
		if res.Escalation != nil {
			detail = res.Escalation.Reason
		}
		o.logEvent(runID, iss.ID, "failed", string(res.FinalStage), detail)
		o.logf("issue #%d failed in %s: %s", iss.ID, res.FinalStage, detail)
	}
	o.logCycles(runID, iss.ID, res)

	o.finish(st, IssueResult{Issue: iss.ID, Title: iss.Title, Status: status, Stage: res})
}

// finish publishes a result and wakes waiting workers.
func (o *Orchestrator) finish(st *runState, r IssueResult) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.results[r.Issue] = r
	delete(st.inFlight, r.Issue)
	switch r.Status {
	case issue.StatusCompleted:
		st.completed[r.Issue] = true
	default:
		st.failed[r.Issue] = true
	}
	st.cond.Broadcast()
}

// failedDeps names the failed or skipped prerequisites of an issue.
func (o *Orchestrator) failedDeps(st *runState, iss *issue.Issue) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	var ids []int
	for _, dep := range iss.DependsOn {
		if st.failed[dep] || isSkipped(st, dep) {
			ids = append(ids, dep)
		}
	}
	sort.Ints(ids)
	s := ""
	for i, id := range ids {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("#%d", id)
	}
	return s
}

// isSkipped reports whether an issue was decided as skipped. Caller holds
// st.mu.
func isSkipped(st *runState, id int) bool {
	r, ok := st.results[id]
	return ok && r.Status == issue.StatusSkipped
}

// setStatus pushes a status transition to the plan, when one is wired.
func (o *Orchestrator) setStatus(id int, status issue.Status) {
	if o.statuses == nil {
		return
	}
	if err := o.statuses.UpdateStatus(id, status); err != nil {
		o.logf("issue #%d: status update failed: %v", id, err)
	}
}

// logEvent records a run event in history, when a database is wired.
func (o *Orchestrator) logEvent(runID string, iss int, event, stageName, detail string) {
	if o.db == nil {
		return
	}
	_ = o.db.LogRunEvent(runID, iss, event, stageName, detail)
}

// logCycles persists an issue's debugging cycles.
func (o *Orchestrator) logCycles(runID string, iss int, res *stage.Result) {
	if o.db == nil {
		return
	}
	for _, c := range res.Cycles {
		_ = o.db.LogDebugCycle(runID, iss, c.Stage, c.Category, len(c.Attempts), c.Resolved, c.OpenedAt, c.ClosedAt)
	}
}
