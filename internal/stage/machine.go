package stage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/driftworks/conductor/internal/agent"
	"github.com/driftworks/conductor/internal/db"
	"github.com/driftworks/conductor/internal/debugcycle"
	"github.com/driftworks/conductor/internal/signal"
	"github.com/driftworks/conductor/internal/task"
	"github.com/driftworks/conductor/internal/verifier"
)

// PipelineVerifier confirms a branch head against CI.
type PipelineVerifier interface {
	Verify(ctx context.Context, branch, expectedCommit string) (*verifier.Result, error)
}

// Integrator merges finished work and answers merged-state queries.
type Integrator interface {
	Integrate(ctx context.Context, branch, target, title string) error
	Merged(ctx context.Context, branch string) (bool, error)
}

// CommitReader resolves branch heads.
type CommitReader interface {
	HeadCommit(ctx context.Context, branch string) (string, error)
}

// Machine executes the stage lifecycle for one issue at a time.
type Machine struct {
	agent       agent.Invoker
	parser      *signal.Parser
	verifier    PipelineVerifier
	integrator  Integrator
	commits     CommitReader
	db          *db.DB // optional; nil disables run history
	project     string
	target      string
	maxRetries  int
	trustMerged bool
	progress    io.Writer // live progress output; nil = silent
}

// Opts configures a Machine.
type Opts struct {
	Agent       agent.Invoker
	Verifier    PipelineVerifier
	Integrator  Integrator
	Commits     CommitReader
	DB          *db.DB
	Project     string
	Target      string
	MaxRetries  int // per-stage attempt budget; defaults to 3
	TrustMerged bool
}

// NewMachine creates a stage machine.
func NewMachine(opts Opts) *Machine {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Machine{
		agent:       opts.Agent,
		parser:      signal.NewParser(),
		verifier:    opts.Verifier,
		integrator:  opts.Integrator,
		commits:     opts.Commits,
		db:          opts.DB,
		project:     opts.Project,
		target:      opts.Target,
		maxRetries:  maxRetries,
		trustMerged: opts.TrustMerged,
	}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (m *Machine) SetProgress(w io.Writer) {
	m.progress = w
}

// logf prints a progress line if a progress writer is configured.
func (m *Machine) logf(format string, args ...interface{}) {
	if m.progress != nil {
		fmt.Fprintf(m.progress, "  → "+format+"\n", args...)
	}
}

// Result captures one issue's journey through the lifecycle.
type Result struct {
	Issue      int
	Status     Stage // Done or Failed
	FinalStage Stage // the stage reached when the run ended
	Attempts   int   // total agent invocations
	Cycles     []*debugcycle.Cycle
	Summary    debugcycle.Summary
	Escalation *Escalation // set when Status is Failed
}

// Run drives the work unit from its current stage to Done or Failed.
// Cancellation is honored at every suspension point; a canceled unit
// reports Failed with a cancellation escalation.
func (m *Machine) Run(ctx context.Context, wu *WorkUnit) *Result {
	tracker := debugcycle.NewTracker()
	res := &Result{Issue: wu.Issue.ID, FinalStage: wu.Current}

	if wu.Current == "" {
		wu.Current = Planning
	}

	for wu.Current != Done && wu.Current != Failed {
		st := wu.Current
		res.FinalStage = st

		if ctx.Err() != nil {
			m.fail(res, tracker, &Escalation{Issue: wu.Issue.ID, Stage: st, Attempt: wu.Attempts[st], Reason: "run cancelled"})
			return res
		}

		wu.Attempts[st]++
		attempt := wu.Attempts[st]
		res.Attempts++
		m.logf("issue #%d: %s attempt %d/%d", wu.Issue.ID, st, attempt, m.maxRetries)

		started := time.Now()
		outcome, err := m.runAttempt(ctx, wu, st, attempt)
		took := time.Since(started)
		if err != nil {
			// Only context errors surface from runAttempt.
			m.fail(res, tracker, &Escalation{Issue: wu.Issue.ID, Stage: st, Attempt: attempt, Reason: "run cancelled", Context: wu.ErrCtx[st]})
			return res
		}

		switch outcome.Kind {
		case signal.AlreadySatisfied:
			ok, err := m.confirmSatisfied(ctx, wu, outcome)
			if err != nil {
				m.fail(res, tracker, &Escalation{Issue: wu.Issue.ID, Stage: st, Attempt: attempt, Reason: "run cancelled"})
				return res
			}
			if ok {
				m.logf("issue #%d: already integrated (%s)", wu.Issue.ID, outcome.Evidence)
				m.logAttempt(wu, st, attempt, "already_satisfied", outcome, took)
				tracker.Resolve(string(st))
				wu.Current = Done
				continue
			}
			outcome = signal.Outcome{
				Kind:     signal.RetryableFailure,
				Reason:   fmt.Sprintf("agent claimed already merged (%s) but the tracker shows no merged request", outcome.Evidence),
				Category: "unverified_claim",
			}
			fallthrough

		case signal.RetryableFailure:
			m.logf("issue #%d: %s failed (%s): %s", wu.Issue.ID, st, outcome.Category, outcome.Reason)
			m.logAttempt(wu, st, attempt, "retryable_failure", outcome, took)
			tracker.Record(string(st), outcome.Category, outcome.Reason)
			wu.ErrCtx[st] = append(wu.ErrCtx[st], outcome.Reason)
			if attempt >= m.maxRetries {
				m.logf("issue #%d: %s retry budget exhausted", wu.Issue.ID, st)
				tracker.Exhaust(string(st))
				m.fail(res, tracker, &Escalation{
					Issue:   wu.Issue.ID,
					Stage:   st,
					Attempt: attempt,
					Reason:  fmt.Sprintf("%s failed %d times, last: %s", st, attempt, outcome.Reason),
					Context: wu.ErrCtx[st],
				})
				return res
			}

		case signal.FatalFailure:
			m.logf("issue #%d: fatal failure in %s: %s", wu.Issue.ID, st, outcome.Reason)
			m.logAttempt(wu, st, attempt, "fatal_failure", outcome, took)
			m.fail(res, tracker, &Escalation{
				Issue:   wu.Issue.ID,
				Stage:   st,
				Attempt: attempt,
				Reason:  outcome.Reason,
				Context: wu.ErrCtx[st],
			})
			return res

		case signal.Success:
			m.logf("issue #%d: %s complete", wu.Issue.ID, st)
			m.logAttempt(wu, st, attempt, "success", outcome, took)
			tracker.Resolve(string(st))
			wu.Current = st.Next()
		}
	}

	res.Status = wu.Current
	res.FinalStage = wu.Current
	res.Cycles = tracker.Cycles()
	res.Summary = tracker.Summarize()
	return res
}

// runAttempt invokes the agent for one stage attempt and interprets the
// transcript. Verified stages additionally check CI for the branch head as
// it stands after the agent returns. Returned errors are context errors
// only; everything else is folded into the outcome.
func (m *Machine) runAttempt(ctx context.Context, wu *WorkUnit, st Stage, attempt int) (signal.Outcome, error) {
	start := time.Now()

	text, err := task.Build(task.BuildOpts{
		Stage:        string(st),
		Issue:        wu.Issue,
		Project:      m.project,
		Branch:       wu.Branch,
		TargetBranch: m.target,
		Attempt:      attempt,
		ErrorContext: wu.ErrCtx[st],
	})
	if err != nil {
		return signal.Outcome{Kind: signal.FatalFailure, Reason: fmt.Sprintf("build task: %v", err), Category: "fatal"}, nil
	}

	transcript, err := m.agent.Invoke(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return signal.Outcome{}, ctx.Err()
		}
		return signal.Outcome{
			Kind:     signal.RetryableFailure,
			Reason:   fmt.Sprintf("agent invocation failed: %v", err),
			Category: "agent_error",
		}, nil
	}
	m.logf("issue #%d: agent finished %s in %s", wu.Issue.ID, st, time.Since(start).Round(time.Second))

	outcome := m.parser.Parse(string(st), transcript)
	if outcome.Kind != signal.Success {
		return outcome, nil
	}
	if !st.Verified() {
		return outcome, nil
	}
	return m.verifyStage(ctx, wu, st, outcome)
}

// verifyStage confirms a verified stage's success claim: the branch head is
// read after the agent returns, and only a green pipeline for that exact
// commit counts. Review additionally merges the branch.
func (m *Machine) verifyStage(ctx context.Context, wu *WorkUnit, st Stage, outcome signal.Outcome) (signal.Outcome, error) {
	head, err := m.commits.HeadCommit(ctx, wu.Branch)
	if err != nil {
		if ctx.Err() != nil {
			return signal.Outcome{}, ctx.Err()
		}
		return signal.Outcome{
			Kind:     signal.RetryableFailure,
			Reason:   fmt.Sprintf("cannot resolve head of %s: %v", wu.Branch, err),
			Category: "verification",
		}, nil
	}

	vres, err := m.verifier.Verify(ctx, wu.Branch, head)
	if err != nil {
		if ctx.Err() != nil {
			return signal.Outcome{}, ctx.Err()
		}
		return signal.Outcome{
			Kind:     signal.RetryableFailure,
			Reason:   fmt.Sprintf("pipeline verification error: %v", err),
			Category: "verification",
		}, nil
	}

	switch vres.Verdict {
	case verifier.VerdictSuccess:
		// fall through to integration below
	case verifier.VerdictFailed:
		return signal.Outcome{
			Kind:     signal.RetryableFailure,
			Reason:   vres.Reason,
			Category: "pipeline",
		}, nil
	default:
		return signal.Outcome{
			Kind:     signal.RetryableFailure,
			Reason:   vres.Reason,
			Category: "verification",
		}, nil
	}

	if st != Review {
		return outcome, nil
	}

	title := fmt.Sprintf("Resolve #%d: %s", wu.Issue.ID, wu.Issue.Title)
	if err := m.integrator.Integrate(ctx, wu.Branch, m.target, title); err != nil {
		if ctx.Err() != nil {
			return signal.Outcome{}, ctx.Err()
		}
		return signal.Outcome{
			Kind:     signal.RetryableFailure,
			Reason:   fmt.Sprintf("integration failed: %v", err),
			Category: "integration",
		}, nil
	}
	m.logf("issue #%d: merged %s into %s", wu.Issue.ID, wu.Branch, m.target)
	return outcome, nil
}

// confirmSatisfied decides whether to trust an already-merged claim. With
// trustMerged set the cited merge request is taken at its word; otherwise
// the tracker is consulted.
func (m *Machine) confirmSatisfied(ctx context.Context, wu *WorkUnit, outcome signal.Outcome) (bool, error) {
	if m.trustMerged {
		return true, nil
	}
	merged, err := m.integrator.Merged(ctx, wu.Branch)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return merged, nil
}

// fail finalizes a result as Failed.
func (m *Machine) fail(res *Result, tracker *debugcycle.Tracker, esc *Escalation) {
	res.Status = Failed
	res.FinalStage = esc.Stage
	res.Escalation = esc
	res.Cycles = tracker.Cycles()
	res.Summary = tracker.Summarize()
}

// logAttempt records the attempt in run history when a database is wired.
func (m *Machine) logAttempt(wu *WorkUnit, st Stage, attempt int, outcome string, sig signal.Outcome, took time.Duration) {
	if m.db == nil {
		return
	}
	_ = m.db.LogStageAttempt(wu.RunID, wu.Issue.ID, string(st), attempt, outcome, sig.Category, sig.Reason, took)
}
