// Package verifier confirms a branch's work by polling its CI pipeline
// until a verdict is reached or the time budget runs out. A verdict only
// counts when the pipeline ran against the exact commit being verified;
// stale runs from earlier pushes are ignored.
package verifier

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Verdict is the verifier's final word on a branch head.
type Verdict string

const (
	// VerdictSuccess means a pipeline for the expected commit finished green.
	VerdictSuccess Verdict = "success"
	// VerdictFailed means a pipeline for the expected commit failed or was
	// canceled.
	VerdictFailed Verdict = "failed"
	// VerdictTimeout means no matching pipeline reached a terminal status
	// within the budget.
	VerdictTimeout Verdict = "timeout"
)

// Job is one pipeline job's name and status, carried through for failure
// context on retries.
type Job struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// PipelineRun is a CI pipeline snapshot.
type PipelineRun struct {
	ID        int       `json:"id"`
	Commit    string    `json:"sha"`
	Status    string    `json:"status"`
	Ref       string    `json:"ref"`
	WebURL    string    `json:"web_url,omitempty"`
	Jobs      []Job     `json:"jobs,omitempty"`
	FetchedAt time.Time `json:"-"`
}

// Terminal reports whether the run's status will not change anymore.
func (r *PipelineRun) Terminal() bool {
	switch r.Status {
	case "success", "failed", "canceled", "skipped":
		return true
	}
	return false
}

// CIReader reads pipeline state from the CI system.
type CIReader interface {
	// LatestPipeline returns the most recent pipeline on the branch, or an
	// error when none exists yet.
	LatestPipeline(ctx context.Context, branch string) (*PipelineRun, error)
	// Pipeline returns one pipeline by id.
	Pipeline(ctx context.Context, id int) (*PipelineRun, error)
}

// Result is the verifier's answer, including the run it judged when one
// matched the expected commit.
type Result struct {
	Verdict Verdict
	Run     *PipelineRun
	// Reason explains failed and timeout verdicts.
	Reason string
}

// Verifier polls CI until a commit-matched pipeline settles.
type Verifier struct {
	ci             CIReader
	pollInterval   time.Duration // defaults to 30s
	budget         time.Duration // defaults to 20m
	transientRetry int           // consecutive fetch errors tolerated; defaults to 2
	transientDelay time.Duration // backoff base between fetch retries
	progress       io.Writer     // live progress output; nil = silent
}

// New creates a Verifier with production polling defaults.
func New(ci CIReader) *Verifier {
	return &Verifier{
		ci:             ci,
		pollInterval:   30 * time.Second,
		budget:         20 * time.Minute,
		transientRetry: 2,
		transientDelay: 5 * time.Second,
	}
}

// SetPollInterval overrides the poll interval (for testing).
func (v *Verifier) SetPollInterval(d time.Duration) {
	v.pollInterval = d
}

// SetBudget overrides the overall verification budget (for testing).
func (v *Verifier) SetBudget(d time.Duration) {
	v.budget = d
}

// SetTransientRetries overrides how many consecutive fetch errors are
// tolerated before the verdict becomes a timeout.
func (v *Verifier) SetTransientRetries(n int) {
	if n >= 0 {
		v.transientRetry = n
	}
}

// SetTransientDelay overrides the fetch-retry backoff base (for testing).
func (v *Verifier) SetTransientDelay(d time.Duration) {
	v.transientDelay = d
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (v *Verifier) SetProgress(w io.Writer) {
	v.progress = w
}

// logf prints a progress line if a progress writer is configured.
func (v *Verifier) logf(format string, args ...interface{}) {
	if v.progress != nil {
		fmt.Fprintf(v.progress, "  → "+format+"\n", args...)
	}
}

// Verify polls the branch's pipelines until one matching expectedCommit
// reaches a terminal status. Fetch errors are retried with backoff; a run
// of errors past the retry budget produces a timeout verdict, never a pass.
// Context cancellation aborts at the next wait and returns ctx.Err().
func (v *Verifier) Verify(ctx context.Context, branch, expectedCommit string) (*Result, error) {
	deadline := time.Now().Add(v.budget)
	v.logf("verifying %s at %s (budget %s)", branch, short(expectedCommit), v.budget)

	errStreak := 0
	matchedID := 0
	for {
		if time.Now().After(deadline) {
			return &Result{
				Verdict: VerdictTimeout,
				Reason:  fmt.Sprintf("no pipeline for commit %s reached a terminal status within %s", short(expectedCommit), v.budget),
			}, nil
		}

		run, err := v.fetch(ctx, branch, matchedID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errStreak++
			if errStreak > v.transientRetry {
				return &Result{
					Verdict: VerdictTimeout,
					Reason:  fmt.Sprintf("pipeline status unavailable: %v", err),
				}, nil
			}
			v.logf("pipeline fetch failed (attempt %d/%d): %v", errStreak, v.transientRetry+1, err)
			if err := v.sleep(ctx, v.transientDelay*time.Duration(errStreak)); err != nil {
				return nil, err
			}
			continue
		}
		errStreak = 0

		if run.Commit != expectedCommit {
			// A run for an older push proves nothing about this commit.
			v.logf("latest pipeline #%d is for %s, waiting for %s", run.ID, short(run.Commit), short(expectedCommit))
			if err := v.sleep(ctx, v.pollInterval); err != nil {
				return nil, err
			}
			continue
		}

		// Once matched, follow this pipeline by id so a later unrelated
		// push cannot swap the run out from under us.
		matchedID = run.ID

		switch run.Status {
		case "success":
			v.logf("pipeline #%d passed for %s", run.ID, short(run.Commit))
			return &Result{Verdict: VerdictSuccess, Run: run}, nil
		case "failed", "canceled":
			v.logf("pipeline #%d %s for %s", run.ID, run.Status, short(run.Commit))
			return &Result{
				Verdict: VerdictFailed,
				Run:     run,
				Reason:  fmt.Sprintf("pipeline #%d %s: %s", run.ID, run.Status, failedJobs(run)),
			}, nil
		default:
			// pending, running, created, or anything unrecognised: keep
			// polling until terminal or out of budget.
			if err := v.sleep(ctx, v.pollInterval); err != nil {
				return nil, err
			}
		}
	}
}

// fetch returns the pipeline to judge: the matched pipeline by id once one
// has been pinned, otherwise the branch's latest.
func (v *Verifier) fetch(ctx context.Context, branch string, matchedID int) (*PipelineRun, error) {
	if matchedID != 0 {
		return v.ci.Pipeline(ctx, matchedID)
	}
	return v.ci.LatestPipeline(ctx, branch)
}

// sleep waits for d or until the context is canceled.
func (v *Verifier) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// failedJobs names the jobs that did not pass, for error context.
func failedJobs(run *PipelineRun) string {
	names := ""
	for _, j := range run.Jobs {
		if j.Status == "success" {
			continue
		}
		if names != "" {
			names += ", "
		}
		names += fmt.Sprintf("%s (%s)", j.Name, j.Status)
	}
	if names == "" {
		return "no job details"
	}
	return names
}

// short abbreviates a commit sha for log output.
func short(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
