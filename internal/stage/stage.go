// Package stage drives one issue through the delivery lifecycle:
// planning, coding, testing, review, then merge. Each stage runs the agent,
// parses its completion signal, and for verified stages confirms the claim
// against CI before advancing.
package stage

import "github.com/driftworks/conductor/internal/issue"

// Stage is one step of the delivery lifecycle.
type Stage string

const (
	Planning Stage = "planning"
	Coding   Stage = "coding"
	Testing  Stage = "testing"
	Review   Stage = "review"
	Done     Stage = "done"
	Failed   Stage = "failed"
)

// Next returns the stage that follows on success.
func (s Stage) Next() Stage {
	switch s {
	case Planning:
		return Coding
	case Coding:
		return Testing
	case Testing:
		return Review
	case Review:
		return Done
	}
	return s
}

// Verified reports whether a stage's success claim must be confirmed
// against a CI pipeline for the branch head.
func (s Stage) Verified() bool {
	return s == Testing || s == Review
}

// WorkUnit is one issue's mutable delivery state. Attempt counters and
// error context are per stage; a failure in testing never leaks context
// into review.
type WorkUnit struct {
	RunID    string
	Issue    *issue.Issue
	Branch   string
	Current  Stage
	Attempts map[Stage]int
	ErrCtx   map[Stage][]string
}

// NewWorkUnit creates a work unit starting at planning.
func NewWorkUnit(runID string, iss *issue.Issue, branch string) *WorkUnit {
	return &WorkUnit{
		RunID:    runID,
		Issue:    iss,
		Branch:   branch,
		Current:  Planning,
		Attempts: make(map[Stage]int),
		ErrCtx:   make(map[Stage][]string),
	}
}

// Escalation describes why an issue needs a human, with the context the
// last attempts produced.
type Escalation struct {
	Issue   int
	Stage   Stage
	Attempt int
	Reason  string
	Context []string
}
