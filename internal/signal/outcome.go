package signal

// Kind is the closed set of stage outcome variants.
type Kind string

const (
	// Success means the stage finished and corroborating evidence was found.
	Success Kind = "success"
	// RetryableFailure means the stage should be retried with error context,
	// subject to the per-stage budget.
	RetryableFailure Kind = "retryable_failure"
	// FatalFailure stops the issue immediately, bypassing the retry budget.
	FatalFailure Kind = "fatal_failure"
	// AlreadySatisfied means the terminal condition is already observed at
	// the collaborator (e.g. the work was merged upstream).
	AlreadySatisfied Kind = "already_satisfied"
)

// Outcome is the parser's decision for one agent response.
type Outcome struct {
	Kind Kind
	// Reason is human-readable and becomes error context on retries.
	Reason string
	// Category buckets retryable failures for debugging cycles
	// (e.g. "tests", "build", "no_signal").
	Category string
	// Evidence is the corroborating reference found in the text, when any
	// (a pipeline id, commit, or merge request reference).
	Evidence string
}
