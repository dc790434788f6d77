package issue

import "fmt"

// Status is the lifecycle state of an issue in the run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusReady      Status = "ready"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// Issue is one tracker issue as the orchestrator sees it. Created once from
// the tracker snapshot; only the orchestrator transitions its status.
type Issue struct {
	ID          int
	Title       string
	Description string
	DependsOn   []int
	Status      Status
}

// Validate checks that an issue id is positive.
func Validate(id int) error {
	if id <= 0 {
		return fmt.Errorf("invalid issue id %d: must be positive", id)
	}
	return nil
}

// BranchName derives the work branch for an issue. The mapping is
// deterministic so retries and re-runs land on the same branch.
func BranchName(prefix string, id int) string {
	if prefix == "" {
		prefix = "issue"
	}
	return fmt.Sprintf("%s/%d", prefix, id)
}
