// Package plan holds the project plan document: the architecture summary
// and the issue backlog, with per-issue delivery status. The plan is the
// single source of truth a run reads its backlog from and writes progress
// back to.
package plan

import (
	"fmt"
	"time"

	"github.com/driftworks/conductor/internal/issue"
)

// Architecture describes the planned shape of the system under delivery.
type Architecture struct {
	InterfaceType string   `json:"interface_type"` // e.g. "cli", "http-api", "library"
	ModuleLayout  []string `json:"module_layout,omitempty"`
	Entities      []string `json:"entities,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// IssueRecord is one backlog entry as stored in the plan document.
type IssueRecord struct {
	ID           int          `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Dependencies []int        `json:"dependencies,omitempty"`
	Status       issue.Status `json:"status"`
}

// Document is the full plan file.
type Document struct {
	Project      string        `json:"project"`
	Architecture Architecture  `json:"architecture"`
	Issues       []IssueRecord `json:"issues"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// BacklogIssues converts the document's records into scheduler-ready issues.
// Dependencies stored on the record win over any parsed from the description.
func (d *Document) BacklogIssues() []*issue.Issue {
	out := make([]*issue.Issue, 0, len(d.Issues))
	for _, rec := range d.Issues {
		deps := rec.Dependencies
		if len(deps) == 0 {
			deps = issue.ParseDependencies(rec.Description)
		}
		status := rec.Status
		if status == "" {
			status = issue.StatusPending
		}
		out = append(out, &issue.Issue{
			ID:          rec.ID,
			Title:       rec.Title,
			Description: rec.Description,
			DependsOn:   deps,
			Status:      status,
		})
	}
	return out
}

// Find returns the record with the given id.
func (d *Document) Find(id int) (*IssueRecord, error) {
	for i := range d.Issues {
		if d.Issues[i].ID == id {
			return &d.Issues[i], nil
		}
	}
	return nil, fmt.Errorf("issue #%d not in plan", id)
}

// Validate checks the document for structural problems: duplicate ids and
// dependencies on issues the plan does not contain.
func (d *Document) Validate() error {
	if d.Project == "" {
		return fmt.Errorf("plan has no project name")
	}
	seen := make(map[int]bool, len(d.Issues))
	for _, rec := range d.Issues {
		if err := issue.Validate(rec.ID); err != nil {
			return fmt.Errorf("issue %q: %w", rec.Title, err)
		}
		if seen[rec.ID] {
			return fmt.Errorf("duplicate issue id %d", rec.ID)
		}
		seen[rec.ID] = true
	}
	for _, rec := range d.Issues {
		for _, dep := range rec.Dependencies {
			if !seen[dep] {
				return fmt.Errorf("issue #%d depends on #%d, which is not in the plan", rec.ID, dep)
			}
		}
	}
	return nil
}
