package task

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/driftworks/conductor/internal/issue"
)

// BuildOpts carries everything a stage task needs.
type BuildOpts struct {
	Stage        string
	Issue        *issue.Issue
	Project      string
	Branch       string
	TargetBranch string
	Attempt      int
	// ErrorContext holds failure reasons from earlier attempts of the same
	// stage, oldest first.
	ErrorContext []string
}

// Build renders the task text for a stage.
func Build(opts BuildOpts) (string, error) {
	tmpl, ok := builtinTemplates[opts.Stage]
	if !ok {
		return "", fmt.Errorf("no task template for stage %q", opts.Stage)
	}

	errCtx := ""
	if len(opts.ErrorContext) > 0 {
		var b strings.Builder
		for i, msg := range opts.ErrorContext {
			fmt.Fprintf(&b, "%d. %s\n", i+1, msg)
		}
		errCtx = b.String()
	}

	return Render(tmpl, Vars{
		"issue_number":  strconv.Itoa(opts.Issue.ID),
		"issue_title":   opts.Issue.Title,
		"issue_body":    opts.Issue.Description,
		"project":       opts.Project,
		"branch":        opts.Branch,
		"target_branch": opts.TargetBranch,
		"attempt":       strconv.Itoa(opts.Attempt),
		"error_context": errCtx,
	})
}
