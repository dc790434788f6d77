// Package ci talks to the issue tracker and CI system through the glab CLI,
// and to the repository through git. Everything goes through small runner
// interfaces so tests can script command output.
package ci

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CmdRunner provides glab command execution. Interface for testing.
type CmdRunner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// GitRunner provides git command execution. Interface for testing.
type GitRunner interface {
	RunGit(ctx context.Context, args ...string) (string, error)
}

// ExecRunner runs glab and git commands via exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "glab", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("glab %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// RunGit implements GitRunner using exec.CommandContext.
func (r *ExecRunner) RunGit(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}
