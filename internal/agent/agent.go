// Package agent invokes the coding agent as a one-shot subprocess and
// returns its transcript for signal parsing.
package agent

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Invoker runs the agent on a task and returns its full text output.
type Invoker interface {
	Invoke(ctx context.Context, task string) (string, error)
}

// ClaudeInvoker runs tasks through the claude CLI in print mode.
type ClaudeInvoker struct {
	command string
	model   string
	flags   []string
	timeout time.Duration
}

// NewClaudeInvoker creates an invoker. Empty command defaults to "claude";
// a zero timeout defaults to 30 minutes.
func NewClaudeInvoker(command, model string, flags []string, timeout time.Duration) *ClaudeInvoker {
	if command == "" {
		command = "claude"
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &ClaudeInvoker{command: command, model: model, flags: flags, timeout: timeout}
}

// Invoke runs `<command> --print [--model M] [flags...] <task>` and returns
// the trimmed transcript. The subprocess is killed when the context is
// canceled or the timeout elapses.
func (c *ClaudeInvoker) Invoke(ctx context.Context, task string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := []string{"--print"}
	if c.model != "" {
		args = append(args, "--model", c.model)
	}
	args = append(args, c.flags...)
	args = append(args, task)

	cmd := exec.CommandContext(ctx, c.command, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("agent: %w", ctx.Err())
		}
		return "", fmt.Errorf("%s --print: %s: %w", c.command, strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}
