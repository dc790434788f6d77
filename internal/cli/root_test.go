package cli

import (
	"bytes"
	"strings"
	"testing"
)

func executeCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "test-version") {
		t.Errorf("expected version output to contain 'test-version', got: %s", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedSubcommands := []string{
		"run", "plan", "status", "report", "db", "version",
	}
	for _, sub := range expectedSubcommands {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing subcommand %q", sub)
		}
	}
}

func TestPlanSubcommands(t *testing.T) {
	for _, sub := range []string{"init", "validate"} {
		out, err := executeCommand("plan", sub, "--help")
		if err != nil {
			t.Fatalf("plan %s --help: %v", sub, err)
		}
		if !strings.Contains(out, sub) {
			t.Errorf("plan %s help output looks wrong: %s", sub, out)
		}
	}
}

func TestDBResetRequiresForce(t *testing.T) {
	_, err := executeCommand("db", "reset")
	if err == nil {
		t.Fatal("expected db reset without --force to fail")
	}
	if !strings.Contains(err.Error(), "--force") {
		t.Errorf("error should mention --force, got: %v", err)
	}
}
