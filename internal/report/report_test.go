package report

import (
	"math"
	"testing"
	"time"

	"github.com/driftworks/conductor/internal/db"
)

func seededDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	if err := d.CreateRun("run-1", "widget-service"); err != nil {
		t.Fatalf("create run: %v", err)
	}
	// Issue 1: clean first-pass coding; testing took two attempts.
	must(t, d.LogStageAttempt("run-1", 1, "coding", 1, "success", "", "", time.Minute))
	must(t, d.LogStageAttempt("run-1", 1, "testing", 1, "retryable_failure", "tests", "1 failure", time.Minute))
	must(t, d.LogStageAttempt("run-1", 1, "testing", 2, "success", "", "", time.Minute))
	// Issue 2: coding first-pass too.
	must(t, d.LogStageAttempt("run-1", 2, "coding", 1, "success", "", "", time.Minute))
	must(t, d.FinishRun("run-1", 2, 0, 0))

	opened := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	must(t, d.LogDebugCycle("run-1", 1, "testing", "tests", 1, true, opened, opened.Add(12*time.Minute)))
	must(t, d.LogDebugCycle("run-1", 2, "testing", "tests", 2, false, opened, opened.Add(24*time.Minute)))
	return d
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func TestQueryStageStats(t *testing.T) {
	d := seededDB(t)

	stats, err := QueryStageStats(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("got %d stages, want 2", len(stats))
	}

	coding := stats[0]
	if coding.Stage != "coding" || coding.Attempts != 2 || coding.Successes != 2 {
		t.Errorf("coding = %+v", coding)
	}
	if coding.FirstPassPct != 100 {
		t.Errorf("coding first-pass = %f, want 100", coding.FirstPassPct)
	}

	testing_ := stats[1]
	if testing_.Stage != "testing" || testing_.Attempts != 2 || testing_.Successes != 1 || testing_.Failures != 1 {
		t.Errorf("testing = %+v", testing_)
	}
	// One issue attempted testing; its first attempt failed.
	if testing_.FirstPassPct != 0 {
		t.Errorf("testing first-pass = %f, want 0", testing_.FirstPassPct)
	}
}

func TestQueryCategoryStats(t *testing.T) {
	d := seededDB(t)

	stats, err := QueryCategoryStats(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("got %d categories, want 1", len(stats))
	}
	s := stats[0]
	if s.Category != "tests" || s.Cycles != 2 || s.Attempts != 3 {
		t.Errorf("stats = %+v", s)
	}
	if s.ResolvedPct != 50 {
		t.Errorf("resolved = %f, want 50", s.ResolvedPct)
	}
	// 12 and 24 minute cycles average to 18.
	if math.Abs(s.AvgMinutes-18) > 0.01 {
		t.Errorf("avg minutes = %f, want 18", s.AvgMinutes)
	}
}

func TestQueryRecentRuns(t *testing.T) {
	d := seededDB(t)

	runs, err := QueryRecentRuns(d, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].RunID != "run-1" || runs[0].Completed != 2 {
		t.Errorf("run = %+v", runs[0])
	}
}
