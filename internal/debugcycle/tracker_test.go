package debugcycle

import (
	"testing"
	"time"
)

// fakeClock advances a fixed step on every read.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	t := start
	return func() time.Time {
		now := t
		t = t.Add(step)
		return now
	}
}

func TestRecord_SameStageAndCategoryExtendsCycle(t *testing.T) {
	tr := NewTracker()
	tr.SetClock(fakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), time.Minute))

	tr.Record("testing", "tests", "2 failures in parser_test")
	tr.Record("testing", "tests", "1 failure in parser_test")
	tr.Resolve("testing")

	cycles := tr.Cycles()
	if len(cycles) != 1 {
		t.Fatalf("got %d cycles, want 1", len(cycles))
	}
	c := cycles[0]
	if len(c.Attempts) != 2 {
		t.Errorf("got %d attempts, want 2", len(c.Attempts))
	}
	if !c.Resolved || !c.Closed {
		t.Errorf("cycle should be closed resolved, got resolved=%v closed=%v", c.Resolved, c.Closed)
	}
	if c.Duration() != 2*time.Minute {
		t.Errorf("got duration %s, want 2m", c.Duration())
	}
}

func TestRecord_CategoryShiftOpensNewCycle(t *testing.T) {
	tr := NewTracker()
	tr.SetClock(fakeClock(time.Now(), time.Second))

	tr.Record("testing", "tests", "unit failures")
	tr.Record("testing", "build", "compile error after fix attempt")

	cycles := tr.Cycles()
	if len(cycles) != 2 {
		t.Fatalf("got %d cycles, want 2", len(cycles))
	}
	if !cycles[0].Closed || cycles[0].Resolved {
		t.Errorf("first cycle should be closed unresolved")
	}
	if cycles[1].Closed {
		t.Errorf("second cycle should still be open")
	}
	if cycles[1].Category != "build" {
		t.Errorf("got category %q, want build", cycles[1].Category)
	}
}

func TestRecord_StageShiftOpensNewCycle(t *testing.T) {
	tr := NewTracker()
	tr.SetClock(fakeClock(time.Now(), time.Second))

	tr.Record("testing", "tests", "unit failures")
	tr.Resolve("testing")
	tr.Record("review", "tests", "regression caught in review")

	cycles := tr.Cycles()
	if len(cycles) != 2 {
		t.Fatalf("got %d cycles, want 2", len(cycles))
	}
	if cycles[1].Stage != "review" {
		t.Errorf("got stage %q, want review", cycles[1].Stage)
	}
}

func TestExhaust(t *testing.T) {
	tr := NewTracker()
	tr.SetClock(fakeClock(time.Now(), time.Second))

	tr.Record("coding", "no_signal", "no completion signal")
	tr.Record("coding", "no_signal", "no completion signal")
	tr.Record("coding", "no_signal", "no completion signal")
	tr.Exhaust("coding")

	c := tr.Cycles()[0]
	if !c.Closed || c.Resolved {
		t.Errorf("exhausted cycle should be closed unresolved, got resolved=%v closed=%v", c.Resolved, c.Closed)
	}
}

func TestResolve_NoOpenCycleIsNoop(t *testing.T) {
	tr := NewTracker()
	tr.Resolve("planning")
	if len(tr.Cycles()) != 0 {
		t.Errorf("resolve without failures should record nothing")
	}
}

func TestSummarize(t *testing.T) {
	tr := NewTracker()
	tr.SetClock(fakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), time.Minute))

	tr.Record("testing", "tests", "fail 1")
	tr.Record("testing", "tests", "fail 2")
	tr.Resolve("testing")
	tr.Record("review", "lint", "style nits")
	tr.Exhaust("review")

	s := tr.Summarize()
	if s.Cycles != 2 {
		t.Errorf("got %d cycles, want 2", s.Cycles)
	}
	if s.Attempts != 3 {
		t.Errorf("got %d attempts, want 3", s.Attempts)
	}
	if s.Resolved != 1 || s.Exhausted != 1 {
		t.Errorf("got resolved=%d exhausted=%d, want 1 and 1", s.Resolved, s.Exhausted)
	}
	if s.ByCategory["tests"] != 1 || s.ByCategory["lint"] != 1 {
		t.Errorf("unexpected category distribution: %v", s.ByCategory)
	}
	if s.TotalTime <= 0 {
		t.Errorf("total time should be positive, got %s", s.TotalTime)
	}
}
