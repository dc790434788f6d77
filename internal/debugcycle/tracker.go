// Package debugcycle records repeated failure-and-retry loops so that runs
// can report where agent time actually went. A cycle opens on the first
// retryable failure of a stage+category pair and collects every subsequent
// attempt until the failure is resolved or the retry budget is exhausted.
package debugcycle

import "time"

// Attempt is one recorded failure inside a cycle.
type Attempt struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Cycle is one contiguous debugging loop on a single stage.
type Cycle struct {
	Stage    string    `json:"stage"`
	Category string    `json:"category"`
	Attempts []Attempt `json:"attempts"`
	// Resolved is true when the stage eventually succeeded; false means the
	// retry budget ran out.
	Resolved bool `json:"resolved"`
	// Closed marks the cycle finished either way.
	Closed   bool      `json:"closed"`
	OpenedAt time.Time `json:"opened_at"`
	ClosedAt time.Time `json:"closed_at,omitempty"`
}

// Duration is the wall-clock span of the cycle. Open cycles measure up to
// the last recorded attempt.
func (c *Cycle) Duration() time.Duration {
	if c.Closed {
		return c.ClosedAt.Sub(c.OpenedAt)
	}
	if n := len(c.Attempts); n > 0 {
		return c.Attempts[n-1].At.Sub(c.OpenedAt)
	}
	return 0
}

// Tracker accumulates debugging cycles for one issue's run. It is not
// safe for concurrent use; each work unit owns its own tracker.
type Tracker struct {
	cycles []*Cycle
	now    func() time.Time
}

// NewTracker creates a Tracker using the wall clock.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// SetClock overrides the tracker's clock (for testing).
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// Record notes a retryable failure on a stage. A new attempt joins the
// open cycle when stage and category match; otherwise the open cycle is
// closed unresolved and a fresh one opens.
func (t *Tracker) Record(stage, category, message string) {
	now := t.now()
	if c := t.open(); c != nil {
		if c.Stage == stage && c.Category == category {
			c.Attempts = append(c.Attempts, Attempt{Message: message, At: now})
			return
		}
		// The failure mode shifted; the old loop never resolved.
		c.Closed = true
		c.ClosedAt = now
	}
	t.cycles = append(t.cycles, &Cycle{
		Stage:    stage,
		Category: category,
		Attempts: []Attempt{{Message: message, At: now}},
		OpenedAt: now,
	})
}

// Resolve closes the open cycle on the stage as resolved. It is a no-op
// when no cycle is open, so success paths can call it unconditionally.
func (t *Tracker) Resolve(stage string) {
	c := t.open()
	if c == nil || c.Stage != stage {
		return
	}
	c.Resolved = true
	c.Closed = true
	c.ClosedAt = t.now()
}

// Exhaust closes the open cycle on the stage as unresolved, recording that
// the retry budget ran out.
func (t *Tracker) Exhaust(stage string) {
	c := t.open()
	if c == nil || c.Stage != stage {
		return
	}
	c.Resolved = false
	c.Closed = true
	c.ClosedAt = t.now()
}

// open returns the current open cycle, or nil.
func (t *Tracker) open() *Cycle {
	if n := len(t.cycles); n > 0 && !t.cycles[n-1].Closed {
		return t.cycles[n-1]
	}
	return nil
}

// Cycles returns all recorded cycles in order.
func (t *Tracker) Cycles() []*Cycle {
	return t.cycles
}

// Summary aggregates the tracker's cycles.
type Summary struct {
	Cycles     int            `json:"cycles"`
	Attempts   int            `json:"attempts"`
	Resolved   int            `json:"resolved"`
	Exhausted  int            `json:"exhausted"`
	TotalTime  time.Duration  `json:"total_time"`
	ByCategory map[string]int `json:"by_category"`
}

// Summarize computes aggregate counts over all closed and open cycles.
func (t *Tracker) Summarize() Summary {
	s := Summary{ByCategory: make(map[string]int)}
	for _, c := range t.cycles {
		s.Cycles++
		s.Attempts += len(c.Attempts)
		s.ByCategory[c.Category]++
		s.TotalTime += c.Duration()
		if !c.Closed {
			continue
		}
		if c.Resolved {
			s.Resolved++
		} else {
			s.Exhausted++
		}
	}
	return s
}
