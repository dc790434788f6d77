package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Run represents a row in the runs table.
type Run struct {
	ID        string
	Project   string
	StartedAt string
	EndedAt   string
	Completed int
	Failed    int
	Skipped   int
}

// RunEvent represents a row in the run_events table.
type RunEvent struct {
	ID        int
	RunID     string
	Issue     int
	Event     string
	Stage     string
	Detail    string
	Timestamp string
}

// StageAttempt represents a row in the stage_attempts table.
type StageAttempt struct {
	ID         int
	RunID      string
	Issue      int
	Stage      string
	Attempt    int
	Outcome    string
	Category   string
	Reason     string
	DurationMs int
	Timestamp  string
}

// DebugCycle represents a row in the debug_cycles table.
type DebugCycle struct {
	ID       int
	RunID    string
	Issue    int
	Stage    string
	Category string
	Attempts int
	Resolved bool
	OpenedAt string
	ClosedAt string
}

// CreateRun inserts a new run row.
func (d *DB) CreateRun(runID, project string) error {
	_, err := d.conn.Exec(
		`INSERT INTO runs (id, project) VALUES (?, ?)`,
		runID, project,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun records a run's final counts and end time.
func (d *DB) FinishRun(runID string, completed, failed, skipped int) error {
	_, err := d.conn.Exec(
		`UPDATE runs SET ended_at = datetime('now'), completed = ?, failed = ?, skipped = ? WHERE id = ?`,
		completed, failed, skipped, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// LogRunEvent inserts a run event.
func (d *DB) LogRunEvent(runID string, issue int, event, stage, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO run_events (run_id, issue, event, stage, detail) VALUES (?, ?, ?, ?, ?)`,
		runID, issue, event, stage, detail,
	)
	if err != nil {
		return fmt.Errorf("log run event: %w", err)
	}
	return nil
}

// LogStageAttempt inserts a stage attempt record.
func (d *DB) LogStageAttempt(runID string, issue int, stage string, attempt int, outcome, category, reason string, duration time.Duration) error {
	_, err := d.conn.Exec(
		`INSERT INTO stage_attempts (run_id, issue, stage, attempt, outcome, category, reason, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, issue, stage, attempt, outcome, category, reason, duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("log stage attempt: %w", err)
	}
	return nil
}

// LogDebugCycle inserts a closed debugging cycle.
func (d *DB) LogDebugCycle(runID string, issue int, stage, category string, attempts int, resolved bool, openedAt, closedAt time.Time) error {
	closed := ""
	if !closedAt.IsZero() {
		closed = closedAt.UTC().Format(time.RFC3339)
	}
	_, err := d.conn.Exec(
		`INSERT INTO debug_cycles (run_id, issue, stage, category, attempts, resolved, opened_at, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, issue, stage, category, attempts, resolved, openedAt.UTC().Format(time.RFC3339), closed,
	)
	if err != nil {
		return fmt.Errorf("log debug cycle: %w", err)
	}
	return nil
}

// GetRun returns one run by id.
func (d *DB) GetRun(runID string) (*Run, error) {
	row := d.conn.QueryRow(
		`SELECT id, project, started_at, COALESCE(ended_at, ''), completed, failed, skipped FROM runs WHERE id = ?`,
		runID,
	)
	var r Run
	err := row.Scan(&r.ID, &r.Project, &r.StartedAt, &r.EndedAt, &r.Completed, &r.Failed, &r.Skipped)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %q not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &r, nil
}

// GetRunHistory returns the most recent runs, newest first.
func (d *DB) GetRunHistory(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(
		`SELECT id, project, started_at, COALESCE(ended_at, ''), completed, failed, skipped
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get run history: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Project, &r.StartedAt, &r.EndedAt, &r.Completed, &r.Failed, &r.Skipped); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRunEvents returns all events for a run in insertion order.
func (d *DB) GetRunEvents(runID string) ([]RunEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, issue, event, COALESCE(stage, ''), COALESCE(detail, ''), timestamp
		 FROM run_events WHERE run_id = ? ORDER BY id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get run events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.Issue, &e.Event, &e.Stage, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetStageAttempts returns all attempts for an issue in a run.
func (d *DB) GetStageAttempts(runID string, issue int) ([]StageAttempt, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, issue, stage, attempt, outcome, COALESCE(category, ''), COALESCE(reason, ''), COALESCE(duration_ms, 0), timestamp
		 FROM stage_attempts WHERE run_id = ? AND issue = ? ORDER BY id ASC`,
		runID, issue,
	)
	if err != nil {
		return nil, fmt.Errorf("get stage attempts: %w", err)
	}
	defer rows.Close()

	var attempts []StageAttempt
	for rows.Next() {
		var a StageAttempt
		if err := rows.Scan(&a.ID, &a.RunID, &a.Issue, &a.Stage, &a.Attempt, &a.Outcome, &a.Category, &a.Reason, &a.DurationMs, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan stage attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// CycleStat is one row of the per-category debugging cycle aggregate.
type CycleStat struct {
	Category string
	Cycles   int
	Attempts int
	Resolved int
}

// GetCycleStats aggregates debugging cycles by category across all runs.
func (d *DB) GetCycleStats() ([]CycleStat, error) {
	rows, err := d.conn.Query(`
		SELECT category,
		       COUNT(*) AS cycles,
		       SUM(attempts) AS attempts,
		       SUM(CASE WHEN resolved THEN 1 ELSE 0 END) AS resolved
		FROM debug_cycles
		GROUP BY category
		ORDER BY cycles DESC, category ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("get cycle stats: %w", err)
	}
	defer rows.Close()

	var stats []CycleStat
	for rows.Next() {
		var s CycleStat
		if err := rows.Scan(&s.Category, &s.Cycles, &s.Attempts, &s.Resolved); err != nil {
			return nil, fmt.Errorf("scan cycle stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
