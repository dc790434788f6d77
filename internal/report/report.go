// Package report aggregates run history into delivery statistics: where
// attempts go, which failure categories dominate, and how long debugging
// cycles take to resolve.
package report

import (
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// DB is the interface for database queries used by reports.
type DB interface {
	Conn() *sql.DB
}

// StageStats holds attempt statistics for one stage.
type StageStats struct {
	Stage        string  `json:"stage"`
	Attempts     int     `json:"attempts"`
	Successes    int     `json:"successes"`
	Failures     int     `json:"failures"`
	FirstPassPct float64 `json:"first_pass_pct"`
}

// QueryStageStats aggregates stage attempts across all runs.
func QueryStageStats(database DB) ([]StageStats, error) {
	rows, err := database.Conn().Query(`
		SELECT stage,
		       COUNT(*) AS attempts,
		       SUM(CASE WHEN outcome IN ('success', 'already_satisfied') THEN 1 ELSE 0 END) AS successes
		FROM stage_attempts
		GROUP BY stage
	`)
	if err != nil {
		return nil, fmt.Errorf("query stage stats: %w", err)
	}
	defer rows.Close()

	byStage := make(map[string]*StageStats)
	for rows.Next() {
		var s StageStats
		if err := rows.Scan(&s.Stage, &s.Attempts, &s.Successes); err != nil {
			return nil, fmt.Errorf("scan stage stats: %w", err)
		}
		s.Failures = s.Attempts - s.Successes
		byStage[s.Stage] = &s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// First-pass rate: issues whose first attempt at the stage succeeded.
	fpRows, err := database.Conn().Query(`
		SELECT stage,
		       SUM(CASE WHEN attempt = 1 AND outcome IN ('success', 'already_satisfied') THEN 1 ELSE 0 END) AS first_pass,
		       COUNT(DISTINCT run_id || ':' || issue) AS issues
		FROM stage_attempts
		GROUP BY stage
	`)
	if err != nil {
		return nil, fmt.Errorf("query first-pass rate: %w", err)
	}
	defer fpRows.Close()

	for fpRows.Next() {
		var stage string
		var firstPass, issues int
		if err := fpRows.Scan(&stage, &firstPass, &issues); err != nil {
			return nil, fmt.Errorf("scan first-pass rate: %w", err)
		}
		if s, ok := byStage[stage]; ok && issues > 0 {
			s.FirstPassPct = 100 * float64(firstPass) / float64(issues)
		}
	}
	if err := fpRows.Err(); err != nil {
		return nil, err
	}

	results := make([]StageStats, 0, len(byStage))
	for _, s := range byStage {
		results = append(results, *s)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Stage < results[j].Stage
	})
	return results, nil
}

// CategoryStats holds debugging cycle statistics for one failure category.
type CategoryStats struct {
	Category    string  `json:"category"`
	Cycles      int     `json:"cycles"`
	Attempts    int     `json:"attempts"`
	ResolvedPct float64 `json:"resolved_pct"`
	AvgMinutes  float64 `json:"avg_minutes"`
}

// QueryCategoryStats aggregates debugging cycles by failure category.
func QueryCategoryStats(database DB) ([]CategoryStats, error) {
	rows, err := database.Conn().Query(`
		SELECT category,
		       COUNT(*) AS cycles,
		       SUM(attempts) AS attempts,
		       SUM(CASE WHEN resolved THEN 1 ELSE 0 END) AS resolved,
		       opened_at, closed_at
		FROM debug_cycles
		GROUP BY category
		ORDER BY cycles DESC, category ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query category stats: %w", err)
	}
	defer rows.Close()

	// GROUP BY collapses opened_at/closed_at to an arbitrary row, so
	// durations are recomputed from the raw rows below.
	var results []CategoryStats
	for rows.Next() {
		var s CategoryStats
		var resolved int
		var openedAt, closedAt string
		if err := rows.Scan(&s.Category, &s.Cycles, &s.Attempts, &resolved, &openedAt, &closedAt); err != nil {
			return nil, fmt.Errorf("scan category stats: %w", err)
		}
		if s.Cycles > 0 {
			s.ResolvedPct = 100 * float64(resolved) / float64(s.Cycles)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	durations, err := queryCategoryDurations(database)
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].AvgMinutes = durations[results[i].Category]
	}
	return results, nil
}

// queryCategoryDurations computes average wall-clock minutes per category
// from the raw cycle rows.
func queryCategoryDurations(database DB) (map[string]float64, error) {
	rows, err := database.Conn().Query(`SELECT category, opened_at, closed_at FROM debug_cycles WHERE closed_at != ''`)
	if err != nil {
		return nil, fmt.Errorf("query cycle durations: %w", err)
	}
	defer rows.Close()

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for rows.Next() {
		var category, openedAt, closedAt string
		if err := rows.Scan(&category, &openedAt, &closedAt); err != nil {
			return nil, fmt.Errorf("scan cycle duration: %w", err)
		}
		opened, err1 := time.Parse(time.RFC3339, openedAt)
		closed, err2 := time.Parse(time.RFC3339, closedAt)
		if err1 != nil || err2 != nil {
			continue
		}
		sums[category] += closed.Sub(opened).Minutes()
		counts[category]++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	avgs := make(map[string]float64, len(sums))
	for category, sum := range sums {
		avgs[category] = sum / float64(counts[category])
	}
	return avgs, nil
}

// RunSummary is one run's headline numbers.
type RunSummary struct {
	RunID     string `json:"run_id"`
	Project   string `json:"project"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
}

// QueryRecentRuns returns headline numbers for the most recent runs.
func QueryRecentRuns(database DB, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := database.Conn().Query(`
		SELECT id, project, started_at, COALESCE(ended_at, ''), completed, failed, skipped
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Project, &r.StartedAt, &r.EndedAt, &r.Completed, &r.Failed, &r.Skipped); err != nil {
			return nil, fmt.Errorf("scan run summary: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
