// Package scheduler orders issues so every prerequisite is processed before
// its dependents. The graph is rebuilt on every call, which keeps the
// scheduler re-entrant: issues already completed are excluded and the
// remainder still yields a valid order.
package scheduler

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/driftworks/conductor/internal/issue"
)

// CycleError reports a dependency cycle. The run cannot proceed; the error
// names every issue on a cycle so a human can break it.
type CycleError struct {
	Members []int
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Members))
	for i, id := range e.Members {
		parts[i] = fmt.Sprintf("#%d", id)
	}
	return fmt.Sprintf("dependency cycle involving issues %s", strings.Join(parts, ", "))
}

// Scheduler produces dependency-respecting processing orders.
type Scheduler struct {
	progress io.Writer
}

// New creates a Scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// SetProgress sets a writer for warnings (e.g. os.Stderr).
func (s *Scheduler) SetProgress(w io.Writer) {
	s.progress = w
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.progress != nil {
		fmt.Fprintf(s.progress, format+"\n", args...)
	}
}

// Order returns issue ids such that every prerequisite precedes its
// dependents. Issues in the completed set are excluded, and edges into them
// are treated as satisfied. References to unknown issues are dropped with a
// warning. Ties break by ascending issue id so the order is deterministic.
// A cycle returns a *CycleError and no order.
func (s *Scheduler) Order(issues []*issue.Issue, completed map[int]bool) ([]int, error) {
	nodes := make(map[int]*issue.Issue, len(issues))
	for _, is := range issues {
		if completed[is.ID] {
			continue
		}
		nodes[is.ID] = is
	}

	// indegree counts unsatisfied prerequisites; edges maps a prerequisite
	// to the dependents waiting on it.
	indegree := make(map[int]int, len(nodes))
	edges := make(map[int][]int, len(nodes))
	for id := range nodes {
		indegree[id] = 0
	}
	for id, is := range nodes {
		for _, dep := range is.DependsOn {
			if completed[dep] {
				continue
			}
			if _, ok := nodes[dep]; !ok {
				s.logf("warning: issue #%d depends on unknown issue #%d, reference dropped", id, dep)
				continue
			}
			indegree[id]++
			edges[dep] = append(edges[dep], id)
		}
	}

	// Kahn's algorithm with a sorted ready set for deterministic ties.
	var ready []int
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Ints(ready)

	order := make([]int, 0, len(nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, dependent := range edges[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = insertSorted(ready, dependent)
			}
		}
	}

	if len(order) < len(nodes) {
		return nil, &CycleError{Members: cycleMembers(nodes, indegree, edges, order)}
	}
	return order, nil
}

// insertSorted inserts id into a sorted slice, keeping it sorted.
func insertSorted(ids []int, id int) []int {
	i := sort.SearchInts(ids, id)
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

// cycleMembers narrows the unprocessed remainder down to the issues that
// actually sit on a cycle. Nodes merely blocked behind the cycle are trimmed
// by repeatedly removing anything with no outgoing edge into the remainder.
func cycleMembers(nodes map[int]*issue.Issue, indegree map[int]int, edges map[int][]int, order []int) []int {
	emitted := make(map[int]bool, len(order))
	for _, id := range order {
		emitted[id] = true
	}
	remaining := make(map[int]bool)
	for id := range nodes {
		if !emitted[id] {
			remaining[id] = true
		}
	}

	for {
		trimmed := false
		for id := range remaining {
			hasOut := false
			for _, dependent := range edges[id] {
				if remaining[dependent] {
					hasOut = true
					break
				}
			}
			if !hasOut {
				delete(remaining, id)
				trimmed = true
			}
		}
		if !trimmed {
			break
		}
	}

	members := make([]int, 0, len(remaining))
	for id := range remaining {
		members = append(members, id)
	}
	sort.Ints(members)
	return members
}
