package scheduler

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/driftworks/conductor/internal/issue"
)

func mkIssues(deps map[int][]int) []*issue.Issue {
	var issues []*issue.Issue
	for id, d := range deps {
		issues = append(issues, &issue.Issue{ID: id, DependsOn: d, Status: issue.StatusPending})
	}
	return issues
}

func TestOrder_Chain(t *testing.T) {
	issues := mkIssues(map[int][]int{1: {}, 2: {1}, 3: {1, 2}})

	order, err := New().Order(issues, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(order, []int{1, 2, 3}) {
		t.Errorf("expected [1 2 3], got %v", order)
	}
}

func TestOrder_TiesAscending(t *testing.T) {
	// 5, 2, 9 have no mutual constraints; deterministic tie-break by id.
	issues := mkIssues(map[int][]int{5: {}, 2: {}, 9: {}, 10: {9, 2}})

	order, err := New().Order(issues, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(order, []int{2, 5, 9, 10}) {
		t.Errorf("expected [2 5 9 10], got %v", order)
	}
}

func TestOrder_Deterministic(t *testing.T) {
	issues := mkIssues(map[int][]int{4: {}, 1: {}, 3: {1}, 2: {1}, 7: {3, 2}})

	first, err := New().Order(issues, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := New().Order(issues, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("order not deterministic: %v vs %v", first, again)
		}
	}
}

func TestOrder_Cycle(t *testing.T) {
	issues := mkIssues(map[int][]int{1: {3}, 2: {1}, 3: {2}, 4: {}, 5: {3}})

	_, err := New().Order(issues, nil)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	var cerr *CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	if !reflect.DeepEqual(cerr.Members, []int{1, 2, 3}) {
		t.Errorf("expected cycle members [1 2 3], got %v", cerr.Members)
	}
	// Issue 5 is blocked behind the cycle but not on it.
	for _, id := range cerr.Members {
		if id == 5 {
			t.Error("issue 5 should not be reported as a cycle member")
		}
	}
	if !strings.Contains(err.Error(), "#1") || !strings.Contains(err.Error(), "#3") {
		t.Errorf("expected cycle error to name members, got %q", err.Error())
	}
}

func TestOrder_ReentrantExcludesCompleted(t *testing.T) {
	issues := mkIssues(map[int][]int{1: {}, 2: {1}, 3: {1, 2}})
	completed := map[int]bool{1: true}

	order, err := New().Order(issues, completed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(order, []int{2, 3}) {
		t.Errorf("expected [2 3], got %v", order)
	}
}

func TestOrder_UnknownReferenceDropped(t *testing.T) {
	issues := mkIssues(map[int][]int{1: {99}, 2: {1}})

	s := New()
	var buf bytes.Buffer
	s.SetProgress(&buf)

	order, err := s.Order(issues, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(order, []int{1, 2}) {
		t.Errorf("expected [1 2], got %v", order)
	}
	if !strings.Contains(buf.String(), "#99") {
		t.Errorf("expected warning naming #99, got %q", buf.String())
	}
}

func TestOrder_Empty(t *testing.T) {
	order, err := New().Order(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 0 {
		t.Errorf("expected empty order, got %v", order)
	}
}
