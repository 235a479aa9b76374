package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/taskhub/core/internal/domain/entities"
	"github.com/taskhub/core/internal/ports"
)

func TestBuildFilterQueryEmpty(t *testing.T) {
	query, args := buildFilterQuery(ports.TaskFilter{Logic: "AND"})

	if strings.Contains(query, "WHERE") {
		t.Errorf("empty filter must have no WHERE clause, got:\n%s", query)
	}
	if len(args) != 0 {
		t.Errorf("args = %v, want none", args)
	}
}

func TestBuildFilterQueryColumnLogic(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	filter := ports.TaskFilter{
		Status:      []entities.TaskStatus{entities.TaskStatusTodo},
		Priority:    []entities.TaskPriority{entities.TaskPriorityHigh},
		DueDateFrom: &from,
	}

	tests := []struct {
		logic string
		want  string
	}{
		{"AND", "(t.status = ANY($1) AND t.priority = ANY($2) AND t.due_date >= $3)"},
		{"OR", "(t.status = ANY($1) OR t.priority = ANY($2) OR t.due_date >= $3)"},
	}

	for _, tt := range tests {
		filter.Logic = tt.logic
		query, args := buildFilterQuery(filter)

		if !strings.Contains(query, tt.want) {
			t.Errorf("logic %s: query missing %q:\n%s", tt.logic, tt.want, query)
		}
		if len(args) != 3 {
			t.Errorf("logic %s: args = %d, want 3", tt.logic, len(args))
		}
	}
}

func TestBuildFilterQueryJoinsAlwaysRequired(t *testing.T) {
	// Assignee and tag predicates stay mandatory even under OR logic.
	filter := ports.TaskFilter{
		Status:      []entities.TaskStatus{entities.TaskStatusTodo, entities.TaskStatusBlocked},
		AssigneeIDs: []int64{7},
		Tags:        []string{"backend"},
		Logic:       "OR",
	}

	query, args := buildFilterQuery(filter)

	if !strings.Contains(query, "JOIN task_assignments ta ON ta.task_id = t.id") {
		t.Errorf("missing assignment join:\n%s", query)
	}
	if !strings.Contains(query, "JOIN task_tags tt ON tt.task_id = t.id") || !strings.Contains(query, "JOIN tags tg ON tg.id = tt.tag_id") {
		t.Errorf("missing tag joins:\n%s", query)
	}
	if !strings.Contains(query, "(t.status = ANY($1)) AND ta.user_id = ANY($2) AND tg.name = ANY($3)") {
		t.Errorf("join predicates must be ANDed onto the column group:\n%s", query)
	}
	if !strings.Contains(query, "SELECT DISTINCT") {
		t.Errorf("joined query must deduplicate rows:\n%s", query)
	}
	if len(args) != 3 {
		t.Errorf("args = %d, want 3", len(args))
	}
}

func TestBuildFilterQueryOnlyJoins(t *testing.T) {
	query, _ := buildFilterQuery(ports.TaskFilter{
		AssigneeIDs: []int64{1, 2},
		Logic:       "OR",
	})

	if !strings.Contains(query, "WHERE ta.user_id = ANY($1)") {
		t.Errorf("join-only filter WHERE clause wrong:\n%s", query)
	}
}

func TestDedupe(t *testing.T) {
	got := dedupe([]int64{3, 3, 1, 3, 1})
	if len(got) != 2 || got[0] != 3 || got[1] != 1 {
		t.Errorf("dedupe = %v, want [3 1]", got)
	}
}
