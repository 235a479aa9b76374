package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskhub/core/internal/domain/entities"
	"github.com/taskhub/core/internal/ports"
)

func TestCreateAppliesDefaults(t *testing.T) {
	var captured *entities.Task
	repo := &mockTaskRepo{
		createFn: func(ctx context.Context, task *entities.Task, assigneeIDs []int64, tagNames []string, dependencyIDs []int64) (*entities.Task, error) {
			task.ID = 42
			captured = task
			return task, nil
		},
	}
	cache := newFakeCache()
	svc := newTestService(repo, cache)

	detail, err := svc.Create(context.Background(), ports.CreateTaskRequest{Title: "ship it"}, 7)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if captured.Status != entities.TaskStatusTodo {
		t.Errorf("status = %q, want %q", captured.Status, entities.TaskStatusTodo)
	}
	if captured.Priority != entities.TaskPriorityMedium {
		t.Errorf("priority = %q, want %q", captured.Priority, entities.TaskPriorityMedium)
	}
	if captured.CreatorID != 7 {
		t.Errorf("creator_id = %d, want 7", captured.CreatorID)
	}
	if detail.ID != 42 {
		t.Errorf("detail id = %d, want 42", detail.ID)
	}
	if !cache.wasDeleted("analytics:dashboard") {
		t.Error("analytics cache was not invalidated")
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		req  ports.CreateTaskRequest
	}{
		{"empty title", ports.CreateTaskRequest{}},
		{"title too long", ports.CreateTaskRequest{Title: string(make([]byte, 256))}},
		{"unknown status", ports.CreateTaskRequest{Title: "t", Status: "paused"}},
		{"unknown priority", ports.CreateTaskRequest{Title: "t", Priority: "critical"}},
	}

	svc := newTestService(&mockTaskRepo{}, newFakeCache())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.req, 1)
			if !errors.Is(err, entities.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestGetCacheHit(t *testing.T) {
	repoCalled := false
	repo := &mockTaskRepo{
		getDetailFn: func(ctx context.Context, id int64) (*entities.TaskDetail, error) {
			repoCalled = true
			return &entities.TaskDetail{Task: entities.Task{ID: id}}, nil
		},
	}
	cache := newFakeCache()
	svc := newTestService(repo, cache)

	cache.Set(context.Background(), "task:5", &entities.TaskDetail{Task: entities.Task{ID: 5, Title: "cached"}}, time.Minute)

	detail, err := svc.Get(context.Background(), 5)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if repoCalled {
		t.Error("repository was queried despite cache hit")
	}
	if detail.Title != "cached" {
		t.Errorf("title = %q, want %q", detail.Title, "cached")
	}
}

func TestGetCacheMissPopulatesCache(t *testing.T) {
	repo := &mockTaskRepo{
		getDetailFn: func(ctx context.Context, id int64) (*entities.TaskDetail, error) {
			return &entities.TaskDetail{Task: entities.Task{ID: id, Title: "fresh"}}, nil
		},
	}
	cache := newFakeCache()
	svc := newTestService(repo, cache)

	if _, err := svc.Get(context.Background(), 9); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}

	var stored entities.TaskDetail
	if err := cache.Get(context.Background(), "task:9", &stored); err != nil {
		t.Fatalf("detail was not cached: %v", err)
	}
	if stored.Title != "fresh" {
		t.Errorf("cached title = %q, want %q", stored.Title, "fresh")
	}
}

func TestGetNotFound(t *testing.T) {
	repo := &mockTaskRepo{
		getDetailFn: func(ctx context.Context, id int64) (*entities.TaskDetail, error) {
			return nil, entities.ErrTaskNotFound
		},
	}
	svc := newTestService(repo, newFakeCache())

	if _, err := svc.Get(context.Background(), 404); !errors.Is(err, entities.ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestUpdateHistorizesChangedFields(t *testing.T) {
	due := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	current := &entities.Task{
		ID:       3,
		Title:    "old title",
		Status:   entities.TaskStatusTodo,
		Priority: entities.TaskPriorityMedium,
		DueDate:  &due,
	}

	var written ports.TaskWrite
	repo := &mockTaskRepo{
		getByIDFn: func(ctx context.Context, id int64) (*entities.Task, error) { return current, nil },
		updateFn: func(ctx context.Context, write ports.TaskWrite) error {
			written = write
			return nil
		},
	}
	cache := newFakeCache()
	svc := newTestService(repo, cache)

	req := ports.UpdateTaskRequest{
		Title:   ports.Some("new title"),
		Status:  ports.Some(entities.TaskStatusInProgress),
		DueDate: ports.Null[time.Time](),
	}

	if _, err := svc.Update(context.Background(), 3, req, 11); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	if len(written.History) != 3 {
		t.Fatalf("history entries = %d, want 3", len(written.History))
	}

	byField := map[string]entities.TaskHistory{}
	for _, h := range written.History {
		byField[h.FieldChanged] = h
	}

	if h := byField["title"]; h.OldValue != "old title" || h.NewValue != "new title" {
		t.Errorf("title history = %q -> %q", h.OldValue, h.NewValue)
	}
	if h := byField["status"]; h.OldValue != "todo" || h.NewValue != "in_progress" {
		t.Errorf("status history = %q -> %q", h.OldValue, h.NewValue)
	}
	if h := byField["due_date"]; h.OldValue != "2024-07-01T00:00:00Z" || h.NewValue != "" {
		t.Errorf("due_date history = %q -> %q", h.OldValue, h.NewValue)
	}
	for _, h := range written.History {
		if h.UserID != 11 {
			t.Errorf("history user_id = %d, want 11", h.UserID)
		}
	}

	if written.Task.DueDate != nil {
		t.Error("due date was not cleared")
	}
	if written.Assignees != nil || written.Tags != nil {
		t.Error("unset association lists must not be replaced")
	}
	if !cache.wasDeleted("task:3") || !cache.wasDeleted("analytics:dashboard") {
		t.Error("cache keys were not invalidated")
	}
}

func TestUpdateNoOpProducesNoHistory(t *testing.T) {
	current := &entities.Task{ID: 4, Title: "same", Status: entities.TaskStatusTodo, Priority: entities.TaskPriorityLow}

	var written ports.TaskWrite
	repo := &mockTaskRepo{
		getByIDFn: func(ctx context.Context, id int64) (*entities.Task, error) { return current, nil },
		updateFn: func(ctx context.Context, write ports.TaskWrite) error {
			written = write
			return nil
		},
	}
	svc := newTestService(repo, newFakeCache())

	req := ports.UpdateTaskRequest{
		Title:  ports.Some("same"),
		Status: ports.Some(entities.TaskStatusTodo),
	}

	if _, err := svc.Update(context.Background(), 4, req, 1); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if len(written.History) != 0 {
		t.Errorf("history entries = %d, want 0", len(written.History))
	}
	if !written.Task.UpdatedAt.Equal(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Error("updated_at must be refreshed even without changes")
	}
}

func TestUpdateReplacesAssociationSets(t *testing.T) {
	current := &entities.Task{ID: 6, Title: "t", Status: entities.TaskStatusTodo, Priority: entities.TaskPriorityLow}

	var written ports.TaskWrite
	repo := &mockTaskRepo{
		getByIDFn: func(ctx context.Context, id int64) (*entities.Task, error) { return current, nil },
		updateFn: func(ctx context.Context, write ports.TaskWrite) error {
			written = write
			return nil
		},
	}
	svc := newTestService(repo, newFakeCache())

	req := ports.UpdateTaskRequest{
		AssigneeIDs: ports.Some([]int64{1, 2}),
		TagNames:    ports.Some([]string{"backend"}),
	}

	if _, err := svc.Update(context.Background(), 6, req, 1); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	if written.Assignees == nil || len(*written.Assignees) != 2 {
		t.Errorf("assignees = %v, want [1 2]", written.Assignees)
	}
	if written.Tags == nil || len(*written.Tags) != 1 {
		t.Errorf("tags = %v, want [backend]", written.Tags)
	}
	if len(written.History) != 0 {
		t.Errorf("association replacement must not produce field history, got %d entries", len(written.History))
	}
}

func TestUpdateValidation(t *testing.T) {
	svc := newTestService(&mockTaskRepo{}, newFakeCache())

	tests := []struct {
		name string
		req  ports.UpdateTaskRequest
	}{
		{"null title", ports.UpdateTaskRequest{Title: ports.Null[string]()}},
		{"empty title", ports.UpdateTaskRequest{Title: ports.Some("")}},
		{"null status", ports.UpdateTaskRequest{Status: ports.Null[entities.TaskStatus]()}},
		{"bad status", ports.UpdateTaskRequest{Status: ports.Some(entities.TaskStatus("paused"))}},
		{"bad priority", ports.UpdateTaskRequest{Priority: ports.Some(entities.TaskPriority("critical"))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(context.Background(), 1, tt.req, 1)
			if !errors.Is(err, entities.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestBulkUpdateSkipsUnknownAndUnchanged(t *testing.T) {
	// Three ids requested, two exist, one of those already has the target
	// status.
	existing := []*entities.Task{
		{ID: 1, Status: entities.TaskStatusTodo, Priority: entities.TaskPriorityLow},
		{ID: 2, Status: entities.TaskStatusDone, Priority: entities.TaskPriorityLow},
	}

	var written []ports.TaskWrite
	repo := &mockTaskRepo{
		getByIDsFn: func(ctx context.Context, ids []int64) ([]*entities.Task, error) { return existing, nil },
		bulkUpdateFn: func(ctx context.Context, writes []ports.TaskWrite) error {
			written = writes
			return nil
		},
	}
	cache := newFakeCache()
	svc := newTestService(repo, cache)

	done := entities.TaskStatusDone
	count, err := svc.BulkUpdate(context.Background(), ports.BulkUpdateRequest{
		TaskIDs: []int64{1, 2, 999},
		Status:  &done,
	}, 5)
	if err != nil {
		t.Fatalf("BulkUpdate returned error: %v", err)
	}

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if len(written) != 1 || written[0].Task.ID != 1 {
		t.Fatalf("writes = %+v, want single write for task 1", written)
	}
	if len(written[0].History) != 1 || written[0].History[0].FieldChanged != "status" {
		t.Errorf("history = %+v, want one status entry", written[0].History)
	}
	if !cache.wasDeleted("analytics:dashboard") {
		t.Error("analytics cache was not invalidated")
	}
}

func TestBulkUpdateAssigneesAlwaysHistorized(t *testing.T) {
	existing := []*entities.Task{{ID: 1, Status: entities.TaskStatusTodo, Priority: entities.TaskPriorityLow}}

	var written []ports.TaskWrite
	repo := &mockTaskRepo{
		getByIDsFn: func(ctx context.Context, ids []int64) ([]*entities.Task, error) { return existing, nil },
		bulkUpdateFn: func(ctx context.Context, writes []ports.TaskWrite) error {
			written = writes
			return nil
		},
	}
	svc := newTestService(repo, newFakeCache())

	assignees := []int64{4, 5}
	count, err := svc.BulkUpdate(context.Background(), ports.BulkUpdateRequest{
		TaskIDs:     []int64{1},
		AssigneeIDs: &assignees,
	}, 5)
	if err != nil {
		t.Fatalf("BulkUpdate returned error: %v", err)
	}

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	h := written[0].History[0]
	if h.FieldChanged != "assignees" || h.NewValue != "4,5" {
		t.Errorf("history = %+v, want assignees -> 4,5", h)
	}
	if written[0].Assignees == nil {
		t.Error("assignee set was not replaced")
	}
}

func TestBulkUpdateValidation(t *testing.T) {
	svc := newTestService(&mockTaskRepo{}, newFakeCache())

	bad := entities.TaskStatus("paused")
	tests := []struct {
		name string
		req  ports.BulkUpdateRequest
	}{
		{"empty ids", ports.BulkUpdateRequest{}},
		{"bad status", ports.BulkUpdateRequest{TaskIDs: []int64{1}, Status: &bad}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.BulkUpdate(context.Background(), tt.req, 1)
			if !errors.Is(err, entities.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestDeleteInvalidatesCaches(t *testing.T) {
	cache := newFakeCache()
	svc := newTestService(&mockTaskRepo{}, cache)

	if err := svc.Delete(context.Background(), 8, 1); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if !cache.wasDeleted("task:8") || !cache.wasDeleted("analytics:dashboard") {
		t.Error("cache keys were not invalidated")
	}
}

func TestDeleteNotFound(t *testing.T) {
	repo := &mockTaskRepo{
		deleteFn: func(ctx context.Context, id int64) error { return entities.ErrTaskNotFound },
	}
	svc := newTestService(repo, newFakeCache())

	if err := svc.Delete(context.Background(), 404, 1); !errors.Is(err, entities.ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestAddDependencyInvalidatesBothEndpoints(t *testing.T) {
	cache := newFakeCache()
	svc := newTestService(&mockTaskRepo{}, cache)

	if err := svc.AddDependency(context.Background(), 1, 2); err != nil {
		t.Fatalf("AddDependency returned error: %v", err)
	}
	if !cache.wasDeleted("task:1") || !cache.wasDeleted("task:2") {
		t.Error("both endpoint caches must be invalidated")
	}
}

func TestAddDependencyDuplicate(t *testing.T) {
	repo := &mockTaskRepo{
		addDepFn: func(ctx context.Context, taskID, dependsOnTaskID int64) error {
			return entities.ErrDependencyExists
		},
	}
	svc := newTestService(repo, newFakeCache())

	if err := svc.AddDependency(context.Background(), 1, 2); !errors.Is(err, entities.ErrDependencyExists) {
		t.Errorf("err = %v, want ErrDependencyExists", err)
	}
}

func TestFilterLogicNormalization(t *testing.T) {
	var captured ports.TaskFilter
	repo := &mockTaskRepo{
		filterFn: func(ctx context.Context, filter ports.TaskFilter) ([]*entities.Task, error) {
			captured = filter
			return nil, nil
		},
	}
	svc := newTestService(repo, newFakeCache())

	tests := []struct {
		logic string
		want  string
	}{
		{"", "AND"},
		{"or", "OR"},
		{"And", "AND"},
	}
	for _, tt := range tests {
		if _, err := svc.Filter(context.Background(), ports.FilterRequest{Logic: tt.logic}); err != nil {
			t.Fatalf("Filter(%q) returned error: %v", tt.logic, err)
		}
		if captured.Logic != tt.want {
			t.Errorf("Filter(%q) logic = %q, want %q", tt.logic, captured.Logic, tt.want)
		}
	}

	if _, err := svc.Filter(context.Background(), ports.FilterRequest{Logic: "XOR"}); !errors.Is(err, entities.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestAnalyticsCached(t *testing.T) {
	calls := 0
	repo := &mockTaskRepo{
		analyticsFn: func(ctx context.Context, now time.Time) (*entities.AnalyticsSnapshot, error) {
			calls++
			return &entities.AnalyticsSnapshot{TotalTasks: 10}, nil
		},
	}
	cache := newFakeCache()
	svc := newTestService(repo, cache)

	for i := 0; i < 3; i++ {
		snapshot, err := svc.Analytics(context.Background())
		if err != nil {
			t.Fatalf("Analytics returned error: %v", err)
		}
		if snapshot.TotalTasks != 10 {
			t.Errorf("total = %d, want 10", snapshot.TotalTasks)
		}
	}
	if calls != 1 {
		t.Errorf("repository computed analytics %d times, want 1", calls)
	}
}

func TestUserTimelineDaysWindow(t *testing.T) {
	var capturedSince time.Time
	repo := &mockTaskRepo{
		userTimelineFn: func(ctx context.Context, userID int64, since time.Time) ([]*entities.TimelineEntry, error) {
			capturedSince = since
			return nil, nil
		},
	}
	svc := newTestService(repo, newFakeCache())

	if _, err := svc.UserTimeline(context.Background(), 1, 7); err != nil {
		t.Fatalf("UserTimeline returned error: %v", err)
	}
	want := time.Date(2024, 5, 25, 12, 0, 0, 0, time.UTC)
	if !capturedSince.Equal(want) {
		t.Errorf("since = %v, want %v", capturedSince, want)
	}

	for _, days := range []int{0, -1, 31} {
		if _, err := svc.UserTimeline(context.Background(), 1, days); !errors.Is(err, entities.ErrValidation) {
			t.Errorf("days=%d err = %v, want ErrValidation", days, err)
		}
	}
}
