package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/taskhub/core/internal/domain/entities"
	"github.com/taskhub/core/internal/infrastructure/logger"
	"github.com/taskhub/core/internal/ports"
)

// Cache keys and expiries. Every mutating operation invalidates the
// analytics key; operations touching a specific task's fields or
// associations additionally invalidate that task's own key.
const (
	analyticsCacheKey = "analytics:dashboard"
	taskCacheTTL      = 5 * time.Minute
	analyticsCacheTTL = 2 * time.Minute
)

func taskCacheKey(id int64) string {
	return fmt.Sprintf("task:%d", id)
}

// TaskServiceImpl handles the task lifecycle, filtering, analytics and
// cache coordination.
type TaskServiceImpl struct {
	taskRepo ports.TaskRepository
	cache    ports.CacheRepository
	logger   *logger.Logger
	now      func() time.Time
}

// NewTaskService creates a new task service
func NewTaskService(taskRepo ports.TaskRepository, cache ports.CacheRepository, logger *logger.Logger) *TaskServiceImpl {
	return &TaskServiceImpl{
		taskRepo: taskRepo,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
}

// Create inserts a task together with its assignments, tags and
// dependency edges in one transaction. Assignee and dependency ids are
// not validated at this layer.
func (s *TaskServiceImpl) Create(ctx context.Context, req ports.CreateTaskRequest, creatorID int64) (*entities.TaskDetail, error) {
	if err := validateTitle(req.Title); err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = entities.TaskStatusTodo
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", entities.ErrValidation, status)
	}

	priority := req.Priority
	if priority == "" {
		priority = entities.TaskPriorityMedium
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", entities.ErrValidation, priority)
	}

	now := s.now()
	task := &entities.Task{
		Title:        req.Title,
		Description:  req.Description,
		Status:       status,
		Priority:     priority,
		DueDate:      req.DueDate,
		CreatorID:    creatorID,
		ParentTaskID: req.ParentTaskID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.taskRepo.Create(ctx, task, req.AssigneeIDs, req.TagNames, req.DependencyIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.invalidate(ctx, analyticsCacheKey)

	s.logger.Infow("Task created", "task_id", created.ID, "title", created.Title, "creator_id", creatorID)

	return s.taskRepo.GetDetail(ctx, created.ID)
}

// Get returns the fully-loaded task, read through the cache. Cache
// failures degrade to the store and never fail the request.
func (s *TaskServiceImpl) Get(ctx context.Context, id int64) (*entities.TaskDetail, error) {
	key := taskCacheKey(id)

	var cached entities.TaskDetail
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, ports.ErrCacheMiss) {
		s.logger.Warnw("Cache read failed", "key", key, "error", err)
	}

	detail, err := s.taskRepo.GetDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, detail, taskCacheTTL); err != nil {
		s.logger.Warnw("Cache write failed", "key", key, "error", err)
	}

	return detail, nil
}

// patchField drives the partial update: one fixed entry per settable
// scalar field, each knowing how to detect presence, diff and apply. No
// reflection over attribute names.
type patchField struct {
	name    string
	present func(ports.UpdateTaskRequest) bool
	apply   func(*entities.Task, ports.UpdateTaskRequest) (oldValue, newValue string, changed bool)
}

var patchFields = []patchField{
	{
		name:    "title",
		present: func(req ports.UpdateTaskRequest) bool { return req.Title.Set },
		apply: func(t *entities.Task, req ports.UpdateTaskRequest) (string, string, bool) {
			old := t.Title
			if req.Title.Value == old {
				return old, old, false
			}
			t.Title = req.Title.Value
			return old, t.Title, true
		},
	},
	{
		name:    "description",
		present: func(req ports.UpdateTaskRequest) bool { return req.Description.Set },
		apply: func(t *entities.Task, req ports.UpdateTaskRequest) (string, string, bool) {
			old := stringOrEmpty(t.Description)
			next := req.Description.Ptr()
			if old == stringOrEmpty(next) && (t.Description == nil) == (next == nil) {
				return old, old, false
			}
			t.Description = next
			return old, stringOrEmpty(next), true
		},
	},
	{
		name:    "status",
		present: func(req ports.UpdateTaskRequest) bool { return req.Status.Set },
		apply: func(t *entities.Task, req ports.UpdateTaskRequest) (string, string, bool) {
			old := string(t.Status)
			if t.Status == req.Status.Value {
				return old, old, false
			}
			t.Status = req.Status.Value
			return old, string(t.Status), true
		},
	},
	{
		name:    "priority",
		present: func(req ports.UpdateTaskRequest) bool { return req.Priority.Set },
		apply: func(t *entities.Task, req ports.UpdateTaskRequest) (string, string, bool) {
			old := string(t.Priority)
			if t.Priority == req.Priority.Value {
				return old, old, false
			}
			t.Priority = req.Priority.Value
			return old, string(t.Priority), true
		},
	},
	{
		name:    "due_date",
		present: func(req ports.UpdateTaskRequest) bool { return req.DueDate.Set },
		apply: func(t *entities.Task, req ports.UpdateTaskRequest) (string, string, bool) {
			old := timeOrEmpty(t.DueDate)
			next := req.DueDate.Ptr()
			if timePtrEqual(t.DueDate, next) {
				return old, old, false
			}
			t.DueDate = next
			return old, timeOrEmpty(next), true
		},
	},
}

// Update applies a partial update: scalar fields are diffed against the
// current row and historized per changed field; assignee and tag lists
// fully replace the current sets without per-field history. updated_at
// is refreshed even when nothing changed.
func (s *TaskServiceImpl) Update(ctx context.Context, id int64, req ports.UpdateTaskRequest, actingUserID int64) (*entities.TaskDetail, error) {
	if err := validateUpdate(req); err != nil {
		return nil, err
	}

	task, err := s.taskRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var history []entities.TaskHistory
	for _, field := range patchFields {
		if !field.present(req) {
			continue
		}
		oldValue, newValue, changed := field.apply(task, req)
		if !changed {
			continue
		}
		history = append(history, entities.TaskHistory{
			TaskID:       id,
			UserID:       actingUserID,
			FieldChanged: field.name,
			OldValue:     oldValue,
			NewValue:     newValue,
			ChangedAt:    now,
		})
	}

	task.UpdatedAt = now

	write := ports.TaskWrite{Task: task, History: history}
	if req.AssigneeIDs.Valid {
		ids := req.AssigneeIDs.Value
		write.Assignees = &ids
	}
	if req.TagNames.Valid {
		names := req.TagNames.Value
		write.Tags = &names
	}

	if err := s.taskRepo.Update(ctx, write); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	s.invalidate(ctx, taskCacheKey(id), analyticsCacheKey)

	s.logger.Infow("Task updated", "task_id", id, "changed_fields", len(history), "acting_user_id", actingUserID)

	return s.taskRepo.GetDetail(ctx, id)
}

// BulkUpdate applies the same changes to every existing task in the id
// set and returns how many tasks actually changed. Unknown ids are
// silently skipped. An assignee list is historized unconditionally with
// a synthetic "assignees" record; status and priority only when they
// differ. The whole batch commits once.
func (s *TaskServiceImpl) BulkUpdate(ctx context.Context, req ports.BulkUpdateRequest, actingUserID int64) (int, error) {
	if len(req.TaskIDs) == 0 {
		return 0, fmt.Errorf("%w: task_ids must not be empty", entities.ErrValidation)
	}
	if req.Status != nil && !req.Status.Valid() {
		return 0, fmt.Errorf("%w: unknown status %q", entities.ErrValidation, *req.Status)
	}
	if req.Priority != nil && !req.Priority.Valid() {
		return 0, fmt.Errorf("%w: unknown priority %q", entities.ErrValidation, *req.Priority)
	}

	tasks, err := s.taskRepo.GetByIDs(ctx, req.TaskIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to load tasks: %w", err)
	}

	now := s.now()
	var writes []ports.TaskWrite
	for _, task := range tasks {
		var history []entities.TaskHistory

		if req.Status != nil && task.Status != *req.Status {
			history = append(history, entities.TaskHistory{
				TaskID:       task.ID,
				UserID:       actingUserID,
				FieldChanged: "status",
				OldValue:     string(task.Status),
				NewValue:     string(*req.Status),
				ChangedAt:    now,
			})
			task.Status = *req.Status
		}

		if req.Priority != nil && task.Priority != *req.Priority {
			history = append(history, entities.TaskHistory{
				TaskID:       task.ID,
				UserID:       actingUserID,
				FieldChanged: "priority",
				OldValue:     string(task.Priority),
				NewValue:     string(*req.Priority),
				ChangedAt:    now,
			})
			task.Priority = *req.Priority
		}

		write := ports.TaskWrite{Task: task}
		if req.AssigneeIDs != nil {
			write.Assignees = req.AssigneeIDs
			history = append(history, entities.TaskHistory{
				TaskID:       task.ID,
				UserID:       actingUserID,
				FieldChanged: "assignees",
				OldValue:     "",
				NewValue:     joinIDs(*req.AssigneeIDs),
				ChangedAt:    now,
			})
		}

		if len(history) == 0 {
			continue
		}

		task.UpdatedAt = now
		write.History = history
		writes = append(writes, write)
	}

	if len(writes) > 0 {
		if err := s.taskRepo.BulkUpdate(ctx, writes); err != nil {
			return 0, fmt.Errorf("failed to bulk update tasks: %w", err)
		}
	}

	s.invalidate(ctx, analyticsCacheKey)

	s.logger.Infow("Tasks bulk updated", "requested", len(req.TaskIDs), "changed", len(writes), "acting_user_id", actingUserID)

	return len(writes), nil
}

// Delete hard-deletes the task; assignments, dependency edges in both
// directions and history go with it via cascade.
func (s *TaskServiceImpl) Delete(ctx context.Context, id int64, actingUserID int64) error {
	if err := s.taskRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.invalidate(ctx, taskCacheKey(id), analyticsCacheKey)

	s.logger.Infow("Task deleted", "task_id", id, "acting_user_id", actingUserID)

	return nil
}

// AddDependency inserts a blocked-by edge after checking both endpoints
// exist. A duplicate ordered pair reports a conflict and writes nothing.
func (s *TaskServiceImpl) AddDependency(ctx context.Context, taskID, dependsOnTaskID int64) error {
	if err := s.taskRepo.AddDependency(ctx, taskID, dependsOnTaskID); err != nil {
		return err
	}

	// The edge shows up in both endpoints' detail shapes.
	s.invalidate(ctx, taskCacheKey(taskID), taskCacheKey(dependsOnTaskID))

	s.logger.Infow("Dependency added", "task_id", taskID, "depends_on_task_id", dependsOnTaskID)

	return nil
}

func (s *TaskServiceImpl) RemoveDependency(ctx context.Context, taskID, dependsOnTaskID int64) error {
	if err := s.taskRepo.RemoveDependency(ctx, taskID, dependsOnTaskID); err != nil {
		return err
	}

	s.invalidate(ctx, taskCacheKey(taskID), taskCacheKey(dependsOnTaskID))

	s.logger.Infow("Dependency removed", "task_id", taskID, "depends_on_task_id", dependsOnTaskID)

	return nil
}

// Filter searches tasks by the given independently-optional criteria.
func (s *TaskServiceImpl) Filter(ctx context.Context, req ports.FilterRequest) ([]*entities.Task, error) {
	logic := strings.ToUpper(req.Logic)
	switch logic {
	case "":
		logic = "AND"
	case "AND", "OR":
	default:
		return nil, fmt.Errorf("%w: logic must be AND or OR", entities.ErrValidation)
	}
	for _, status := range req.Status {
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", entities.ErrValidation, status)
		}
	}
	for _, priority := range req.Priority {
		if !priority.Valid() {
			return nil, fmt.Errorf("%w: unknown priority %q", entities.ErrValidation, priority)
		}
	}

	return s.taskRepo.Filter(ctx, ports.TaskFilter{
		Status:       req.Status,
		Priority:     req.Priority,
		AssigneeIDs:  req.AssigneeIDs,
		Tags:         req.Tags,
		DueDateFrom:  req.DueDateFrom,
		DueDateTo:    req.DueDateTo,
		CreatedAfter: req.CreatedAfter,
		Logic:        logic,
	})
}

// Analytics returns the dashboard snapshot, computed at most once per
// cache window unless a mutation invalidated it.
func (s *TaskServiceImpl) Analytics(ctx context.Context) (*entities.AnalyticsSnapshot, error) {
	var cached entities.AnalyticsSnapshot
	err := s.cache.Get(ctx, analyticsCacheKey, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, ports.ErrCacheMiss) {
		s.logger.Warnw("Cache read failed", "key", analyticsCacheKey, "error", err)
	}

	snapshot, err := s.taskRepo.Analytics(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to compute analytics: %w", err)
	}

	if err := s.cache.Set(ctx, analyticsCacheKey, snapshot, analyticsCacheTTL); err != nil {
		s.logger.Warnw("Cache write failed", "key", analyticsCacheKey, "error", err)
	}

	return snapshot, nil
}

// UserTimeline returns history entries on tasks currently assigned to the
// user within the trailing window, newest first.
func (s *TaskServiceImpl) UserTimeline(ctx context.Context, userID int64, days int) ([]*entities.TimelineEntry, error) {
	if days < 1 || days > 30 {
		return nil, fmt.Errorf("%w: days must be between 1 and 30", entities.ErrValidation)
	}

	since := s.now().AddDate(0, 0, -days)
	return s.taskRepo.UserTimeline(ctx, userID, since)
}

// invalidate removes cache entries, tolerating cache-store failures.
func (s *TaskServiceImpl) invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warnw("Cache invalidation failed", "key", key, "error", err)
		}
	}
}

func validateTitle(title string) error {
	if title == "" {
		return fmt.Errorf("%w: title must not be empty", entities.ErrValidation)
	}
	if len(title) > 255 {
		return fmt.Errorf("%w: title must be at most 255 characters", entities.ErrValidation)
	}
	return nil
}

func validateUpdate(req ports.UpdateTaskRequest) error {
	if req.Title.Set {
		if !req.Title.Valid {
			return fmt.Errorf("%w: title must not be null", entities.ErrValidation)
		}
		if err := validateTitle(req.Title.Value); err != nil {
			return err
		}
	}
	if req.Status.Set {
		if !req.Status.Valid || !req.Status.Value.Valid() {
			return fmt.Errorf("%w: unknown status %q", entities.ErrValidation, req.Status.Value)
		}
	}
	if req.Priority.Set {
		if !req.Priority.Valid || !req.Priority.Value.Valid() {
			return fmt.Errorf("%w: unknown priority %q", entities.ErrValidation, req.Priority.Value)
		}
	}
	return nil
}

// History value stringification: SQL NULL renders as the empty string,
// timestamps as RFC 3339.

func stringOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func timeOrEmpty(p *time.Time) string {
	if p == nil {
		return ""
	}
	return p.UTC().Format(time.RFC3339)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
