package services

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/taskhub/core/internal/domain/entities"
	"github.com/taskhub/core/internal/infrastructure/logger"
	"github.com/taskhub/core/internal/ports"
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// mockTaskRepo implements ports.TaskRepository with overridable functions.
// Unset methods return zero values.
type mockTaskRepo struct {
	createFn       func(ctx context.Context, task *entities.Task, assigneeIDs []int64, tagNames []string, dependencyIDs []int64) (*entities.Task, error)
	getByIDFn      func(ctx context.Context, id int64) (*entities.Task, error)
	getByIDsFn     func(ctx context.Context, ids []int64) ([]*entities.Task, error)
	getDetailFn    func(ctx context.Context, id int64) (*entities.TaskDetail, error)
	updateFn       func(ctx context.Context, write ports.TaskWrite) error
	bulkUpdateFn   func(ctx context.Context, writes []ports.TaskWrite) error
	deleteFn       func(ctx context.Context, id int64) error
	addDepFn       func(ctx context.Context, taskID, dependsOnTaskID int64) error
	removeDepFn    func(ctx context.Context, taskID, dependsOnTaskID int64) error
	filterFn       func(ctx context.Context, filter ports.TaskFilter) ([]*entities.Task, error)
	analyticsFn    func(ctx context.Context, now time.Time) (*entities.AnalyticsSnapshot, error)
	userTimelineFn func(ctx context.Context, userID int64, since time.Time) ([]*entities.TimelineEntry, error)
}

func (m *mockTaskRepo) Create(ctx context.Context, task *entities.Task, assigneeIDs []int64, tagNames []string, dependencyIDs []int64) (*entities.Task, error) {
	if m.createFn != nil {
		return m.createFn(ctx, task, assigneeIDs, tagNames, dependencyIDs)
	}
	return task, nil
}

func (m *mockTaskRepo) GetByID(ctx context.Context, id int64) (*entities.Task, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, entities.ErrTaskNotFound
}

func (m *mockTaskRepo) GetByIDs(ctx context.Context, ids []int64) ([]*entities.Task, error) {
	if m.getByIDsFn != nil {
		return m.getByIDsFn(ctx, ids)
	}
	return nil, nil
}

func (m *mockTaskRepo) GetDetail(ctx context.Context, id int64) (*entities.TaskDetail, error) {
	if m.getDetailFn != nil {
		return m.getDetailFn(ctx, id)
	}
	return &entities.TaskDetail{Task: entities.Task{ID: id}}, nil
}

func (m *mockTaskRepo) Update(ctx context.Context, write ports.TaskWrite) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, write)
	}
	return nil
}

func (m *mockTaskRepo) BulkUpdate(ctx context.Context, writes []ports.TaskWrite) error {
	if m.bulkUpdateFn != nil {
		return m.bulkUpdateFn(ctx, writes)
	}
	return nil
}

func (m *mockTaskRepo) Delete(ctx context.Context, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockTaskRepo) AddDependency(ctx context.Context, taskID, dependsOnTaskID int64) error {
	if m.addDepFn != nil {
		return m.addDepFn(ctx, taskID, dependsOnTaskID)
	}
	return nil
}

func (m *mockTaskRepo) RemoveDependency(ctx context.Context, taskID, dependsOnTaskID int64) error {
	if m.removeDepFn != nil {
		return m.removeDepFn(ctx, taskID, dependsOnTaskID)
	}
	return nil
}

func (m *mockTaskRepo) Filter(ctx context.Context, filter ports.TaskFilter) ([]*entities.Task, error) {
	if m.filterFn != nil {
		return m.filterFn(ctx, filter)
	}
	return nil, nil
}

func (m *mockTaskRepo) Analytics(ctx context.Context, now time.Time) (*entities.AnalyticsSnapshot, error) {
	if m.analyticsFn != nil {
		return m.analyticsFn(ctx, now)
	}
	return &entities.AnalyticsSnapshot{}, nil
}

func (m *mockTaskRepo) UserTimeline(ctx context.Context, userID int64, since time.Time) ([]*entities.TimelineEntry, error) {
	if m.userTimelineFn != nil {
		return m.userTimelineFn(ctx, userID, since)
	}
	return nil, nil
}

// fakeCache is an in-memory ports.CacheRepository that records deletions.
type fakeCache struct {
	data    map[string][]byte
	deleted []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.data[key]
	if !ok {
		return ports.ErrCacheMiss
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return ports.ErrCacheMiss
	}
	return nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	delete(c.data, key)
	c.deleted = append(c.deleted, key)
	return nil
}

func (c *fakeCache) wasDeleted(key string) bool {
	for _, k := range c.deleted {
		if k == key {
			return true
		}
	}
	return false
}

func newTestService(repo *mockTaskRepo, cache *fakeCache) *TaskServiceImpl {
	svc := NewTaskService(repo, cache, testLogger())
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}
