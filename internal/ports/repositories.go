package ports

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/taskhub/core/internal/domain/entities"
)

// ErrCacheMiss is returned by CacheRepository.Get when the key is absent
// or the stored payload cannot be decoded.
var ErrCacheMiss = errors.New("cache miss")

// TaskWrite bundles everything one task mutation persists atomically: the
// patched task row, the history rows it produced, and, when non-nil, the
// replacement assignee and tag sets. Replacement is delete-all-then-insert,
// never a diff.
type TaskWrite struct {
	Task      *entities.Task
	History   []entities.TaskHistory
	Assignees *[]int64
	Tags      *[]string
}

// TaskFilter holds the independently-optional search criteria. Column
// predicates (Status, Priority, DueDateFrom/To, CreatedAfter) combine
// under Logic; AssigneeIDs and Tags are join predicates and are always
// required when present, whatever Logic says.
type TaskFilter struct {
	Status       []entities.TaskStatus
	Priority     []entities.TaskPriority
	AssigneeIDs  []int64
	Tags         []string
	DueDateFrom  *time.Time
	DueDateTo    *time.Time
	CreatedAfter *time.Time
	Logic        string
}

// TaskRepository defines the interface for task data operations. Every
// mutating method commits as one transaction or not at all.
type TaskRepository interface {
	Create(ctx context.Context, task *entities.Task, assigneeIDs []int64, tagNames []string, dependencyIDs []int64) (*entities.Task, error)
	GetByID(ctx context.Context, id int64) (*entities.Task, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*entities.Task, error)
	GetDetail(ctx context.Context, id int64) (*entities.TaskDetail, error)
	Update(ctx context.Context, write TaskWrite) error
	BulkUpdate(ctx context.Context, writes []TaskWrite) error
	Delete(ctx context.Context, id int64) error
	AddDependency(ctx context.Context, taskID, dependsOnTaskID int64) error
	RemoveDependency(ctx context.Context, taskID, dependsOnTaskID int64) error
	Filter(ctx context.Context, filter TaskFilter) ([]*entities.Task, error)
	Analytics(ctx context.Context, now time.Time) (*entities.AnalyticsSnapshot, error)
	UserTimeline(ctx context.Context, userID int64, since time.Time) ([]*entities.TimelineEntry, error)
}

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	Create(ctx context.Context, user *entities.User) error
	GetByID(ctx context.Context, id int64) (*entities.User, error)
	GetByEmail(ctx context.Context, email string) (*entities.User, error)
	GetByUsername(ctx context.Context, username string) (*entities.User, error)
}

// AuthRepository defines the interface for refresh token persistence.
type AuthRepository interface {
	CreateRefreshToken(ctx context.Context, id uuid.UUID, userID int64, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*entities.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllUserTokens(ctx context.Context, userID int64) error
}

// CacheRepository defines the interface for caching operations. Values
// are serialized snapshots; implementations must report missing keys and
// undecodable payloads as ErrCacheMiss.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
