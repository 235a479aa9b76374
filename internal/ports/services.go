package ports

import (
	"context"
	"time"

	"github.com/taskhub/core/internal/domain/entities"
)

// TaskService interface for task lifecycle, filtering and analytics.
type TaskService interface {
	Create(ctx context.Context, req CreateTaskRequest, creatorID int64) (*entities.TaskDetail, error)
	Get(ctx context.Context, id int64) (*entities.TaskDetail, error)
	Update(ctx context.Context, id int64, req UpdateTaskRequest, actingUserID int64) (*entities.TaskDetail, error)
	BulkUpdate(ctx context.Context, req BulkUpdateRequest, actingUserID int64) (int, error)
	Delete(ctx context.Context, id int64, actingUserID int64) error
	AddDependency(ctx context.Context, taskID, dependsOnTaskID int64) error
	RemoveDependency(ctx context.Context, taskID, dependsOnTaskID int64) error
	Filter(ctx context.Context, req FilterRequest) ([]*entities.Task, error)
	Analytics(ctx context.Context) (*entities.AnalyticsSnapshot, error)
	UserTimeline(ctx context.Context, userID int64, days int) ([]*entities.TimelineEntry, error)
}

// AuthService interface for authentication operations.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error)
	Logout(ctx context.Context, userID int64) error
}

// Task related types

type CreateTaskRequest struct {
	Title         string                `json:"title" validate:"required,min=1,max=255"`
	Description   *string               `json:"description"`
	Status        entities.TaskStatus   `json:"status" validate:"omitempty,oneof=todo in_progress in_review done blocked"`
	Priority      entities.TaskPriority `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	DueDate       *time.Time            `json:"due_date"`
	ParentTaskID  *int64                `json:"parent_task_id"`
	AssigneeIDs   []int64               `json:"assignee_ids"`
	TagNames      []string              `json:"tag_names"`
	DependencyIDs []int64               `json:"dependency_ids"`
}

// UpdateTaskRequest is a tagged patch: each field carries its own presence
// flag so an omitted key, an explicit null and a new value are three
// different things. Assignee and tag lists fully replace the current sets.
type UpdateTaskRequest struct {
	Title       Optional[string]                `json:"title"`
	Description Optional[string]                `json:"description"`
	Status      Optional[entities.TaskStatus]   `json:"status"`
	Priority    Optional[entities.TaskPriority] `json:"priority"`
	DueDate     Optional[time.Time]             `json:"due_date"`
	AssigneeIDs Optional[[]int64]               `json:"assignee_ids"`
	TagNames    Optional[[]string]              `json:"tag_names"`
}

type BulkUpdateRequest struct {
	TaskIDs     []int64                `json:"task_ids" validate:"required,min=1"`
	Status      *entities.TaskStatus   `json:"status" validate:"omitempty,oneof=todo in_progress in_review done blocked"`
	Priority    *entities.TaskPriority `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	AssigneeIDs *[]int64               `json:"assignee_ids"`
}

type FilterRequest struct {
	Status       []entities.TaskStatus   `json:"status" validate:"omitempty,dive,oneof=todo in_progress in_review done blocked"`
	Priority     []entities.TaskPriority `json:"priority" validate:"omitempty,dive,oneof=low medium high urgent"`
	AssigneeIDs  []int64                 `json:"assignee_ids"`
	Tags         []string                `json:"tags"`
	DueDateFrom  *time.Time              `json:"due_date_from"`
	DueDateTo    *time.Time              `json:"due_date_to"`
	CreatedAfter *time.Time              `json:"created_after"`
	Logic        string                  `json:"logic" validate:"omitempty,oneof=AND OR"`
}

// Auth related types

type RegisterRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Username string  `json:"username" validate:"required,min=3,max=50"`
	Password string  `json:"password" validate:"required,min=8"`
	FullName *string `json:"full_name" validate:"omitempty,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	TokenType    string         `json:"token_type"`
	ExpiresIn    int64          `json:"expires_in"`
	User         *entities.User `json:"user"`
}
