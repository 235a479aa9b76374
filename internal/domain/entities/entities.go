package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrTagNotFound        = errors.New("tag not found")
	ErrDependencyExists   = errors.New("dependency already exists")
	ErrDependencyNotFound = errors.New("dependency not found")
	ErrValidation         = errors.New("validation failed")
	ErrUnauthorized       = errors.New("unauthorized")
)

// Enums and types
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusInReview   TaskStatus = "in_review"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusBlocked    TaskStatus = "blocked"
)

// Valid reports whether s is one of the known task statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusInReview, TaskStatusDone, TaskStatusBlocked:
		return true
	}
	return false
}

type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityUrgent TaskPriority = "urgent"
)

// Valid reports whether p is one of the known task priorities.
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	}
	return false
}

type UserRole string

const (
	UserRoleAdmin   UserRole = "admin"
	UserRoleManager UserRole = "manager"
	UserRoleMember  UserRole = "member"
)

// Task represents a unit of work with status, priority and ownership.
// ParentTaskID links subtasks to their parent; children reference parents
// by id only, the tree is materialized through query-by-parent.
type Task struct {
	ID           int64        `json:"id" db:"id"`
	Title        string       `json:"title" db:"title"`
	Description  *string      `json:"description" db:"description"`
	Status       TaskStatus   `json:"status" db:"status"`
	Priority     TaskPriority `json:"priority" db:"priority"`
	DueDate      *time.Time   `json:"due_date" db:"due_date"`
	CreatorID    int64        `json:"creator_id" db:"creator_id"`
	ParentTaskID *int64       `json:"parent_task_id" db:"parent_task_id"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// Overdue reports whether the task is past due and not done.
func (t *Task) Overdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) && t.Status != TaskStatusDone
}

// TaskAssignment links one task to one assignee. The current assignee set
// of a task is exactly its assignment rows; updates replace the whole set.
type TaskAssignment struct {
	ID         int64     `json:"id" db:"id"`
	TaskID     int64     `json:"task_id" db:"task_id"`
	UserID     int64     `json:"user_id" db:"user_id"`
	AssignedAt time.Time `json:"assigned_at" db:"assigned_at"`
}

// TaskDependency is a directed "blocked-by" edge: TaskID depends on
// DependsOnTaskID. Duplicate ordered pairs are rejected by a unique
// constraint. Acyclicity is not enforced.
type TaskDependency struct {
	ID              int64     `json:"id" db:"id"`
	TaskID          int64     `json:"task_id" db:"task_id"`
	DependsOnTaskID int64     `json:"depends_on_task_id" db:"depends_on_task_id"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Tag is shared across tasks and outlives any single task.
type Tag struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// TaskHistory is an immutable audit record of one field change. It is
// only ever removed by cascade when its task is deleted.
type TaskHistory struct {
	ID           int64     `json:"id" db:"id"`
	TaskID       int64     `json:"task_id" db:"task_id"`
	UserID       int64     `json:"user_id" db:"user_id"`
	FieldChanged string    `json:"field_changed" db:"field_changed"`
	OldValue     string    `json:"old_value" db:"old_value"`
	NewValue     string    `json:"new_value" db:"new_value"`
	ChangedAt    time.Time `json:"changed_at" db:"changed_at"`
}

// TimelineEntry is a history record joined with its task title and the
// acting user's username, as returned by the user timeline.
type TimelineEntry struct {
	TaskHistory
	TaskTitle string `json:"task_title" db:"task_title"`
	Username  string `json:"username" db:"username"`
}

// User represents a user account. Users are never created or destroyed by
// the task core; they are an external identity collaborator.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FullName     *string   `json:"full_name" db:"full_name"`
	Role         UserRole  `json:"role" db:"role"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Assignee is the identity slice of a user attached to a task detail.
type Assignee struct {
	UserID     int64     `json:"user_id" db:"user_id"`
	Username   string    `json:"username" db:"username"`
	Email      string    `json:"email" db:"email"`
	AssignedAt time.Time `json:"assigned_at" db:"assigned_at"`
}

// TaskDetail is the canonical serializable shape of a fully-loaded task.
// The same shape is stored in the cache and returned on a miss, so cache
// hits and misses never diverge.
type TaskDetail struct {
	Task
	Assignees    []Assignee `json:"assignees"`
	Tags         []Tag      `json:"tags"`
	Subtasks     []Task     `json:"subtasks"`
	DependsOn    []int64    `json:"depends_on"`
	BlockedBy    []int64    `json:"blocked_by"`
	SubtaskCount int        `json:"subtask_count"`
}

// UserTaskStats is one row of the per-user assignment distribution.
type UserTaskStats struct {
	UserID       int64  `json:"user_id" db:"user_id"`
	Username     string `json:"username" db:"username"`
	Email        string `json:"email" db:"email"`
	TotalTasks   int    `json:"total_tasks" db:"total_tasks"`
	OverdueTasks int    `json:"overdue_tasks" db:"overdue_tasks"`
}

// AnalyticsSnapshot is the dashboard aggregate, cached under a fixed key.
type AnalyticsSnapshot struct {
	TotalTasks           int                  `json:"total_tasks"`
	TasksByStatus        map[TaskStatus]int   `json:"tasks_by_status"`
	TasksByPriority      map[TaskPriority]int `json:"tasks_by_priority"`
	OverdueTasks         int                  `json:"overdue_tasks"`
	UserTaskDistribution []UserTaskStats      `json:"user_task_distribution"`
}

// RefreshToken is a persisted, revocable refresh credential.
type RefreshToken struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    int64      `json:"user_id" db:"user_id"`
	TokenHash string     `json:"-" db:"token_hash"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	RevokedAt *time.Time `json:"revoked_at" db:"revoked_at"`
}
