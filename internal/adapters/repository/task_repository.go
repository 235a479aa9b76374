package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/taskhub/core/internal/domain/entities"
	"github.com/taskhub/core/internal/infrastructure/database"
	"github.com/taskhub/core/internal/ports"
)

const pgUniqueViolation = "23505"

// TaskRepositoryImpl implements the TaskRepository interface on Postgres.
// Every mutating method runs inside one transaction.
type TaskRepositoryImpl struct {
	db *database.DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *database.DB) ports.TaskRepository {
	return &TaskRepositoryImpl{db: db}
}

func (r *TaskRepositoryImpl) Create(ctx context.Context, task *entities.Task, assigneeIDs []int64, tagNames []string, dependencyIDs []int64) (*entities.Task, error) {
	err := r.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO tasks (title, description, status, priority, due_date, creator_id, parent_task_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id, created_at, updated_at`

		err := tx.QueryRowContext(ctx, query,
			task.Title,
			task.Description,
			task.Status,
			task.Priority,
			task.DueDate,
			task.CreatorID,
			task.ParentTaskID,
			task.CreatedAt,
			task.UpdatedAt,
		).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert task: %w", err)
		}

		if err := replaceAssignments(ctx, tx, task.ID, assigneeIDs); err != nil {
			return err
		}

		for _, name := range tagNames {
			if err := attachTag(ctx, tx, task.ID, name); err != nil {
				return err
			}
		}

		for _, depID := range dependencyIDs {
			if err := insertDependency(ctx, tx, task.ID, depID); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return task, nil
}

func (r *TaskRepositoryImpl) GetByID(ctx context.Context, id int64) (*entities.Task, error) {
	query := `
		SELECT id, title, description, status, priority, due_date, creator_id, parent_task_id, created_at, updated_at
		FROM tasks WHERE id = $1`

	var task entities.Task
	err := r.db.DB.GetContext(ctx, &task, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, entities.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return &task, nil
}

func (r *TaskRepositoryImpl) GetByIDs(ctx context.Context, ids []int64) ([]*entities.Task, error) {
	query := `
		SELECT id, title, description, status, priority, due_date, creator_id, parent_task_id, created_at, updated_at
		FROM tasks WHERE id = ANY($1)
		ORDER BY id`

	var tasks []*entities.Task
	err := r.db.DB.SelectContext(ctx, &tasks, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get tasks: %w", err)
	}

	return tasks, nil
}

func (r *TaskRepositoryImpl) GetDetail(ctx context.Context, id int64) (*entities.TaskDetail, error) {
	task, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &entities.TaskDetail{
		Task:      *task,
		Assignees: []entities.Assignee{},
		Tags:      []entities.Tag{},
		Subtasks:  []entities.Task{},
		DependsOn: []int64{},
		BlockedBy: []int64{},
	}

	assigneeQuery := `
		SELECT ta.user_id, u.username, u.email, ta.assigned_at
		FROM task_assignments ta
		JOIN users u ON u.id = ta.user_id
		WHERE ta.task_id = $1
		ORDER BY ta.assigned_at, ta.id`
	if err := r.db.DB.SelectContext(ctx, &detail.Assignees, assigneeQuery, id); err != nil {
		return nil, fmt.Errorf("failed to get task assignees: %w", err)
	}

	tagQuery := `
		SELECT tg.id, tg.name
		FROM tags tg
		JOIN task_tags tt ON tt.tag_id = tg.id
		WHERE tt.task_id = $1
		ORDER BY tg.name`
	if err := r.db.DB.SelectContext(ctx, &detail.Tags, tagQuery, id); err != nil {
		return nil, fmt.Errorf("failed to get task tags: %w", err)
	}

	subtaskQuery := `
		SELECT id, title, description, status, priority, due_date, creator_id, parent_task_id, created_at, updated_at
		FROM tasks WHERE parent_task_id = $1
		ORDER BY id`
	if err := r.db.DB.SelectContext(ctx, &detail.Subtasks, subtaskQuery, id); err != nil {
		return nil, fmt.Errorf("failed to get subtasks: %w", err)
	}
	detail.SubtaskCount = len(detail.Subtasks)

	depQuery := `SELECT depends_on_task_id FROM task_dependencies WHERE task_id = $1 ORDER BY depends_on_task_id`
	if err := r.db.DB.SelectContext(ctx, &detail.DependsOn, depQuery, id); err != nil {
		return nil, fmt.Errorf("failed to get task dependencies: %w", err)
	}

	blockedQuery := `SELECT task_id FROM task_dependencies WHERE depends_on_task_id = $1 ORDER BY task_id`
	if err := r.db.DB.SelectContext(ctx, &detail.BlockedBy, blockedQuery, id); err != nil {
		return nil, fmt.Errorf("failed to get blocking tasks: %w", err)
	}

	return detail, nil
}

func (r *TaskRepositoryImpl) Update(ctx context.Context, write ports.TaskWrite) error {
	return r.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		return applyWrite(ctx, tx, write)
	})
}

func (r *TaskRepositoryImpl) BulkUpdate(ctx context.Context, writes []ports.TaskWrite) error {
	return r.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		for _, write := range writes {
			if err := applyWrite(ctx, tx, write); err != nil {
				return err
			}
		}
		return nil
	})
}

// applyWrite persists one task mutation: the patched row, its history
// rows, and full replacement of the assignee/tag sets when requested.
func applyWrite(ctx context.Context, tx *sqlx.Tx, write ports.TaskWrite) error {
	task := write.Task

	query := `
		UPDATE tasks
		SET title = $2, description = $3, status = $4, priority = $5, due_date = $6, updated_at = $7
		WHERE id = $1`

	result, err := tx.ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		task.DueDate,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entities.ErrTaskNotFound
	}

	for _, h := range write.History {
		if err := insertHistory(ctx, tx, h); err != nil {
			return err
		}
	}

	if write.Assignees != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM task_assignments WHERE task_id = $1`, task.ID); err != nil {
			return fmt.Errorf("failed to clear assignments: %w", err)
		}
		if err := replaceAssignments(ctx, tx, task.ID, *write.Assignees); err != nil {
			return err
		}
	}

	if write.Tags != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id = $1`, task.ID); err != nil {
			return fmt.Errorf("failed to clear tags: %w", err)
		}
		for _, name := range *write.Tags {
			if err := attachTag(ctx, tx, task.ID, name); err != nil {
				return err
			}
		}
	}

	return nil
}

func (r *TaskRepositoryImpl) Delete(ctx context.Context, id int64) error {
	result, err := r.db.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entities.ErrTaskNotFound
	}

	return nil
}

func (r *TaskRepositoryImpl) AddDependency(ctx context.Context, taskID, dependsOnTaskID int64) error {
	return r.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		var count int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM tasks WHERE id = ANY($1)`,
			pq.Array(dedupe([]int64{taskID, dependsOnTaskID})),
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to check tasks: %w", err)
		}
		if count != len(dedupe([]int64{taskID, dependsOnTaskID})) {
			return entities.ErrTaskNotFound
		}

		return insertDependency(ctx, tx, taskID, dependsOnTaskID)
	})
}

func (r *TaskRepositoryImpl) RemoveDependency(ctx context.Context, taskID, dependsOnTaskID int64) error {
	result, err := r.db.DB.ExecContext(ctx,
		`DELETE FROM task_dependencies WHERE task_id = $1 AND depends_on_task_id = $2`,
		taskID, dependsOnTaskID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove dependency: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entities.ErrDependencyNotFound
	}

	return nil
}

func (r *TaskRepositoryImpl) Filter(ctx context.Context, filter ports.TaskFilter) ([]*entities.Task, error) {
	query, args := buildFilterQuery(filter)

	var tasks []*entities.Task
	if err := r.db.DB.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("failed to filter tasks: %w", err)
	}

	return tasks, nil
}

// buildFilterQuery assembles the dynamic search statement. Column
// predicates combine under the caller's AND/OR logic; the assignee and
// tag joins are always required filters on top of that, whatever the
// logic says. DISTINCT collapses duplicate rows from the joins.
func buildFilterQuery(filter ports.TaskFilter) (string, []interface{}) {
	var (
		joins     []string
		colConds  []string
		joinConds []string
		args      []interface{}
	)
	argIndex := 1

	if len(filter.Status) > 0 {
		colConds = append(colConds, fmt.Sprintf("t.status = ANY($%d)", argIndex))
		args = append(args, pq.Array(statusStrings(filter.Status)))
		argIndex++
	}

	if len(filter.Priority) > 0 {
		colConds = append(colConds, fmt.Sprintf("t.priority = ANY($%d)", argIndex))
		args = append(args, pq.Array(priorityStrings(filter.Priority)))
		argIndex++
	}

	if filter.DueDateFrom != nil {
		colConds = append(colConds, fmt.Sprintf("t.due_date >= $%d", argIndex))
		args = append(args, *filter.DueDateFrom)
		argIndex++
	}

	if filter.DueDateTo != nil {
		colConds = append(colConds, fmt.Sprintf("t.due_date <= $%d", argIndex))
		args = append(args, *filter.DueDateTo)
		argIndex++
	}

	if filter.CreatedAfter != nil {
		colConds = append(colConds, fmt.Sprintf("t.created_at >= $%d", argIndex))
		args = append(args, *filter.CreatedAfter)
		argIndex++
	}

	if len(filter.AssigneeIDs) > 0 {
		joins = append(joins, "JOIN task_assignments ta ON ta.task_id = t.id")
		joinConds = append(joinConds, fmt.Sprintf("ta.user_id = ANY($%d)", argIndex))
		args = append(args, pq.Array(filter.AssigneeIDs))
		argIndex++
	}

	if len(filter.Tags) > 0 {
		joins = append(joins, "JOIN task_tags tt ON tt.task_id = t.id", "JOIN tags tg ON tg.id = tt.tag_id")
		joinConds = append(joinConds, fmt.Sprintf("tg.name = ANY($%d)", argIndex))
		args = append(args, pq.Array(filter.Tags))
		argIndex++
	}

	logic := " AND "
	if strings.EqualFold(filter.Logic, "OR") {
		logic = " OR "
	}

	var conds []string
	if len(colConds) > 0 {
		conds = append(conds, "("+strings.Join(colConds, logic)+")")
	}
	conds = append(conds, joinConds...)

	whereClause := ""
	if len(conds) > 0 {
		whereClause = "WHERE " + strings.Join(conds, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT t.id, t.title, t.description, t.status, t.priority, t.due_date, t.creator_id, t.parent_task_id, t.created_at, t.updated_at
		FROM tasks t
		%s
		%s`, strings.Join(joins, "\n\t\t"), whereClause)

	return query, args
}

func (r *TaskRepositoryImpl) Analytics(ctx context.Context, now time.Time) (*entities.AnalyticsSnapshot, error) {
	snapshot := &entities.AnalyticsSnapshot{
		TasksByStatus:        make(map[entities.TaskStatus]int),
		TasksByPriority:      make(map[entities.TaskPriority]int),
		UserTaskDistribution: []entities.UserTaskStats{},
	}

	err := r.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&snapshot.TotalTasks)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	statusRows, err := r.db.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks by status: %w", err)
	}
	defer statusRows.Close()
	for statusRows.Next() {
		var status entities.TaskStatus
		var count int
		if err := statusRows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		snapshot.TasksByStatus[status] = count
	}
	if err := statusRows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	priorityRows, err := r.db.DB.QueryContext(ctx, `SELECT priority, COUNT(*) FROM tasks GROUP BY priority`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks by priority: %w", err)
	}
	defer priorityRows.Close()
	for priorityRows.Next() {
		var priority entities.TaskPriority
		var count int
		if err := priorityRows.Scan(&priority, &count); err != nil {
			return nil, fmt.Errorf("failed to scan priority count: %w", err)
		}
		snapshot.TasksByPriority[priority] = count
	}
	if err := priorityRows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	err = r.db.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE due_date < $1 AND status <> 'done'`, now,
	).Scan(&snapshot.OverdueTasks)
	if err != nil {
		return nil, fmt.Errorf("failed to count overdue tasks: %w", err)
	}

	distributionQuery := `
		SELECT u.id AS user_id, u.username, u.email,
			COUNT(ta.id) AS total_tasks,
			COUNT(*) FILTER (WHERE t.due_date < $1 AND t.status <> 'done') AS overdue_tasks
		FROM users u
		JOIN task_assignments ta ON ta.user_id = u.id
		JOIN tasks t ON t.id = ta.task_id
		GROUP BY u.id, u.username, u.email
		ORDER BY u.id`
	if err := r.db.DB.SelectContext(ctx, &snapshot.UserTaskDistribution, distributionQuery, now); err != nil {
		return nil, fmt.Errorf("failed to get user task distribution: %w", err)
	}

	return snapshot, nil
}

func (r *TaskRepositoryImpl) UserTimeline(ctx context.Context, userID int64, since time.Time) ([]*entities.TimelineEntry, error) {
	query := `
		SELECT th.id, th.task_id, th.user_id, th.field_changed, th.old_value, th.new_value, th.changed_at,
			t.title AS task_title, u.username
		FROM task_history th
		JOIN tasks t ON t.id = th.task_id
		JOIN users u ON u.id = th.user_id
		WHERE th.task_id IN (SELECT task_id FROM task_assignments WHERE user_id = $1)
			AND th.changed_at >= $2
		ORDER BY th.changed_at DESC`

	var entries []*entities.TimelineEntry
	if err := r.db.DB.SelectContext(ctx, &entries, query, userID, since); err != nil {
		return nil, fmt.Errorf("failed to get user timeline: %w", err)
	}

	return entries, nil
}

// Transaction helpers

func replaceAssignments(ctx context.Context, tx *sqlx.Tx, taskID int64, userIDs []int64) error {
	for _, userID := range userIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO task_assignments (task_id, user_id, assigned_at) VALUES ($1, $2, NOW())`,
			taskID, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert assignment: %w", err)
		}
	}
	return nil
}

// attachTag resolves a tag by name, creating it when missing, and links it
// to the task. The insert races with concurrent creates of the same name;
// ON CONFLICT DO NOTHING followed by a re-select keeps it correct without
// duplicating rows.
func attachTag(ctx context.Context, tx *sqlx.Tx, taskID int64, name string) error {
	var tagID int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO tags (name) VALUES ($1) ON CONFLICT (name) DO NOTHING RETURNING id`,
		name,
	).Scan(&tagID)
	if err == sql.ErrNoRows {
		err = tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = $1`, name).Scan(&tagID)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve tag %q: %w", name, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO task_tags (task_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		taskID, tagID,
	)
	if err != nil {
		return fmt.Errorf("failed to attach tag %q: %w", name, err)
	}

	return nil
}

func insertDependency(ctx context.Context, tx *sqlx.Tx, taskID, dependsOnTaskID int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO task_dependencies (task_id, depends_on_task_id, created_at) VALUES ($1, $2, NOW())`,
		taskID, dependsOnTaskID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return entities.ErrDependencyExists
		}
		return fmt.Errorf("failed to insert dependency: %w", err)
	}
	return nil
}

func insertHistory(ctx context.Context, tx *sqlx.Tx, h entities.TaskHistory) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO task_history (task_id, user_id, field_changed, old_value, new_value, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		h.TaskID, h.UserID, h.FieldChanged, h.OldValue, h.NewValue, h.ChangedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}
	return nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func statusStrings(statuses []entities.TaskStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func priorityStrings(priorities []entities.TaskPriority) []string {
	out := make([]string, len(priorities))
	for i, p := range priorities {
		out[i] = string(p)
	}
	return out
}
