package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/taskhub/core/internal/infrastructure/logger"
	"github.com/taskhub/core/internal/ports"
)

// TaskHandler handles task-related requests
type TaskHandler struct {
	taskService ports.TaskService
	logger      *logger.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(taskService ports.TaskService, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		logger:      logger,
	}
}

// CreateTask handles task creation
func (h *TaskHandler) CreateTask(c echo.Context) error {
	var req ports.CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	detail, err := h.taskService.Create(c.Request().Context(), req, getUserIDFromContext(c))
	if err != nil {
		h.logger.Errorw("Create task failed", "error", err)
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, detail)
}

// GetTask handles getting a task with its full detail
func (h *TaskHandler) GetTask(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	detail, err := h.taskService.Get(c.Request().Context(), id)
	if err != nil {
		h.logger.Errorw("Get task failed", "error", err, "task_id", id)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, detail)
}

// UpdateTask handles partial task updates
func (h *TaskHandler) UpdateTask(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req ports.UpdateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	detail, err := h.taskService.Update(c.Request().Context(), id, req, getUserIDFromContext(c))
	if err != nil {
		h.logger.Errorw("Update task failed", "error", err, "task_id", id)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, detail)
}

// BulkUpdateTasks handles applying one change set to many tasks
func (h *TaskHandler) BulkUpdateTasks(c echo.Context) error {
	var req ports.BulkUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	count, err := h.taskService.BulkUpdate(c.Request().Context(), req, getUserIDFromContext(c))
	if err != nil {
		h.logger.Errorw("Bulk update failed", "error", err, "task_ids", req.TaskIDs)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, BulkUpdateResponse{
		Message:      "Tasks updated successfully",
		UpdatedCount: count,
	})
}

// DeleteTask handles task deletion
func (h *TaskHandler) DeleteTask(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	if err := h.taskService.Delete(c.Request().Context(), id, getUserIDFromContext(c)); err != nil {
		h.logger.Errorw("Delete task failed", "error", err, "task_id", id)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, MessageResponse{Message: "Task deleted successfully"})
}

// AddDependency handles adding a dependency edge between two tasks
func (h *TaskHandler) AddDependency(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	depID, err := parseID(c, "depID")
	if err != nil {
		return err
	}

	if err := h.taskService.AddDependency(c.Request().Context(), id, depID); err != nil {
		h.logger.Errorw("Add dependency failed", "error", err, "task_id", id, "depends_on", depID)
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, MessageResponse{Message: "Dependency added"})
}

// RemoveDependency handles removing a dependency edge
func (h *TaskHandler) RemoveDependency(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	depID, err := parseID(c, "depID")
	if err != nil {
		return err
	}

	if err := h.taskService.RemoveDependency(c.Request().Context(), id, depID); err != nil {
		h.logger.Errorw("Remove dependency failed", "error", err, "task_id", id, "depends_on", depID)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, MessageResponse{Message: "Dependency removed"})
}

// FilterTasks handles dynamic task filtering
func (h *TaskHandler) FilterTasks(c echo.Context) error {
	var req ports.FilterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	tasks, err := h.taskService.Filter(c.Request().Context(), req)
	if err != nil {
		h.logger.Errorw("Filter tasks failed", "error", err)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, tasks)
}

// GetAnalytics handles the dashboard analytics snapshot
func (h *TaskHandler) GetAnalytics(c echo.Context) error {
	snapshot, err := h.taskService.Analytics(c.Request().Context())
	if err != nil {
		h.logger.Errorw("Analytics failed", "error", err)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, snapshot)
}

// GetMyTimeline handles the acting user's task activity timeline
func (h *TaskHandler) GetMyTimeline(c echo.Context) error {
	days := 7
	if daysStr := c.QueryParam("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid days parameter")
		}
		days = parsed
	}

	entries, err := h.taskService.UserTimeline(c.Request().Context(), getUserIDFromContext(c), days)
	if err != nil {
		h.logger.Errorw("Timeline failed", "error", err)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, entries)
}

func parseID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid "+name+" parameter")
	}
	return id, nil
}

func getUserIDFromContext(c echo.Context) int64 {
	if id, ok := c.Get("user_id").(int64); ok {
		return id
	}
	return 0
}
