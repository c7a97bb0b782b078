package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/api/shared"
	"github.com/phrazzld/codescope-api/internal/domain"
	"github.com/phrazzld/codescope-api/internal/task"
)

// TaskService is the task coordinator as seen by the HTTP layer.
type TaskService interface {
	Submit(ctx context.Context, ownerID uuid.UUID, input task.Input) (*task.Task, error)
	Get(ctx context.Context, ownerID, taskID uuid.UUID) (*task.Task, error)
	List(ctx context.Context, ownerID uuid.UUID, limit int) ([]*task.Task, int, error)
	Cancel(ctx context.Context, ownerID, taskID uuid.UUID) (*task.Task, error)
}

// Ensure the coordinator satisfies TaskService
var _ TaskService = (*task.Coordinator)(nil)

// TaskHandler handles task submission, status and cancellation requests.
type TaskHandler struct {
	tasks TaskService
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// SubmitTask handles POST /api/tasks. The task is accepted once queued;
// processing happens in the background.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	var req SubmitTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	t, err := h.tasks.Submit(r.Context(), userID, task.Input{
		RepositoryLocators: req.RepositoryLocators,
		Options:            req.Options,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit task")
		return
	}

	w.Header().Set("Location", "/api/tasks/"+t.ID.String())
	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitTaskResponse{TaskID: t.ID})
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	userID, taskID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	t, err := h.tasks.Get(r.Context(), userID, taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t))
}

// ListTasks handles GET /api/tasks?limit=N.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	tasks, total, err := h.tasks.List(r.Context(), userID, limit)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tasks")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{
		Tasks: tasksToResponse(tasks),
		Total: total,
	})
}

// CancelTask handles DELETE /api/tasks/{id}. Repeating it is harmless.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	userID, taskID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	t, err := h.tasks.Cancel(r.Context(), userID, taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to cancel task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, CancelTaskResponse{
		TaskID:          t.ID,
		State:           t.State,
		CancelRequested: t.CancelRequested && !t.State.IsTerminal(),
	})
}
