package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/domain"
	"github.com/phrazzld/codescope-api/internal/task"
)

// RegisterRequest defines the payload for the user registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=72"`
}

// LoginRequest defines the payload for the user login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// AuthResponse defines the successful response for authentication endpoints.
type AuthResponse struct {
	UserID uuid.UUID `json:"user_id"`

	// AccessToken is the JWT used for API authorization
	AccessToken string `json:"token"`
}

// SubmitTaskRequest is the body of POST /api/tasks. Locators and options
// are validated by the task coordinator.
type SubmitTaskRequest struct {
	RepositoryLocators []string     `json:"repository_locators" validate:"required,min=1"`
	Options            task.Options `json:"options"`
}

// SubmitTaskResponse acknowledges an accepted task.
type SubmitTaskResponse struct {
	TaskID uuid.UUID `json:"task_id"`
}

// TaskResponse is the public status snapshot of a task.
type TaskResponse struct {
	TaskID          uuid.UUID  `json:"task_id"`
	State           task.State `json:"state"`
	Progress        int        `json:"progress"`
	GitHubURL       string     `json:"github_url"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ErrorSummary    *string    `json:"error_summary,omitempty"`
	ResultReference *string    `json:"result_reference,omitempty"`
	AttemptCount    int        `json:"attempt_count"`
}

// TaskListResponse is the body of GET /api/tasks.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
	Total int            `json:"total"`
}

// CancelTaskResponse is the body of DELETE /api/tasks/{id}.
type CancelTaskResponse struct {
	TaskID uuid.UUID  `json:"task_id"`
	State  task.State `json:"state"`

	// CancelRequested is set while a running task has yet to reach its next checkpoint
	CancelRequested bool `json:"cancel_requested,omitempty"`
}

// ReportResponse describes a stored report without its rendered body.
type ReportResponse struct {
	ID            uuid.UUID       `json:"id"`
	TaskID        uuid.UUID       `json:"task_id"`
	Repository    string          `json:"repository"`
	RepositoryURL string          `json:"repository_url"`
	Profile       string          `json:"profile"`
	Model         string          `json:"model"`
	OverallScore  float64         `json:"overall_score"`
	Format        string          `json:"format"`
	Analysis      json.RawMessage `json:"analysis,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ReportListResponse is the body of GET /api/reports.
type ReportListResponse struct {
	Reports []ReportResponse `json:"reports"`
}

func taskToResponse(t *task.Task) TaskResponse {
	return TaskResponse{
		TaskID:          t.ID,
		State:           t.State,
		Progress:        t.Progress,
		GitHubURL:       t.Input.PrimaryURL(),
		SubmittedAt:     t.SubmittedAt,
		StartedAt:       t.StartedAt,
		CompletedAt:     t.CompletedAt,
		ErrorSummary:    t.ErrorSummary,
		ResultReference: t.ResultReference,
		AttemptCount:    t.AttemptCount,
	}
}

func tasksToResponse(tasks []*task.Task) []TaskResponse {
	out := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		out[i] = taskToResponse(t)
	}
	return out
}

// reportToResponse omits the analysis body unless withAnalysis is set.
func reportToResponse(r *domain.Report, withAnalysis bool) ReportResponse {
	resp := ReportResponse{
		ID:            r.ID,
		TaskID:        r.TaskID,
		Repository:    r.Repository,
		RepositoryURL: r.RepositoryURL,
		Profile:       r.Profile,
		Model:         r.Model,
		OverallScore:  r.Overall,
		Format:        r.Format,
		CreatedAt:     r.CreatedAt,
	}
	if withAnalysis {
		resp.Analysis = r.Analysis
	}
	return resp
}
