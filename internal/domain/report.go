package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Report is the stored result of a completed analysis. A task's result
// reference is the report ID.
type Report struct {
	ID            uuid.UUID `json:"id"`
	TaskID        uuid.UUID `json:"task_id"`
	OwnerID       uuid.UUID `json:"owner_id"`
	Repository    string    `json:"repository"`
	RepositoryURL string    `json:"repository_url"`
	Profile       string    `json:"profile"`
	Model         string    `json:"model"`
	Overall       float64   `json:"overall_score"`

	// Format is the download format requested with the task
	Format string `json:"format"`

	// Markdown is the rendered report
	Markdown string `json:"-"`

	// Analysis is the structured analysis as JSON
	Analysis json.RawMessage `json:"analysis"`

	CreatedAt time.Time `json:"created_at"`
}
