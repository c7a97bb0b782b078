package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types emitted over a task's lifecycle
const (
	TypeSubmitted      = "task.submitted"
	TypeClaimed        = "task.claimed"
	TypeProgress       = "task.progress"
	TypeRetryScheduled = "task.retry_scheduled"
	TypeCompleted      = "task.completed"
	TypeFailed         = "task.failed"
	TypeCancelled      = "task.cancelled"
	TypeRecovered      = "task.recovered"
	TypeStageFinished  = "task.stage_finished"
)

// TaskEvent describes one observable change to a task. It mirrors the task's
// public fields as plain values so this package stays free of task internals.
type TaskEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the Type* constants
	Type string `json:"type"`

	TaskID   uuid.UUID `json:"task_id"`
	OwnerID  uuid.UUID `json:"owner_id"`
	State    string    `json:"state"`
	Progress int       `json:"progress"`
	Attempt  int       `json:"attempt"`

	// Stage and Duration are set on stage_finished events
	Stage    string        `json:"stage,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`

	// Outcome classifies stage results and failures, e.g. "ok" or "FetchError"
	Outcome string `json:"outcome,omitempty"`

	// OccurredAt is the timestamp when the event was created
	OccurredAt time.Time `json:"occurred_at"`
}

// NewTaskEvent creates a TaskEvent with a fresh identifier.
func NewTaskEvent(eventType string, taskID, ownerID uuid.UUID, state string, progress, attempt int) *TaskEvent {
	return &TaskEvent{
		ID:         uuid.New(),
		Type:       eventType,
		TaskID:     taskID,
		OwnerID:    ownerID,
		State:      state,
		Progress:   progress,
		Attempt:    attempt,
		OccurredAt: time.Now().UTC(),
	}
}

// IsTerminal reports whether the event ends the task's lifecycle.
func (e *TaskEvent) IsTerminal() bool {
	switch e.Type {
	case TypeCompleted, TypeFailed, TypeCancelled:
		return true
	}
	return false
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// EventEmitter defines an interface for components that can emit events.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *TaskEvent) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *TaskEvent) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *TaskEvent) error {
	return f(ctx, event)
}
