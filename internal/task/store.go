package task

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines the durable record of every task. Worker-side writes take the
// attempt number returned by Claim and only apply while the task is still in
// progress under that attempt; otherwise they return ErrLostOwnership.
// Version: 2.0
type Store interface {
	// Create persists a new pending task
	Create(ctx context.Context, t *Task) error

	// Get returns the task or ErrNotFound
	Get(ctx context.Context, id uuid.UUID) (*Task, error)

	// ListByOwner returns up to limit of the owner's tasks, newest first, and
	// the owner's total task count
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*Task, int, error)

	// Claim atomically moves a pending task to in_progress, resets progress,
	// increments the attempt count and sets started_at if unset. It returns
	// ErrStateConflict when the task is not pending.
	Claim(ctx context.Context, id uuid.UUID, now time.Time) (*Task, error)

	// UpdateProgress raises the progress of an owned task and refreshes its heartbeat
	UpdateProgress(ctx context.Context, id uuid.UUID, attempt, progress int, now time.Time) error

	// Heartbeat refreshes the liveness timestamp of an owned task
	Heartbeat(ctx context.Context, id uuid.UUID, attempt int, now time.Time) error

	// Complete marks an owned task completed with its result reference; it
	// refuses (ErrLostOwnership) once cancellation was requested
	Complete(ctx context.Context, id uuid.UUID, attempt int, resultRef string, now time.Time) error

	// Fail marks an owned task failed with an error summary
	Fail(ctx context.Context, id uuid.UUID, attempt int, summary string, now time.Time) error

	// Requeue returns an owned task to pending for another attempt
	Requeue(ctx context.Context, id uuid.UUID, attempt int, nextAttemptAt time.Time) error

	// MarkCancelled marks an owned task cancelled
	MarkCancelled(ctx context.Context, id uuid.UUID, attempt int, now time.Time) error

	// CancelPending atomically moves a pending task to cancelled
	CancelPending(ctx context.Context, id uuid.UUID, now time.Time) error

	// FailPending moves a pending task straight to failed without counting
	// an attempt
	FailPending(ctx context.Context, id uuid.UUID, summary string, now time.Time) error

	// RequestCancel flags an in-progress task for cooperative cancellation
	RequestCancel(ctx context.Context, id uuid.UUID) error

	// ListStale returns in-progress tasks whose heartbeat is older than heartbeatBefore
	ListStale(ctx context.Context, heartbeatBefore time.Time, limit int) ([]*Task, error)

	// ListPending returns pending tasks due before readyBefore, oldest first
	ListPending(ctx context.Context, readyBefore time.Time, limit int) ([]*Task, error)

	// TouchPending moves the next attempt time of a pending task
	TouchPending(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error
}
