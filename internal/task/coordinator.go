package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/events"
)

// List limits applied when the caller asks for none or too many tasks
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Coordinator is the boundary between callers and the processing pipeline. It
// validates submissions, answers status queries and propagates cancellation.
// All operations hide tasks owned by someone else behind ErrNotFound.
type Coordinator struct {
	store    Store
	queue    Queue
	policy   InputPolicy
	notifier notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewCoordinator creates a Coordinator. emitter may be nil.
func NewCoordinator(
	store Store,
	queue Queue,
	policy InputPolicy,
	emitter events.EventEmitter,
	logger *slog.Logger,
) *Coordinator {
	logger = logger.With("component", "task_coordinator")
	return &Coordinator{
		store:    store,
		queue:    queue,
		policy:   policy,
		notifier: notifier{emitter: emitter, logger: logger},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates input, records a pending task and enqueues its work item.
// It returns as soon as the item is queued.
func (c *Coordinator) Submit(ctx context.Context, ownerID uuid.UUID, input Input) (*Task, error) {
	normalized, err := c.policy.Normalize(input)
	if err != nil {
		return nil, err
	}

	t := NewTask(ownerID, normalized, c.now())
	if err := c.store.Create(ctx, t); err != nil {
		c.logger.Error("failed to create task", "owner_id", ownerID, "error", err)
		return nil, fmt.Errorf("%w: failed to create task", ErrInternal)
	}

	log := c.logger.With("task_id", t.ID, "owner_id", ownerID)
	if err := c.queue.Enqueue(ctx, WorkItem{TaskID: t.ID}); err != nil {
		log.Error("failed to enqueue task", "error", err)
		c.abandonUnqueued(ctx, t, log)
		return nil, fmt.Errorf("%w: work queue unavailable", ErrInternal)
	}

	log.Info("task submitted", "repositories", len(normalized.RepositoryLocators))
	c.notifier.emit(ctx, newEvent(events.TypeSubmitted, t))
	return t.Clone(), nil
}

// abandonUnqueued records a task whose work item never reached the queue as
// failed, so it does not linger as pending.
func (c *Coordinator) abandonUnqueued(ctx context.Context, t *Task, log *slog.Logger) {
	summary := Summarize(fmt.Errorf("%w: work queue unavailable", ErrInternal))
	now := c.now()
	if err := c.store.FailPending(ctx, t.ID, summary, now); err != nil {
		log.Error("failed to mark unqueued task failed", "error", err)
		return
	}
	t.State = StateFailed
	t.ErrorSummary = &summary
	t.CompletedAt = &now
	c.notifier.emit(ctx, newEvent(events.TypeFailed, t))
}

// Get returns a snapshot of the caller's task.
func (c *Coordinator) Get(ctx context.Context, ownerID, taskID uuid.UUID) (*Task, error) {
	t, err := c.store.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		c.logger.Error("failed to get task", "task_id", taskID, "error", err)
		return nil, fmt.Errorf("%w: failed to get task", ErrInternal)
	}
	if t.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return t, nil
}

// List returns the caller's tasks newest first and the caller's total count.
// A limit outside 1..MaxListLimit is clamped.
func (c *Coordinator) List(ctx context.Context, ownerID uuid.UUID, limit int) ([]*Task, int, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	tasks, total, err := c.store.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		c.logger.Error("failed to list tasks", "owner_id", ownerID, "error", err)
		return nil, 0, fmt.Errorf("%w: failed to list tasks", ErrInternal)
	}
	return tasks, total, nil
}

// Cancel cancels the caller's task. A pending task becomes cancelled at once;
// an in-progress task is flagged and its worker cancels it at the next
// checkpoint. Cancelling a terminal task changes nothing. The returned
// snapshot reflects the task after the request.
func (c *Coordinator) Cancel(ctx context.Context, ownerID, taskID uuid.UUID) (*Task, error) {
	// The task may move between pending and in_progress while we look at it;
	// a few rounds settle any such race
	for range 3 {
		t, err := c.Get(ctx, ownerID, taskID)
		if err != nil {
			return nil, err
		}

		log := c.logger.With("task_id", taskID, "owner_id", ownerID, "state", t.State)

		switch {
		case t.State.IsTerminal():
			log.Debug("cancel of terminal task ignored")
			return t, nil

		case t.State == StateInProgress && t.CancelRequested:
			return t, nil

		case t.State == StatePending:
			err = c.store.CancelPending(ctx, taskID, c.now())
			if err == nil {
				log.Info("pending task cancelled")
				cancelled, getErr := c.Get(ctx, ownerID, taskID)
				if getErr != nil {
					return nil, getErr
				}
				c.notifier.emit(ctx, newEvent(events.TypeCancelled, cancelled))
				return cancelled, nil
			}

		case t.State == StateInProgress:
			err = c.store.RequestCancel(ctx, taskID)
			if err == nil {
				log.Info("cancellation requested for running task")
				t.CancelRequested = true
				return t, nil
			}
		}

		if !errors.Is(err, ErrStateConflict) {
			log.Error("failed to cancel task", "error", err)
			return nil, fmt.Errorf("%w: failed to cancel task", ErrInternal)
		}
	}

	return c.Get(ctx, ownerID, taskID)
}
