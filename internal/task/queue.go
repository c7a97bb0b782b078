package task

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WorkItem is the queue entry referencing a task.
type WorkItem struct {
	TaskID uuid.UUID `json:"task_id"`

	// Attempt is the attempt count the task had when the item was enqueued
	Attempt int `json:"attempt"`

	// NotBefore delays delivery until the given time
	NotBefore time.Time `json:"not_before,omitempty"`
}

// Delivery is one received work item. It must be acknowledged only after the
// task reached a terminal state or was safely re-queued.
type Delivery interface {
	// Item returns the delivered work item
	Item() WorkItem

	// Ack removes the item from the queue
	Ack() error

	// Nack returns the item to the queue for redelivery after delay
	Nack(delay time.Duration) error

	// InProgress extends the redelivery deadline of a long-running item
	InProgress() error
}

// itemHolder is implemented by queues that can tell whether a task already
// has an undelivered item.
type itemHolder interface {
	Holds(taskID uuid.UUID) bool
}

// Queue is the ordered, at-least-once hand-off between submission and processing.
type Queue interface {
	// Enqueue adds an item; it returns ErrQueueFull or ErrQueueClosed when the
	// item cannot be accepted. An implementation may coalesce an item for a
	// task that is already waiting to be delivered.
	Enqueue(ctx context.Context, item WorkItem) error

	// Dequeue blocks until an item is ready, the queue is closed, or ctx ends
	Dequeue(ctx context.Context) (Delivery, error)

	// Close releases the queue
	Close() error
}
