package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is a buffered, in-process Queue. Items with a NotBefore in the
// future are held on a timer and pushed once they are due. The queue holds at
// most one item per task: enqueueing a task that is already waiting, on the
// buffer or on a timer, is a no-op.
type MemoryQueue struct {
	items  chan WorkItem
	done   chan struct{}
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	timers map[*time.Timer]struct{}
	held   map[uuid.UUID]struct{}
}

// Ensure MemoryQueue implements Queue
var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates a queue with the specified buffer size
func NewMemoryQueue(size int, logger *slog.Logger) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	return &MemoryQueue{
		items:  make(chan WorkItem, size),
		done:   make(chan struct{}),
		logger: logger,
		timers: make(map[*time.Timer]struct{}),
		held:   make(map[uuid.UUID]struct{}),
	}
}

// Enqueue adds an item to the queue.
// Returns an error if the queue is full or closed
func (q *MemoryQueue) Enqueue(ctx context.Context, item WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if _, waiting := q.held[item.TaskID]; waiting {
		q.logger.Debug("work item already queued", "task_id", item.TaskID, "attempt", item.Attempt)
		return nil
	}

	if delay := time.Until(item.NotBefore); delay > 0 {
		q.scheduleLocked(item, delay)
		return nil
	}

	select {
	case q.items <- item:
		q.held[item.TaskID] = struct{}{}
		q.logger.Debug("work item enqueued",
			"task_id", item.TaskID,
			"attempt", item.Attempt,
			"queue_len", len(q.items),
			"queue_cap", cap(q.items))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.items))
	}
}

// scheduleLocked pushes item after delay. Callers hold q.mu.
func (q *MemoryQueue) scheduleLocked(item WorkItem, delay time.Duration) {
	q.held[item.TaskID] = struct{}{}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()

		// Delayed items wait for room rather than being dropped
		select {
		case q.items <- item:
		case <-q.done:
		}
	})
	q.timers[timer] = struct{}{}

	q.logger.Debug("work item scheduled",
		"task_id", item.TaskID,
		"attempt", item.Attempt,
		"delay", delay)
}

// Dequeue blocks until an item is available.
func (q *MemoryQueue) Dequeue(ctx context.Context) (Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.done:
		return nil, ErrQueueClosed
	case item := <-q.items:
		q.mu.Lock()
		delete(q.held, item.TaskID)
		q.mu.Unlock()
		return &memoryDelivery{queue: q, item: item}, nil
	}
}

// Holds reports whether an item for the task is waiting for delivery.
func (q *MemoryQueue) Holds(taskID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.held[taskID]
	return ok
}

// Len returns the number of items ready for delivery
func (q *MemoryQueue) Len() int {
	return len(q.items)
}

// Close stops delivery and drops scheduled items
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	for timer := range q.timers {
		timer.Stop()
	}
	q.timers = nil
	close(q.done)
	q.logger.Info("work queue closed")
	return nil
}

// memoryDelivery acknowledges nothing; the item left the channel on receipt.
type memoryDelivery struct {
	queue *MemoryQueue
	item  WorkItem
}

func (d *memoryDelivery) Item() WorkItem { return d.item }

func (d *memoryDelivery) Ack() error { return nil }

func (d *memoryDelivery) InProgress() error { return nil }

func (d *memoryDelivery) Nack(delay time.Duration) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()

	if d.queue.closed {
		return ErrQueueClosed
	}
	if _, waiting := d.queue.held[d.item.TaskID]; waiting {
		return nil
	}
	if delay <= 0 {
		delay = time.Millisecond
	}
	d.queue.scheduleLocked(d.item, delay)
	return nil
}
