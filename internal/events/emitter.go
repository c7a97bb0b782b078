package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Bus fans task events out to subscribed handlers in registration order.
// Delivery is synchronous; a slow handler delays the task lifecycle call
// that emitted the event.
type Bus struct {
	mu       sync.RWMutex
	handlers []EventHandler
	logger   *slog.Logger
}

var _ EventEmitter = (*Bus)(nil)

// NewBus creates a Bus with no subscribers.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger.With("component", "event_bus")}
}

// Subscribe adds handler to the delivery list.
func (b *Bus) Subscribe(handler EventHandler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	n := len(b.handlers)
	b.mu.Unlock()

	b.logger.Debug("event handler subscribed", "subscribers", n)
}

// EmitEvent delivers event to every subscriber. A failing or panicking
// handler does not stop delivery; all failures are joined in the result.
func (b *Bus) EmitEvent(ctx context.Context, event *TaskEvent) error {
	b.mu.RLock()
	handlers := b.handlers[:len(b.handlers):len(b.handlers)]
	b.mu.RUnlock()

	var errs []error
	for i, h := range handlers {
		if err := deliver(ctx, h, event); err != nil {
			b.logger.Error("event delivery failed",
				"error", err,
				"subscriber", i,
				"event_type", event.Type,
				"task_id", event.TaskID,
				"attempt", event.Attempt)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func deliver(ctx context.Context, h EventHandler, event *TaskEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panicked: %v", r)
		}
	}()
	return h.HandleEvent(ctx, event)
}
