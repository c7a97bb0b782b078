package task

import (
	"context"
	"log/slog"

	"github.com/phrazzld/codescope-api/internal/events"
)

// notifier emits lifecycle events; emission failures are logged, never returned.
type notifier struct {
	emitter events.EventEmitter
	logger  *slog.Logger
}

func newEvent(eventType string, t *Task) *events.TaskEvent {
	return events.NewTaskEvent(eventType, t.ID, t.OwnerID, string(t.State), t.Progress, t.AttemptCount)
}

func (n notifier) emit(ctx context.Context, event *events.TaskEvent) {
	if n.emitter == nil {
		return
	}
	if err := n.emitter.EmitEvent(ctx, event); err != nil {
		n.logger.Warn("failed to emit task event",
			"event_type", event.Type,
			"task_id", event.TaskID,
			"error", err)
	}
}
