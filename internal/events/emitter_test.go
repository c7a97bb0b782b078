package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// MockEventHandler records the events it receives
type MockEventHandler struct {
	HandledCount int
	LastEvent    *TaskEvent
	HandlerError error
}

func (h *MockEventHandler) HandleEvent(ctx context.Context, event *TaskEvent) error {
	h.HandledCount++
	h.LastEvent = event
	return h.HandlerError
}

func TestBus(t *testing.T) {
	// Create a minimal logger that discards output
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	event := NewTaskEvent(TypeClaimed, uuid.New(), uuid.New(), "in_progress", 0, 1)

	t.Run("emit event with no handlers", func(t *testing.T) {
		emitter := NewBus(logger)
		assert.NoError(t, emitter.EmitEvent(context.Background(), event))
	})

	t.Run("emit event with successful handlers", func(t *testing.T) {
		emitter := NewBus(logger)
		handler1 := &MockEventHandler{}
		handler2 := &MockEventHandler{}
		emitter.Subscribe(handler1)
		emitter.Subscribe(handler2)

		assert.NoError(t, emitter.EmitEvent(context.Background(), event))
		assert.Equal(t, 1, handler1.HandledCount)
		assert.Equal(t, 1, handler2.HandledCount)
		assert.Equal(t, event, handler1.LastEvent)
	})

	t.Run("emit event with failing handler", func(t *testing.T) {
		emitter := NewBus(logger)
		failingHandler := &MockEventHandler{HandlerError: errors.New("handler error")}
		successHandler := &MockEventHandler{}
		emitter.Subscribe(failingHandler)
		emitter.Subscribe(successHandler)

		err := emitter.EmitEvent(context.Background(), event)
		assert.EqualError(t, err, "handler error")

		// Later handlers still receive the event
		assert.Equal(t, 1, successHandler.HandledCount)
	})

	t.Run("panicking handler is contained", func(t *testing.T) {
		emitter := NewBus(logger)
		after := &MockEventHandler{}
		emitter.Subscribe(HandlerFunc(func(ctx context.Context, e *TaskEvent) error {
			panic("boom")
		}))
		emitter.Subscribe(after)

		err := emitter.EmitEvent(context.Background(), event)
		assert.ErrorContains(t, err, "boom")
		assert.Equal(t, 1, after.HandledCount)
	})

	t.Run("handler func adapter", func(t *testing.T) {
		emitter := NewBus(logger)
		var got string
		emitter.Subscribe(HandlerFunc(func(ctx context.Context, e *TaskEvent) error {
			got = e.Type
			return nil
		}))

		assert.NoError(t, emitter.EmitEvent(context.Background(), event))
		assert.Equal(t, TypeClaimed, got)
	})
}

func TestTaskEventIsTerminal(t *testing.T) {
	for eventType, want := range map[string]bool{
		TypeSubmitted:      false,
		TypeProgress:       false,
		TypeRetryScheduled: false,
		TypeCompleted:      true,
		TypeFailed:         true,
		TypeCancelled:      true,
	} {
		e := NewTaskEvent(eventType, uuid.New(), uuid.New(), "", 0, 0)
		assert.Equal(t, want, e.IsTerminal(), eventType)
	}
}
