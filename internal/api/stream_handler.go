package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/phrazzld/codescope-api/internal/events"
	"github.com/phrazzld/codescope-api/internal/platform/logger"
)

// Stream timing defaults
const (
	defaultStreamPoll = 5 * time.Second
	streamWriteWait   = 10 * time.Second
)

// Subscriber delivers the events of a single task.
type Subscriber interface {
	Subscribe(taskID uuid.UUID) (<-chan events.TaskEvent, func())
}

// Ensure the broker satisfies Subscriber
var _ Subscriber = (*events.Broker)(nil)

// StreamHandler pushes task status snapshots over a WebSocket.
type StreamHandler struct {
	tasks    TaskService
	events   Subscriber
	upgrader websocket.Upgrader

	// poll re-reads the task when no event arrives, covering events a slow
	// subscriber dropped or that were emitted by another process
	poll time.Duration
}

// NewStreamHandler creates a StreamHandler. A non-positive poll uses the default.
func NewStreamHandler(tasks TaskService, subscriber Subscriber, poll time.Duration) *StreamHandler {
	if poll <= 0 {
		poll = defaultStreamPoll
	}
	return &StreamHandler{
		tasks:  tasks,
		events: subscriber,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		poll: poll,
	}
}

// StreamTask handles GET /api/tasks/{id}/stream. Each message is a task
// status snapshot; the server closes the connection after the terminal one.
func (h *StreamHandler) StreamTask(w http.ResponseWriter, r *http.Request) {
	userID, taskID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	// Subscribe before the first read so no transition falls in between
	updates, unsubscribe := h.events.Subscribe(taskID)
	defer unsubscribe()

	current, err := h.tasks.Get(r.Context(), userID, taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task")
		return
	}

	log := logger.FromContext(r.Context()).With("task_id", taskID)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error
		log.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go discardIncoming(conn, cancel)

	last := taskToResponse(current)
	if err := writeSnapshot(conn, last); err != nil {
		return
	}

	ticker := time.NewTicker(h.poll)
	defer ticker.Stop()

	for !last.State.IsTerminal() {
		select {
		case <-ctx.Done():
			return
		case _, open := <-updates:
			if !open {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}

		t, err := h.tasks.Get(ctx, userID, taskID)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("failed to refresh streamed task", "error", err)
			}
			return
		}
		next := taskToResponse(t)
		if sameSnapshot(last, next) {
			continue
		}
		if err := writeSnapshot(conn, next); err != nil {
			return
		}
		last = next
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(last.State)),
		time.Now().Add(streamWriteWait))
}

func writeSnapshot(conn *websocket.Conn, snapshot TaskResponse) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(snapshot)
}

// discardIncoming reads until the client goes away; it also processes pongs
// and close frames.
func discardIncoming(conn *websocket.Conn, done context.CancelFunc) {
	defer done()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func sameSnapshot(a, b TaskResponse) bool {
	return a.State == b.State &&
		a.Progress == b.Progress &&
		a.AttemptCount == b.AttemptCount &&
		equalStrings(a.ErrorSummary, b.ErrorSummary) &&
		equalStrings(a.ResultReference, b.ResultReference)
}

func equalStrings(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
