package task

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/events"
	"github.com/phrazzld/codescope-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSweeper(h *harness, maxAttempts int) *Sweeper {
	emitter := events.NewBus(discardLogger())
	emitter.Subscribe(h.recorder)
	return NewSweeper(h.store, h.queue, SweeperConfig{
		Interval:    time.Hour,
		StaleAfter:  time.Minute,
		MaxAttempts: maxAttempts,
		BatchSize:   10,
	}, emitter, discardLogger())
}

// crashAfterClaim simulates a worker that claimed the task and died
func crashAfterClaim(t *testing.T, h *harness, id uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	delivery, err := h.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, id, delivery.Item().TaskID)

	_, err = h.store.Claim(ctx, delivery.Item().TaskID, time.Now().UTC())
	require.NoError(t, err)
}

func TestSweeper_RecoversCrashedWorkerTask(t *testing.T) {
	h := newHarness(t)
	sweeper := newTestSweeper(h, 3)

	submitted := h.submit(t)
	crashAfterClaim(t, h, submitted.ID)

	// Nothing is stale yet
	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)

	sweeper.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	result, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Requeued)

	recovered, err := h.store.Get(context.Background(), submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, StatePending, recovered.State)

	h.runner.Start()
	done := h.waitForState(t, submitted.ID, StateCompleted)
	assert.Equal(t, 2, done.AttemptCount)
	assert.Equal(t, ProgressCompleted, done.Progress)
	assert.NotNil(t, done.ResultReference)
	assert.Len(t, h.recorder.ofType(submitted.ID, events.TypeRecovered), 1)
}

func TestSweeper_FailsTaskOnLastAttempt(t *testing.T) {
	h := newHarness(t)
	sweeper := newTestSweeper(h, 1)
	sweeper.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }

	submitted := h.submit(t)
	crashAfterClaim(t, h, submitted.ID)

	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	failed, err := h.store.Get(context.Background(), submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, failed.State)
	require.NotNil(t, failed.ErrorSummary)
	assert.Equal(t, abandonedSummary, *failed.ErrorSummary)
}

func TestSweeper_CancelsFlaggedOrphan(t *testing.T) {
	h := newHarness(t)
	sweeper := newTestSweeper(h, 3)
	sweeper.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }

	submitted := h.submit(t)
	crashAfterClaim(t, h, submitted.ID)
	_, err := h.coordinator.Cancel(context.Background(), h.owner, submitted.ID)
	require.NoError(t, err)

	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Cancelled)

	final, err := h.store.Get(context.Background(), submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, final.State)
}

func TestSweeper_ReenqueuesOverduePending(t *testing.T) {
	h := newHarness(t)
	sweeper := newTestSweeper(h, 3)

	submitted := h.submit(t)

	// Lose the work item
	delivery, err := h.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.NoError(t, delivery.Ack())

	sweeper.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reenqueued)
	assert.Equal(t, 1, h.queue.Len())
	assert.True(t, h.queue.Holds(submitted.ID))

	h.runner.Start()
	h.waitForState(t, submitted.ID, StateCompleted)
}

func TestSweeper_RecoverPendingOnStart(t *testing.T) {
	h := newHarness(t)

	pending := NewTask(h.owner, Input{RepositoryLocators: []string{"https://github.com/acme/a"}}, time.Now().UTC())
	require.NoError(t, h.store.Create(context.Background(), pending))
	assert.Equal(t, 0, h.queue.Len())

	sweeper := newTestSweeper(h, 3)
	require.NoError(t, sweeper.Start(context.Background()))
	defer sweeper.Stop()

	h.runner.Start()
	h.waitForState(t, pending.ID, StateCompleted)
}

func TestSweeper_LogsRecoveredTask(t *testing.T) {
	h := newHarness(t)
	log, buf := logger.NewTestLogger(t)
	sweeper := NewSweeper(h.store, h.queue, SweeperConfig{StaleAfter: time.Minute}, nil, log)
	sweeper.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }

	submitted := h.submit(t)
	crashAfterClaim(t, h, submitted.ID)

	_, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	entries := buf.Find("requeued orphaned task")
	require.Len(t, entries, 1)
	assert.Equal(t, submitted.ID.String(), entries[0]["task_id"])
	assert.Equal(t, "task_sweeper", entries[0]["component"])
	assert.EqualValues(t, 1, entries[0]["attempt"])
}

func TestSweeper_BackloggedTasksAreNotDuplicated(t *testing.T) {
	h := newHarness(t)
	sweeper := newTestSweeper(h, 3)
	sweeper.now = func() time.Time { return time.Now().UTC().Add(3 * time.Minute) }

	for range 8 {
		h.submit(t)
	}
	require.Equal(t, 8, h.queue.Len())

	for range 2 {
		result, err := sweeper.Sweep(context.Background())
		require.NoError(t, err)
		assert.Zero(t, result.Reenqueued)
		assert.Equal(t, 8, h.queue.Len())
	}

	// The backlog leaves room for new submissions
	_, err := h.coordinator.Submit(context.Background(), h.owner, Input{RepositoryLocators: []string{"acme/extra"}})
	require.NoError(t, err)
	assert.Equal(t, 9, h.queue.Len())
}
