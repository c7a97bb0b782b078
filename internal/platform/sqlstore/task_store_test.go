package sqlstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	now := time.Now().UTC()

	created := newPendingTask(t, s, uuid.New(), now)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.OwnerID, got.OwnerID)
	assert.Equal(t, created.Input, got.Input)
	assert.Equal(t, task.StatePending, got.State)
	assert.Equal(t, 0, got.Progress)
	assert.Equal(t, 0, got.AttemptCount)
	assert.False(t, got.CancelRequested)
	assert.Equal(t, ms(now), got.SubmittedAt)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.ErrorSummary)
	assert.Nil(t, got.ResultReference)

	_, err = s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestTaskStoreClaim(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	now := time.Now().UTC()
	tk := newPendingTask(t, s, uuid.New(), now)

	claimed, err := s.Claim(ctx, tk.ID, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, task.StateInProgress, claimed.State)
	assert.Equal(t, 1, claimed.AttemptCount)
	require.NotNil(t, claimed.StartedAt)
	assert.Equal(t, ms(now.Add(time.Second)), *claimed.StartedAt)
	require.NotNil(t, claimed.HeartbeatAt)

	_, err = s.Claim(ctx, tk.ID, now)
	assert.ErrorIs(t, err, task.ErrStateConflict)

	_, err = s.Claim(ctx, uuid.New(), now)
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestTaskStoreConcurrentClaimHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	tk := newPendingTask(t, s, uuid.New(), time.Now().UTC())

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Claim(ctx, tk.ID, time.Now().UTC())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case assert.ErrorIs(t, err, task.ErrStateConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, workers-1, conflicts)

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AttemptCount)
}

func TestTaskStoreFencing(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	now := time.Now().UTC()
	tk := newPendingTask(t, s, uuid.New(), now)

	claimed, err := s.Claim(ctx, tk.ID, now)
	require.NoError(t, err)
	attempt := claimed.AttemptCount

	assert.ErrorIs(t, s.Heartbeat(ctx, tk.ID, attempt+1, now), task.ErrLostOwnership)
	assert.ErrorIs(t, s.UpdateProgress(ctx, tk.ID, attempt+1, 40, now), task.ErrLostOwnership)
	assert.ErrorIs(t, s.Complete(ctx, tk.ID, attempt+1, "ref", now), task.ErrLostOwnership)
	assert.ErrorIs(t, s.Fail(ctx, uuid.New(), attempt, "boom", now), task.ErrNotFound)

	// A requeued attempt can no longer write
	require.NoError(t, s.Requeue(ctx, tk.ID, attempt, now))
	assert.ErrorIs(t, s.UpdateProgress(ctx, tk.ID, attempt, 40, now), task.ErrLostOwnership)

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatePending, got.State)
	assert.Equal(t, 0, got.Progress)
	assert.Nil(t, got.HeartbeatAt)
	assert.NotNil(t, got.StartedAt, "started_at survives a requeue")

	second, err := s.Claim(ctx, tk.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 2, second.AttemptCount)
	assert.Equal(t, *claimed.StartedAt, *second.StartedAt)
}

func TestTaskStoreProgressNeverDecreases(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	now := time.Now().UTC()
	tk := newPendingTask(t, s, uuid.New(), now)
	claimed, err := s.Claim(ctx, tk.ID, now)
	require.NoError(t, err)

	require.NoError(t, s.UpdateProgress(ctx, tk.ID, claimed.AttemptCount, task.ProgressAnalyzed, now))
	require.NoError(t, s.UpdateProgress(ctx, tk.ID, claimed.AttemptCount, task.ProgressFetched, now.Add(time.Second)))

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ProgressAnalyzed, got.Progress)
	assert.Equal(t, ms(now.Add(time.Second)), *got.HeartbeatAt, "heartbeat still refreshed")
}

func TestTaskStoreComplete(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	now := time.Now().UTC()
	tk := newPendingTask(t, s, uuid.New(), now)
	claimed, err := s.Claim(ctx, tk.ID, now)
	require.NoError(t, err)

	require.NoError(t, s.Complete(ctx, tk.ID, claimed.AttemptCount, "report-1", now))

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StateCompleted, got.State)
	assert.Equal(t, task.ProgressCompleted, got.Progress)
	require.NotNil(t, got.ResultReference)
	assert.Equal(t, "report-1", *got.ResultReference)
	assert.NotNil(t, got.CompletedAt)

	// Terminal tasks accept no further writes
	assert.ErrorIs(t, s.Fail(ctx, tk.ID, claimed.AttemptCount, "late", now), task.ErrLostOwnership)
	assert.ErrorIs(t, s.CancelPending(ctx, tk.ID, now), task.ErrStateConflict)
	assert.ErrorIs(t, s.RequestCancel(ctx, tk.ID), task.ErrStateConflict)
}

func TestTaskStoreCompleteRefusedAfterCancelRequest(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	now := time.Now().UTC()
	tk := newPendingTask(t, s, uuid.New(), now)
	claimed, err := s.Claim(ctx, tk.ID, now)
	require.NoError(t, err)

	require.NoError(t, s.RequestCancel(ctx, tk.ID))
	assert.ErrorIs(t, s.Complete(ctx, tk.ID, claimed.AttemptCount, "report-1", now), task.ErrLostOwnership)

	require.NoError(t, s.MarkCancelled(ctx, tk.ID, claimed.AttemptCount, now))
	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StateCancelled, got.State)
	assert.True(t, got.CancelRequested)
	assert.Nil(t, got.ResultReference)
}

func TestTaskStoreFail(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	now := time.Now().UTC()
	tk := newPendingTask(t, s, uuid.New(), now)
	claimed, err := s.Claim(ctx, tk.ID, now)
	require.NoError(t, err)

	summary := "FetchError: repository not found"
	require.NoError(t, s.Fail(ctx, tk.ID, claimed.AttemptCount, summary, now))

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StateFailed, got.State)
	require.NotNil(t, got.ErrorSummary)
	assert.Equal(t, summary, *got.ErrorSummary)
}

func TestTaskStoreCancelPending(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	now := time.Now().UTC()
	tk := newPendingTask(t, s, uuid.New(), now)

	require.NoError(t, s.CancelPending(ctx, tk.ID, now))
	assert.ErrorIs(t, s.CancelPending(ctx, tk.ID, now), task.ErrStateConflict)
	assert.ErrorIs(t, s.CancelPending(ctx, uuid.New(), now), task.ErrNotFound)

	_, err := s.Claim(ctx, tk.ID, now)
	assert.ErrorIs(t, err, task.ErrStateConflict, "a cancelled task is never claimed")

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StateCancelled, got.State)
	assert.Equal(t, 0, got.AttemptCount)
}

func TestTaskStoreFailPending(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	now := time.Now().UTC()
	tk := newPendingTask(t, s, uuid.New(), now)

	require.NoError(t, s.FailPending(ctx, tk.ID, "InternalError: work queue unavailable", now))
	assert.ErrorIs(t, s.FailPending(ctx, tk.ID, "again", now), task.ErrStateConflict)
	assert.ErrorIs(t, s.FailPending(ctx, uuid.New(), "missing", now), task.ErrNotFound)

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StateFailed, got.State)
	assert.Equal(t, 0, got.AttemptCount)
	assert.Nil(t, got.StartedAt)
	require.NotNil(t, got.ErrorSummary)
	assert.Equal(t, "InternalError: work queue unavailable", *got.ErrorSummary)
	assert.NotNil(t, got.CompletedAt)
}

func TestTaskStoreListByOwner(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	owner := uuid.New()
	base := time.Now().UTC()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		ids = append(ids, newPendingTask(t, s, owner, base.Add(time.Duration(i)*time.Second)).ID)
	}
	newPendingTask(t, s, uuid.New(), base)

	page, total, err := s.ListByOwner(ctx, owner, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)

	all, total, err := s.ListByOwner(ctx, owner, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, all, 3)

	none, total, err := s.ListByOwner(ctx, uuid.New(), 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, none)
}

func TestTaskStoreListStaleAndPending(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	owner := uuid.New()
	now := time.Now().UTC()

	stale := newPendingTask(t, s, owner, now.Add(-time.Hour))
	_, err := s.Claim(ctx, stale.ID, now.Add(-10*time.Minute))
	require.NoError(t, err)

	fresh := newPendingTask(t, s, owner, now.Add(-time.Hour))
	_, err = s.Claim(ctx, fresh.ID, now)
	require.NoError(t, err)

	overdue := newPendingTask(t, s, owner, now.Add(-10*time.Minute))
	newPendingTask(t, s, owner, now.Add(time.Minute))

	staleTasks, err := s.ListStale(ctx, now.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, staleTasks, 1)
	assert.Equal(t, stale.ID, staleTasks[0].ID)

	pending, err := s.ListPending(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, overdue.ID, pending[0].ID)

	require.NoError(t, s.TouchPending(ctx, overdue.ID, now.Add(time.Hour)))
	pending, err = s.ListPending(ctx, now, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.ErrorIs(t, s.TouchPending(ctx, stale.ID, now), task.ErrStateConflict)
}

// TestTaskStoreDrivesRunner runs the worker pipeline end to end on SQLite.
func TestTaskStoreDrivesRunner(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestDB(t))
	queue := task.NewMemoryQueue(8, discardLogger)
	defer func() { _ = queue.Close() }()

	fetcher := fetcherFunc(func(ctx context.Context, locators []string) (*task.Fetched, error) {
		return &task.Fetched{Name: "acme/widgets", URL: locators[0], Digest: "package main"}, nil
	})
	analyzer := analyzerFunc(func(ctx context.Context, f *task.Fetched, opts task.Options) (*task.Analysis, error) {
		return &task.Analysis{Profile: opts.PromptProfile, Summary: "fine", Overall: 8}, nil
	})

	coordinator := task.NewCoordinator(s, queue, task.InputPolicy{}, nil, discardLogger)
	runner := task.NewRunner(s, queue,
		task.Stages{Fetcher: fetcher, Analyzer: analyzer, Reporter: staticReporter("report-42")},
		task.RunnerConfig{WorkerCount: 2, HeartbeatInterval: 20 * time.Millisecond},
		nil, discardLogger)
	runner.Start()
	defer func() { _ = runner.Stop(ctx) }()

	owner := uuid.New()
	submitted, err := coordinator.Submit(ctx, owner, task.Input{RepositoryLocators: []string{"acme/widgets"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := coordinator.Get(ctx, owner, submitted.ID)
		return err == nil && got.State == task.StateCompleted
	}, 5*time.Second, 10*time.Millisecond)

	got, err := coordinator.Get(ctx, owner, submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ProgressCompleted, got.Progress)
	assert.Equal(t, "report-42", *got.ResultReference)
	assert.Equal(t, 1, got.AttemptCount)
}

type fetcherFunc func(ctx context.Context, locators []string) (*task.Fetched, error)

func (f fetcherFunc) Fetch(ctx context.Context, locators []string) (*task.Fetched, error) {
	return f(ctx, locators)
}

type analyzerFunc func(ctx context.Context, f *task.Fetched, opts task.Options) (*task.Analysis, error)

func (f analyzerFunc) Analyze(ctx context.Context, fetched *task.Fetched, opts task.Options) (*task.Analysis, error) {
	return f(ctx, fetched, opts)
}

type staticReporter string

func (r staticReporter) Save(context.Context, *task.Task, *task.Fetched, *task.Analysis) (string, error) {
	return string(r), nil
}

func (r staticReporter) Discard(context.Context, string) error { return nil }
