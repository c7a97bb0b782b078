package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/codescope-api/internal/events"
)

// RunnerConfig holds configuration for the worker loop
type RunnerConfig struct {
	// WorkerCount determines how many tasks are processed concurrently
	WorkerCount int

	// MaxAttempts bounds processing attempts per task, including the first
	MaxAttempts int

	// Backoff spaces out retried attempts
	Backoff Backoff

	// HeartbeatInterval is how often an owned task's liveness is refreshed
	HeartbeatInterval time.Duration

	// FetchTimeout and AnalysisTimeout bound the external stage calls
	FetchTimeout    time.Duration
	AnalysisTimeout time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:       2,
		MaxAttempts:       3,
		Backoff:           Backoff{Base: 5 * time.Second, Max: 5 * time.Minute},
		HeartbeatInterval: 15 * time.Second,
		FetchTimeout:      5 * time.Minute,
		AnalysisTimeout:   10 * time.Minute,
	}
}

// Stages bundles the external collaborators a task is driven through.
type Stages struct {
	Fetcher  Fetcher
	Analyzer Analyzer
	Reporter Reporter
}

// errCancelRequested signals that a checkpoint observed a cancellation request.
var errCancelRequested = errors.New("cancellation requested")

// Runner pulls work items from the queue and drives each claimed task through
// fetch, analysis and persist. A task is only ever written under the attempt
// number returned by its claim.
type Runner struct {
	store    Store
	queue    Queue
	stages   Stages
	config   RunnerConfig
	notifier notifier
	logger   *slog.Logger
	now      func() time.Time

	// ctx stops dequeuing; procCtx is cancelled only when draining times out
	ctx        context.Context
	cancelFunc context.CancelFunc
	procCtx    context.Context
	procCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewRunner creates a worker loop. emitter may be nil.
func NewRunner(
	store Store,
	queue Queue,
	stages Stages,
	config RunnerConfig,
	emitter events.EventEmitter,
	logger *slog.Logger,
) *Runner {
	logger = logger.With("component", "task_runner")

	defaults := DefaultRunnerConfig()
	if config.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", defaults.WorkerCount)
		config.WorkerCount = defaults.WorkerCount
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = defaults.FetchTimeout
	}
	if config.AnalysisTimeout <= 0 {
		config.AnalysisTimeout = defaults.AnalysisTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	procCtx, procCancel := context.WithCancel(context.WithoutCancel(ctx))

	return &Runner{
		store:      store,
		queue:      queue,
		stages:     stages,
		config:     config,
		notifier:   notifier{emitter: emitter, logger: logger},
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		ctx:        ctx,
		cancelFunc: cancel,
		procCtx:    procCtx,
		procCancel: procCancel,
	}
}

// Start launches the worker goroutines
func (r *Runner) Start() {
	r.logger.Info("starting task workers", "worker_count", r.config.WorkerCount)
	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

// Stop stops dequeuing and waits for in-flight tasks to finish. If ctx ends
// first, in-flight stage calls are cancelled and their tasks are abandoned
// without further writes; recovery picks them up later.
func (r *Runner) Stop(ctx context.Context) error {
	r.cancelFunc()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.procCancel()
		r.logger.Info("task workers stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("drain deadline reached, abandoning in-flight tasks")
		r.procCancel()
		<-done
		return ctx.Err()
	}
}

// worker processes items from the queue until the runner stops
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		delivery, err := r.queue.Dequeue(r.ctx)
		if err != nil {
			if r.ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				r.logger.Debug("stopping worker", "worker_id", id)
				return
			}
			r.logger.Error("failed to dequeue work item", "worker_id", id, "error", err)
			select {
			case <-r.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		r.handle(delivery, id)
	}
}

// handle claims the delivered task and processes it if the claim succeeds
func (r *Runner) handle(d Delivery, workerID int) {
	ctx := r.procCtx
	item := d.Item()
	logger := r.logger.With(
		"task_id", item.TaskID,
		"worker_id", workerID,
	)

	t, err := r.store.Claim(ctx, item.TaskID, r.now())
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		logger.Warn("discarding work item for unknown task")
		r.ack(d, logger)
		return
	case errors.Is(err, ErrStateConflict):
		// Duplicate delivery, or the task was cancelled while queued
		logger.Debug("discarding work item for task that is not pending")
		r.ack(d, logger)
		return
	default:
		logger.Error("failed to claim task", "error", err)
		if nackErr := d.Nack(r.config.Backoff.Delay(1)); nackErr != nil {
			logger.Error("failed to return work item", "error", nackErr)
		}
		return
	}

	logger = logger.With("attempt", t.AttemptCount)
	logger.Info("processing task")
	r.notifier.emit(ctx, newEvent(events.TypeClaimed, t))

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var hbDone sync.WaitGroup
	hbDone.Add(1)
	go func() {
		defer hbDone.Done()
		r.heartbeat(hbCtx, d, t, logger)
	}()

	err = r.process(ctx, t, logger)

	stopHeartbeat()
	hbDone.Wait()

	r.finish(ctx, d, t, err, logger)
}

// heartbeat keeps an owned task from looking abandoned while it runs
func (r *Runner) heartbeat(ctx context.Context, d Delivery, t *Task, logger *slog.Logger) {
	ticker := time.NewTicker(r.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.store.Heartbeat(ctx, t.ID, t.AttemptCount, r.now()); err != nil {
				if errors.Is(err, ErrLostOwnership) {
					logger.Warn("heartbeat found task no longer owned")
					return
				}
				logger.Error("failed to record heartbeat", "error", err)
			}
			if err := d.InProgress(); err != nil {
				logger.Debug("failed to extend work item deadline", "error", err)
			}
		}
	}
}

// process runs the stages of one attempt. It returns nil once the task is
// completed, errCancelRequested when a checkpoint saw a cancel request, or the
// error that ended the attempt.
func (r *Runner) process(ctx context.Context, t *Task, logger *slog.Logger) error {
	if err := r.checkpoint(ctx, t); err != nil {
		return err
	}

	fetched, err := r.fetch(ctx, t)
	if err != nil {
		return err
	}
	logger.Info("repository fetched",
		"repository", fetched.Name,
		"file_count", fetched.FileCount,
		"truncated", fetched.Truncated)
	if err := r.advance(ctx, t, ProgressFetched); err != nil {
		return err
	}

	if err := r.checkpoint(ctx, t); err != nil {
		return err
	}

	analysis, err := r.analyze(ctx, t, fetched)
	if err != nil {
		return err
	}
	if err := r.advance(ctx, t, ProgressAnalyzed); err != nil {
		return err
	}

	if err := r.checkpoint(ctx, t); err != nil {
		return err
	}

	ref, err := r.stages.Reporter.Save(ctx, t, fetched, analysis)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: saving report: %v", ErrInternal, err)
	}

	if err := r.store.Complete(ctx, t.ID, t.AttemptCount, ref, r.now()); err != nil {
		r.discard(ref, logger)
		if !errors.Is(err, ErrLostOwnership) {
			return fmt.Errorf("%w: completing task: %v", ErrInternal, err)
		}
		// Complete refuses once a cancel was requested; tell that apart
		// from losing the task to recovery
		if cpErr := r.checkpoint(ctx, t); cpErr != nil {
			return cpErr
		}
		return err
	}

	t.State = StateCompleted
	t.Progress = ProgressCompleted
	t.ResultReference = &ref
	return nil
}

// checkpoint returns errCancelRequested if cancellation was requested, or
// ErrLostOwnership if the task is no longer owned by this attempt.
func (r *Runner) checkpoint(ctx context.Context, t *Task) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	cur, err := r.store.Get(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("%w: reading task: %v", ErrInternal, err)
	}
	if cur.State != StateInProgress || cur.AttemptCount != t.AttemptCount {
		return ErrLostOwnership
	}
	if cur.CancelRequested {
		return errCancelRequested
	}
	return nil
}

func (r *Runner) advance(ctx context.Context, t *Task, progress int) error {
	if err := r.store.UpdateProgress(ctx, t.ID, t.AttemptCount, progress, r.now()); err != nil {
		if errors.Is(err, ErrLostOwnership) {
			return err
		}
		return fmt.Errorf("%w: updating progress: %v", ErrInternal, err)
	}
	t.Progress = progress
	r.notifier.emit(ctx, newEvent(events.TypeProgress, t))
	return nil
}

func (r *Runner) fetch(ctx context.Context, t *Task) (*Fetched, error) {
	stageCtx, cancel := context.WithTimeout(ctx, r.config.FetchTimeout)
	defer cancel()

	start := time.Now()
	fetched, err := r.stages.Fetcher.Fetch(stageCtx, t.Input.RepositoryLocators)
	err = stageFailure(ctx, stageCtx, err, NewFetchError)
	r.stageFinished(ctx, t, "fetch", time.Since(start), err)
	return fetched, err
}

func (r *Runner) analyze(ctx context.Context, t *Task, fetched *Fetched) (*Analysis, error) {
	stageCtx, cancel := context.WithTimeout(ctx, r.config.AnalysisTimeout)
	defer cancel()

	start := time.Now()
	analysis, err := r.stages.Analyzer.Analyze(stageCtx, fetched, t.Input.Options)
	err = stageFailure(ctx, stageCtx, err, NewAnalysisError)
	r.stageFinished(ctx, t, "analysis", time.Since(start), err)
	return analysis, err
}

// stageFailure classifies a stage error. Shutdown surfaces as the parent
// context error; a stage timeout or unclassified error becomes a retryable
// stage error.
func stageFailure(
	parent, stageCtx context.Context,
	err error,
	wrap func(reason string, permanent bool, err error) *StageError,
) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		return wrap("timed out", false, context.DeadlineExceeded)
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return err
	}
	return wrap("unexpected failure", false, err)
}

func (r *Runner) stageFinished(ctx context.Context, t *Task, stage string, took time.Duration, err error) {
	event := newEvent(events.TypeStageFinished, t)
	event.Stage = stage
	event.Duration = took
	event.Outcome = "ok"
	if err != nil {
		event.Outcome = kindName(err)
	}
	r.notifier.emit(ctx, event)
}

// finish records the outcome of an attempt and settles the delivery
func (r *Runner) finish(ctx context.Context, d Delivery, t *Task, err error, logger *slog.Logger) {
	switch {
	case err == nil:
		logger.Info("task completed", "result_reference", *t.ResultReference)
		r.notifier.emit(ctx, newEvent(events.TypeCompleted, t))
		r.ack(d, logger)

	case ctx.Err() != nil:
		// Shutting down: leave the task for recovery and the item for redelivery
		logger.Warn("abandoning task on shutdown")

	case errors.Is(err, ErrLostOwnership):
		logger.Warn("task ownership lost, dropping attempt")
		r.ack(d, logger)

	case errors.Is(err, errCancelRequested):
		r.cancel(ctx, d, t, logger)

	default:
		// A cancel request wins over whatever ended the attempt
		if cpErr := r.checkpoint(ctx, t); errors.Is(cpErr, errCancelRequested) {
			r.cancel(ctx, d, t, logger)
			return
		}
		r.retryOrFail(ctx, d, t, err, logger)
	}
}

func (r *Runner) cancel(ctx context.Context, d Delivery, t *Task, logger *slog.Logger) {
	if err := r.store.MarkCancelled(ctx, t.ID, t.AttemptCount, r.now()); err != nil {
		logger.Error("failed to mark task cancelled", "error", err)
		r.ack(d, logger)
		return
	}
	t.State = StateCancelled
	logger.Info("task cancelled", "progress", t.Progress)
	r.notifier.emit(ctx, newEvent(events.TypeCancelled, t))
	r.ack(d, logger)
}

func (r *Runner) retryOrFail(ctx context.Context, d Delivery, t *Task, cause error, logger *slog.Logger) {
	summary := Summarize(cause)

	if IsRetryable(cause) && t.AttemptCount < r.config.MaxAttempts {
		delay := r.config.Backoff.Delay(t.AttemptCount)
		next := r.now().Add(delay)

		if err := r.store.Requeue(ctx, t.ID, t.AttemptCount, next); err != nil {
			// Left in progress without a heartbeat, the sweep recovers it
			logger.Error("failed to requeue task", "error", err)
			r.ack(d, logger)
			return
		}
		logger.Warn("task attempt failed, retrying",
			"error", summary,
			"retry_in", delay,
			"max_attempts", r.config.MaxAttempts)

		item := WorkItem{TaskID: t.ID, Attempt: t.AttemptCount, NotBefore: next}
		if err := r.queue.Enqueue(ctx, item); err != nil {
			// The task is pending in the store, so the sweep re-enqueues it
			logger.Error("failed to enqueue retry", "error", err)
		}

		t.State = StatePending
		t.Progress = ProgressClaimed
		r.notifier.emit(ctx, newEvent(events.TypeRetryScheduled, t))
		r.ack(d, logger)
		return
	}

	if err := r.store.Fail(ctx, t.ID, t.AttemptCount, summary, r.now()); err != nil {
		logger.Error("failed to mark task failed", "error", err)
		r.ack(d, logger)
		return
	}
	t.State = StateFailed
	t.ErrorSummary = &summary
	logger.Error("task failed", "error", summary, "retryable", IsRetryable(cause))

	event := newEvent(events.TypeFailed, t)
	event.Outcome = kindName(cause)
	r.notifier.emit(ctx, event)
	r.ack(d, logger)
}

func (r *Runner) discard(ref string, logger *slog.Logger) {
	// The report belongs to an attempt that never completed
	if err := r.stages.Reporter.Discard(context.WithoutCancel(r.procCtx), ref); err != nil {
		logger.Warn("failed to discard report", "result_reference", ref, "error", err)
	}
}

func (r *Runner) ack(d Delivery, logger *slog.Logger) {
	if err := d.Ack(); err != nil {
		logger.Warn("failed to acknowledge work item", "error", err)
	}
}
