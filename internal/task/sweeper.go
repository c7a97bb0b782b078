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

// abandonedSummary is recorded on tasks whose last permitted attempt was
// orphaned by a worker that stopped heartbeating.
const abandonedSummary = "InternalError: processing abandoned by worker"

// SweeperConfig holds configuration for the recovery sweep
type SweeperConfig struct {
	// Interval defines how often to sweep
	Interval time.Duration

	// StaleAfter is how long an in-progress task may go without a heartbeat,
	// and a due pending task without a claim, before it is considered orphaned
	StaleAfter time.Duration

	// MaxAttempts matches the runner's limit; an orphaned task that used its
	// last attempt fails instead of being requeued
	MaxAttempts int

	// BatchSize caps the tasks handled per sweep and category
	BatchSize int
}

// DefaultSweeperConfig returns a SweeperConfig with reasonable defaults
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:    30 * time.Second,
		StaleAfter:  2 * time.Minute,
		MaxAttempts: 3,
		BatchSize:   100,
	}
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Requeued   int
	Failed     int
	Cancelled  int
	Reenqueued int
}

// Sweeper detects tasks orphaned by crashed workers or lost work items and
// returns them to the pipeline.
type Sweeper struct {
	store    Store
	queue    Queue
	config   SweeperConfig
	notifier notifier
	logger   *slog.Logger
	now      func() time.Time

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewSweeper creates a recovery sweep. emitter may be nil.
func NewSweeper(
	store Store,
	queue Queue,
	config SweeperConfig,
	emitter events.EventEmitter,
	logger *slog.Logger,
) *Sweeper {
	logger = logger.With("component", "task_sweeper")

	defaults := DefaultSweeperConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaults.StaleAfter
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}

	return &Sweeper{
		store:    store,
		queue:    queue,
		config:   config,
		notifier: notifier{emitter: emitter, logger: logger},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start enqueues every pending task, then sweeps on each interval until Stop.
func (s *Sweeper) Start(ctx context.Context) error {
	if err := s.RecoverPending(ctx); err != nil {
		return fmt.Errorf("failed to recover pending tasks: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		for {
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("recovery sweep failed", "error", err)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

// Stop ends the periodic sweep and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()
}

// RecoverPending enqueues a work item for every pending task. The queue may
// not have survived the restart; duplicates are discarded at claim time.
func (s *Sweeper) RecoverPending(ctx context.Context) error {
	now := s.now()
	pending, err := s.store.ListPending(ctx, now.Add(100*365*24*time.Hour), 0)
	if err != nil {
		return err
	}

	s.logger.Info("recovering pending tasks", "pending_count", len(pending))

	for _, t := range pending {
		item := WorkItem{TaskID: t.ID, Attempt: t.AttemptCount, NotBefore: t.NextAttemptAt}
		if err := s.queue.Enqueue(ctx, item); err != nil {
			// The periodic sweep retries once the task is overdue
			s.logger.Error("failed to requeue pending task", "task_id", t.ID, "error", err)
		}
	}
	return nil
}

// Sweep runs one recovery pass: stale in-progress tasks are requeued, failed
// or cancelled, and overdue pending tasks get a fresh work item.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := s.now()
	cutoff := now.Add(-s.config.StaleAfter)

	stale, err := s.store.ListStale(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		return result, fmt.Errorf("listing stale tasks: %w", err)
	}
	if len(stale) > 0 {
		s.logger.Info("found stale tasks", "count", len(stale))
	}
	for _, t := range stale {
		s.recoverStale(ctx, t, now, &result)
	}

	overdue, err := s.store.ListPending(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		return result, fmt.Errorf("listing overdue pending tasks: %w", err)
	}
	holder, _ := s.queue.(itemHolder)
	for _, t := range overdue {
		if holder != nil && holder.Holds(t.ID) {
			// Still waiting behind a backlog
			continue
		}
		logger := s.logger.With("task_id", t.ID)
		if err := s.store.TouchPending(ctx, t.ID, now); err != nil {
			if !errors.Is(err, ErrStateConflict) {
				logger.Error("failed to touch overdue task", "error", err)
			}
			continue
		}
		if err := s.queue.Enqueue(ctx, WorkItem{TaskID: t.ID, Attempt: t.AttemptCount}); err != nil {
			logger.Error("failed to re-enqueue overdue task", "error", err)
			continue
		}
		logger.Info("re-enqueued overdue pending task")
		result.Reenqueued++
	}

	return result, nil
}

func (s *Sweeper) recoverStale(ctx context.Context, t *Task, now time.Time, result *SweepResult) {
	logger := s.logger.With(
		"task_id", t.ID,
		"attempt", t.AttemptCount,
		"last_heartbeat", t.HeartbeatAt,
	)

	var err error
	switch {
	case t.CancelRequested:
		if err = s.store.MarkCancelled(ctx, t.ID, t.AttemptCount, now); err == nil {
			t.State = StateCancelled
			result.Cancelled++
			logger.Info("cancelled orphaned task")
		}

	case t.AttemptCount >= s.config.MaxAttempts:
		summary := abandonedSummary
		if err = s.store.Fail(ctx, t.ID, t.AttemptCount, summary, now); err == nil {
			t.State = StateFailed
			t.ErrorSummary = &summary
			result.Failed++
			logger.Warn("failed orphaned task on its last attempt")
		}

	default:
		if err = s.store.Requeue(ctx, t.ID, t.AttemptCount, now); err == nil {
			t.State = StatePending
			t.Progress = ProgressClaimed
			result.Requeued++
			logger.Info("requeued orphaned task")
			if qErr := s.queue.Enqueue(ctx, WorkItem{TaskID: t.ID, Attempt: t.AttemptCount}); qErr != nil {
				// Picked up again as an overdue pending task
				logger.Error("failed to enqueue recovered task", "error", qErr)
			}
		}
	}

	if err != nil {
		if errors.Is(err, ErrLostOwnership) {
			// The worker finished or moved on since we looked
			logger.Debug("stale task changed before recovery")
			return
		}
		logger.Error("failed to recover stale task", "error", err)
		return
	}

	event := newEvent(events.TypeRecovered, t)
	event.Outcome = string(t.State)
	s.notifier.emit(ctx, event)
}
