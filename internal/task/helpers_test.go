package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/events"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// stubFetcher returns a canned result unless fn overrides it
type stubFetcher struct {
	calls atomic.Int32
	fn    func(call int) error
}

func (f *stubFetcher) Fetch(ctx context.Context, locators []string) (*Fetched, error) {
	call := int(f.calls.Add(1))
	if f.fn != nil {
		if err := f.fn(call); err != nil {
			return nil, err
		}
	}
	return &Fetched{
		Name:      RepositoryName(locators[0]),
		URL:       locators[0],
		Digest:    "package main\n",
		FileCount: 1,
	}, nil
}

// stubAnalyzer returns a canned analysis unless fn overrides it
type stubAnalyzer struct {
	calls atomic.Int32
	fn    func(ctx context.Context, call int) error
}

func (a *stubAnalyzer) Analyze(ctx context.Context, fetched *Fetched, opts Options) (*Analysis, error) {
	call := int(a.calls.Add(1))
	if a.fn != nil {
		if err := a.fn(ctx, call); err != nil {
			return nil, err
		}
	}
	return &Analysis{
		Profile: opts.PromptProfile,
		Model:   "test-model",
		Summary: "fine",
		Scores:  map[string]float64{"readability": 8},
		Overall: 8,
	}, nil
}

// memReporter keeps saved reports in memory
type memReporter struct {
	mu        sync.Mutex
	saved     map[string]uuid.UUID
	discarded []string
	saveErr   error
}

func newMemReporter() *memReporter {
	return &memReporter{saved: make(map[string]uuid.UUID)}
}

func (r *memReporter) Save(ctx context.Context, t *Task, fetched *Fetched, analysis *Analysis) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return "", r.saveErr
	}
	ref := uuid.NewString()
	r.saved[ref] = t.ID
	return ref, nil
}

func (r *memReporter) Discard(ctx context.Context, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.saved, ref)
	r.discarded = append(r.discarded, ref)
	return nil
}

func (r *memReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

// eventRecorder captures emitted events in order
type eventRecorder struct {
	mu     sync.Mutex
	events []events.TaskEvent
}

func (r *eventRecorder) HandleEvent(ctx context.Context, e *events.TaskEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
	return nil
}

func (r *eventRecorder) ofType(taskID uuid.UUID, eventType string) []events.TaskEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.TaskEvent
	for _, e := range r.events {
		if e.TaskID == taskID && e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func retryableFetchErr() error {
	return NewFetchError("connection reset", false, errors.New("dial tcp: i/o timeout"))
}

func retryableAnalysisErr() error {
	return NewAnalysisError("rate limited", false, fmt.Errorf("429 Too Many Requests"))
}

type harness struct {
	store       *MemoryStore
	queue       *MemoryQueue
	fetcher     *stubFetcher
	analyzer    *stubAnalyzer
	reporter    *memReporter
	recorder    *eventRecorder
	coordinator *Coordinator
	runner      *Runner
	owner       uuid.UUID
}

func testRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:       2,
		MaxAttempts:       3,
		Backoff:           Backoff{Base: time.Millisecond, Max: 5 * time.Millisecond},
		HeartbeatInterval: 10 * time.Millisecond,
		FetchTimeout:      time.Second,
		AnalysisTimeout:   time.Second,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := discardLogger()
	h := &harness{
		store:    NewMemoryStore(),
		queue:    NewMemoryQueue(16, logger),
		fetcher:  &stubFetcher{},
		analyzer: &stubAnalyzer{},
		reporter: newMemReporter(),
		recorder: &eventRecorder{},
		owner:    uuid.New(),
	}

	emitter := events.NewBus(logger)
	emitter.Subscribe(h.recorder)

	h.coordinator = NewCoordinator(h.store, h.queue, InputPolicy{}, emitter, logger)
	h.runner = NewRunner(h.store, h.queue, Stages{
		Fetcher:  h.fetcher,
		Analyzer: h.analyzer,
		Reporter: h.reporter,
	}, testRunnerConfig(), emitter, logger)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.runner.Stop(ctx)
		_ = h.queue.Close()
	})
	return h
}

func (h *harness) submit(t *testing.T, locators ...string) *Task {
	t.Helper()
	if len(locators) == 0 {
		locators = []string{"acme/repo-a"}
	}
	submitted, err := h.coordinator.Submit(context.Background(), h.owner, Input{RepositoryLocators: locators})
	require.NoError(t, err)
	return submitted
}

func (h *harness) waitForState(t *testing.T, id uuid.UUID, state State) *Task {
	t.Helper()
	var last *Task
	require.Eventually(t, func() bool {
		got, err := h.store.Get(context.Background(), id)
		if err != nil {
			return false
		}
		last = got
		return got.State == state
	}, 3*time.Second, 5*time.Millisecond, "task never reached %s", state)
	return last
}
