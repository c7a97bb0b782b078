package analysis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/generation"
	"github.com/phrazzld/codescope-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedFetcher struct{}

func (fixedFetcher) Fetch(ctx context.Context, locators []string) (*task.Fetched, error) {
	return testFetched(), nil
}

type refReporter struct{}

func (refReporter) Save(ctx context.Context, t *task.Task, fetched *task.Fetched, analysis *task.Analysis) (string, error) {
	return "report-" + t.ID.String(), nil
}

func (refReporter) Discard(ctx context.Context, ref string) error { return nil }

func TestRunnerRetriesMalformedModelOutput(t *testing.T) {
	var calls atomic.Int32
	gen := generation.GeneratorFunc(func(ctx context.Context, req generation.Request) (string, error) {
		if calls.Add(1) == 1 {
			return "Sorry, I cannot produce JSON right now.", nil
		}
		return validReply, nil
	})

	logger := discardLogger()
	store := task.NewMemoryStore()
	queue := task.NewMemoryQueue(4, logger)
	coordinator := task.NewCoordinator(store, queue, task.InputPolicy{}, nil, logger)
	runner := task.NewRunner(store, queue, task.Stages{
		Fetcher:  fixedFetcher{},
		Analyzer: newTestAnalyzer(t, gen, testConfig()),
		Reporter: refReporter{},
	}, task.RunnerConfig{
		WorkerCount:       1,
		MaxAttempts:       3,
		Backoff:           task.Backoff{Base: time.Millisecond, Max: 5 * time.Millisecond},
		HeartbeatInterval: 10 * time.Millisecond,
		FetchTimeout:      time.Second,
		AnalysisTimeout:   time.Second,
	}, nil, logger)

	runner.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = runner.Stop(ctx)
		_ = queue.Close()
	})

	submitted, err := coordinator.Submit(context.Background(), uuid.New(),
		task.Input{RepositoryLocators: []string{"acme/widgets"}})
	require.NoError(t, err)

	var done *task.Task
	require.Eventually(t, func() bool {
		got, err := store.Get(context.Background(), submitted.ID)
		if err != nil {
			return false
		}
		done = got
		return got.State.IsTerminal()
	}, 3*time.Second, 5*time.Millisecond)

	assert.Equal(t, task.StateCompleted, done.State)
	assert.Equal(t, 2, done.AttemptCount)
	assert.Nil(t, done.ErrorSummary)
	assert.EqualValues(t, 2, calls.Load())
}
