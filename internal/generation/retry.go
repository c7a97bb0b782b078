package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"
)

// RetryPolicy controls how Retrying retries transient failures.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first call
	MaxRetries int

	// BaseDelay is the delay before the first retry; later retries double it
	BaseDelay time.Duration
}

// Retrying wraps a Generator and retries calls that fail with
// ErrTransientFailure, waiting base * 2^attempt * (0.5 + rand(0, 0.5))
// between calls.
type Retrying struct {
	next   Generator
	policy RetryPolicy
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand

	// sleep waits for d or until ctx is done; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps next with policy. A negative MaxRetries is treated as 0
// and a zero BaseDelay defaults to two seconds.
func NewRetrying(next Generator, policy RetryPolicy, logger *slog.Logger) *Retrying {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 2 * time.Second
	}
	return &Retrying{
		next:   next,
		policy: policy,
		logger: logger.With("component", "generation_retry"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepContext,
	}
}

// ListModels forwards to the wrapped generator when it can list models.
func (r *Retrying) ListModels(ctx context.Context) ([]ModelInfo, error) {
	lister, ok := r.next.(ModelLister)
	if !ok {
		return nil, fmt.Errorf("%w: provider cannot list models", ErrGenerationFailed)
	}
	return lister.ListModels(ctx)
}

// Generate implements Generator.
func (r *Retrying) Generate(ctx context.Context, req Request) (string, error) {
	if req.Prompt == "" {
		return "", ErrEmptyPrompt
	}

	for attempt := 0; ; attempt++ {
		text, err := r.next.Generate(ctx, req)
		if err == nil {
			if attempt > 0 {
				r.logger.InfoContext(ctx, "generation succeeded after retry", "attempt", attempt+1)
			}
			return text, nil
		}

		if !errors.Is(err, ErrTransientFailure) {
			return "", err
		}
		if attempt >= r.policy.MaxRetries {
			r.logger.WarnContext(ctx, "maximum retry attempts reached",
				"max_retries", r.policy.MaxRetries,
				"error", err)
			return "", err
		}

		delay := r.backoff(attempt)
		r.logger.InfoContext(ctx, "retrying after transient failure",
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		if err := r.sleep(ctx, delay); err != nil {
			return "", fmt.Errorf("%w: %v", ErrTransientFailure, err)
		}
	}
}

func (r *Retrying) backoff(attempt int) time.Duration {
	r.mu.Lock()
	jitter := 0.5 + r.rng.Float64()*0.5
	r.mu.Unlock()

	base := float64(r.policy.BaseDelay) * math.Pow(2, float64(attempt))
	return time.Duration(base * jitter)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
