package task

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes the delay before a retried attempt.
type Backoff struct {
	// Base is the delay after the first failed attempt
	Base time.Duration

	// Max caps the delay
	Max time.Duration

	// Jitter returns a value in [0, 1); nil uses math/rand
	Jitter func() float64
}

// Delay returns Base * 2^(attempt-1), capped at Max, scaled by a random factor
// in [0.5, 1.0) so workers retrying together spread out.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(b.Base) * math.Pow(2, float64(attempt-1))
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	jitter := rand.Float64
	if b.Jitter != nil {
		jitter = b.Jitter
	}
	return time.Duration(delay * (0.5 + jitter()*0.5))
}
