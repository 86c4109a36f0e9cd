package aws

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff retries an operation with exponential delays: the n-th retry waits
// Base*Factor^(n-1), capped at Max, plus up to Jitter of that delay.
type Backoff struct {
	MaxAttempts int
	Base        time.Duration
	Factor      float64
	Max         time.Duration
	Jitter      float64

	// Retryable decides whether an error is worth another attempt.
	// Defaults to IsRetryable.
	Retryable func(error) bool
	// OnRetry is called before sleeping for a retry.
	OnRetry func(attempt int, delay time.Duration, err error)

	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultBackoff returns the listing retry policy: 5 attempts starting at 1s
// and doubling.
func DefaultBackoff() Backoff {
	return Backoff{
		MaxAttempts: 5,
		Base:        time.Second,
		Factor:      2,
		Max:         30 * time.Second,
		Jitter:      0.1,
	}
}

// Delay returns the wait before retry number attempt (1-based), without jitter.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(b.Base) * math.Pow(factor, float64(attempt-1))
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}

// Do runs op until it succeeds, fails with a non-retryable error, exhausts
// MaxAttempts, or ctx is done. It returns the number of attempts made and
// the last error.
func (b Backoff) Do(ctx context.Context, op func() error) (int, error) {
	retryable := b.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	sleep := b.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	maxAttempts := b.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; ; attempt++ {
		if err = op(); err == nil {
			return attempt, nil
		}
		if attempt >= maxAttempts || !retryable(err) || ctx.Err() != nil {
			return attempt, err
		}

		delay := jitterUp(b.Delay(attempt), b.Jitter)
		if b.OnRetry != nil {
			b.OnRetry(attempt, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return attempt, err
		}
	}
}

// jitterUp adds random jitter that only increases the duration.
func jitterUp(base time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return base
	}
	return base + time.Duration(rand.Float64()*float64(base)*fraction)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
