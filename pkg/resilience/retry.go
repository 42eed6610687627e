package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy controls Do. Zero Multiplier and Jitter give a fixed delay.
type RetryPolicy struct {
	Attempts   int
	Delay      time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     float64
	// Retryable reports whether a failed attempt may be retried. Nil retries
	// every error.
	Retryable func(error) bool
	// OnRetry runs before the wait ahead of attempt+1.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Fixed is a policy of up to attempts tries separated by exactly delay.
func Fixed(attempts int, delay time.Duration) RetryPolicy {
	return RetryPolicy{Attempts: attempts, Delay: delay}
}

// ExhaustedError is returned once every attempt has failed.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: all %d attempts failed: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

func (p RetryPolicy) wait(attempt int) time.Duration {
	d := float64(p.Delay)
	if p.Multiplier > 1 {
		d *= math.Pow(p.Multiplier, float64(attempt-1))
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * (2*rand.Float64() - 1)
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(max(d, 0))
}

// Do calls fn until it succeeds, returns a non-retryable error, the policy
// runs out of attempts, or ctx ends during a wait.
func Do[T any](ctx context.Context, op string, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := max(p.Attempts, 1)
	log := slog.Default().With("component", "retry", "operation", op)

	var zero T
	for attempt := 1; ; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info("succeeded after retry", "attempt", attempt)
			}
			return out, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, fmt.Errorf("%s: not retryable: %w", op, err)
		}
		if attempt >= attempts {
			return zero, &ExhaustedError{Op: op, Attempts: attempts, Err: err}
		}
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s: retry aborted: %w", op, ctx.Err())
		}

		delay := p.wait(attempt)
		log.Warn("attempt failed", "attempt", attempt, "of", attempts, "error", err, "next_in", delay)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%s: retry aborted while waiting: %w", op, ctx.Err())
		}
	}
}
