package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	var retried []int
	p := Fixed(3, time.Millisecond)
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		retried = append(retried, attempt)
		assert.Equal(t, time.Millisecond, delay)
	}

	out, err := Do(context.Background(), "op", p, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDoGivesUp(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := Do(context.Background(), "op", Fixed(2, time.Millisecond), func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)
	assert.Equal(t, 2, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	p := Fixed(5, time.Millisecond)
	p.Retryable = func(err error) bool { return !errors.Is(err, fatal) }

	_, err := Do(context.Background(), "op", p, func(ctx context.Context) (int, error) {
		calls++
		return 0, fatal
	})
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDoAbortsWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Fixed(3, time.Hour)
	p.OnRetry = func(int, error, time.Duration) { cancel() }

	_, err := Do(ctx, "op", p, func(ctx context.Context) (int, error) {
		return 0, errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), "op", RetryPolicy{}, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("x")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestFixedPolicyWaitIsConstant(t *testing.T) {
	p := Fixed(4, 5*time.Minute)
	for attempt := 1; attempt <= 3; attempt++ {
		assert.Equal(t, 5*time.Minute, p.wait(attempt))
	}
}

func TestBackoffIsCapped(t *testing.T) {
	p := RetryPolicy{Delay: time.Second, Multiplier: 2, MaxDelay: 3 * time.Second}
	assert.Equal(t, time.Second, p.wait(1))
	assert.Equal(t, 2*time.Second, p.wait(2))
	assert.Equal(t, 3*time.Second, p.wait(3))
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("posters", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     20 * time.Millisecond,
		OnStateChange:    func(_ string, to State) { transitions = append(transitions, to) },
	})
	boom := errors.New("boom")

	_ = cb.Execute(func() error { return boom })
	_ = cb.Execute(func() error { return boom })
	assert.Equal(t, StateOpen, cb.Current())

	err := cb.Execute(func() error { return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.Current())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreakerIgnoresNonFailures(t *testing.T) {
	notFound := errors.New("not found")
	cb := NewCircuitBreaker("posters", CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, notFound) },
	})
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, cb.Execute(func() error { return notFound }), notFound)
	}
	assert.Equal(t, StateClosed, cb.Current())
}

func TestWithin(t *testing.T) {
	_, err := Within(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "slow exceeded")

	n, err := Within(context.Background(), 0, "noop", func(context.Context) (int, error) { return 4, nil })
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestCircuitBreakerHalfOpenTrialFailureReopens(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker("posters", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		Now:              func() time.Time { return now },
	})
	boom := errors.New("boom")

	require.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.Current())

	now = now.Add(time.Minute)
	assert.Equal(t, StateHalfOpen, cb.Current())
	require.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.Current())
}

func TestCircuitBreakerDropsStaleOutcomes(t *testing.T) {
	cb := NewCircuitBreaker("posters", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- cb.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	require.Error(t, cb.Execute(func() error { return errors.New("boom") }))
	assert.Equal(t, StateOpen, cb.Current())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateOpen, cb.Current(), "success from before the trip does not close the breaker")
}

func TestCallReturnsValue(t *testing.T) {
	cb := NewCircuitBreaker("x", CircuitBreakerConfig{})
	v, err := Call(cb, func() (string, error) { return "poster.jpg", nil })
	require.NoError(t, err)
	assert.Equal(t, "poster.jpg", v)
}
