package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetryPolicy retries a call with exponential backoff while Retryable holds.
// The wait after attempt n is Multiplier*2^(n-1), clamped to [Min, Max].
type RetryPolicy struct {
	MaxAttempts int
	Multiplier  time.Duration
	Min         time.Duration
	Max         time.Duration
	Retryable   func(error) bool
	Sleep       func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy makes three attempts, waiting between 4s and 60s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Multiplier:  time.Second,
		Min:         4 * time.Second,
		Max:         60 * time.Second,
		Retryable:   IsRetryable,
	}
}

// Backoff returns the wait that follows the given 1-based attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := p.Multiplier * time.Duration(1<<(attempt-1))
	if wait < p.Min {
		wait = p.Min
	}
	if p.Max > 0 && wait > p.Max {
		wait = p.Max
	}
	return wait
}

// Do runs fn until it succeeds, returns a non-retryable error or the attempts
// run out. The last error is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt == attempts || !retryable(err) {
			return err
		}

		wait := p.Backoff(attempt)
		slog.WarnContext(ctx, "llm call failed, retrying",
			"attempt", attempt,
			"wait_ms", wait.Milliseconds(),
			"error", err)

		if sleepErr := p.sleep(ctx, wait); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
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

// IsRetryable reports whether err is a rate-limit or overload failure.
// Timeouts and cancellations are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	return false
}
