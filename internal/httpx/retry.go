package httpx

import (
	"context"
	"errors"
	"net"
	"time"
)

// SleepFunc waits for the given duration or until the context is
// canceled. Production code uses SleepWithContext; tests inject a
// recording stub to avoid real delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SleepWithContext blocks for d, returning early with the context
// error if the context is canceled first.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy describes a bounded retry loop with exponential backoff.
// The zero value is not usable; construct with NewRetryPolicy.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt. Each
	// subsequent wait doubles.
	InitialDelay time.Duration

	// Retryable decides whether a failure is worth another attempt.
	Retryable func(error) bool

	// Sleep is the wait primitive. Defaults to SleepWithContext.
	Sleep SleepFunc
}

// NewRetryPolicy builds a policy retrying connection-class failures
// up to maxAttempts times with doubling backoff from initialDelay.
func NewRetryPolicy(maxAttempts int, initialDelay time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  maxAttempts,
		InitialDelay: initialDelay,
		Retryable:    IsConnectionError,
		Sleep:        SleepWithContext,
	}
}

// Do runs fn until it succeeds, the failure is not retryable, or
// attempts are exhausted. It returns the last error observed.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepWithContext
	}

	delay := p.InitialDelay
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt < p.MaxAttempts-1 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
			delay *= 2
		}
	}
	return lastErr
}

// IsConnectionError reports whether the error is a network or
// connection-class failure, the only class worth retrying at the
// batch level. Parse failures and server-side validation errors are
// not retryable.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
