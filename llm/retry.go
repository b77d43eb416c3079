package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetryPolicy bounds how transport failures are retried
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	MaxRetryAfter time.Duration
}

// DefaultRetryPolicy retries up to three attempts, 500ms doubling, capped at 8s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      8 * time.Second,
		MaxRetryAfter: 30 * time.Second,
	}
}

// Backoff returns the delay before the given retry (1 for the first retry)
func (p RetryPolicy) Backoff(retry int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < retry; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out. Only *Error values with a retryable kind are retried.
func Retry(ctx context.Context, p RetryPolicy, logger *slog.Logger, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := p.Backoff(attempt - 1)
			var e *Error
			if errors.As(lastErr, &e) && e.RetryAfter > delay {
				delay = e.RetryAfter
				if p.MaxRetryAfter > 0 && delay > p.MaxRetryAfter {
					delay = p.MaxRetryAfter
				}
			}
			if logger != nil {
				logger.Debug("retrying model request", "attempt", attempt, "delay", delay, "error", lastErr)
			}
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		var e *Error
		if !errors.As(err, &e) || !e.Retryable() {
			return err
		}
	}
	return lastErr
}
