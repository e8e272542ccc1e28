// Package retry runs backend calls under an explicit retry policy:
// a bounded number of attempts, exponential backoff with jitter, and an
// optional per-attempt timeout.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"github.com/custodia-labs/mira/internal/core/domain"
	"github.com/custodia-labs/mira/internal/logger"
)

// DefaultMaxDelay caps backoff when the policy leaves MaxDelay unset.
const DefaultMaxDelay = 30 * time.Second

// Policy describes how a call is retried.
type Policy struct {
	// Name labels the call in logs.
	Name string

	// MaxAttempts includes the first attempt. Values below 1 mean one attempt.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt; it doubles each retry.
	BaseDelay time.Duration

	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration

	// Jitter randomises each wait by +/- this fraction (0.2 = 20%).
	Jitter float64

	// AttemptTimeout bounds each attempt. Zero relies on the caller's context.
	AttemptTimeout time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Defaults to IsRetryable.
	Retryable func(error) bool
}

// FromSettings builds a policy from application settings.
func FromSettings(name string, s domain.RetrySettings, attemptTimeout time.Duration) Policy {
	return Policy{
		Name:           name,
		MaxAttempts:    s.MaxAttempts,
		BaseDelay:      s.BaseDelay,
		MaxDelay:       s.MaxDelay,
		Jitter:         s.Jitter,
		AttemptTimeout: attemptTimeout,
	}
}

// IsRetryable reports whether err is transient: a rate limit, a temporary
// backend failure, a timeout, or a network timeout.
func IsRetryable(err error) bool {
	if domain.IsTransient(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Backoff returns the wait before attempt+1, given that attempt failed.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	shift := min(attempt-1, 30)
	delay := p.BaseDelay << uint(shift)
	if delay <= 0 || delay > maxDelay {
		delay = maxDelay
	}

	if p.Jitter > 0 {
		spread := float64(delay) * p.Jitter
		delay += time.Duration(spread * (2*rand.Float64() - 1))
	}
	return delay
}

func (p Policy) attempts() int {
	return max(p.MaxAttempts, 1)
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsRetryable(err)
}

// Do calls fn until it succeeds, fails with a non-retryable error, the
// attempts are used up, or ctx ends.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for calls that return a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var last error
	attempts := p.attempts()

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, contextError(err, last)
		}

		v, err := callOnce(ctx, p, fn)
		if err == nil {
			return v, nil
		}
		last = err

		if ctx.Err() != nil {
			return zero, contextError(ctx.Err(), last)
		}
		if !p.retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		delay := p.Backoff(attempt)
		logger.Debug("retry: %s attempt %d/%d failed (%v), waiting %s", p.Name, attempt, attempts, err, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, contextError(ctx.Err(), last)
		case <-timer.C:
		}
	}

	if attempts == 1 {
		return zero, last
	}
	return zero, fmt.Errorf("%d attempts failed: %w", attempts, last)
}

func callOnce[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	if p.AttemptTimeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()

	v, err := fn(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: attempt exceeded %s: %w", domain.ErrTimeout, p.AttemptTimeout, err)
	}
	return v, err
}

// contextError reports why the caller's context ended. Deadlines surface as
// domain.ErrTimeout so callers see a stable kind.
func contextError(ctxErr, last error) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		if last != nil {
			return fmt.Errorf("%w: %w (last error: %v)", domain.ErrTimeout, ctxErr, last)
		}
		return fmt.Errorf("%w: %w", domain.ErrTimeout, ctxErr)
	}
	if last != nil {
		return fmt.Errorf("%w (last error: %v)", ctxErr, last)
	}
	return ctxErr
}
