package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRetry is returned by a function given to Blocking to be called again.
var ErrRetry = errors.New("retry")

// ErrGiveUp is the cause of errors from a Backoff which has been exhausted.
var ErrGiveUp = errors.New("retry: give up")

// Backoff is a (blocking) function returns when to retry.
//
// # Args
//
// - context: context. If context is canceled, Backoff should return ctx.Err().
//
// # Returns
//
// - error: nil if retry, non-nil if not.
type Backoff func(context.Context) error

// StaticBackoff returns a Backoff function that waits for a fixed interval.
func StaticBackoff(interval time.Duration) Backoff {
	return ExponentialBackoff(interval, 1)
}

// ExponentialBackoff returns a Backoff function that waits with exponential backoff.
//
// # Args
//
// - initialInterval: initial interval.
//
// - r: multiplier of interval.
//
// # Returns
//
// Backoff function.
// For N-th call, it waits for `initialInterval * r^N` or context to be done.
func ExponentialBackoff(initialInterval time.Duration, r float64) Backoff {
	interval := initialInterval
	return func(ctx context.Context) error {
		timer := time.NewTimer(interval)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			interval = time.Duration(int64(float64(interval) * r))
			return nil
		}
	}
}

// Limited wraps b to allow at most n waits.
//
// The (n+1)-th call returns an error wrapping ErrGiveUp without waiting.
func Limited(b Backoff, n int) Backoff {
	count := 0
	return func(ctx context.Context) error {
		if n <= count {
			return fmt.Errorf("%w: after %d attempts", ErrGiveUp, count)
		}
		count += 1
		return b(ctx)
	}
}

// Blocking calls f until it returns nil or non-retry error.
//
// # Args
//
// - ctx: context
//
// - b: backoff function. It is called before each call of f.
//
// - f: function to be called. If f returns ErrRetry, Blocking calls f again after backoff.
//
// # Returns
//
// - T: last return value of f
//
// - error: error returned by f or by b.
func Blocking[T any](ctx context.Context, b Backoff, f func() (T, error)) (T, error) {
	last := *new(T)
	for {
		if err := b(ctx); err != nil {
			return last, err
		}

		var err error
		last, err = f()
		if err == nil {
			return last, nil
		}
		if errors.Is(err, ErrRetry) {
			continue
		}
		return last, err
	}
}
