package util

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Retry calls fn up to maxTries times until it returns a result and nil error.
// If maxTries <= 0, it defaults to 1. Returns the last error if all attempts fail.
func Retry[T any](maxTries int, fn func() (T, error)) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	var zero T
	for i := 0; i < maxTries; i++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return zero, lastErr
}

// RetryErr calls fn up to maxTries times until it returns nil error.
// If maxTries <= 0, it defaults to 1. Returns the last error if all attempts fail.
func RetryErr(maxTries int, fn func() error) error {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	for i := 0; i < maxTries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// RetryErrWithContext calls fn up to maxTries times until it returns nil error,
// or until ctx is done. Context cancellation is returned immediately and never
// counted as a retryable failure.
func RetryErrWithContext(ctx context.Context, maxTries int, fn func(context.Context) error) error {
	if maxTries <= 0 {
		maxTries = 1
	}

	var lastErr error
	for i := 0; i < maxTries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// RetryWithContext calls fn up to maxTries times until it returns a result and
// nil error, or until ctx is done. If maxTries <= 0, it defaults to 1.
func RetryWithContext[T any](ctx context.Context, maxTries int, fn func(context.Context) (T, error)) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	var zero T
	for i := 0; i < maxTries; i++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}

// BackoffParams configures RetryBackoff. The delay before attempt n is
// Initial * Factor^(n-1), capped at Max, with up to Jitter fraction of
// random spread to avoid retry storms against rate-limited services.
type BackoffParams struct {
	MaxTries int
	Initial  time.Duration
	Max      time.Duration
	Factor   float64
	Jitter   float64
}

// DefaultBackoff is the retry policy used for external-service calls.
var DefaultBackoff = BackoffParams{
	MaxTries: 4,
	Initial:  500 * time.Millisecond,
	Max:      8 * time.Second,
	Factor:   2.0,
	Jitter:   0.2,
}

// RetryBackoff calls fn with exponential backoff between attempts. A retryable
// check decides which errors are worth another attempt; errors it rejects are
// returned immediately. Context cancellation always aborts the loop.
func RetryBackoff[T any](
	ctx context.Context,
	params BackoffParams,
	retryable func(error) bool,
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T
	if params.MaxTries <= 0 {
		params.MaxTries = 1
	}
	if params.Factor < 1 {
		params.Factor = 2.0
	}

	delay := params.Initial
	var lastErr error
	for i := 0; i < params.MaxTries; i++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		if retryable != nil && !retryable(err) {
			return zero, err
		}
		lastErr = err

		if i == params.MaxTries-1 {
			break
		}
		sleep := delay
		if params.Jitter > 0 {
			spread := float64(delay) * params.Jitter
			sleep = delay + time.Duration(rand.Float64()*2*spread-spread)
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(sleep):
		}
		delay = time.Duration(float64(delay) * params.Factor)
		if params.Max > 0 && delay > params.Max {
			delay = params.Max
		}
	}
	return zero, lastErr
}
