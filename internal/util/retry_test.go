package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryErrWithContext_StopsOnSuccess(t *testing.T) {
	calls := 0
	err := RetryErrWithContext(context.Background(), 5, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryErrWithContext_ReturnsLastError(t *testing.T) {
	wantErr := errors.New("still failing")
	calls := 0
	err := RetryErrWithContext(context.Background(), 3, func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryErrWithContext_CancelAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryErrWithContext(ctx, 5, func(ctx context.Context) error {
		calls++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no calls after cancel, got %d", calls)
	}
}

func TestRetryBackoff_NonRetryableReturnsImmediately(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	_, err := RetryBackoff(
		context.Background(),
		BackoffParams{MaxTries: 4, Initial: time.Millisecond, Factor: 2},
		func(err error) bool { return !errors.Is(err, permanent) },
		func(ctx context.Context) (int, error) {
			calls++
			return 0, permanent
		},
	)
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryBackoff_RetriesTransient(t *testing.T) {
	calls := 0
	got, err := RetryBackoff(
		context.Background(),
		BackoffParams{MaxTries: 4, Initial: time.Millisecond, Factor: 2},
		func(error) bool { return true },
		func(ctx context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("transient")
			}
			return 42, nil
		},
	)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}
