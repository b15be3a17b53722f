package common

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetrySucceedsAfterBusyErrors(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	}, RetryOptions{MaxAttempts: 5, InitialDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("WithRetry failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("constraint violation")
	attempts := 0
	err := WithRetry(context.Background(), func() error {
		attempts++
		return permanent
	}, RetryOptions{MaxAttempts: 5, InitialDelay: time.Millisecond})
	if !errors.Is(err, permanent) {
		t.Errorf("error = %v, want permanent error passed through", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 for non-retryable error", attempts)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	err := WithRetry(context.Background(), func() error {
		return &RetryableError{Err: errors.New("flaky"), Retryable: true}
	}, RetryOptions{MaxAttempts: 2, InitialDelay: time.Millisecond})
	if !errors.Is(err, ErrMaxRetries) {
		t.Errorf("error = %v, want ErrMaxRetries", err)
	}
}

func TestWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, func() error {
		return errors.New("SQLITE_BUSY")
	}, RetryOptions{MaxAttempts: 3, InitialDelay: time.Hour})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestIsBusy(t *testing.T) {
	if IsBusy(nil) {
		t.Error("nil error is not busy")
	}
	if !IsBusy(errors.New("database is locked")) {
		t.Error("lock error should be busy")
	}
	if IsBusy(errors.New("no such table")) {
		t.Error("schema error is not busy")
	}
}
