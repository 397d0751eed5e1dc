package storage_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"bnpl/internal/config"
	"bnpl/internal/services"
	"bnpl/internal/storage"
)

func TestRetryPolicySucceedsAfterTransientFailures(t *testing.T) {
	var buf bytes.Buffer
	policy := storage.RetryPolicy{
		Attempts: 3,
		Backoff:  2,
		Logger:   slog.New(slog.NewTextHandler(&buf, nil)),
	}
	calls := 0
	err := policy.Do(context.Background(), "put", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if got := strings.Count(buf.String(), "storage call failed"); got != 2 {
		t.Fatalf("expected 2 warnings, got %d:\n%s", got, buf.String())
	}
}

func TestRetryPolicyExhaustsIntoStorageError(t *testing.T) {
	policy := storage.RetryPolicy{Attempts: 2}
	cause := errors.New("timeout")
	calls := 0
	err := policy.Do(context.Background(), "record put", func(context.Context) error {
		calls++
		return cause
	})
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	var storageErr *storage.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected *StorageError, got %T", err)
	}
	if storageErr.Attempts != 2 || storageErr.Op != "record put" {
		t.Fatalf("unexpected error fields: %+v", storageErr)
	}
	if !errors.Is(err, services.ErrStorage) || !errors.Is(err, cause) {
		t.Fatalf("expected storage marker and cause in chain, got %v", err)
	}
}

func TestRetryPolicySkipsPermanentErrors(t *testing.T) {
	cases := []error{
		services.ErrNotFound,
		services.ErrValidation,
		context.Canceled,
	}
	for _, cause := range cases {
		calls := 0
		err := storage.RetryPolicy{Attempts: 5}.Do(context.Background(), "get", func(context.Context) error {
			calls++
			return cause
		})
		if calls != 1 {
			t.Fatalf("%v: calls = %d, want 1", cause, calls)
		}
		if !errors.Is(err, cause) {
			t.Fatalf("%v: expected error passed through, got %v", cause, err)
		}
	}
}

func TestRetryReturnsValue(t *testing.T) {
	calls := 0
	got, err := storage.Retry(context.Background(), storage.RetryPolicy{Attempts: 2}, "exists", func(context.Context) (bool, error) {
		calls++
		if calls == 1 {
			return false, errors.New("flaky")
		}
		return true, nil
	})
	if err != nil || !got {
		t.Fatalf("Retry = %v, %v", got, err)
	}
}

func TestRetryPolicyStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := storage.NewRetryPolicy(config.Retry{Attempts: 5, WaitSeconds: 60, Backoff: 2}, nil)
	calls := 0
	err := policy.Do(ctx, "put", func(context.Context) error {
		calls++
		cancel()
		return errors.New("flaky")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
