package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"bnpl/internal/config"
	"bnpl/internal/logging"
	"bnpl/internal/services"
)

// RetryPolicy retries storage calls that fail with transient errors. Each
// failed attempt is logged at WARN; once attempts are exhausted the last error
// is returned wrapped in a *StorageError.
type RetryPolicy struct {
	Attempts int
	Wait     time.Duration
	Backoff  float64
	MaxWait  time.Duration
	// Jitter adds up to this fraction of the current delay at random.
	Jitter float64
	Logger *slog.Logger
}

// NewRetryPolicy builds a policy from the [retry] configuration section.
func NewRetryPolicy(cfg config.Retry, logger *slog.Logger) RetryPolicy {
	return RetryPolicy{
		Attempts: cfg.Attempts,
		Wait:     seconds(cfg.WaitSeconds),
		Backoff:  cfg.Backoff,
		MaxWait:  seconds(cfg.MaxWaitSeconds),
		Jitter:   cfg.Jitter,
		Logger:   logger,
	}
}

// NoRetry runs every call exactly once.
func NoRetry() RetryPolicy {
	return RetryPolicy{Attempts: 1}
}

// StorageError reports a storage call that kept failing.
type StorageError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

// Unwrap exposes both the storage marker and the underlying cause.
func (e *StorageError) Unwrap() []error {
	return []error{services.ErrStorage, e.Err}
}

// Do runs fn until it succeeds, fails with a non-transient error, or the
// attempts run out.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := max(p.Attempts, 1)
	delay := p.Wait
	logger := p.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !transient(lastErr) {
			return lastErr
		}
		logger.WarnContext(ctx, "storage call failed",
			logging.String("op", op),
			logging.Int("attempt", attempt),
			logging.Int("attempts", attempts),
			logging.Error(lastErr),
		)
		if attempt == attempts {
			break
		}
		wait := p.jittered(delay)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		delay = p.next(delay)
	}
	return &StorageError{Op: op, Attempts: attempts, Err: lastErr}
}

// Retry is Do for calls that return a value.
func Retry[T any](ctx context.Context, p RetryPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (p RetryPolicy) next(delay time.Duration) time.Duration {
	factor := p.Backoff
	if factor < 1 {
		factor = 1
	}
	next := time.Duration(float64(delay) * factor)
	if p.MaxWait > 0 && next > p.MaxWait {
		next = p.MaxWait
	}
	return next
}

func (p RetryPolicy) jittered(delay time.Duration) time.Duration {
	if p.Jitter <= 0 || delay <= 0 {
		return delay
	}
	return delay + time.Duration(rand.Float64()*p.Jitter*float64(delay))
}

// transient reports whether another attempt could change the outcome.
func transient(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, services.ErrNotFound),
		errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrPrecondition),
		errors.Is(err, services.ErrConfiguration):
		return false
	}
	var storageErr *StorageError
	return !errors.As(err, &storageErr)
}

func seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}
