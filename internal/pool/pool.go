package pool

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DefaultSize is the worker count used when a caller passes a size below one.
const DefaultSize = 10

// ErrConsumed is yielded when a result sequence is iterated a second time.
var ErrConsumed = errors.New("pool: result sequence already consumed")

type result[R any] struct {
	value R
	err   error
}

// Map runs fn over items with at most size concurrent workers and returns the
// results as a lazy sequence. Work starts when iteration starts. Results
// arrive in completion order, not input order. The sequence can be iterated
// once; later iterations yield a single ErrConsumed.
//
// Breaking out of the loop stops feeding new items. Items already handed to
// a worker run to completion and their results are discarded, so no
// goroutines outlive the loop. fn receives ctx unchanged.
func Map[T, R any](ctx context.Context, size int, items iter.Seq[T], fn func(context.Context, T) (R, error)) iter.Seq2[R, error] {
	if size < 1 {
		size = DefaultSize
	}
	var used atomic.Bool
	return func(yield func(R, error) bool) {
		if !used.CompareAndSwap(false, true) {
			var zero R
			yield(zero, ErrConsumed)
			return
		}

		stop := make(chan struct{})
		var stopOnce sync.Once
		halt := func() { stopOnce.Do(func() { close(stop) }) }
		defer halt()

		jobs := make(chan T)
		results := make(chan result[R])

		go func() {
			defer close(jobs)
			for item := range items {
				select {
				case jobs <- item:
				case <-stop:
					return
				case <-ctx.Done():
					return
				}
			}
		}()

		var wg sync.WaitGroup
		for range size {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for item := range jobs {
					value, err := fn(ctx, item)
					select {
					case results <- result[R]{value: value, err: err}:
					case <-stop:
					}
				}
			}()
		}
		go func() {
			wg.Wait()
			close(results)
		}()

		for res := range results {
			if !yield(res.value, res.err) {
				halt()
				break
			}
		}
		for range results {
		}
	}
}

// Collect drains seq. It returns every successful value and all errors joined.
func Collect[R any](seq iter.Seq2[R, error]) ([]R, error) {
	var (
		values []R
		errs   []error
	)
	for value, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		values = append(values, value)
	}
	return values, errors.Join(errs...)
}

// Slice adapts a slice into a sequence for Map.
func Slice[T any](items []T) iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, item := range items {
			if !yield(item) {
				return
			}
		}
	}
}

// RunAll runs every fn concurrently and waits for all of them. One failure
// does not cancel the others; every error is returned joined, in argument
// order.
func RunAll(ctx context.Context, fns ...func(context.Context) error) error {
	errs := make([]error, len(fns))
	var g errgroup.Group
	for i, fn := range fns {
		g.Go(func() error {
			errs[i] = fn(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
