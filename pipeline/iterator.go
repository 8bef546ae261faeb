package pipeline

import (
	"context"

	"github.com/kbukum/streamkit/buffer"
)

// Iterator provides pull-based sequential access to a stream of values.
type Iterator[T any] interface {
	// Next returns the next value. Returns (zero, false, nil) when exhausted.
	Next(ctx context.Context) (T, bool, error)
	// Close releases any resources held by the iterator.
	Close() error
}

// Collect pulls every remaining value from iter into a slice.
// Values gathered before a failure are returned alongside the error.
func Collect[T any](ctx context.Context, iter Iterator[T]) ([]T, error) {
	var result []T
	for {
		val, ok, err := iter.Next(ctx)
		if err != nil {
			return result, err
		}
		if !ok {
			return result, nil
		}
		result = append(result, val)
	}
}

// ForEach pulls every remaining value from iter and calls fn for each.
func ForEach[T any](ctx context.Context, iter Iterator[T], fn func(context.Context, T) error) error {
	for {
		val, ok, err := iter.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(ctx, val); err != nil {
			return err
		}
	}
}

// Adapt wraps feed into an Iterator that yields one adapter unit per Next.
//
// When the adapter hands back a unit together with an error, the unit is
// returned first and the error on the following call.
func Adapt[T, U any](feed buffer.Feed[T], adapter Adapter[T, U]) Iterator[U] {
	return &feedIter[T, U]{feed: feed, adapter: adapter}
}

type feedIter[T, U any] struct {
	feed    buffer.Feed[T]
	adapter Adapter[T, U]
	pending error
	done    bool
	closed  bool
}

func (it *feedIter[T, U]) Next(ctx context.Context) (U, bool, error) {
	var zero U
	if it.closed || it.done {
		return zero, false, nil
	}
	if err := it.pending; err != nil {
		it.pending = nil
		return zero, false, err
	}

	unit, ok, err := it.adapter.TryGet(ctx, it.feed)
	if ok {
		it.pending = err
		return unit, true, nil
	}
	if err != nil {
		return zero, false, err
	}
	it.done = true
	return zero, false, nil
}

func (it *feedIter[T, U]) Close() error {
	it.closed = true
	return nil
}
