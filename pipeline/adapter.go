package pipeline

import (
	"context"

	"github.com/kbukum/streamkit/buffer"
	"github.com/kbukum/streamkit/errors"
)

// Adapter turns a per-item feed into consumption units of type U.
//
// TryGet returns ok=false with a nil error once the feed is exhausted and no
// unit could be formed. Like io.Reader, it may return a valid unit together
// with an error; Adapt delivers the unit before the error. Adapters hold no
// per-call state and may be shared by every consumer of a run.
type Adapter[T, U any] interface {
	TryGet(ctx context.Context, feed buffer.Feed[T]) (unit U, ok bool, err error)
}

// AdapterFunc adapts a function to Adapter.
type AdapterFunc[T, U any] func(ctx context.Context, feed buffer.Feed[T]) (U, bool, error)

// TryGet calls f(ctx, feed).
func (f AdapterFunc[T, U]) TryGet(ctx context.Context, feed buffer.Feed[T]) (U, bool, error) {
	return f(ctx, feed)
}

// Identity returns an adapter that yields one item per call.
func Identity[T any]() Adapter[T, T] {
	return AdapterFunc[T, T](func(ctx context.Context, feed buffer.Feed[T]) (T, bool, error) {
		return feed.Retrieve(ctx)
	})
}

// List returns an adapter that groups up to maxSize items into one batch.
// A batch is emitted when full or when the feed runs dry with at least one
// pending item, so the final batch may be short and no item is dropped.
// A maxSize below 2 is rejected; single items go through Identity.
func List[T any](maxSize int) (Adapter[T, []T], error) {
	if maxSize < 2 {
		return nil, errors.InvalidArgument("maxSize", "must be at least 2, use Identity for single items")
	}
	return listAdapter[T]{maxSize: maxSize}, nil
}

type listAdapter[T any] struct {
	maxSize int
}

func (a listAdapter[T]) TryGet(ctx context.Context, feed buffer.Feed[T]) ([]T, bool, error) {
	var batch []T
	for len(batch) < a.maxSize {
		val, ok, err := feed.Retrieve(ctx)
		if err != nil {
			if len(batch) > 0 {
				// Partial batch first; the error surfaces on the next call.
				return batch, true, err
			}
			return nil, false, err
		}
		if !ok {
			break
		}
		if batch == nil {
			batch = make([]T, 0, a.maxSize)
		}
		batch = append(batch, val)
	}
	return batch, len(batch) > 0, nil
}
