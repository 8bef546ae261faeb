package buffer

import "context"

// Feed is the consumer-side view of a Buffer.
type Feed[T any] interface {
	// Retrieve returns the next item, or ok=false once the buffer is
	// complete and drained.
	Retrieve(ctx context.Context) (item T, ok bool, err error)
}

// Distributor is the producer-side view of a Buffer.
type Distributor[T any] interface {
	// Distribute adds an item, blocking while the buffer is full.
	Distribute(ctx context.Context, item T) error
}

// FeedFunc adapts a function to Feed.
type FeedFunc[T any] func(ctx context.Context) (T, bool, error)

// Retrieve calls f(ctx).
func (f FeedFunc[T]) Retrieve(ctx context.Context) (T, bool, error) { return f(ctx) }

// DistributorFunc adapts a function to Distributor.
type DistributorFunc[T any] func(ctx context.Context, item T) error

// Distribute calls f(ctx, item).
func (f DistributorFunc[T]) Distribute(ctx context.Context, item T) error { return f(ctx, item) }

// FeedOf returns a view of b that can only take items.
func FeedOf[T any](b *Buffer[T]) Feed[T] {
	return FeedFunc[T](b.Take)
}

// DistributorOf returns a view of b that can only put items.
func DistributorOf[T any](b *Buffer[T]) Distributor[T] {
	return DistributorFunc[T](b.Put)
}
