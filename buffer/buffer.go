package buffer

import (
	"context"
	"sync"

	"github.com/emirpasic/gods/queues/linkedlistqueue"

	"github.com/kbukum/streamkit/errors"
)

// Unbounded is the capacity value that disables backpressure.
const Unbounded = 0

// Buffer is a blocking FIFO queue shared by producers and consumers.
//
// Put blocks while the buffer holds Cap() items, Take blocks while it is
// empty. Both return a Cancelled error as soon as the call context or the
// buffer's own context is done, and a Disposed error once Close was called.
type Buffer[T any] struct {
	ctx      context.Context
	capacity int

	mu        sync.Mutex
	notFull   *sync.Cond
	notEmpty  *sync.Cond
	items     *linkedlistqueue.Queue
	completed bool
	closed    bool
	stop      func() bool
}

// New creates a buffer bound to ctx. A capacity of 0 means unbounded.
func New[T any](ctx context.Context, capacity int) (*Buffer[T], error) {
	if capacity < 0 {
		return nil, errors.InvalidArgument("capacity", "must not be negative")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	b := &Buffer[T]{
		ctx:      ctx,
		capacity: capacity,
		items:    linkedlistqueue.New(),
	}
	b.notFull = sync.NewCond(&b.mu)
	b.notEmpty = sync.NewCond(&b.mu)
	b.stop = context.AfterFunc(ctx, b.wakeAll)
	return b, nil
}

// Put appends item, blocking while the buffer is full.
func (b *Buffer[T]) Put(ctx context.Context, item T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.capacity != Unbounded {
		stop := context.AfterFunc(ctx, b.wakeAll)
		defer stop()
	}

	for {
		if err := b.checkLocked(ctx); err != nil {
			return err
		}
		if b.completed {
			return errors.InvalidArgument("item", "buffer was marked complete")
		}
		if b.capacity == Unbounded || b.items.Size() < b.capacity {
			break
		}
		b.notFull.Wait()
	}

	b.items.Enqueue(item)
	// Broadcast, not Signal: a woken waiter may leave on cancellation
	// without consuming the wakeup.
	b.notEmpty.Broadcast()
	return nil
}

// Take removes the oldest item, blocking while the buffer is empty.
// It returns ok=false with a nil error once the buffer is complete and drained.
func (b *Buffer[T]) Take(ctx context.Context) (item T, ok bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stop := context.AfterFunc(ctx, b.wakeAll)
	defer stop()

	for {
		if err := b.checkLocked(ctx); err != nil {
			return item, false, err
		}
		if v, found := b.items.Dequeue(); found {
			b.notFull.Broadcast()
			item, _ = v.(T) // a nil interface value stays the zero T
			return item, true, nil
		}
		if b.completed {
			return item, false, nil
		}
		b.notEmpty.Wait()
	}
}

// Complete marks that no more items will be put. Takers drain what is left
// and then observe exhaustion. Calling it more than once is harmless.
func (b *Buffer[T]) Complete() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completed = true
	b.notEmpty.Broadcast()
	b.notFull.Broadcast()
}

// Close disposes the buffer. Every blocked and future call fails with a
// Disposed error and pending items are discarded.
func (b *Buffer[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.items.Clear()
	b.stop()
	b.notEmpty.Broadcast()
	b.notFull.Broadcast()
	return nil
}

// Len returns the number of queued items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.items.Size()
}

// Cap returns the capacity; 0 means unbounded.
func (b *Buffer[T]) Cap() int { return b.capacity }

// Completed reports whether Complete was called.
func (b *Buffer[T]) Completed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completed
}

// checkLocked must be called with b.mu held.
func (b *Buffer[T]) checkLocked(ctx context.Context) error {
	if b.closed {
		return errors.Disposed("buffer")
	}
	if err := ctx.Err(); err != nil {
		return errors.Cancelled(err)
	}
	if err := b.ctx.Err(); err != nil {
		return errors.Cancelled(err)
	}
	return nil
}

// wakeAll runs from context.AfterFunc so waiters re-check their contexts.
func (b *Buffer[T]) wakeAll() {
	b.mu.Lock()
	b.notEmpty.Broadcast()
	b.notFull.Broadcast()
	b.mu.Unlock()
}
