package buffer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/kbukum/streamkit/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	blockWindow = 50 * time.Millisecond
	wakeTimeout = 2 * time.Second
)

func mustNew[T any](t *testing.T, ctx context.Context, capacity int) *Buffer[T] {
	t.Helper()
	b, err := New[T](ctx, capacity)
	if err != nil {
		t.Fatalf("New(%d): %v", capacity, err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

// async runs fn in a goroutine and returns a channel that receives its error.
func async(fn func() error) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- fn() }()
	return ch
}

func expectBlocked(t *testing.T, ch <-chan error) {
	t.Helper()
	select {
	case err := <-ch:
		t.Fatalf("expected call to block, it returned %v", err)
	case <-time.After(blockWindow):
	}
}

func expectDone(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(wakeTimeout):
		t.Fatal("call did not return in time")
		return nil
	}
}

func TestNew_NegativeCapacity(t *testing.T) {
	_, err := New[int](context.Background(), -1)
	if !errors.IsCode(err, errors.ErrCodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestNew_Capacity(t *testing.T) {
	b := mustNew[int](t, context.Background(), 3)
	if b.Cap() != 3 {
		t.Errorf("Cap() = %d, want 3", b.Cap())
	}
	u := mustNew[int](t, nil, Unbounded)
	if u.Cap() != 0 {
		t.Errorf("Cap() = %d, want 0", u.Cap())
	}
}

func TestPutTake_FIFO(t *testing.T) {
	ctx := context.Background()
	b := mustNew[int](t, ctx, 10)
	for i := 0; i < 5; i++ {
		if err := b.Put(ctx, i); err != nil {
			t.Fatal(err)
		}
	}
	for want := 0; want < 5; want++ {
		got, ok, err := b.Take(ctx)
		if err != nil || !ok {
			t.Fatalf("Take: ok=%v err=%v", ok, err)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestPut_BlocksExactlyWhileFull(t *testing.T) {
	ctx := context.Background()
	b := mustNew[int](t, ctx, 2)
	_ = b.Put(ctx, 1)
	_ = b.Put(ctx, 2)
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}

	put := async(func() error { return b.Put(ctx, 3) })
	expectBlocked(t, put)
	if b.Len() != 2 {
		t.Fatalf("buffer exceeded capacity: %d", b.Len())
	}

	if _, _, err := b.Take(ctx); err != nil {
		t.Fatal(err)
	}
	if err := expectDone(t, put); err != nil {
		t.Fatalf("Put after space freed: %v", err)
	}
	if b.Len() != 2 {
		t.Errorf("Len() = %d, want 2", b.Len())
	}
}

func TestPut_UnboundedNeverBlocks(t *testing.T) {
	ctx := context.Background()
	b := mustNew[int](t, ctx, Unbounded)
	done := async(func() error {
		for i := 0; i < 10_000; i++ {
			if err := b.Put(ctx, i); err != nil {
				return err
			}
		}
		return nil
	})
	if err := expectDone(t, done); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 10_000 {
		t.Errorf("Len() = %d, want 10000", b.Len())
	}
}

func TestTake_BlocksUntilPut(t *testing.T) {
	ctx := context.Background()
	b := mustNew[string](t, ctx, 1)

	var got string
	take := async(func() error {
		v, _, err := b.Take(ctx)
		got = v
		return err
	})
	expectBlocked(t, take)

	_ = b.Put(ctx, "hello")
	if err := expectDone(t, take); err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Errorf("got %q", got)
	}
}

func TestComplete_DrainsThenExhausts(t *testing.T) {
	ctx := context.Background()
	b := mustNew[int](t, ctx, 4)
	_ = b.Put(ctx, 7)
	_ = b.Put(ctx, 8)
	b.Complete()
	b.Complete()

	for _, want := range []int{7, 8} {
		v, ok, err := b.Take(ctx)
		if err != nil || !ok || v != want {
			t.Fatalf("Take = (%d, %v, %v), want (%d, true, nil)", v, ok, err, want)
		}
	}
	_, ok, err := b.Take(ctx)
	if ok || err != nil {
		t.Fatalf("expected exhaustion, got ok=%v err=%v", ok, err)
	}
	if !b.Completed() {
		t.Error("Completed() = false")
	}
	if err := b.Put(ctx, 9); !errors.IsCode(err, errors.ErrCodeInvalidArgument) {
		t.Errorf("Put after Complete: expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestComplete_WakesBlockedTaker(t *testing.T) {
	ctx := context.Background()
	b := mustNew[int](t, ctx, 1)
	take := async(func() error {
		_, ok, err := b.Take(ctx)
		if ok {
			t.Error("expected ok=false")
		}
		return err
	})
	expectBlocked(t, take)
	b.Complete()
	if err := expectDone(t, take); err != nil {
		t.Fatal(err)
	}
}

func TestCancel_CallContextUnblocks(t *testing.T) {
	b := mustNew[int](t, context.Background(), 1)
	_ = b.Put(context.Background(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	put := async(func() error { return b.Put(ctx, 2) })
	expectBlocked(t, put)
	cancel()

	err := expectDone(t, put)
	if !errors.IsCode(err, errors.ErrCodeCancelled) {
		t.Fatalf("expected CANCELLED, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("expected context.Canceled to be reachable")
	}
}

func TestCancel_BufferContextUnblocksEveryone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	full := mustNew[int](t, ctx, 1)
	empty := mustNew[int](t, ctx, 1)
	_ = full.Put(context.Background(), 1)

	put := async(func() error { return full.Put(context.Background(), 2) })
	take := async(func() error {
		_, _, err := empty.Take(context.Background())
		return err
	})
	expectBlocked(t, put)
	expectBlocked(t, take)

	cancel()
	for _, ch := range []<-chan error{put, take} {
		if err := expectDone(t, ch); !errors.IsCancelled(err) {
			t.Errorf("expected cancellation, got %v", err)
		}
	}
}

func TestCancel_DeadlineExceeded(t *testing.T) {
	b := mustNew[int](t, context.Background(), 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := b.Take(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestClose_DisposesAndWakes(t *testing.T) {
	ctx := context.Background()
	b, err := New[int](ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	take := async(func() error {
		_, _, err := b.Take(ctx)
		return err
	})
	expectBlocked(t, take)

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := expectDone(t, take); !errors.IsCode(err, errors.ErrCodeDisposed) {
		t.Fatalf("expected DISPOSED, got %v", err)
	}
	if err := b.Put(ctx, 1); !errors.IsCode(err, errors.ErrCodeDisposed) {
		t.Errorf("Put after Close: expected DISPOSED, got %v", err)
	}
}

func TestNilInterfaceItem(t *testing.T) {
	ctx := context.Background()
	b := mustNew[error](t, ctx, 1)
	if err := b.Put(ctx, nil); err != nil {
		t.Fatal(err)
	}
	v, ok, err := b.Take(ctx)
	if err != nil || !ok || v != nil {
		t.Fatalf("Take = (%v, %v, %v)", v, ok, err)
	}
}

func TestConcurrent_CapacityNeverExceeded(t *testing.T) {
	const (
		capacity  = 3
		producers = 4
		perProd   = 200
	)
	ctx := context.Background()
	b := mustNew[int](t, ctx, capacity)

	var overflow atomic.Bool
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProd; i++ {
				if err := b.Put(ctx, i); err != nil {
					t.Error(err)
					return
				}
				if b.Len() > capacity {
					overflow.Store(true)
				}
			}
		}()
	}

	var taken atomic.Int64
	var cwg sync.WaitGroup
	for c := 0; c < 2; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				_, ok, err := b.Take(ctx)
				if err != nil {
					t.Error(err)
					return
				}
				if !ok {
					return
				}
				taken.Add(1)
			}
		}()
	}

	wg.Wait()
	b.Complete()
	cwg.Wait()

	if overflow.Load() {
		t.Error("buffer held more than its capacity")
	}
	if taken.Load() != producers*perProd {
		t.Errorf("taken = %d, want %d", taken.Load(), producers*perProd)
	}
}

func TestViews(t *testing.T) {
	ctx := context.Background()
	b := mustNew[int](t, ctx, 2)
	out := DistributorOf(b)
	in := FeedOf(b)

	if err := out.Distribute(ctx, 42); err != nil {
		t.Fatal(err)
	}
	b.Complete()

	v, ok, err := in.Retrieve(ctx)
	if err != nil || !ok || v != 42 {
		t.Fatalf("Retrieve = (%d, %v, %v)", v, ok, err)
	}
	if _, ok, _ := in.Retrieve(ctx); ok {
		t.Error("expected exhaustion through the feed view")
	}

	if _, isBuffer := any(in).(*Buffer[int]); isBuffer {
		t.Error("feed view must not expose the buffer")
	}
	if _, isBuffer := any(out).(*Buffer[int]); isBuffer {
		t.Error("distributor view must not expose the buffer")
	}
}
