package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/kbukum/streamkit/buffer"
	"github.com/kbukum/streamkit/errors"
)

// completedFeed returns a feed over a completed buffer holding items.
func completedFeed[T any](t *testing.T, items ...T) buffer.Feed[T] {
	t.Helper()
	b, err := buffer.New[T](context.Background(), buffer.Unbounded)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	for _, item := range items {
		if err := b.Put(context.Background(), item); err != nil {
			t.Fatal(err)
		}
	}
	b.Complete()
	return buffer.FeedOf(b)
}

// failingFeed yields items and then fails with err.
func failingFeed[T any](err error, items ...T) buffer.Feed[T] {
	i := 0
	return buffer.FeedFunc[T](func(context.Context) (T, bool, error) {
		if i < len(items) {
			i++
			return items[i-1], true, nil
		}
		var zero T
		return zero, false, err
	})
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func intSliceEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestList_RejectsSmallSizes(t *testing.T) {
	for _, size := range []int{-1, 0, 1} {
		if _, err := List[int](size); !errors.IsCode(err, errors.ErrCodeInvalidArgument) {
			t.Errorf("List(%d): expected INVALID_ARGUMENT, got %v", size, err)
		}
	}
}

func TestList_BatchCounts(t *testing.T) {
	tests := []struct {
		n, max int
	}{
		{0, 2},
		{1, 2},
		{10, 10},
		{11, 10},
		{23, 5},
		{100, 3},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("n=%d/max=%d", tc.n, tc.max), func(t *testing.T) {
			adapter, err := List[int](tc.max)
			if err != nil {
				t.Fatal(err)
			}
			batches, err := Collect(context.Background(), Adapt(completedFeed(t, seq(tc.n)...), adapter))
			if err != nil {
				t.Fatal(err)
			}

			want := (tc.n + tc.max - 1) / tc.max
			if len(batches) != want {
				t.Fatalf("got %d batches, want %d", len(batches), want)
			}
			var flat []int
			for i, batch := range batches {
				if len(batch) < 1 || len(batch) > tc.max {
					t.Errorf("batch %d has size %d", i, len(batch))
				}
				if i < len(batches)-1 && len(batch) != tc.max {
					t.Errorf("non-final batch %d has size %d, want %d", i, len(batch), tc.max)
				}
				flat = append(flat, batch...)
			}
			if !intSliceEqual(flat, seq(tc.n)) {
				t.Errorf("concatenation %v does not reproduce the input", flat)
			}
		})
	}
}

func TestList_PartialBatchBeforeError(t *testing.T) {
	boom := fmt.Errorf("feed broke")
	adapter, _ := List[int](5)
	iter := Adapt(failingFeed(boom, 1, 2), adapter)
	ctx := context.Background()

	batch, ok, err := iter.Next(ctx)
	if err != nil || !ok {
		t.Fatalf("first Next: ok=%v err=%v", ok, err)
	}
	if !intSliceEqual(batch, []int{1, 2}) {
		t.Errorf("got %v, want [1 2]", batch)
	}

	_, ok, err = iter.Next(ctx)
	if ok || !errors.Is(err, boom) {
		t.Fatalf("second Next: expected the feed error, got ok=%v err=%v", ok, err)
	}
}

func TestList_ErrorWithoutItems(t *testing.T) {
	boom := fmt.Errorf("feed broke")
	adapter, _ := List[int](3)
	_, ok, err := adapter.TryGet(context.Background(), failingFeed[int](boom))
	if ok || !errors.Is(err, boom) {
		t.Fatalf("expected (false, boom), got (%v, %v)", ok, err)
	}
}

func TestIdentity(t *testing.T) {
	got, err := Collect(context.Background(), Adapt(completedFeed(t, "a", "b", "c"), Identity[string]()))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("got %v, want [a b c]", got)
	}
}

func TestAdapt_ExhaustedStaysExhausted(t *testing.T) {
	iter := Adapt(completedFeed(t, 1), Identity[int]())
	ctx := context.Background()
	if _, ok, _ := iter.Next(ctx); !ok {
		t.Fatal("expected one item")
	}
	for range 3 {
		if _, ok, err := iter.Next(ctx); ok || err != nil {
			t.Fatalf("expected exhaustion, got ok=%v err=%v", ok, err)
		}
	}
}

func TestAdapt_Close(t *testing.T) {
	iter := Adapt(completedFeed(t, 1, 2), Identity[int]())
	if err := iter.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := iter.Next(context.Background()); ok {
		t.Error("closed iterator must not yield items")
	}
}

func TestForEach_StopsOnError(t *testing.T) {
	stop := fmt.Errorf("stop")
	var seen []int
	err := ForEach(context.Background(), Adapt(completedFeed(t, 1, 2, 3), Identity[int]()),
		func(_ context.Context, n int) error {
			seen = append(seen, n)
			if n == 2 {
				return stop
			}
			return nil
		})
	if !errors.Is(err, stop) {
		t.Fatalf("expected stop, got %v", err)
	}
	if !intSliceEqual(seen, []int{1, 2}) {
		t.Errorf("seen %v, want [1 2]", seen)
	}
}
