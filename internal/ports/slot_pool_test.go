package ports

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestSlotPoolAcquireRelease tests basic slot accounting.
func TestSlotPoolAcquireRelease(t *testing.T) {
	t.Parallel()

	pool := NewSlotPool(2)
	ctx := context.Background()

	a, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("expected distinct slots, got %d twice", a)
	}
	if pool.Free() != 0 {
		t.Errorf("expected no free slots, got %d", pool.Free())
	}

	pool.Release(a)
	if pool.Free() != 1 {
		t.Errorf("expected one free slot, got %d", pool.Free())
	}
	c, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if c != a {
		t.Errorf("expected released slot %d to be reused, got %d", a, c)
	}
}

// TestSlotPoolAcquireCanceled tests that a blocked Acquire honors its context.
func TestSlotPoolAcquireCanceled(t *testing.T) {
	t.Parallel()

	pool := NewSlotPool(1)
	if _, err := pool.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := pool.Acquire(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

// TestSlotPoolFreeSlotWinsOverDoneContext tests acquisition with a done context.
func TestSlotPoolFreeSlotWinsOverDoneContext(t *testing.T) {
	t.Parallel()

	pool := NewSlotPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := pool.Acquire(ctx); err != nil {
		t.Errorf("expected free slot to be returned, got %v", err)
	}
}

// TestSlotPoolReleaseNotHeld tests that releasing a free slot panics.
func TestSlotPoolReleaseNotHeld(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		slot int
	}{
		{name: "never acquired", slot: 0},
		{name: "out of range", slot: 5},
		{name: "negative", slot: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pool := NewSlotPool(2)
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			pool.Release(tt.slot)
		})
	}
}

// TestSlotPoolBoundsConcurrency tests that no more than Size holders exist at once.
func TestSlotPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	const size = 3
	pool := NewSlotPool(size)

	var (
		current atomic.Int32
		peak    atomic.Int32
		inUse   sync.Map
		wg      sync.WaitGroup
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot, err := pool.Acquire(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			if _, dup := inUse.LoadOrStore(slot, true); dup {
				t.Errorf("slot %d held twice", slot)
			}
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			current.Add(-1)
			inUse.Delete(slot)
			pool.Release(slot)
		}()
	}
	wg.Wait()

	if peak.Load() > size {
		t.Errorf("peak concurrency %d exceeds %d", peak.Load(), size)
	}
	if pool.Free() != size {
		t.Errorf("expected all slots returned, got %d free", pool.Free())
	}
}

// TestNewSlotPoolMinimum tests the lower bound on pool size.
func TestNewSlotPoolMinimum(t *testing.T) {
	t.Parallel()

	if got := NewSlotPool(0).Size(); got != 1 {
		t.Errorf("expected size 1, got %d", got)
	}
}
