package ports

import (
	"context"
	"fmt"
	"sync"
)

// SlotPool hands out slot indices 0..n-1, each to at most one holder at a time.
//
// It is the only concurrency gate of a test batch: a task that holds slot i
// owns the port pair of slot i until it calls Release, which it does only
// after its proxy process has exited and its config file is gone.
type SlotPool struct {
	slots chan int

	mu   sync.Mutex
	held []bool
}

// NewSlotPool returns a pool with n free slots. n below one is treated as one.
func NewSlotPool(n int) *SlotPool {
	if n < 1 {
		n = 1
	}
	slots := make(chan int, n)
	for i := range n {
		slots <- i
	}
	return &SlotPool{slots: slots, held: make([]bool, n)}
}

// Acquire blocks until a slot is free or ctx is done.
// A free slot wins over a context that is already done.
func (p *SlotPool) Acquire(ctx context.Context) (int, error) {
	select {
	case slot := <-p.slots:
		p.mark(slot, true)
		return slot, nil
	default:
	}
	select {
	case slot := <-p.slots:
		p.mark(slot, true)
		return slot, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Release returns a slot to the pool.
// Releasing a slot that is not held panics: two processes would otherwise
// bind the same ports.
func (p *SlotPool) Release(slot int) {
	p.mu.Lock()
	if slot < 0 || slot >= len(p.held) || !p.held[slot] {
		p.mu.Unlock()
		panic(fmt.Sprintf("ports: release of slot %d which is not held", slot))
	}
	p.held[slot] = false
	p.mu.Unlock()
	p.slots <- slot
}

func (p *SlotPool) mark(slot int, held bool) {
	p.mu.Lock()
	p.held[slot] = held
	p.mu.Unlock()
}

// Size returns the total number of slots.
func (p *SlotPool) Size() int {
	return cap(p.slots)
}

// Free returns the number of slots currently available.
func (p *SlotPool) Free() int {
	return len(p.slots)
}
