package ports

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/nao1215/vpnprobe/internal/model"
)

// Allocation errors.
var (
	// ErrInvalidLimit is returned when the slot count is below one.
	ErrInvalidLimit = errors.New("slot limit must be at least 1")

	// ErrRangeOutOfBounds is returned when a port range does not fit in 1-65535.
	ErrRangeOutOfBounds = errors.New("port range exceeds 1-65535")

	// ErrRangeOverlap is returned when two port ranges share a port, or a
	// test range contains a production port.
	ErrRangeOverlap = errors.New("port ranges overlap")
)

// LoopbackHost is the address every proxy inbound listens on.
const LoopbackHost = "127.0.0.1"

// Pair is the (socks, http) inbound port pair of one proxy process.
type Pair struct {
	// Socks is the SOCKS5 inbound port.
	Socks int

	// HTTP is the HTTP proxy inbound port.
	HTTP int
}

// SocksAddr returns the loopback address of the SOCKS5 inbound.
func (p Pair) SocksAddr() string {
	return net.JoinHostPort(LoopbackHost, strconv.Itoa(p.Socks))
}

// HTTPAddr returns the loopback address of the HTTP inbound.
func (p Pair) HTTPAddr() string {
	return net.JoinHostPort(LoopbackHost, strconv.Itoa(p.HTTP))
}

// Validate reports whether both ports are usable and distinct.
func (p Pair) Validate() error {
	if !model.ValidPort(p.Socks) || !model.ValidPort(p.HTTP) {
		return fmt.Errorf("%w: socks=%d http=%d", ErrRangeOutOfBounds, p.Socks, p.HTTP)
	}
	if p.Socks == p.HTTP {
		return fmt.Errorf("%w: socks and http both use %d", ErrRangeOverlap, p.Socks)
	}
	return nil
}

// Allocator maps slot indices to port pairs.
//
// Slot i always maps to (SocksBase+i, HTTPBase+i), so two concurrently
// running test processes hold distinct ports as long as they hold distinct
// slots. Uniqueness of slots is enforced by SlotPool.
type Allocator struct {
	socksBase  int
	httpBase   int
	limit      int
	production Pair
}

// NewAllocator validates the port layout and returns an Allocator.
//
// The socks range [socksBase, socksBase+limit) and the http range
// [httpBase, httpBase+limit) must not overlap each other nor contain either
// production port.
func NewAllocator(socksBase, httpBase, limit int, production Pair) (*Allocator, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}
	for _, base := range []int{socksBase, httpBase} {
		if !model.ValidPort(base) || !model.ValidPort(base+limit-1) {
			return nil, fmt.Errorf("%w: %d-%d", ErrRangeOutOfBounds, base, base+limit-1)
		}
	}
	if overlaps(socksBase, httpBase, limit) {
		return nil, fmt.Errorf("%w: socks %d-%d, http %d-%d",
			ErrRangeOverlap, socksBase, socksBase+limit-1, httpBase, httpBase+limit-1)
	}
	for _, port := range []int{production.Socks, production.HTTP} {
		if inRange(port, socksBase, limit) || inRange(port, httpBase, limit) {
			return nil, fmt.Errorf("%w: production port %d is inside a test range", ErrRangeOverlap, port)
		}
	}
	return &Allocator{
		socksBase:  socksBase,
		httpBase:   httpBase,
		limit:      limit,
		production: production,
	}, nil
}

// Limit returns the number of slots.
func (a *Allocator) Limit() int {
	return a.limit
}

// Pair returns the port pair of a slot. Slots wrap modulo Limit.
func (a *Allocator) Pair(slot int) Pair {
	i := slot % a.limit
	if i < 0 {
		i += a.limit
	}
	return Pair{Socks: a.socksBase + i, HTTP: a.httpBase + i}
}

// Production returns the fixed port pair used by the active connection.
func (a *Allocator) Production() Pair {
	return a.production
}

// NewSlotPool returns a pool with one slot per allocator slot.
func (a *Allocator) NewSlotPool() *SlotPool {
	return NewSlotPool(a.limit)
}

func inRange(port, base, limit int) bool {
	return port >= base && port < base+limit
}

func overlaps(a, b, limit int) bool {
	return a < b+limit && b < a+limit
}
