// Package replayguard implements replay protection for signed envelopes:
// a bounded LRU nonce cache plus a timestamp freshness window, both
// enforced on the daemon's single request-handling path.
package replayguard

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// DefaultCapacity is the minimum nonce cache capacity: it must exceed the
// maximum number of distinct signed envelopes an honest signer can emit
// within the freshness window.
const DefaultCapacity = 10_000

// DefaultFreshnessWindow is the maximum allowed |now - timestamp|.
const DefaultFreshnessWindow = 300 * time.Second

// ErrStaleEnvelope is returned when a timestamp falls outside the freshness
// window.
type ErrStaleEnvelope struct {
	Now       time.Time
	Timestamp time.Time
	Window    time.Duration
}

func (e *ErrStaleEnvelope) Error() string {
	return fmt.Sprintf("timestamp %s outside freshness window %s of now %s",
		e.Timestamp, e.Window, e.Now)
}

// ErrReplayedEnvelope is returned when a (nonce) has already been accepted.
type ErrReplayedEnvelope struct {
	Nonce string
}

func (e *ErrReplayedEnvelope) Error() string {
	return fmt.Sprintf("nonce %q already seen", e.Nonce)
}

// Guard enforces nonce uniqueness and timestamp freshness. Guard is safe
// for concurrent use: all state-mutating access is serialized by an
// internal mutex, matching the daemon's single-writer discipline for the
// state-mutating request path.
type Guard struct {
	mu       sync.Mutex
	clock    Clock
	window   time.Duration
	capacity int

	nonces map[string]*list.Element
	order  *list.List // front = most-recently-inserted, back = oldest
}

// Option configures a Guard at construction.
type Option func(*Guard)

// WithClock overrides the production SystemClock, for tests.
func WithClock(c Clock) Option {
	return func(g *Guard) { g.clock = c }
}

// WithWindow overrides DefaultFreshnessWindow.
func WithWindow(d time.Duration) Option {
	return func(g *Guard) { g.window = d }
}

// WithCapacity overrides DefaultCapacity. Capacities below DefaultCapacity
// are accepted (useful for eviction tests) but production callers should
// not go below the ~10,000 floor.
func WithCapacity(n int) Option {
	return func(g *Guard) { g.capacity = n }
}

// New constructs a Guard with DefaultCapacity and DefaultFreshnessWindow,
// using the real system clock, unless overridden by options.
func New(opts ...Option) *Guard {
	g := &Guard{
		clock:    SystemClock{},
		window:   DefaultFreshnessWindow,
		capacity: DefaultCapacity,
		nonces:   make(map[string]*list.Element),
		order:    list.New(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check validates timestamp freshness and performs a check-and-insert on
// nonce. On success, nonce is now considered seen and a subsequent call
// with the same nonce fails with ErrReplayedEnvelope regardless of
// timestamp. On any failure, no state is mutated.
func (g *Guard) Check(nonce string, timestamp time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	delta := now.Sub(timestamp)
	if delta < 0 {
		delta = -delta
	}
	if delta > g.window {
		return &ErrStaleEnvelope{Now: now, Timestamp: timestamp, Window: g.window}
	}

	if _, seen := g.nonces[nonce]; seen {
		return &ErrReplayedEnvelope{Nonce: nonce}
	}

	elem := g.order.PushFront(nonce)
	g.nonces[nonce] = elem

	for g.order.Len() > g.capacity {
		oldest := g.order.Back()
		if oldest == nil {
			break
		}
		g.order.Remove(oldest)
		delete(g.nonces, oldest.Value.(string))
	}

	return nil
}

// Len returns the current number of tracked nonces, for tests and status
// reporting.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.order.Len()
}
