// Package resilience guards agent stream establishment against a repeatedly
// failing upstream.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker is rejecting connection
// attempts. Callers surface it as an agent-unavailable failure instead of
// hammering a dead upstream.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker trips after maxFailures consecutive failed connection attempts and
// rejects further attempts for a cooldown period. After the cooldown a single
// probe attempt is let through; its outcome decides whether the breaker
// closes again or re-trips for another cooldown.
//
// Caller-side context cancellation is not held against the upstream: a run
// abandoned mid-connect says nothing about agent health.
type Breaker struct {
	mu          sync.Mutex
	maxFailures int
	cooldown    time.Duration
	clock       func() time.Time

	failures int
	tripped  bool
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a breaker that trips after maxFailures consecutive
// failures and rejects attempts for the given cooldown before probing.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		clock:       time.Now,
	}
}

// Execute runs connect unless the breaker is rejecting attempts. While
// tripped, at most one probe runs at a time once the cooldown has elapsed;
// concurrent attempts get ErrCircuitOpen until the probe settles.
func (b *Breaker) Execute(ctx context.Context, connect func(context.Context) error) error {
	if err := b.acquire(); err != nil {
		return err
	}
	err := connect(ctx)
	b.settle(err)
	return err
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.tripped {
		return nil
	}
	if b.clock().Sub(b.openedAt) < b.cooldown {
		return ErrCircuitOpen
	}
	if b.probing {
		return ErrCircuitOpen
	}
	b.probing = true
	return nil
}

func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasProbe := b.probing
	b.probing = false

	switch {
	case err == nil:
		b.failures = 0
		b.tripped = false

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Not an upstream failure; a tripped breaker stays eligible for the
		// next probe.

	default:
		b.failures++
		if wasProbe || b.failures >= b.maxFailures {
			b.tripped = true
			b.openedAt = b.clock()
		}
	}
}
