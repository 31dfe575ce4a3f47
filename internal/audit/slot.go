package audit

import (
	"context"
	"sync"
)

// slot is a one-shot decision primitive: set once, wait until set.
//
// Resolve reports whether this call was the one that set the value; a second
// Resolve is a no-op returning false, never an overwrite. Await suspends until
// the slot resolves or the context is done.
type slot[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	resolved bool
	value    T
}

func newSlot[T any]() *slot[T] {
	return &slot[T]{done: make(chan struct{})}
}

// Resolve sets the value if the slot is still open. Returns false if the slot
// was already resolved.
func (s *slot[T]) Resolve(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved {
		return false
	}
	s.resolved = true
	s.value = v
	close(s.done)
	return true
}

// Await blocks until the slot resolves or ctx is done. The second return is
// false when the wait was abandoned.
func (s *slot[T]) Await(ctx context.Context) (T, bool) {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.value, true
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

// Resolved reports whether the slot has been set.
func (s *slot[T]) Resolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved
}
