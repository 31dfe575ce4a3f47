// Package eventstore defines the port interface for the append-only event store.
package eventstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/Strob0t/CoachGate/internal/domain/event"
)

// Store appends and loads domain events.
type Store interface {
	// Append persists a new event.
	Append(ctx context.Context, ev *event.Event) error

	// ListByUserThread returns all events for the given user and thread,
	// ordered by creation time ascending.
	ListByUserThread(ctx context.Context, userID uuid.UUID, threadID string) ([]event.Event, error)
}
