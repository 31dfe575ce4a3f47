package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/CoachGate/internal/domain/event"
)

// EventStore implements eventstore.Store using PostgreSQL (append-only).
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts a new event into the events table.
func (s *EventStore) Append(ctx context.Context, ev *event.Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO events (id, user_id, thread_id, type, payload)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		ev.ID, ev.UserID, ev.ThreadID, string(ev.Type), ev.Payload,
	).Scan(&ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListByUserThread returns all events for the user and thread, oldest first.
func (s *EventStore) ListByUserThread(ctx context.Context, userID uuid.UUID, threadID string) ([]event.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, thread_id, type, payload, created_at
		 FROM events
		 WHERE user_id = $1 AND thread_id = $2
		 ORDER BY created_at ASC, id ASC`,
		userID, threadID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var ev event.Event
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.ThreadID, &ev.Type, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
