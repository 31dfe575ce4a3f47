// Package profilestore defines the port interface for canonical profile storage.
package profilestore

import (
	"context"

	"github.com/google/uuid"

	"github.com/Strob0t/CoachGate/internal/domain/profile"
)

// Store persists the canonical per-user profile.
type Store interface {
	// GetByUser returns the profile, or (nil, nil) when none exists.
	GetByUser(ctx context.Context, userID uuid.UUID) (*profile.Profile, error)

	// UpsertByUser inserts or updates the profile and returns the stored row.
	UpsertByUser(ctx context.Context, p profile.Profile) (*profile.Profile, error)

	// DeleteByUser removes the profile. Returns false when none existed.
	DeleteByUser(ctx context.Context, userID uuid.UUID) (bool, error)
}
