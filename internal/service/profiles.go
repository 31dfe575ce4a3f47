package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/CoachGate/internal/domain/profile"
	"github.com/Strob0t/CoachGate/internal/port/profilestore"
)

// ProfileCache is the L1 cache in front of the canonical profile store.
type ProfileCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}

// ProfilesService reads and writes the canonical user profile. Reads go
// through the L1 cache; writes invalidate it.
type ProfilesService struct {
	store profilestore.Store
	cache ProfileCache
	ttl   time.Duration
}

// NewProfilesService creates a ProfilesService. cache may be nil to disable
// caching.
func NewProfilesService(store profilestore.Store, cache ProfileCache, ttl time.Duration) *ProfilesService {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ProfilesService{store: store, cache: cache, ttl: ttl}
}

// GetProfileMap returns the canonical profile in wire shape, or nil when the
// user has none.
func (s *ProfilesService) GetProfileMap(ctx context.Context, userID uuid.UUID) (map[string]any, error) {
	key := userID.String()
	if s.cache != nil {
		if data, ok := s.cache.Get(key); ok {
			var m map[string]any
			if err := json.Unmarshal(data, &m); err == nil {
				return m, nil
			}
			s.cache.Delete(key)
		}
	}

	p, err := s.store.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if p == nil {
		return nil, nil
	}

	m := p.Map()
	if s.cache != nil {
		if data, err := json.Marshal(m); err == nil {
			s.cache.Set(key, data, s.ttl)
		} else {
			slog.Warn("profile cache encode failed", "error", err)
		}
	}
	return m, nil
}

// UpsertFromPayload stores the profile payload canonically and returns the
// stored wire shape.
func (s *ProfilesService) UpsertFromPayload(ctx context.Context, userID uuid.UUID, payload map[string]any) (map[string]any, error) {
	p := profile.FromPayload(userID, payload)
	stored, err := s.store.UpsertByUser(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	if s.cache != nil {
		s.cache.Delete(userID.String())
	}
	return stored.Map(), nil
}

// Delete removes the canonical profile. Returns false when none existed.
func (s *ProfilesService) Delete(ctx context.Context, userID uuid.UUID) (bool, error) {
	deleted, err := s.store.DeleteByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("delete profile: %w", err)
	}
	if s.cache != nil {
		s.cache.Delete(userID.String())
	}
	return deleted, nil
}
