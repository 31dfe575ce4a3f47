package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/CoachGate/internal/domain/profile"
)

// ProfileStore implements profilestore.Store using PostgreSQL.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore creates a new ProfileStore backed by the given pool.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

const profileColumns = `user_id, first_name, last_name, email, phone, goals, experience,
	constraints_notes, equipment, risk_flags, diet_prefs,
	metrics_age, metrics_height, metrics_weight, created_at, updated_at`

func scanProfile(row pgx.Row) (*profile.Profile, error) {
	var p profile.Profile
	err := row.Scan(
		&p.UserID, &p.FirstName, &p.LastName, &p.Email, &p.Phone,
		&p.Goals, &p.Experience, &p.Constraints, &p.Equipment,
		&p.RiskFlags, &p.DietPrefs,
		&p.Metrics.Age, &p.Metrics.Height, &p.Metrics.Weight,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByUser returns the profile, or (nil, nil) when none exists.
func (s *ProfileStore) GetByUser(ctx context.Context, userID uuid.UUID) (*profile.Profile, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM profiles WHERE user_id = $1`, profileColumns), userID)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// UpsertByUser inserts or updates the profile and returns the stored row.
func (s *ProfileStore) UpsertByUser(ctx context.Context, p profile.Profile) (*profile.Profile, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO profiles (user_id, first_name, last_name, email, phone, goals, experience,
			constraints_notes, equipment, risk_flags, diet_prefs,
			metrics_age, metrics_height, metrics_weight)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (user_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			goals = EXCLUDED.goals,
			experience = EXCLUDED.experience,
			constraints_notes = EXCLUDED.constraints_notes,
			equipment = EXCLUDED.equipment,
			risk_flags = EXCLUDED.risk_flags,
			diet_prefs = EXCLUDED.diet_prefs,
			metrics_age = EXCLUDED.metrics_age,
			metrics_height = EXCLUDED.metrics_height,
			metrics_weight = EXCLUDED.metrics_weight,
			updated_at = now()
		 RETURNING %s`, profileColumns),
		p.UserID, p.FirstName, p.LastName, p.Email, p.Phone, p.Goals, p.Experience,
		p.Constraints, p.Equipment, p.RiskFlags, p.DietPrefs,
		p.Metrics.Age, p.Metrics.Height, p.Metrics.Weight,
	)
	stored, err := scanProfile(row)
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return stored, nil
}

// DeleteByUser removes the profile. Returns false when none existed.
func (s *ProfileStore) DeleteByUser(ctx context.Context, userID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM profiles WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("delete profile: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
