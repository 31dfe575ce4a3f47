package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/CoachGate/internal/port/tokenstore"
)

// TokenStore implements tokenstore.Store using PostgreSQL.
type TokenStore struct {
	pool *pgxpool.Pool
}

// NewTokenStore creates a new TokenStore backed by the given pool.
func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// UserForToken resolves the connection token to its owning user.
func (s *TokenStore) UserForToken(ctx context.Context, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, tokenstore.ErrUnknownToken
	}

	var userID uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT user_id FROM api_tokens WHERE token = $1`, token).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, tokenstore.ErrUnknownToken
		}
		return uuid.Nil, fmt.Errorf("lookup token: %w", err)
	}
	return userID, nil
}
