// Package tokenstore defines the port used to authenticate realtime connections.
package tokenstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUnknownToken is returned for tokens that resolve to no user.
var ErrUnknownToken = errors.New("unknown token")

// Store resolves opaque connection tokens to user identities.
type Store interface {
	// UserForToken returns the user id that owns the token, or ErrUnknownToken.
	UserForToken(ctx context.Context, token string) (uuid.UUID, error)
}
