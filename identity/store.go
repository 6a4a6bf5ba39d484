package identity

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no identity exists for the given key.
var ErrNotFound = errors.New("identity not found")

// Store is the narrow persistence interface the auth core consumes.
// The full ticket backend owns the member table; the auth core only
// looks identities up and manages their refresh token.
type Store interface {
	FindByUsername(ctx context.Context, username string) (*Identity, error)
	FindByID(ctx context.Context, id string) (*Identity, error)

	// FindByRefreshToken resolves the identity currently holding the given
	// refresh token. The refresh endpoint only carries the opaque cookie.
	FindByRefreshToken(ctx context.Context, token string) (*Identity, error)

	// UpdateRefreshToken unconditionally replaces the stored refresh token.
	// An empty token clears it (logout).
	UpdateRefreshToken(ctx context.Context, id string, token string) error

	// ReplaceRefreshToken atomically replaces the stored refresh token only
	// if it currently equals old. It returns false when the compare fails,
	// which is how concurrent rotations of the same token are serialized:
	// exactly one caller observes true.
	ReplaceRefreshToken(ctx context.Context, id string, old, new string) (bool, error)
}
