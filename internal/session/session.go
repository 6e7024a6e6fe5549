// Package session binds opaque session tokens to user names. Tokens travel in
// a cookie; the room itself only ever sees the resolved name.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long an idle session stays valid.
const DefaultTTL = 1 * time.Hour

// Store creates, resolves and destroys session bindings. Lookup returns ""
// with a nil error for unknown or expired tokens.
type Store interface {
	Create(ctx context.Context, username string) (string, error)
	Lookup(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

func newToken() string {
	return uuid.New().String()
}
