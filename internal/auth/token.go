// Package auth mints and resolves session tokens. Two interchangeable
// issuers exist: opaque DB-backed session identifiers (the default) and
// signed JWTs for deployments that need stateless resolution. Callers only
// see the TokenIssuer interface.
package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
)

// ErrInvalidToken is returned when a presented token matches no live session.
var ErrInvalidToken = errors.New("invalid token")

// SessionStore is the slice of user persistence the issuers need.
type SessionStore interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetBySessionID(ctx context.Context, sessionID string) (types.User, error)
	SetSessionID(ctx context.Context, userID string, sessionID *string) error
	ClearSession(ctx context.Context, sessionID string) error
}

// TokenIssuer mints a token for a user, resolves a presented token back to
// its user, and revokes a token. Resolve returns ErrInvalidToken for any
// token that does not identify a live session.
type TokenIssuer interface {
	Issue(ctx context.Context, user types.User) (string, error)
	Resolve(ctx context.Context, token string) (types.User, error)
	Revoke(ctx context.Context, token string) error
}

// SessionIssuer implements TokenIssuer with opaque random identifiers stored
// on the user row. Resolution is an exact-match lookup; revocation clears the
// row, so a leaked token dies with the session.
type SessionIssuer struct {
	users SessionStore
}

func NewSessionIssuer(users SessionStore) *SessionIssuer {
	return &SessionIssuer{users: users}
}

// Issue mints a fresh random session id and binds it to the user, replacing
// any previous session. Uniqueness is enforced by the store; a collision on
// the 122-bit random id is not a case worth retrying.
func (s *SessionIssuer) Issue(ctx context.Context, user types.User) (string, error) {
	token := uuid.NewString()
	if err := s.users.SetSessionID(ctx, user.ID, &token); err != nil {
		return "", err
	}
	return token, nil
}

func (s *SessionIssuer) Resolve(ctx context.Context, token string) (types.User, error) {
	if token == "" {
		return types.User{}, ErrInvalidToken
	}
	user, err := s.users.GetBySessionID(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidToken
		}
		return types.User{}, err
	}
	return user, nil
}

// Revoke clears the session binding. Unknown tokens are ignored so logout
// stays idempotent.
func (s *SessionIssuer) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.users.ClearSession(ctx, token)
}
