package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/autovisiontech/dealership/internal/rbac"
	"github.com/autovisiontech/dealership/internal/shared"
)

// UserFinder loads accounts by id.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*User, error)
}

// SessionResolver turns a session token into the caller's identity. The
// account is read on every call so activation changes apply immediately.
type SessionResolver struct {
	sessions *shared.SessionManager
	users    UserFinder
}

// NewSessionResolver wires a SessionResolver.
func NewSessionResolver(sessions *shared.SessionManager, users UserFinder) *SessionResolver {
	return &SessionResolver{sessions: sessions, users: users}
}

// Resolve implements rbac.SessionResolver.
func (r *SessionResolver) Resolve(ctx context.Context, req *http.Request) (*rbac.Identity, error) {
	token := r.sessions.TokenFromRequest(req)
	if token == "" {
		return nil, nil
	}
	sess, err := r.sessions.Lookup(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if sess == nil {
		return nil, nil
	}
	user, err := r.users.FindByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session user: %w", err)
	}
	return user.Identity(), nil
}

var _ rbac.SessionResolver = (*SessionResolver)(nil)
