/*
Package auth provides staff authentication for the clinic API: bcrypt
password hashing, signed session tokens, and the SessionContext that
identifies the acting user and location on every request.

Session state is an explicit SessionContext carried in a signed token and
threaded through context.Context; nothing in the engine reads ambient
session state.
*/
package auth

import (
	"context"

	"github.com/brightsmile/clinic-engine/clinic"
)

// SessionContext identifies the acting user and their working location for
// one request.
type SessionContext struct {
	UserID     string
	Username   string
	Role       string
	LocationID clinic.LocationID
}

// IsAdmin reports whether the session may perform administrative operations
// (rule management, point resets, user creation).
func (s SessionContext) IsAdmin() bool { return s.Role == clinic.RoleAdmin }

type sessionKey struct{}

// WithSession returns a context carrying the session.
func WithSession(ctx context.Context, s SessionContext) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext extracts the session placed by the authentication middleware.
func FromContext(ctx context.Context) (SessionContext, bool) {
	s, ok := ctx.Value(sessionKey{}).(SessionContext)
	return s, ok
}
