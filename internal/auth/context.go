// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// AuthContext holds the authenticated identity information extracted from a request.
// This is populated by the middleware and can be retrieved from context in handlers.
type AuthContext struct {
	UserID   int64    // numeric ID of the authenticated user
	Username string   // login name
	Roles    []string // roles assigned to this user
}

// Can reports whether the user holds the capability. A nil AuthContext
// (anonymous request) holds no capabilities.
func (a *AuthContext) Can(c Capability) bool {
	if a == nil {
		return false
	}
	return RolesCan(a.Roles, c)
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	val := ctx.Value(authContextKey{})
	if val == nil {
		return nil
	}
	auth, ok := val.(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}
