// ABOUTME: HTTP middleware resolving the session cookie or bearer token to a user
// ABOUTME: Anonymous requests pass through; RequireCapability gates privileged routes

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/2389/coven-verified/internal/store"
)

// SessionCookieName is the cookie carrying the session JWT.
const SessionCookieName = "coven_session"

// UserLookup is the subset of the store the middleware needs.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*store.User, error)
	ListRoles(ctx context.Context, userID int64) ([]store.RoleName, error)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// tokenFromRequest prefers the session cookie and falls back to a bearer header.
func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	token, _ := extractBearerToken(r.Header.Get("Authorization"))
	return token
}

// Resolve builds the AuthContext for a user ID.
func Resolve(ctx context.Context, users UserLookup, userID int64) (*AuthContext, error) {
	user, err := users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	roleNames, err := users.ListRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	roles := make([]string, len(roleNames))
	for i, rn := range roleNames {
		roles[i] = string(rn)
	}
	return &AuthContext{UserID: user.ID, Username: user.Username, Roles: roles}, nil
}

// Middleware attaches an AuthContext when the request carries a valid session.
// Requests without one, or with an invalid one, continue as anonymous.
func Middleware(users UserLookup, verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			authCtx, err := Resolve(r.Context(), users, userID)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// RequireCapability rejects requests whose user lacks the capability.
// Must be used after Middleware.
func RequireCapability(c Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := FromContext(r.Context())
			if authCtx == nil {
				http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
				return
			}
			if !authCtx.Can(c) {
				http.Error(w, `{"error":"`+string(c)+` capability required"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
