package server

import (
	"context"
	"net/http"
	"strings"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyUserID stores the authenticated user ID
	ContextKeyUserID ContextKey = "user_id"
	// ContextKeyEmail stores the authenticated email claim
	ContextKeyEmail ContextKey = "email"
	// ContextKeyClaims stores the full verified claims
	ContextKeyClaims ContextKey = "claims"
)

// RequireAuth validates the Bearer session token on protected routes and
// injects the verified claims into the request context. A missing token
// is 401; a token that fails verification is 403. Verification is pure -
// no store lookup happens here.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawToken, ok := bearerToken(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication token required"})
			return
		}

		claims, err := s.services.Tokens.Verify(rawToken)
		if err != nil {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "invalid or expired token"})
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyUserID, claims.UserID)
		ctx = context.WithValue(ctx, ContextKeyEmail, claims.Email)
		ctx = context.WithValue(ctx, ContextKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// authenticatedUser returns the subject injected by RequireAuth.
func authenticatedUser(r *http.Request) (userID string, ok bool) {
	userID, ok = r.Context().Value(ContextKeyUserID).(string)
	return userID, ok && userID != ""
}
