// Package middleware provides HTTP middleware for Verity.
package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/tinyteamco/verity-sub000/internal/identity"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// claimsContextKey is the context key for the verified identity claims.
const claimsContextKey contextKey = "identity_claims"

// GetClaims retrieves the verified identity claims from the request
// context. Returns the claims and true if found.
func GetClaims(ctx context.Context) (*identity.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*identity.Claims)
	return claims, ok
}

// WithClaims returns a context carrying verified identity claims.
func WithClaims(ctx context.Context, claims *identity.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// RequireIdentity returns middleware that authenticates requests against
// the identity provider and restricts them to one identity realm.
//
// Flow:
//  1. Extract bearer token from the Authorization header
//  2. Verify the token and decode its claims
//  3. Reject callers from the wrong realm
//  4. Attach claims to the request context and continue
//
// Error responses:
//   - 401 Unauthorized: missing/malformed header or invalid token
//   - 403 Forbidden: valid identity in the wrong realm
func RequireIdentity(verifier identity.Verifier, realm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := identity.ExtractBearerToken(r)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				// Invalid token; no detail crosses the boundary.
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			if claims.Realm != realm {
				writeAuthError(w, http.StatusForbidden, "forbidden")
				return
			}

			ctx := WithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"message": message},
	})
	if err != nil {
		log.Printf("failed to write auth error response: %v", err)
	}
}
