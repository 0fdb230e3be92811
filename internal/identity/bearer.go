package identity

import (
	"errors"
	"net/http"
	"strings"
)

// Sentinel errors for token extraction failures. Useful for logging;
// never exposed in responses.
var (
	ErrMissingAuthHeader = errors.New("missing authorization header")
	ErrInvalidAuthScheme = errors.New("invalid authorization scheme: expected Bearer")
	ErrEmptyToken        = errors.New("empty bearer token")
)

// ExtractBearerToken extracts the token from an
// "Authorization: Bearer <token>" header.
func ExtractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return "", ErrInvalidAuthScheme
	}

	token := strings.TrimPrefix(authHeader, prefix)
	if token == "" {
		return "", ErrEmptyToken
	}

	return token, nil
}
