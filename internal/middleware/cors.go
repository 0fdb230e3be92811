package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// PublicCORS wraps the public interview endpoints for cross-origin calls
// from the interview engine's frontend. The endpoints carry their own
// capability (the access token in the path), so origins are not
// restricted; no cookies or auth headers are involved.
func PublicCORS(next http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	})
	return c.Handler(next)
}
