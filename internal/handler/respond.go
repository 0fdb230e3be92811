// Package handler implements Verity's HTTP surface: the authenticated
// researcher API, the public interview endpoints consumed by the external
// interview engine, and the tenant-checked artifact proxy.
package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/tinyteamco/verity-sub000/internal/identity"
	"github.com/tinyteamco/verity-sub000/internal/middleware"
	"github.com/tinyteamco/verity-sub000/internal/user"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

// writeError writes a JSON error response. Messages are generic by
// design; internal detail stays in the server log.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"message": message,
		},
	})
}

// writePage writes a minimal terminal HTML page. Used by the link
// resolver where the audience is a participant's browser, not an API
// client.
func writePage(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := w.Write([]byte(
		"<!doctype html><html><head><title>" + title + "</title></head><body><h1>" +
			title + "</h1><p>" + body + "</p></body></html>"))
	if err != nil {
		log.Printf("failed to write terminal page: %v", err)
	}
}

// resolveMembership pulls the verified claims off the request context and
// resolves the caller's organization membership server-side. On failure
// the error response is already written and ok is false.
//
// Membership is never read from headers, query parameters, or the body;
// the uid from the verified token is the only input.
func resolveMembership(w http.ResponseWriter, r *http.Request, users *user.Manager) (*user.User, *identity.Claims, bool) {
	claims, found := middleware.GetClaims(r.Context())
	if !found {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return nil, nil, false
	}

	u, err := users.Resolve(r.Context(), claims.UID())
	if err != nil {
		// Includes user.ErrNoMembership; same response either way so a
		// caller cannot probe which uids exist.
		writeError(w, http.StatusForbidden, "not associated with any organization")
		return nil, nil, false
	}

	return u, claims, true
}
