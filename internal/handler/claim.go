package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/tinyteamco/verity-sub000/internal/interview"
	"github.com/tinyteamco/verity-sub000/internal/middleware"
	"github.com/tinyteamco/verity-sub000/internal/participant"
)

// ClaimHandler lets a signed-in participant attach a completed interview
// to their account.
type ClaimHandler struct {
	participants *participant.Manager
}

// NewClaimHandler creates a new claim handler.
func NewClaimHandler(participants *participant.Manager) *ClaimHandler {
	return &ClaimHandler{participants: participants}
}

// Claim handles POST /interview/{accessToken}/claim
func (h *ClaimHandler) Claim(w http.ResponseWriter, r *http.Request) {
	claims, found := middleware.GetClaims(r.Context())
	if !found {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	token := r.PathValue("accessToken")

	result, err := h.participants.Claim(r.Context(), claims.UID(), claims.Email, token)
	if err != nil {
		switch {
		case errors.Is(err, interview.ErrNotFound):
			writeError(w, http.StatusNotFound, "interview not found")
		case errors.Is(err, interview.ErrNotCompleted):
			writeError(w, http.StatusBadRequest, "interview is not completed")
		case errors.Is(err, interview.ErrClaimed):
			writeError(w, http.StatusConflict, "interview already claimed")
		default:
			log.Printf("failed to claim interview: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to claim interview")
		}
		return
	}

	status := "claimed"
	if result.AlreadyClaimed {
		status = "already_claimed"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":         status,
		"interview_id":   result.Interview.ID.String(),
		"participant_id": result.Participant.ID.String(),
	})
}
