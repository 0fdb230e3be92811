package interview

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Interview statuses. The machine has exactly one transition:
// pending -> completed. There is no failed or in-progress state; an
// interview the engine never completes simply stays pending until its
// expiry window passes and the gateway stops serving it.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Interview is a single interview session for a study.
//
// The access token is the only public capability: possession of it
// authorizes the narrow pending-interview actions (engine read, completion)
// and nothing else. Researcher access goes through membership checks, never
// through the token.
type Interview struct {
	ID          uuid.UUID  `json:"id"`
	StudyID     uuid.UUID  `json:"study_id"`
	AccessToken string     `json:"access_token"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ExpiresAt bounds how long an abandoned pending interview stays
	// servable. It is never consulted once the interview is completed.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// ExternalParticipantID is the identifier the referring platform
	// attached to the start link. Together with StudyID it forms the
	// deduplication key; NULL means every access is a fresh session.
	ExternalParticipantID *string `json:"external_participant_id,omitempty"`
	PlatformSource        *string `json:"platform_source,omitempty"`

	// ParticipantID links a completed interview to a registered
	// participant; set only through the claim flow.
	ParticipantID *uuid.UUID `json:"participant_id,omitempty"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`

	// Artifact refs are opaque storage locators. They are stored and
	// passed through to the artifact proxy, never validated or opened here.
	TranscriptRef *string `json:"transcript_ref,omitempty"`
	RecordingRef  *string `json:"recording_ref,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

// Expired reports whether a pending interview's reclamation window has
// passed. Completed interviews never expire.
func (iv *Interview) Expired(now time.Time) bool {
	if iv.Status != StatusPending || iv.ExpiresAt == nil {
		return false
	}
	return now.After(*iv.ExpiresAt)
}

// PlatformSource derives the platform namespace from an external
// participant identifier: the lowercased prefix before the first
// underscore ("prolific_42" -> "prolific"). Identifiers without a
// namespace prefix yield "".
func PlatformSource(externalID string) string {
	i := strings.IndexByte(externalID, '_')
	if i <= 0 {
		return ""
	}
	return strings.ToLower(externalID[:i])
}
