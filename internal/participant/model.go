package participant

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a registered interviewee identity. Participants are
// global, not tenant-scoped: the same human may complete interviews for
// many organizations, arriving from many platforms.
//
// PlatformIdentities maps a platform source ("prolific") to the external
// participant identifier that platform uses for this person. The map is
// fed by the claim flow and enables dedup of the same human across
// platforms later on.
type Participant struct {
	ID                 uuid.UUID         `json:"id"`
	UID                string            `json:"uid"` // identity provider subject
	Email              string            `json:"email"`
	PlatformIdentities map[string]string `json:"platform_identities"`
	CreatedAt          time.Time         `json:"created_at"`
}
