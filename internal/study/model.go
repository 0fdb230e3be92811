package study

import (
	"time"

	"github.com/google/uuid"
)

// Study is a research study owned by exactly one organization.
// The owning organization is immutable after creation. The slug is the
// public handle used in interview links; because those links carry no
// tenant context the slug is globally unique, not per-org.
type Study struct {
	ID          uuid.UUID `json:"id"`
	OrgID       uuid.UUID `json:"org_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Slug        string    `json:"slug"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Guide is the optional markdown interview guide for a study.
// At most one guide exists per study; writes are upserts.
type Guide struct {
	StudyID   uuid.UUID `json:"study_id"`
	ContentMD string    `json:"content_md"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidSlug reports whether s is a usable study slug:
// lowercase alphanumeric plus hyphen, 3-63 characters, no leading or
// trailing hyphen.
func ValidSlug(s string) bool {
	if len(s) < 3 || len(s) > 63 {
		return false
	}
	if s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' {
			continue
		}
		return false
	}
	return true
}
