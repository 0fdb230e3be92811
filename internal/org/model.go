package org

import (
	"time"

	"github.com/google/uuid"
)

// Org represents an organization in Verity.
// Organizations are the tenant boundary: studies and researcher accounts
// belong to exactly one organization, and authorization is decided against
// the owning organization of every resource.
type Org struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"` // URL-safe slug, globally unique
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ValidSlug reports whether s is a usable organization slug:
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
