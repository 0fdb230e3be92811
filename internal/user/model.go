package user

import (
	"time"

	"github.com/google/uuid"

	"github.com/tinyteamco/verity-sub000/internal/authz"
)

// User is a researcher account tied to an identity-provider uid and holding
// membership in exactly one organization. Authorization decisions always go
// through this record: the org and role are looked up server-side from the
// verified uid, never taken from the request.
type User struct {
	ID        uuid.UUID `json:"id"`
	UID       string    `json:"uid"` // identity provider subject
	Email     string    `json:"email"`
	Role      string    `json:"role"` // owner, admin, member
	OrgID     uuid.UUID `json:"org_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership roles.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// ValidRole reports whether r is a recognized membership role.
func ValidRole(r string) bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleMember
}

// AuthzRole maps a stored membership role onto the kernel's role set.
func (u *User) AuthzRole() authz.Role {
	switch u.Role {
	case RoleOwner:
		return authz.RoleOwner
	case RoleAdmin:
		return authz.RoleAdmin
	default:
		return authz.RoleMember
	}
}

// Caller builds the kernel caller for this membership.
func (u *User) Caller(superAdmin bool) authz.Caller {
	return authz.Caller{
		Role:       u.AuthzRole(),
		OrgID:      u.OrgID,
		SuperAdmin: superAdmin,
	}
}
