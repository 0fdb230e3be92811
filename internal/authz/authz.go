// Package authz is the single authorization decision point for Verity.
//
// All facts are resolved by the caller before the decision is made: the
// caller's membership comes from the database, the resource's owning
// organization comes from the resource chain (interview -> study -> org).
// Nothing in this package reads request input, and nothing here performs I/O.
package authz

import (
	"crypto/subtle"

	"github.com/google/uuid"
)

// Role is the closed set of caller roles.
type Role string

const (
	RoleOwner             Role = "owner"
	RoleAdmin             Role = "admin"
	RoleMember            Role = "member"
	RoleSuperAdmin        Role = "super_admin"
	RolePublicTokenBearer Role = "public_token_bearer"
)

// Action names an operation being authorized.
type Action string

const (
	ActionReadOrg       Action = "read_org"
	ActionManageUsers   Action = "manage_users"
	ActionManageStudies Action = "manage_studies"
	ActionReadArtifact  Action = "read_artifact"
	ActionReadInterview Action = "read_interview"
	ActionComplete      Action = "complete_interview"
)

// Caller is an already-authenticated principal.
//
// For tenant members OrgID is the membership resolved server-side from the
// caller's verified identity. For public token bearers only Token is set.
type Caller struct {
	Role       Role
	OrgID      uuid.UUID
	SuperAdmin bool

	// Token is the access token presented by a public caller.
	Token string
}

// Resource carries the server-resolved facts about the target.
type Resource struct {
	// OrgID is the owning organization, resolved from the resource itself.
	OrgID uuid.UUID

	// Token and Status describe an interview targeted by a public caller.
	Token     string
	Status    string
	Expired   bool
	Completed bool
}

// Branch identifies which rule produced a decision, for audit logging.
type Branch string

const (
	BranchSuperAdmin    Branch = "super_admin"
	BranchSameOrg       Branch = "same_org"
	BranchOrgMismatch   Branch = "org_mismatch"
	BranchRoleTooLow    Branch = "role_too_low"
	BranchTokenMatch    Branch = "token_match"
	BranchTokenMismatch Branch = "token_mismatch"
	BranchTokenState    Branch = "token_state"
	BranchNoRule        Branch = "no_rule"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Branch  Branch
	Reason  string
}

func allow(b Branch) Decision {
	return Decision{Allowed: true, Branch: b}
}

func deny(b Branch, reason string) Decision {
	return Decision{Allowed: false, Branch: b, Reason: reason}
}

// Authorize answers whether caller may perform action on resource.
func Authorize(caller Caller, action Action, resource Resource) Decision {
	if caller.Role == RolePublicTokenBearer {
		return authorizeTokenBearer(caller, action, resource)
	}
	return authorizeTenantMember(caller, action, resource)
}

func authorizeTenantMember(caller Caller, action Action, resource Resource) Decision {
	if caller.SuperAdmin || caller.Role == RoleSuperAdmin {
		return allow(BranchSuperAdmin)
	}

	if caller.OrgID == uuid.Nil || caller.OrgID != resource.OrgID {
		return deny(BranchOrgMismatch, "caller's organization does not own this resource")
	}

	if action == ActionManageUsers && caller.Role != RoleOwner && caller.Role != RoleAdmin {
		return deny(BranchRoleTooLow, "owner or admin role required")
	}

	return allow(BranchSameOrg)
}

func authorizeTokenBearer(caller Caller, action Action, resource Resource) Decision {
	// Constant-time comparison: the token is the sole capability.
	if len(caller.Token) == 0 ||
		subtle.ConstantTimeCompare([]byte(caller.Token), []byte(resource.Token)) != 1 {
		return deny(BranchTokenMismatch, "access token does not match")
	}

	switch action {
	case ActionReadInterview:
		if resource.Completed || resource.Expired {
			return deny(BranchTokenState, "interview is no longer accessible")
		}
		return allow(BranchTokenMatch)
	case ActionComplete:
		// A completed interview still authorizes the bearer so a retry can
		// be answered as an idempotent success rather than an error.
		return allow(BranchTokenMatch)
	default:
		return deny(BranchNoRule, "token bearers may not perform this action")
	}
}
