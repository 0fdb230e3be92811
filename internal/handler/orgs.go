package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/tinyteamco/verity-sub000/internal/authz"
	"github.com/tinyteamco/verity-sub000/internal/middleware"
	"github.com/tinyteamco/verity-sub000/internal/org"
	"github.com/tinyteamco/verity-sub000/internal/user"
)

// OrgsHandler handles organization operations.
type OrgsHandler struct {
	orgs  *org.Manager
	users *user.Manager
}

// NewOrgsHandler creates a new orgs handler.
func NewOrgsHandler(orgs *org.Manager, users *user.Manager) *OrgsHandler {
	return &OrgsHandler{orgs: orgs, users: users}
}

// orgResponse is the JSON response for an organization.
type orgResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toOrgResponse(o *org.Org) orgResponse {
	return orgResponse{
		ID:          o.ID.String(),
		Name:        o.Name,
		DisplayName: o.DisplayName,
		CreatedAt:   o.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:   o.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// createOrgRequest is the JSON request for creating an organization.
// The owner fields bootstrap the first researcher account in one call.
type createOrgRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	OwnerUID    string `json:"owner_uid,omitempty"`
	OwnerEmail  string `json:"owner_email,omitempty"`
}

// Create handles POST /orgs. Super admin only.
func (h *OrgsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, found := middleware.GetClaims(r.Context())
	if !found || !claims.SuperAdmin {
		writeError(w, http.StatusForbidden, "super admin access required")
		return
	}

	var req createOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	o, err := h.orgs.Create(r.Context(), req.Name, req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, org.ErrInvalidName):
			writeError(w, http.StatusBadRequest, "name must be a valid slug")
		case errors.Is(err, org.ErrInvalidDisplayName):
			writeError(w, http.StatusBadRequest, "display name is required")
		case errors.Is(err, org.ErrNameTaken):
			writeError(w, http.StatusConflict, "organization name already taken")
		default:
			log.Printf("failed to create organization: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to create organization")
		}
		return
	}

	if req.OwnerUID != "" {
		if _, err := h.users.Create(r.Context(), req.OwnerUID, req.OwnerEmail, user.RoleOwner, o.ID); err != nil {
			log.Printf("failed to create owner account for org %s: %v", o.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to create owner account")
			return
		}
	}

	writeJSON(w, http.StatusCreated, toOrgResponse(o))
}

// GetCurrent handles GET /orgs/current
func (h *OrgsHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	u, claims, ok := resolveMembership(w, r, h.users)
	if !ok {
		return
	}

	decision := authz.Authorize(u.Caller(claims.SuperAdmin), authz.ActionReadOrg, authz.Resource{OrgID: u.OrgID})
	if !decision.Allowed {
		log.Printf("org read denied for %s: branch=%s", u.UID, decision.Branch)
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	o, err := h.orgs.GetByID(r.Context(), u.OrgID)
	if err != nil {
		log.Printf("failed to get organization %s: %v", u.OrgID, err)
		writeError(w, http.StatusInternalServerError, "failed to get organization")
		return
	}

	writeJSON(w, http.StatusOK, toOrgResponse(o))
}

// userResponse is the JSON response for a researcher account.
type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ListUsers handles GET /orgs/current/users. Owner or admin only.
func (h *OrgsHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	u, claims, ok := resolveMembership(w, r, h.users)
	if !ok {
		return
	}

	decision := authz.Authorize(u.Caller(claims.SuperAdmin), authz.ActionManageUsers, authz.Resource{OrgID: u.OrgID})
	if !decision.Allowed {
		log.Printf("user list denied for %s: branch=%s", u.UID, decision.Branch)
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	users, err := h.users.ListByOrg(r.Context(), u.OrgID)
	if err != nil {
		log.Printf("failed to list users for org %s: %v", u.OrgID, err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	response := make([]userResponse, len(users))
	for i, member := range users {
		response[i] = userResponse{ID: member.ID.String(), Email: member.Email, Role: member.Role}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": response,
		"count": len(response),
	})
}

// createUserRequest is the JSON request for adding a researcher account.
type createUserRequest struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// CreateUser handles POST /orgs/current/users. Owner or admin only.
func (h *OrgsHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	u, claims, ok := resolveMembership(w, r, h.users)
	if !ok {
		return
	}

	decision := authz.Authorize(u.Caller(claims.SuperAdmin), authz.ActionManageUsers, authz.Resource{OrgID: u.OrgID})
	if !decision.Allowed {
		log.Printf("user create denied for %s: branch=%s", u.UID, decision.Branch)
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	created, err := h.users.Create(r.Context(), req.UID, req.Email, req.Role, u.OrgID)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrInvalidUID), errors.Is(err, user.ErrInvalidEmail), errors.Is(err, user.ErrInvalidRole):
			writeError(w, http.StatusBadRequest, "uid, email and a valid role are required")
		case errors.Is(err, user.ErrUIDTaken):
			writeError(w, http.StatusConflict, "account already exists")
		default:
			log.Printf("failed to create user: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{ID: created.ID.String(), Email: created.Email, Role: created.Role})
}
