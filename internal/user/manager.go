package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Domain errors returned by the Manager.
var (
	ErrNoMembership = errors.New("user is not associated with any organization")
	ErrInvalidUID   = errors.New("identity uid is required")
	ErrInvalidEmail = errors.New("email is required")
	ErrInvalidRole  = errors.New("role must be owner, admin, or member")
	ErrUIDTaken     = errors.New("identity is already associated with an organization")
)

const pgUniqueViolation = "23505"

// Manager handles business logic for researcher accounts.
type Manager struct {
	ds *Datastore
}

// NewManager creates a new user manager.
func NewManager(ds *Datastore) *Manager {
	return &Manager{ds: ds}
}

// Resolve looks up the membership for a verified identity uid.
// Every tenant-scoped request goes through this before any kernel decision.
func (m *Manager) Resolve(ctx context.Context, uid string) (*User, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, ErrNoMembership
	}

	u, err := m.ds.GetByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoMembership
		}
		return nil, fmt.Errorf("failed to resolve membership: %w", err)
	}

	return u, nil
}

// Create adds a researcher account to an organization.
// A uid may hold membership in at most one organization.
func (m *Manager) Create(ctx context.Context, uid, email, role string, orgID uuid.UUID) (*User, error) {
	uid = strings.TrimSpace(uid)
	email = strings.TrimSpace(email)

	if uid == "" {
		return nil, ErrInvalidUID
	}
	if email == "" {
		return nil, ErrInvalidEmail
	}
	if !ValidRole(role) {
		return nil, ErrInvalidRole
	}

	u, err := m.ds.Create(ctx, uid, email, role, orgID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrUIDTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return u, nil
}

// ListByOrg retrieves the researcher accounts of an organization.
func (m *Manager) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*User, error) {
	users, err := m.ds.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}
