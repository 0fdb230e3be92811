package org

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
	ErrNotFound           = errors.New("organization not found")
	ErrInvalidName        = errors.New("organization name must be a 3-63 character lowercase slug")
	ErrInvalidDisplayName = errors.New("organization display name is required")
	ErrNameTaken          = errors.New("organization name is already in use")
)

// pgUniqueViolation is the Postgres error code for unique constraint violations.
const pgUniqueViolation = "23505"

// Manager handles business logic for organizations.
// It coordinates operations and translates datastore errors to domain errors.
type Manager struct {
	ds *Datastore
}

// NewManager creates a new organization manager.
func NewManager(ds *Datastore) *Manager {
	return &Manager{ds: ds}
}

// Create creates a new organization. Only super admins reach this path;
// the kernel decision happens at the handler.
func (m *Manager) Create(ctx context.Context, name, displayName string) (*Org, error) {
	name = strings.TrimSpace(name)
	displayName = strings.TrimSpace(displayName)

	if !ValidSlug(name) {
		return nil, ErrInvalidName
	}
	if displayName == "" {
		return nil, ErrInvalidDisplayName
	}

	o, err := m.ds.Create(ctx, name, displayName)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrNameTaken
		}
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	return o, nil
}

// GetByID retrieves an organization by ID.
func (m *Manager) GetByID(ctx context.Context, id uuid.UUID) (*Org, error) {
	o, err := m.ds.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return o, nil
}

// List retrieves organizations with pagination defaults applied.
func (m *Manager) List(ctx context.Context, limit, offset int) ([]*Org, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	orgs, err := m.ds.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return orgs, nil
}
