package org

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Datastore handles persistence operations for organizations.
// It performs only database operations and returns raw errors.
// Business logic and error translation belong in the Manager.
type Datastore struct {
	db *sql.DB
}

// NewDatastore creates a new organization datastore.
func NewDatastore(db *sql.DB) *Datastore {
	return &Datastore{db: db}
}

// Create inserts a new organization.
// Returns the created org or the raw database error (unique violations
// included; the Manager translates those).
func (ds *Datastore) Create(ctx context.Context, name, displayName string) (*Org, error) {
	o := &Org{
		ID:          uuid.New(),
		Name:        name,
		DisplayName: displayName,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	query := `
		INSERT INTO organizations (id, name, display_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := ds.db.QueryRowContext(ctx, query,
		o.ID, o.Name, o.DisplayName, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return o, nil
}

// GetByID retrieves an organization by its ID.
// Returns sql.ErrNoRows if not found.
func (ds *Datastore) GetByID(ctx context.Context, id uuid.UUID) (*Org, error) {
	query := `
		SELECT id, name, display_name, created_at, updated_at
		FROM organizations
		WHERE id = $1`

	o := &Org{}
	err := ds.db.QueryRowContext(ctx, query, id).Scan(
		&o.ID, &o.Name, &o.DisplayName, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return o, nil
}

// List retrieves all organizations ordered by creation time.
func (ds *Datastore) List(ctx context.Context, limit, offset int) ([]*Org, error) {
	query := `
		SELECT id, name, display_name, created_at, updated_at
		FROM organizations
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := ds.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var orgs []*Org
	for rows.Next() {
		o := &Org{}
		if err := rows.Scan(&o.ID, &o.Name, &o.DisplayName, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		orgs = append(orgs, o)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orgs, nil
}
