package user

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Datastore handles persistence operations for researcher accounts.
// Raw SQL and raw errors only; translation lives in the Manager.
type Datastore struct {
	db *sql.DB
}

// NewDatastore creates a new user datastore.
func NewDatastore(db *sql.DB) *Datastore {
	return &Datastore{db: db}
}

// Create inserts a new researcher account.
func (ds *Datastore) Create(ctx context.Context, uid, email, role string, orgID uuid.UUID) (*User, error) {
	u := &User{
		ID:        uuid.New(),
		UID:       uid,
		Email:     email,
		Role:      role,
		OrgID:     orgID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	query := `
		INSERT INTO users (id, uid, email, role, organization_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := ds.db.QueryRowContext(ctx, query,
		u.ID, u.UID, u.Email, u.Role, u.OrgID, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return u, nil
}

// GetByUID retrieves the researcher account for an identity-provider uid.
// Returns sql.ErrNoRows if the uid holds no membership.
func (ds *Datastore) GetByUID(ctx context.Context, uid string) (*User, error) {
	query := `
		SELECT id, uid, email, role, organization_id, created_at, updated_at
		FROM users
		WHERE uid = $1`

	u := &User{}
	err := ds.db.QueryRowContext(ctx, query, uid).Scan(
		&u.ID, &u.UID, &u.Email, &u.Role, &u.OrgID, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return u, nil
}

// ListByOrg retrieves all researcher accounts in an organization.
func (ds *Datastore) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*User, error) {
	query := `
		SELECT id, uid, email, role, organization_id, created_at, updated_at
		FROM users
		WHERE organization_id = $1
		ORDER BY created_at ASC`

	rows, err := ds.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var users []*User
	for rows.Next() {
		u := &User{}
		if err := rows.Scan(
			&u.ID, &u.UID, &u.Email, &u.Role, &u.OrgID, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}
