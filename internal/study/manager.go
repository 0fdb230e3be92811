package study

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
	ErrNotFound      = errors.New("study not found")
	ErrGuideNotFound = errors.New("interview guide not found")
	ErrInvalidTitle  = errors.New("study title is required")
	ErrInvalidSlug   = errors.New("study slug must be a 3-63 character lowercase slug")
	ErrSlugTaken     = errors.New("study slug is already in use")
)

const pgUniqueViolation = "23505"

// Manager handles business logic for studies and interview guides.
type Manager struct {
	ds *Datastore
}

// NewManager creates a new study manager.
func NewManager(ds *Datastore) *Manager {
	return &Manager{ds: ds}
}

// Create creates a new study in the given organization.
// The slug is validated here and its global uniqueness is enforced by the
// database; a violation surfaces as ErrSlugTaken.
func (m *Manager) Create(ctx context.Context, orgID uuid.UUID, title, description, slug string) (*Study, error) {
	title = strings.TrimSpace(title)
	slug = strings.TrimSpace(slug)

	if title == "" {
		return nil, ErrInvalidTitle
	}
	if !ValidSlug(slug) {
		return nil, ErrInvalidSlug
	}

	s, err := m.ds.Create(ctx, orgID, title, description, slug)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("failed to create study: %w", err)
	}

	return s, nil
}

// GetByID retrieves a study by ID.
func (m *Manager) GetByID(ctx context.Context, id uuid.UUID) (*Study, error) {
	s, err := m.ds.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get study: %w", err)
	}
	return s, nil
}

// GetBySlug retrieves a study by its public slug.
func (m *Manager) GetBySlug(ctx context.Context, slug string) (*Study, error) {
	s, err := m.ds.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get study by slug: %w", err)
	}
	return s, nil
}

// ListByOrg retrieves the studies of an organization.
func (m *Manager) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*Study, error) {
	studies, err := m.ds.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list studies: %w", err)
	}
	return studies, nil
}

// Update modifies a study's title and description.
func (m *Manager) Update(ctx context.Context, id uuid.UUID, title, description string) (*Study, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidTitle
	}

	affected, err := m.ds.Update(ctx, id, title, description)
	if err != nil {
		return nil, fmt.Errorf("failed to update study: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	return m.GetByID(ctx, id)
}

// Delete removes a study.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	affected, err := m.ds.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete study: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertGuide creates or replaces a study's interview guide.
func (m *Manager) UpsertGuide(ctx context.Context, studyID uuid.UUID, contentMD string) (*Guide, error) {
	g, err := m.ds.UpsertGuide(ctx, studyID, contentMD)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert guide: %w", err)
	}
	return g, nil
}

// GetGuide retrieves a study's interview guide.
func (m *Manager) GetGuide(ctx context.Context, studyID uuid.UUID) (*Guide, error) {
	g, err := m.ds.GetGuide(ctx, studyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGuideNotFound
		}
		return nil, fmt.Errorf("failed to get guide: %w", err)
	}
	return g, nil
}
