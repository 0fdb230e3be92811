package study

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Datastore handles persistence operations for studies and guides.
// Raw SQL and raw errors only; translation lives in the Manager.
type Datastore struct {
	db *sql.DB
}

// NewDatastore creates a new study datastore.
func NewDatastore(db *sql.DB) *Datastore {
	return &Datastore{db: db}
}

// Create inserts a new study.
func (ds *Datastore) Create(ctx context.Context, orgID uuid.UUID, title, description, slug string) (*Study, error) {
	s := &Study{
		ID:          uuid.New(),
		OrgID:       orgID,
		Title:       title,
		Description: description,
		Slug:        slug,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	query := `
		INSERT INTO studies (id, organization_id, title, description, slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := ds.db.QueryRowContext(ctx, query,
		s.ID, s.OrgID, s.Title, s.Description, s.Slug, s.CreatedAt, s.UpdatedAt,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return s, nil
}

const studyColumns = `id, organization_id, title, description, slug, created_at, updated_at`

func scanStudy(row *sql.Row) (*Study, error) {
	s := &Study{}
	err := row.Scan(&s.ID, &s.OrgID, &s.Title, &s.Description, &s.Slug, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByID retrieves a study by ID. Returns sql.ErrNoRows if not found.
func (ds *Datastore) GetByID(ctx context.Context, id uuid.UUID) (*Study, error) {
	query := `SELECT ` + studyColumns + ` FROM studies WHERE id = $1`
	return scanStudy(ds.db.QueryRowContext(ctx, query, id))
}

// GetBySlug retrieves a study by its public slug.
// Returns sql.ErrNoRows if not found.
func (ds *Datastore) GetBySlug(ctx context.Context, slug string) (*Study, error) {
	query := `SELECT ` + studyColumns + ` FROM studies WHERE slug = $1`
	return scanStudy(ds.db.QueryRowContext(ctx, query, slug))
}

// ListByOrg retrieves all studies owned by an organization.
func (ds *Datastore) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*Study, error) {
	query := `SELECT ` + studyColumns + ` FROM studies WHERE organization_id = $1 ORDER BY created_at DESC`

	rows, err := ds.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var studies []*Study
	for rows.Next() {
		s := &Study{}
		if err := rows.Scan(
			&s.ID, &s.OrgID, &s.Title, &s.Description, &s.Slug, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		studies = append(studies, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return studies, nil
}

// Update modifies a study's title and description.
// The slug and owning organization are immutable by design; no UPDATE path
// for them exists. Returns rows affected.
func (ds *Datastore) Update(ctx context.Context, id uuid.UUID, title, description string) (int64, error) {
	query := `
		UPDATE studies
		SET title = $2, description = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := ds.db.ExecContext(ctx, query, id, title, description)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// Delete removes a study. Returns rows affected.
func (ds *Datastore) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := ds.db.ExecContext(ctx, `DELETE FROM studies WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// UpsertGuide creates or replaces the interview guide for a study.
func (ds *Datastore) UpsertGuide(ctx context.Context, studyID uuid.UUID, contentMD string) (*Guide, error) {
	query := `
		INSERT INTO interview_guides (study_id, content_md, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (study_id)
		DO UPDATE SET content_md = EXCLUDED.content_md, updated_at = NOW()
		RETURNING study_id, content_md, updated_at`

	g := &Guide{}
	err := ds.db.QueryRowContext(ctx, query, studyID, contentMD).Scan(
		&g.StudyID, &g.ContentMD, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return g, nil
}

// GetGuide retrieves the interview guide for a study.
// Returns sql.ErrNoRows if the study has no guide.
func (ds *Datastore) GetGuide(ctx context.Context, studyID uuid.UUID) (*Guide, error) {
	query := `SELECT study_id, content_md, updated_at FROM interview_guides WHERE study_id = $1`

	g := &Guide{}
	err := ds.db.QueryRowContext(ctx, query, studyID).Scan(&g.StudyID, &g.ContentMD, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return g, nil
}
