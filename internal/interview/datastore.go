package interview

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Datastore handles persistence operations for interviews.
//
// The two invariant-bearing operations live here as single atomic
// statements: FindOrCreate rides the partial unique index on
// (study_id, external_participant_id), and Complete is a conditional
// update guarded by status = 'pending'. Application-level
// check-then-create would race under concurrent load; the database is the
// arbiter.
type Datastore struct {
	db *sql.DB
}

// NewDatastore creates a new interview datastore.
func NewDatastore(db *sql.DB) *Datastore {
	return &Datastore{db: db}
}

const interviewColumns = `id, study_id, access_token, status, created_at, completed_at, expires_at,
		external_participant_id, platform_source, participant_id, claimed_at,
		transcript_ref, recording_ref, notes`

func scanInterview(scan func(dest ...any) error) (*Interview, error) {
	iv := &Interview{}
	err := scan(
		&iv.ID, &iv.StudyID, &iv.AccessToken, &iv.Status, &iv.CreatedAt, &iv.CompletedAt,
		&iv.ExpiresAt, &iv.ExternalParticipantID, &iv.PlatformSource, &iv.ParticipantID,
		&iv.ClaimedAt, &iv.TranscriptRef, &iv.RecordingRef, &iv.Notes,
	)
	if err != nil {
		return nil, err
	}
	return iv, nil
}

// Create inserts a new pending interview with no deduplication key.
// Used for anonymous starts and researcher-generated links, where every
// call is a fresh session.
func (ds *Datastore) Create(ctx context.Context, studyID uuid.UUID, token string, expiresAt time.Time) (*Interview, error) {
	query := `
		INSERT INTO interviews (id, study_id, access_token, status, created_at, expires_at)
		VALUES ($1, $2, $3, 'pending', NOW(), $4)
		RETURNING ` + interviewColumns

	row := ds.db.QueryRowContext(ctx, query, uuid.New(), studyID, token, expiresAt)
	return scanInterview(row.Scan)
}

// FindOrCreate atomically inserts a pending interview for the dedup key
// (studyID, externalID) or returns the existing row. The boolean reports
// whether a new row was created.
//
// The insert targets the partial unique index directly: when a concurrent
// request wins the race, ON CONFLICT DO NOTHING yields no row and the
// follow-up select observes the winner. At most one interview ever exists
// per key.
func (ds *Datastore) FindOrCreate(ctx context.Context, studyID uuid.UUID, externalID, source, token string, expiresAt time.Time) (*Interview, bool, error) {
	insert := `
		INSERT INTO interviews
			(id, study_id, access_token, status, created_at, expires_at,
			 external_participant_id, platform_source)
		VALUES ($1, $2, $3, 'pending', NOW(), $4, $5, NULLIF($6, ''))
		ON CONFLICT (study_id, external_participant_id)
			WHERE external_participant_id IS NOT NULL
			DO NOTHING
		RETURNING ` + interviewColumns

	row := ds.db.QueryRowContext(ctx, insert, uuid.New(), studyID, token, expiresAt, externalID, source)
	iv, err := scanInterview(row.Scan)
	if err == nil {
		return iv, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	// Conflict: another request holds this key. Fetch the winner.
	query := `
		SELECT ` + interviewColumns + `
		FROM interviews
		WHERE study_id = $1 AND external_participant_id = $2`

	row = ds.db.QueryRowContext(ctx, query, studyID, externalID)
	iv, err = scanInterview(row.Scan)
	if err != nil {
		return nil, false, err
	}
	return iv, false, nil
}

// GetByToken retrieves an interview by its access token.
// Returns sql.ErrNoRows if the token is unknown.
func (ds *Datastore) GetByToken(ctx context.Context, token string) (*Interview, error) {
	query := `SELECT ` + interviewColumns + ` FROM interviews WHERE access_token = $1`
	row := ds.db.QueryRowContext(ctx, query, token)
	return scanInterview(row.Scan)
}

// GetByID retrieves an interview by ID.
func (ds *Datastore) GetByID(ctx context.Context, id uuid.UUID) (*Interview, error) {
	query := `SELECT ` + interviewColumns + ` FROM interviews WHERE id = $1`
	row := ds.db.QueryRowContext(ctx, query, id)
	return scanInterview(row.Scan)
}

// ListByStudy retrieves all interviews for a study, newest first.
func (ds *Datastore) ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*Interview, error) {
	query := `SELECT ` + interviewColumns + ` FROM interviews WHERE study_id = $1 ORDER BY created_at DESC`

	rows, err := ds.db.QueryContext(ctx, query, studyID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var interviews []*Interview
	for rows.Next() {
		iv, err := scanInterview(rows.Scan)
		if err != nil {
			return nil, err
		}
		interviews = append(interviews, iv)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return interviews, nil
}

// Complete applies the pending -> completed transition as one conditional
// update. Returns sql.ErrNoRows when no pending row matched the token,
// which the Manager resolves into "unknown token" or "already completed".
//
// First-write-wins: a row that is already completed is never touched, so a
// slow retry can never clobber the refs recorded by the first completion.
func (ds *Datastore) Complete(ctx context.Context, token string, transcriptRef, recordingRef, notes *string) (*Interview, error) {
	query := `
		UPDATE interviews
		SET status = 'completed', completed_at = NOW(),
			transcript_ref = $2, recording_ref = $3, notes = $4
		WHERE access_token = $1 AND status = 'pending'
		RETURNING ` + interviewColumns

	row := ds.db.QueryRowContext(ctx, query, token, transcriptRef, recordingRef, notes)
	return scanInterview(row.Scan)
}

// LinkParticipant records the claim of a completed interview by a
// participant. The update succeeds only when the interview is completed
// and not yet linked; 0 rows affected sends the Manager to disambiguate.
func (ds *Datastore) LinkParticipant(ctx context.Context, id, participantID uuid.UUID) (int64, error) {
	query := `
		UPDATE interviews
		SET participant_id = $2, claimed_at = NOW()
		WHERE id = $1 AND status = 'completed' AND participant_id IS NULL`

	result, err := ds.db.ExecContext(ctx, query, id, participantID)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
