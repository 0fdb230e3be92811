package participant

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Datastore handles persistence operations for participants.
type Datastore struct {
	db *sql.DB
}

// NewDatastore creates a new participant datastore.
func NewDatastore(db *sql.DB) *Datastore {
	return &Datastore{db: db}
}

const participantColumns = `id, uid, email, platform_identities, created_at`

func scanParticipant(scan func(dest ...any) error) (*Participant, error) {
	p := &Participant{}
	var identities []byte
	if err := scan(&p.ID, &p.UID, &p.Email, &identities, &p.CreatedAt); err != nil {
		return nil, err
	}
	if len(identities) > 0 {
		if err := json.Unmarshal(identities, &p.PlatformIdentities); err != nil {
			return nil, fmt.Errorf("failed to decode platform identities: %w", err)
		}
	}
	if p.PlatformIdentities == nil {
		p.PlatformIdentities = map[string]string{}
	}
	return p, nil
}

// GetOrCreate atomically fetches or creates the participant for an
// identity uid. The upsert makes first-claim races converge on a single
// row; the conflict branch refreshes the email from the identity provider.
func (ds *Datastore) GetOrCreate(ctx context.Context, uid, email string) (*Participant, error) {
	query := `
		INSERT INTO participants (id, uid, email, platform_identities, created_at)
		VALUES ($1, $2, $3, '{}'::jsonb, NOW())
		ON CONFLICT (uid) DO UPDATE SET email = EXCLUDED.email
		RETURNING ` + participantColumns

	row := ds.db.QueryRowContext(ctx, query, uuid.New(), uid, email)
	return scanParticipant(row.Scan)
}

// GetByUID retrieves a participant by identity uid.
// Returns sql.ErrNoRows if none exists.
func (ds *Datastore) GetByUID(ctx context.Context, uid string) (*Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE uid = $1`
	row := ds.db.QueryRowContext(ctx, query, uid)
	return scanParticipant(row.Scan)
}

// MergeIdentity records that platform source knows this participant by
// externalID. Merging the same pairing again is a no-op at the JSON level.
func (ds *Datastore) MergeIdentity(ctx context.Context, id uuid.UUID, source, externalID string) error {
	query := `
		UPDATE participants
		SET platform_identities = platform_identities || jsonb_build_object($2::text, $3::text)
		WHERE id = $1`

	_, err := ds.db.ExecContext(ctx, query, id, source, externalID)
	return err
}
