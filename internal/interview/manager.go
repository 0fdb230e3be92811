package interview

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Domain errors returned by the Manager.
var (
	ErrNotFound         = errors.New("interview not found")
	ErrAlreadyCompleted = errors.New("interview already completed")
	ErrNotCompleted     = errors.New("interview is not completed yet")
	ErrClaimed          = errors.New("interview already claimed by a different participant")
)

// DefaultTTL is the abandoned-session reclamation window for pending
// interviews. Completed interviews never expire; the window only bounds
// how long a never-completed link stays servable.
const DefaultTTL = 7 * 24 * time.Hour

// Manager implements the interview lifecycle on top of the Datastore's
// atomic operations, translating storage errors into domain errors.
type Manager struct {
	ds  *Datastore
	ttl time.Duration
}

// NewManager creates a new interview manager. A non-positive ttl falls
// back to DefaultTTL.
func NewManager(ds *Datastore, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{ds: ds, ttl: ttl}
}

// Start resolves a public link access into exactly one pending interview.
//
// With an external participant id the (study, id) pair is the dedup key:
// an existing pending interview is reused token and all, a completed one
// terminates the flow with ErrAlreadyCompleted, and a miss creates the row
// atomically. Without an id every access is a fresh session.
func (m *Manager) Start(ctx context.Context, studyID uuid.UUID, externalID string) (*Interview, error) {
	token, err := NewAccessToken()
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().Add(m.ttl)

	if externalID == "" {
		iv, err := m.ds.Create(ctx, studyID, token, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("failed to create interview: %w", err)
		}
		return iv, nil
	}

	source := PlatformSource(externalID)
	iv, created, err := m.ds.FindOrCreate(ctx, studyID, externalID, source, token, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to find or create interview: %w", err)
	}

	if !created && iv.Status == StatusCompleted {
		return iv, ErrAlreadyCompleted
	}

	return iv, nil
}

// CreateLink creates a researcher-generated pending interview. These carry
// no dedup key; each call mints a fresh session.
func (m *Manager) CreateLink(ctx context.Context, studyID uuid.UUID) (*Interview, error) {
	token, err := NewAccessToken()
	if err != nil {
		return nil, err
	}

	iv, err := m.ds.Create(ctx, studyID, token, time.Now().Add(m.ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to create interview: %w", err)
	}
	return iv, nil
}

// GetByToken retrieves an interview by its public access token, with one
// internal retry on transient storage failure. Unknown tokens return
// ErrNotFound. The interview is returned whatever its state; deciding what
// the token bearer may do with it is the authorization kernel's job, not
// this manager's.
func (m *Manager) GetByToken(ctx context.Context, token string) (*Interview, error) {
	iv, err := m.getByTokenRetry(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get interview: %w", err)
	}
	return iv, nil
}

// getByTokenRetry reads an interview by token with a single internal retry
// on transient storage failure. A retry that succeeds is invisible to the
// caller. Deterministic failures (scan errors, constraint surprises) are
// returned as-is; only connection-class errors re-execute.
func (m *Manager) getByTokenRetry(ctx context.Context, token string) (*Interview, error) {
	iv, err := m.ds.GetByToken(ctx, token)
	if err == nil || errors.Is(err, sql.ErrNoRows) || ctx.Err() != nil || !transientError(err) {
		return iv, err
	}
	return m.ds.GetByToken(ctx, token)
}

// transientError reports whether a storage error is worth one retry:
// a poisoned pooled connection, a network failure, or an error pgx marks
// as safe to retry.
func transientError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}

// Complete applies the only transition out of pending.
//
// The first call wins: it records the refs and notes and flips the status.
// Every subsequent call with the same token returns the stored record
// unchanged and no error, whatever its payload, so engine retries always
// observe success. Unknown tokens return ErrNotFound.
func (m *Manager) Complete(ctx context.Context, token string, transcriptRef, recordingRef, notes *string) (*Interview, error) {
	iv, err := m.ds.Complete(ctx, token, transcriptRef, recordingRef, notes)
	if err == nil {
		return iv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to complete interview: %w", err)
	}

	// No pending row matched: either the token is unknown or a previous
	// call already completed the interview.
	iv, err = m.ds.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get interview: %w", err)
	}

	if iv.Status == StatusCompleted {
		// Idempotent replay; the retry's payload is discarded.
		return iv, nil
	}

	return nil, fmt.Errorf("interview %s is pending but completion matched no row", iv.ID)
}

// Claim links a completed interview to a registered participant.
// Claiming by the same participant twice is idempotent; the boolean
// reports whether this call was a replay.
func (m *Manager) Claim(ctx context.Context, token string, participantID uuid.UUID) (*Interview, bool, error) {
	iv, err := m.ds.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, ErrNotFound
		}
		return nil, false, fmt.Errorf("failed to get interview: %w", err)
	}

	if iv.Status != StatusCompleted {
		return nil, false, ErrNotCompleted
	}

	affected, err := m.ds.LinkParticipant(ctx, iv.ID, participantID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to link participant: %w", err)
	}
	if affected == 1 {
		iv, err = m.ds.GetByID(ctx, iv.ID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to reload interview: %w", err)
		}
		return iv, false, nil
	}

	// Nothing updated: the interview is already linked. Same participant
	// means an idempotent replay; anyone else is a conflict.
	iv, err = m.ds.GetByID(ctx, iv.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to reload interview: %w", err)
	}
	if iv.ParticipantID != nil && *iv.ParticipantID == participantID {
		return iv, true, nil
	}
	return nil, false, ErrClaimed
}

// GetByID retrieves an interview by ID.
func (m *Manager) GetByID(ctx context.Context, id uuid.UUID) (*Interview, error) {
	iv, err := m.ds.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get interview: %w", err)
	}
	return iv, nil
}

// ListByStudy retrieves the interviews of a study.
func (m *Manager) ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*Interview, error) {
	interviews, err := m.ds.ListByStudy(ctx, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list interviews: %w", err)
	}
	return interviews, nil
}
