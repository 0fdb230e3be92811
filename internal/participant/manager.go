package participant

import (
	"context"
	"fmt"
	"log"

	"github.com/tinyteamco/verity-sub000/internal/interview"
)

// ClaimResult reports the outcome of a claim.
type ClaimResult struct {
	Participant *Participant
	Interview   *interview.Interview

	// AlreadyClaimed is true when this participant had already claimed
	// the interview; the call is an idempotent replay.
	AlreadyClaimed bool
}

// Manager reconciles completed interviews with registered participant
// identities. It owns participant records; the interview transition
// itself stays behind the interview manager.
type Manager struct {
	ds         *Datastore
	interviews *interview.Manager
}

// NewManager creates a new participant manager.
func NewManager(ds *Datastore, interviews *interview.Manager) *Manager {
	return &Manager{ds: ds, interviews: interviews}
}

// Claim links the interview behind token to the participant identified by
// the verified uid, creating the participant record on first contact.
//
// Interview-side failures pass through untranslated so handlers can map
// interview.ErrNotFound / ErrNotCompleted / ErrClaimed directly.
//
// The interview is validated before the participant row is touched, so a
// claim against an unknown or still-pending token leaves no record behind.
func (m *Manager) Claim(ctx context.Context, uid, email, token string) (*ClaimResult, error) {
	iv, err := m.interviews.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if iv.Status != interview.StatusCompleted {
		return nil, interview.ErrNotCompleted
	}

	p, err := m.ds.GetOrCreate(ctx, uid, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create participant: %w", err)
	}

	iv, already, err := m.interviews.Claim(ctx, token, p.ID)
	if err != nil {
		return nil, err
	}

	// Remember how the referring platform names this person. Failure here
	// must not undo a successful claim; the merge is retried naturally on
	// the participant's next claim from the same platform.
	if iv.PlatformSource != nil && iv.ExternalParticipantID != nil {
		if err := m.ds.MergeIdentity(ctx, p.ID, *iv.PlatformSource, *iv.ExternalParticipantID); err != nil {
			log.Printf("failed to merge platform identity for participant %s: %v", p.ID, err)
		} else {
			p.PlatformIdentities[*iv.PlatformSource] = *iv.ExternalParticipantID
		}
	}

	return &ClaimResult{Participant: p, Interview: iv, AlreadyClaimed: already}, nil
}
