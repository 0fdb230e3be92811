package participant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/tinyteamco/verity-sub000/internal/interview"
)

var interviewCols = []string{
	"id", "study_id", "access_token", "status", "created_at", "completed_at", "expires_at",
	"external_participant_id", "platform_source", "participant_id", "claimed_at",
	"transcript_ref", "recording_ref", "notes",
}

func participantRows(id uuid.UUID, uid, email, identities string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "uid", "email", "platform_identities", "created_at"}).
		AddRow(id, uid, email, []byte(identities), time.Now())
}

func completedInterviewRows(id, studyID uuid.UUID, token string, externalID, source *string, participantID *uuid.UUID) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(interviewCols).
		AddRow(id, studyID, token, interview.StatusCompleted, now.Add(-time.Hour), now, now.Add(time.Hour),
			externalID, source, participantID, nil, nil, nil, nil)
}

func newTestManager(t *testing.T) (*Manager, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	ivm := interview.NewManager(interview.NewDatastore(db), 0)
	return NewManager(NewDatastore(db), ivm), mock, func() { db.Close() }
}

func TestManager_Claim_FirstClaimMergesPlatformIdentity(t *testing.T) {
	m, mock, cleanup := newTestManager(t)
	defer cleanup()

	pid := uuid.New()
	ivID, studyID := uuid.New(), uuid.New()
	externalID := "prolific_42"
	source := "prolific"

	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE access_token = \$1`).
		WithArgs("ivt_tok").
		WillReturnRows(completedInterviewRows(ivID, studyID, "ivt_tok", &externalID, &source, nil))

	mock.ExpectQuery(`INSERT INTO participants`).
		WithArgs(sqlmock.AnyArg(), "uid-p1", "p1@example.com").
		WillReturnRows(participantRows(pid, "uid-p1", "p1@example.com", `{}`))

	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE access_token = \$1`).
		WithArgs("ivt_tok").
		WillReturnRows(completedInterviewRows(ivID, studyID, "ivt_tok", &externalID, &source, nil))
	mock.ExpectExec(`UPDATE interviews`).
		WithArgs(ivID, pid).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE id = \$1`).
		WillReturnRows(completedInterviewRows(ivID, studyID, "ivt_tok", &externalID, &source, &pid))

	mock.ExpectExec(`UPDATE participants`).
		WithArgs(pid, "prolific", "prolific_42").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := m.Claim(context.Background(), "uid-p1", "p1@example.com", "ivt_tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AlreadyClaimed {
		t.Error("first claim must not report replay")
	}
	if got := result.Participant.PlatformIdentities["prolific"]; got != "prolific_42" {
		t.Errorf("expected platform identity merged, got %q", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestManager_Claim_ReplaySameParticipant(t *testing.T) {
	m, mock, cleanup := newTestManager(t)
	defer cleanup()

	pid := uuid.New()
	ivID, studyID := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE access_token = \$1`).
		WillReturnRows(completedInterviewRows(ivID, studyID, "ivt_tok", nil, nil, &pid))

	mock.ExpectQuery(`INSERT INTO participants`).
		WillReturnRows(participantRows(pid, "uid-p1", "p1@example.com", `{}`))

	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE access_token = \$1`).
		WillReturnRows(completedInterviewRows(ivID, studyID, "ivt_tok", nil, nil, &pid))
	mock.ExpectExec(`UPDATE interviews`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE id = \$1`).
		WillReturnRows(completedInterviewRows(ivID, studyID, "ivt_tok", nil, nil, &pid))

	result, err := m.Claim(context.Background(), "uid-p1", "p1@example.com", "ivt_tok")
	if err != nil {
		t.Fatalf("replay must succeed, got %v", err)
	}
	if !result.AlreadyClaimed {
		t.Error("expected AlreadyClaimed on replay")
	}
}

func TestManager_Claim_UnknownTokenCreatesNoParticipant(t *testing.T) {
	m, mock, cleanup := newTestManager(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE access_token = \$1`).
		WillReturnRows(sqlmock.NewRows(interviewCols))

	_, err := m.Claim(context.Background(), "uid-p1", "p1@example.com", "ivt_ghost")
	if !errors.Is(err, interview.ErrNotFound) {
		t.Errorf("expected interview.ErrNotFound to pass through, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no participant row may be written for an unknown token: %v", err)
	}
}

func TestManager_Claim_PendingInterviewCreatesNoParticipant(t *testing.T) {
	m, mock, cleanup := newTestManager(t)
	defer cleanup()

	ivID, studyID := uuid.New(), uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows(interviewCols).
		AddRow(ivID, studyID, "ivt_tok", interview.StatusPending, now, nil, now.Add(time.Hour),
			nil, nil, nil, nil, nil, nil, nil)

	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE access_token = \$1`).
		WillReturnRows(rows)

	_, err := m.Claim(context.Background(), "uid-p1", "p1@example.com", "ivt_tok")
	if !errors.Is(err, interview.ErrNotCompleted) {
		t.Errorf("expected interview.ErrNotCompleted, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no participant row may be written for a pending interview: %v", err)
	}
}
