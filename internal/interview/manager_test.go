package interview

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

var interviewCols = []string{
	"id", "study_id", "access_token", "status", "created_at", "completed_at", "expires_at",
	"external_participant_id", "platform_source", "participant_id", "claimed_at",
	"transcript_ref", "recording_ref", "notes",
}

func pendingRow(id, studyID uuid.UUID, token string, expiresAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(interviewCols).
		AddRow(id, studyID, token, StatusPending, time.Now(), nil, expiresAt,
			nil, nil, nil, nil, nil, nil, nil)
}

func completedRow(id, studyID uuid.UUID, token string, transcriptRef *string, participantID *uuid.UUID) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(interviewCols).
		AddRow(id, studyID, token, StatusCompleted, now.Add(-time.Hour), now, now.Add(DefaultTTL),
			nil, nil, participantID, nil, transcriptRef, nil, nil)
}

func newTestManager(t *testing.T) (*Manager, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	return NewManager(NewDatastore(db), 0), mock, func() { db.Close() }
}

func TestManager_Start_Anonymous(t *testing.T) {
	m, mock, cleanup := newTestManager(t)
	defer cleanup()

	studyID := uuid.New()
	id := uuid.New()

	mock.ExpectQuery(`INSERT INTO interviews`).
		WithArgs(sqlmock.AnyArg(), studyID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(pendingRow(id, studyID, "ivt_abc", time.Now().Add(DefaultTTL)))

	iv, err := m.Start(context.Background(), studyID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if iv.Status != StatusPending {
		t.Errorf("expected pending status, got %q", iv.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestManager_Start_DedupCreates(t *testing.T) {
	m, mock, cleanup := newTestManager(t)
	defer cleanup()

	studyID := uuid.New()
	id := uuid.New()

	mock.ExpectQuery(`INSERT INTO interviews`).
		WithArgs(sqlmock.AnyArg(), studyID, sqlmock.AnyArg(), sqlmock.AnyArg(), "prolific_42", "prolific").
		WillReturnRows(pendingRow(id, studyID, "ivt_new", time.Now().Add(DefaultTTL)))

	iv, err := m.Start(context.Background(), studyID, "prolific_42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if iv.AccessToken != "ivt_new" {
		t.Errorf("expected fresh token, got %q", iv.AccessToken)
	}
}

func TestManager_Start_DedupReusesPending(t *testing.T) {
	m, mock, cleanup := newTestManager(t)
	defer cleanup()

	studyID := uuid.New()
	id := uuid.New()

	// Insert loses the race / finds an existing key and returns no row.
	mock.ExpectQuery(`INSERT INTO interviews`).
		WillReturnRows(sqlmock.NewRows(interviewCols))

	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE study_id = \$1 AND external_participant_id = \$2`).
		WithArgs(studyID, "prolific_42").
		WillReturnRows(pendingRow(id, studyID, "ivt_existing", time.Now().Add(DefaultTTL)))

	iv, err := m.Start(context.Background(), studyID, "prolific_42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if iv.AccessToken != "ivt_existing" {
		t.Errorf("expected existing token to be reused, got %q", iv.AccessToken)
	}
}

func TestManager_Start_DedupAlreadyCompleted(t *testing.T) {
	m, mock, cleanup := newTestManager(t)
	defer cleanup()

	studyID := uuid.New()
	id := uuid.New()

	mock.ExpectQuery(`INSERT INTO interviews`).
		WillReturnRows(sqlmock.NewRows(interviewCols))
	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE study_id = \$1 AND external_participant_id = \$2`).
		WithArgs(studyID, "prolific_42").
		WillReturnRows(completedRow(id, studyID, "ivt_done", nil, nil))

	_, err := m.Start(context.Background(), studyID, "prolific_42")
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("expected ErrAlreadyCompleted, got %v", err)
	}
}

func TestManager_GetByToken_UnknownToken(t *testing.T) {
	m, mock, cleanup := newTestManager(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE access_token = \$1`).
		WithArgs("ivt_unknown").
		WillReturnRows(sqlmock.NewRows(interviewCols))

	_, err := m.GetByToken(context.Background(), "ivt_unknown")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManager_GetByToken_ReturnsCompleted(t *testing.T) {
	m, mock, cleanup := newTestManager(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE access_token = \$1`).
		WithArgs("ivt_done").
		WillReturnRows(completedRow(uuid.New(), uuid.New(), "ivt_done", nil, nil))

	iv, err := m.GetByToken(context.Background(), "ivt_done")
	if err != nil {
		t.Fatalf("GetByToken failed: %v", err)
	}
	if iv.Status != StatusCompleted {
		t.Errorf("expected completed status, got %s", iv.Status)
	}
}

func TestManager_GetByToken_RetriesConnectionFailure(t *testing.T) {
	m, mock, cleanup := newTestManager(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE access_token = \$1`).
		WillReturnError(driver.ErrBadConn)
	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE access_token = \$1`).
		WillReturnRows(pendingRow(uuid.New(), uuid.New(), "ivt_ok", time.Now().Add(time.Hour)))

	iv, err := m.GetByToken(context.Background(), "ivt_ok")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if iv.AccessToken != "ivt_ok" {
		t.Errorf("unexpected interview: %+v", iv)
	}
}

func TestManager_GetByToken_NoRetryOnDeterministicError(t *testing.T) {
	m, mock, cleanup := newTestManager(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE access_token = \$1`).
		WillReturnError(errors.New(`pq: column "acces_token" does not exist`))

	_, err := m.GetByToken(context.Background(), "ivt_tok")
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("query should not be retried: %v", err)
	}
}

func TestManager_Complete_FirstCall(t *testing.T) {
	m, mock, cleanup := newTestManager(t)
	defer cleanup()

	id, studyID := uuid.New(), uuid.New()
	ref := "gs://bucket/t.txt"

	mock.ExpectQuery(`UPDATE interviews`).
		WithArgs("ivt_tok", &ref, nil, nil).
		WillReturnRows(completedRow(id, studyID, "ivt_tok", &ref, nil))

	iv, err := m.Complete(context.Background(), "ivt_tok", &ref, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if iv.Status != StatusCompleted {
		t.Errorf("expected completed, got %q", iv.Status)
	}
	if iv.TranscriptRef == nil || *iv.TranscriptRef != ref {
		t.Errorf("expected transcript ref %q, got %v", ref, iv.TranscriptRef)
	}
}

func TestManager_Complete_IdempotentReplayKeepsFirstWrite(t *testing.T) {
	m, mock, cleanup := newTestManager(t)
	defer cleanup()

	id, studyID := uuid.New(), uuid.New()
	firstRef := "gs://bucket/first.txt"
	staleRef := "gs://bucket/stale.txt"

	// The conditional update matches no pending row.
	mock.ExpectQuery(`UPDATE interviews`).
		WithArgs("ivt_tok", &staleRef, nil, nil).
		WillReturnRows(sqlmock.NewRows(interviewCols))

	// The follow-up read observes the first completion untouched.
	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE access_token = \$1`).
		WithArgs("ivt_tok").
		WillReturnRows(completedRow(id, studyID, "ivt_tok", &firstRef, nil))

	iv, err := m.Complete(context.Background(), "ivt_tok", &staleRef, nil, nil)
	if err != nil {
		t.Fatalf("replay must succeed, got %v", err)
	}
	if iv.TranscriptRef == nil || *iv.TranscriptRef != firstRef {
		t.Errorf("replay payload must be discarded; got ref %v", iv.TranscriptRef)
	}
}

func TestManager_Complete_UnknownToken(t *testing.T) {
	m, mock, cleanup := newTestManager(t)
	defer cleanup()

	mock.ExpectQuery(`UPDATE interviews`).
		WillReturnRows(sqlmock.NewRows(interviewCols))
	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE access_token = \$1`).
		WillReturnRows(sqlmock.NewRows(interviewCols))

	_, err := m.Complete(context.Background(), "ivt_ghost", nil, nil, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManager_Claim_NotCompleted(t *testing.T) {
	m, mock, cleanup := newTestManager(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE access_token = \$1`).
		WillReturnRows(pendingRow(uuid.New(), uuid.New(), "ivt_tok", time.Now().Add(time.Hour)))

	_, _, err := m.Claim(context.Background(), "ivt_tok", uuid.New())
	if !errors.Is(err, ErrNotCompleted) {
		t.Errorf("expected ErrNotCompleted, got %v", err)
	}
}

func TestManager_Claim_FirstThenReplay(t *testing.T) {
	m, mock, cleanup := newTestManager(t)
	defer cleanup()

	id, studyID := uuid.New(), uuid.New()
	participantID := uuid.New()

	// First claim: link succeeds.
	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE access_token = \$1`).
		WillReturnRows(completedRow(id, studyID, "ivt_tok", nil, nil))
	mock.ExpectExec(`UPDATE interviews`).
		WithArgs(id, participantID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE id = \$1`).
		WillReturnRows(completedRow(id, studyID, "ivt_tok", nil, &participantID))

	iv, already, err := m.Claim(context.Background(), "ivt_tok", participantID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if already {
		t.Error("first claim must not report replay")
	}
	if iv.ParticipantID == nil || *iv.ParticipantID != participantID {
		t.Errorf("expected participant link, got %v", iv.ParticipantID)
	}

	// Replay by the same participant: link is a no-op, still success.
	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE access_token = \$1`).
		WillReturnRows(completedRow(id, studyID, "ivt_tok", nil, &participantID))
	mock.ExpectExec(`UPDATE interviews`).
		WithArgs(id, participantID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE id = \$1`).
		WillReturnRows(completedRow(id, studyID, "ivt_tok", nil, &participantID))

	_, already, err = m.Claim(context.Background(), "ivt_tok", participantID)
	if err != nil {
		t.Fatalf("replay must succeed, got %v", err)
	}
	if !already {
		t.Error("replay must report already claimed")
	}
}

func TestManager_Claim_DifferentParticipant(t *testing.T) {
	m, mock, cleanup := newTestManager(t)
	defer cleanup()

	id, studyID := uuid.New(), uuid.New()
	owner := uuid.New()
	intruder := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE access_token = \$1`).
		WillReturnRows(completedRow(id, studyID, "ivt_tok", nil, &owner))
	mock.ExpectExec(`UPDATE interviews`).
		WithArgs(id, intruder).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM interviews WHERE id = \$1`).
		WillReturnRows(completedRow(id, studyID, "ivt_tok", nil, &owner))

	_, _, err := m.Claim(context.Background(), "ivt_tok", intruder)
	if !errors.Is(err, ErrClaimed) {
		t.Errorf("expected ErrClaimed, got %v", err)
	}
}

func TestPlatformSource(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"prolific_42", "prolific"},
		{"MTURK_abc", "mturk"},
		{"noprefix", ""},
		{"_leading", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := PlatformSource(tt.in); got != tt.want {
			t.Errorf("PlatformSource(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewAccessToken(t *testing.T) {
	a, err := NewAccessToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := NewAccessToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a == b {
		t.Error("tokens must be unique")
	}
	if len(a) < 40 {
		t.Errorf("token too short: %q", a)
	}
}

func TestInterview_Expired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	pending := &Interview{Status: StatusPending, ExpiresAt: &past}
	if !pending.Expired(now) {
		t.Error("pending interview past expires_at must be expired")
	}

	fresh := &Interview{Status: StatusPending, ExpiresAt: &future}
	if fresh.Expired(now) {
		t.Error("pending interview before expires_at must not be expired")
	}

	completed := &Interview{Status: StatusCompleted, ExpiresAt: &past}
	if completed.Expired(now) {
		t.Error("completed interviews never expire")
	}

	unbounded := &Interview{Status: StatusPending}
	if unbounded.Expired(now) {
		t.Error("interviews without expires_at never expire")
	}
}
