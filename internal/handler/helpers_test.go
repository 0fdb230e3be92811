package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tinyteamco/verity-sub000/internal/identity"
	"github.com/tinyteamco/verity-sub000/internal/middleware"
	"github.com/tinyteamco/verity-sub000/internal/storage"
)

var (
	interviewCols = []string{
		"id", "study_id", "access_token", "status", "created_at", "completed_at",
		"expires_at", "external_participant_id", "platform_source",
		"participant_id", "claimed_at", "transcript_ref", "recording_ref", "notes",
	}
	studyCols = []string{"id", "organization_id", "title", "description", "slug", "created_at", "updated_at"}
	userCols  = []string{"id", "uid", "email", "role", "organization_id", "created_at", "updated_at"}
)

// pendingInterviewRow builds a sqlmock row for a pending interview.
func pendingInterviewRow(id, studyID uuid.UUID, token string) *sqlmock.Rows {
	expires := time.Now().Add(24 * time.Hour)
	return sqlmock.NewRows(interviewCols).
		AddRow(id, studyID, token, "pending", time.Now(), nil, expires, nil, nil, nil, nil, nil, nil, nil)
}

// completedInterviewRow builds a sqlmock row for a completed interview
// with a transcript and recording ref.
func completedInterviewRow(id, studyID uuid.UUID, token string) *sqlmock.Rows {
	now := time.Now()
	transcript := "s3://verity-artifacts/" + id.String() + "/transcript.txt"
	recording := "s3://verity-artifacts/" + id.String() + "/recording.wav"
	return sqlmock.NewRows(interviewCols).
		AddRow(id, studyID, token, "completed", now.Add(-time.Hour), now, nil, nil, nil, nil, nil, transcript, recording, nil)
}

func nowMinusHour() time.Time {
	return time.Now().Add(-time.Hour)
}

func studyRow(id, orgID uuid.UUID, title, slug string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(studyCols).AddRow(id, orgID, title, "", slug, now, now)
}

func userRow(id, orgID uuid.UUID, uid, role string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(userCols).AddRow(id, uid, uid+"@example.com", role, orgID, now, now)
}

// withResearcher attaches researcher-realm claims to the request, the way
// the auth middleware would after verifying a bearer token.
func withResearcher(req *http.Request, uid string, superAdmin bool) *http.Request {
	claims := &identity.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uid},
		Email:            uid + "@example.com",
		Realm:            identity.RealmResearcher,
		SuperAdmin:       superAdmin,
	}
	return req.WithContext(middleware.WithClaims(req.Context(), claims))
}

func withParticipant(req *http.Request, uid string) *http.Request {
	claims := &identity.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uid},
		Email:            uid + "@example.com",
		Realm:            identity.RealmParticipant,
	}
	return req.WithContext(middleware.WithClaims(req.Context(), claims))
}

// stubStore is an in-memory ObjectStore for handler tests.
type stubStore struct {
	objects map[string]stubObject
}

type stubObject struct {
	body        string
	contentType string
}

func (s *stubStore) Get(_ context.Context, ref string) (*storage.Object, error) {
	obj, ok := s.objects[ref]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.Object{
		Body:        io.NopCloser(strings.NewReader(obj.body)),
		ContentType: obj.contentType,
		Size:        int64(len(obj.body)),
	}, nil
}
