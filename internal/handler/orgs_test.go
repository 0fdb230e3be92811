package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/tinyteamco/verity-sub000/internal/org"
	"github.com/tinyteamco/verity-sub000/internal/user"
)

func setupOrgsTest(t *testing.T) (*OrgsHandler, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	orgs := org.NewManager(org.NewDatastore(db))
	users := user.NewManager(user.NewDatastore(db))
	handler := NewOrgsHandler(orgs, users)
	return handler, mock, func() { db.Close() }
}

func orgRow(id uuid.UUID, name, displayName string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "name", "display_name", "created_at", "updated_at"}).
		AddRow(id, name, displayName, now, now)
}

func TestOrgsHandler_Create_SuperAdmin(t *testing.T) {
	handler, mock, cleanup := setupOrgsTest(t)
	defer cleanup()

	orgID := uuid.New()
	mock.ExpectQuery(`INSERT INTO organizations`).
		WillReturnRows(orgRow(orgID, "acme", "Acme Research"))

	body, _ := json.Marshal(map[string]string{"name": "acme", "display_name": "Acme Research"})
	req := withResearcher(httptest.NewRequest(http.MethodPost, "/orgs", bytes.NewReader(body)), "root-1", true)
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp orgResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Name != "acme" {
		t.Errorf("expected org name acme, got %q", resp.Name)
	}
}

func TestOrgsHandler_Create_RequiresSuperAdmin(t *testing.T) {
	handler, _, cleanup := setupOrgsTest(t)
	defer cleanup()

	body, _ := json.Marshal(map[string]string{"name": "acme", "display_name": "Acme Research"})
	req := withResearcher(httptest.NewRequest(http.MethodPost, "/orgs", bytes.NewReader(body)), "res-1", false)
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status 403 for a regular researcher, got %d", rec.Code)
	}
}

func TestOrgsHandler_GetCurrent(t *testing.T) {
	handler, mock, cleanup := setupOrgsTest(t)
	defer cleanup()

	orgID := uuid.New()
	expectMembership(mock, "res-1", orgID, user.RoleMember)
	mock.ExpectQuery(`SELECT .+ FROM organizations\s+WHERE id = \$1`).
		WithArgs(orgID).
		WillReturnRows(orgRow(orgID, "acme", "Acme Research"))

	req := withResearcher(httptest.NewRequest(http.MethodGet, "/orgs/current", nil), "res-1", false)
	rec := httptest.NewRecorder()

	handler.GetCurrent(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOrgsHandler_ListUsers_MemberDenied(t *testing.T) {
	handler, mock, cleanup := setupOrgsTest(t)
	defer cleanup()

	expectMembership(mock, "res-1", uuid.New(), user.RoleMember)

	req := withResearcher(httptest.NewRequest(http.MethodGet, "/orgs/current/users", nil), "res-1", false)
	rec := httptest.NewRecorder()

	handler.ListUsers(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status 403 for a plain member, got %d", rec.Code)
	}
}

func TestOrgsHandler_CreateUser(t *testing.T) {
	handler, mock, cleanup := setupOrgsTest(t)
	defer cleanup()

	orgID := uuid.New()
	expectMembership(mock, "owner-1", orgID, user.RoleOwner)
	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnRows(userRow(uuid.New(), orgID, "res-2", user.RoleMember))

	body, _ := json.Marshal(map[string]string{
		"uid":   "res-2",
		"email": "res-2@example.com",
		"role":  user.RoleMember,
	})
	req := withResearcher(httptest.NewRequest(http.MethodPost, "/orgs/current/users", bytes.NewReader(body)), "owner-1", false)
	rec := httptest.NewRecorder()

	handler.CreateUser(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
}
