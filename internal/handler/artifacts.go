package handler

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tinyteamco/verity-sub000/internal/authz"
	"github.com/tinyteamco/verity-sub000/internal/interview"
	"github.com/tinyteamco/verity-sub000/internal/middleware"
	"github.com/tinyteamco/verity-sub000/internal/storage"
	"github.com/tinyteamco/verity-sub000/internal/study"
	"github.com/tinyteamco/verity-sub000/internal/user"
)

// Artifact names addressable through the proxy.
const (
	artifactTranscript = "transcript"
	artifactRecording  = "recording"
)

// ArtifactsHandler streams interview artifacts out of object storage after
// a tenant check. The org segment in the URL is advisory only: the owning
// tenant is always re-derived from the interview itself, so a caller
// cannot reach another tenant's artifact by editing the path.
type ArtifactsHandler struct {
	interviews *interview.Manager
	studies    *study.Manager
	users      *user.Manager
	store      storage.ObjectStore
}

// NewArtifactsHandler creates a new artifacts handler.
func NewArtifactsHandler(interviews *interview.Manager, studies *study.Manager, users *user.Manager, store storage.ObjectStore) *ArtifactsHandler {
	return &ArtifactsHandler{interviews: interviews, studies: studies, users: users, store: store}
}

// Get handles GET /orgs/{tenantID}/interviews/{interviewID}/artifacts/{name}
func (h *ArtifactsHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, found := middleware.GetClaims(r.Context())
	if !found {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var caller authz.Caller
	u, err := h.users.Resolve(r.Context(), claims.UID())
	switch {
	case err == nil:
		caller = u.Caller(claims.SuperAdmin)
	case errors.Is(err, user.ErrNoMembership) && claims.SuperAdmin:
		caller = authz.Caller{Role: authz.RoleSuperAdmin, SuperAdmin: true}
	default:
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	interviewID, err := uuid.Parse(r.PathValue("interviewID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid interview ID")
		return
	}

	name := r.PathValue("name")
	if name != artifactTranscript && name != artifactRecording {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}

	iv, err := h.interviews.GetByID(r.Context(), interviewID)
	if err != nil {
		if errors.Is(err, interview.ErrNotFound) {
			writeError(w, http.StatusNotFound, "interview not found")
			return
		}
		log.Printf("failed to get interview %s: %v", interviewID, err)
		writeError(w, http.StatusInternalServerError, "failed to get artifact")
		return
	}

	s, err := h.studies.GetByID(r.Context(), iv.StudyID)
	if err != nil {
		log.Printf("failed to get study %s for interview %s: %v", iv.StudyID, iv.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to get artifact")
		return
	}

	decision := authz.Authorize(caller, authz.ActionReadArtifact, authz.Resource{OrgID: s.OrgID})
	if !decision.Allowed {
		log.Printf("artifact access denied for %s on interview %s: branch=%s", claims.UID(), iv.ID, decision.Branch)
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	var ref *string
	switch name {
	case artifactTranscript:
		ref = iv.TranscriptRef
	case artifactRecording:
		ref = iv.RecordingRef
	}
	if ref == nil {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}

	obj, err := h.store.Get(r.Context(), *ref)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "artifact not found")
			return
		}
		log.Printf("failed to read artifact %s for interview %s: %v", name, iv.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to get artifact")
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", artifactContentType(name, *ref, obj.ContentType))
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj.Body); err != nil {
		// Response already started; client disconnects land here.
		log.Printf("failed to stream artifact %s for interview %s: %v", name, iv.ID, err)
	}
}

// artifactContentType picks a content type for an artifact: the stored
// object's own type wins, then the ref's extension, then a default per
// artifact kind.
func artifactContentType(name, ref, stored string) string {
	if stored != "" && stored != "application/octet-stream" {
		return stored
	}

	if name == artifactTranscript {
		return "text/plain; charset=utf-8"
	}

	switch {
	case strings.HasSuffix(ref, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(ref, ".ogg"):
		return "audio/ogg"
	case strings.HasSuffix(ref, ".webm"):
		return "audio/webm"
	case strings.HasSuffix(ref, ".m4a"):
		return "audio/mp4"
	default:
		return "audio/wav"
	}
}
