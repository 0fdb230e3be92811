package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/tinyteamco/verity-sub000/internal/authz"
	"github.com/tinyteamco/verity-sub000/internal/interview"
	"github.com/tinyteamco/verity-sub000/internal/study"
	"github.com/tinyteamco/verity-sub000/internal/user"
)

// StudiesHandler handles study and researcher-side interview operations.
type StudiesHandler struct {
	studies    *study.Manager
	interviews *interview.Manager
	users      *user.Manager
}

// NewStudiesHandler creates a new studies handler.
func NewStudiesHandler(studies *study.Manager, interviews *interview.Manager, users *user.Manager) *StudiesHandler {
	return &StudiesHandler{studies: studies, interviews: interviews, users: users}
}

// studyResponse is the JSON response for a study.
type studyResponse struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Slug        string `json:"slug"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toStudyResponse(s *study.Study) studyResponse {
	return studyResponse{
		ID:          s.ID.String(),
		OrgID:       s.OrgID.String(),
		Title:       s.Title,
		Description: s.Description,
		Slug:        s.Slug,
		CreatedAt:   s.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:   s.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// authorizeStudy resolves the study in the path and checks that the caller's
// organization owns it. A cross-tenant request gets the same 404 as a
// nonexistent study so study IDs cannot be probed across tenants. On
// failure the response is already written and ok is false.
func (h *StudiesHandler) authorizeStudy(w http.ResponseWriter, r *http.Request) (*study.Study, *user.User, bool) {
	u, claims, ok := resolveMembership(w, r, h.users)
	if !ok {
		return nil, nil, false
	}

	id, err := uuid.Parse(r.PathValue("studyID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid study ID")
		return nil, nil, false
	}

	s, err := h.studies.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, study.ErrNotFound) {
			writeError(w, http.StatusNotFound, "study not found")
			return nil, nil, false
		}
		log.Printf("failed to get study %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to get study")
		return nil, nil, false
	}

	decision := authz.Authorize(u.Caller(claims.SuperAdmin), authz.ActionManageStudies, authz.Resource{OrgID: s.OrgID})
	if !decision.Allowed {
		log.Printf("study access denied for %s on %s: branch=%s", u.UID, s.ID, decision.Branch)
		writeError(w, http.StatusNotFound, "study not found")
		return nil, nil, false
	}

	return s, u, true
}

// createStudyRequest is the JSON request for creating a study.
type createStudyRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Slug        string `json:"slug"`
}

// Create handles POST /studies
func (h *StudiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	u, _, ok := resolveMembership(w, r, h.users)
	if !ok {
		return
	}

	var req createStudyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	s, err := h.studies.Create(r.Context(), u.OrgID, req.Title, req.Description, req.Slug)
	if err != nil {
		switch {
		case errors.Is(err, study.ErrInvalidTitle):
			writeError(w, http.StatusBadRequest, "title is required")
		case errors.Is(err, study.ErrInvalidSlug):
			writeError(w, http.StatusBadRequest, "slug must be 3-63 lowercase alphanumeric characters or hyphens")
		case errors.Is(err, study.ErrSlugTaken):
			writeError(w, http.StatusConflict, "slug is already in use")
		default:
			log.Printf("failed to create study: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to create study")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toStudyResponse(s))
}

// List handles GET /studies
func (h *StudiesHandler) List(w http.ResponseWriter, r *http.Request) {
	u, _, ok := resolveMembership(w, r, h.users)
	if !ok {
		return
	}

	studies, err := h.studies.ListByOrg(r.Context(), u.OrgID)
	if err != nil {
		log.Printf("failed to list studies for org %s: %v", u.OrgID, err)
		writeError(w, http.StatusInternalServerError, "failed to list studies")
		return
	}

	response := make([]studyResponse, len(studies))
	for i, s := range studies {
		response[i] = toStudyResponse(s)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"studies": response,
		"count":   len(response),
	})
}

// Get handles GET /studies/{studyID}
func (h *StudiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.authorizeStudy(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toStudyResponse(s))
}

// updateStudyRequest is the JSON request for updating a study.
// Slug and owning organization are immutable.
type updateStudyRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Update handles PATCH /studies/{studyID}
func (h *StudiesHandler) Update(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.authorizeStudy(w, r)
	if !ok {
		return
	}

	var req updateStudyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	updated, err := h.studies.Update(r.Context(), s.ID, req.Title, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, study.ErrInvalidTitle):
			writeError(w, http.StatusBadRequest, "title is required")
		case errors.Is(err, study.ErrNotFound):
			writeError(w, http.StatusNotFound, "study not found")
		default:
			log.Printf("failed to update study %s: %v", s.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to update study")
		}
		return
	}

	writeJSON(w, http.StatusOK, toStudyResponse(updated))
}

// Delete handles DELETE /studies/{studyID}
func (h *StudiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.authorizeStudy(w, r)
	if !ok {
		return
	}

	if err := h.studies.Delete(r.Context(), s.ID); err != nil {
		if errors.Is(err, study.ErrNotFound) {
			writeError(w, http.StatusNotFound, "study not found")
			return
		}
		log.Printf("failed to delete study %s: %v", s.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to delete study")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// guideRequest is the JSON request for writing an interview guide.
type guideRequest struct {
	ContentMD string `json:"content_md"`
}

// guideResponse is the JSON response for an interview guide.
type guideResponse struct {
	StudyID   string `json:"study_id"`
	ContentMD string `json:"content_md"`
	UpdatedAt string `json:"updated_at"`
}

// UpsertGuide handles PUT /studies/{studyID}/guide
func (h *StudiesHandler) UpsertGuide(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.authorizeStudy(w, r)
	if !ok {
		return
	}

	var req guideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	g, err := h.studies.UpsertGuide(r.Context(), s.ID, req.ContentMD)
	if err != nil {
		log.Printf("failed to upsert guide for study %s: %v", s.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to save guide")
		return
	}

	writeJSON(w, http.StatusOK, guideResponse{
		StudyID:   g.StudyID.String(),
		ContentMD: g.ContentMD,
		UpdatedAt: g.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

// GetGuide handles GET /studies/{studyID}/guide
func (h *StudiesHandler) GetGuide(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.authorizeStudy(w, r)
	if !ok {
		return
	}

	g, err := h.studies.GetGuide(r.Context(), s.ID)
	if err != nil {
		if errors.Is(err, study.ErrGuideNotFound) {
			writeError(w, http.StatusNotFound, "guide not found")
			return
		}
		log.Printf("failed to get guide for study %s: %v", s.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to get guide")
		return
	}

	writeJSON(w, http.StatusOK, guideResponse{
		StudyID:   g.StudyID.String(),
		ContentMD: g.ContentMD,
		UpdatedAt: g.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

// interviewResponse is the researcher-facing JSON for an interview.
// The access token is included so researchers can hand out direct links.
type interviewResponse struct {
	ID                    string  `json:"id"`
	StudyID               string  `json:"study_id"`
	AccessToken           string  `json:"access_token"`
	Status                string  `json:"status"`
	CreatedAt             string  `json:"created_at"`
	CompletedAt           *string `json:"completed_at,omitempty"`
	ExpiresAt             *string `json:"expires_at,omitempty"`
	ExternalParticipantID *string `json:"external_participant_id,omitempty"`
	PlatformSource        *string `json:"platform_source,omitempty"`
	ParticipantID         *string `json:"participant_id,omitempty"`
	TranscriptRef         *string `json:"transcript_ref,omitempty"`
	RecordingRef          *string `json:"recording_ref,omitempty"`
}

func toInterviewResponse(iv *interview.Interview) interviewResponse {
	resp := interviewResponse{
		ID:                    iv.ID.String(),
		StudyID:               iv.StudyID.String(),
		AccessToken:           iv.AccessToken,
		Status:                iv.Status,
		CreatedAt:             iv.CreatedAt.Format("2006-01-02T15:04:05Z"),
		ExternalParticipantID: iv.ExternalParticipantID,
		PlatformSource:        iv.PlatformSource,
		TranscriptRef:         iv.TranscriptRef,
		RecordingRef:          iv.RecordingRef,
	}
	if iv.CompletedAt != nil {
		v := iv.CompletedAt.Format("2006-01-02T15:04:05Z")
		resp.CompletedAt = &v
	}
	if iv.ExpiresAt != nil {
		v := iv.ExpiresAt.Format("2006-01-02T15:04:05Z")
		resp.ExpiresAt = &v
	}
	if iv.ParticipantID != nil {
		v := iv.ParticipantID.String()
		resp.ParticipantID = &v
	}
	return resp
}

// CreateInterviewLink handles POST /studies/{studyID}/interviews
func (h *StudiesHandler) CreateInterviewLink(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.authorizeStudy(w, r)
	if !ok {
		return
	}

	iv, err := h.interviews.CreateLink(r.Context(), s.ID)
	if err != nil {
		log.Printf("failed to create interview link for study %s: %v", s.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to create interview")
		return
	}

	writeJSON(w, http.StatusCreated, toInterviewResponse(iv))
}

// ListInterviews handles GET /studies/{studyID}/interviews
func (h *StudiesHandler) ListInterviews(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.authorizeStudy(w, r)
	if !ok {
		return
	}

	interviews, err := h.interviews.ListByStudy(r.Context(), s.ID)
	if err != nil {
		log.Printf("failed to list interviews for study %s: %v", s.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to list interviews")
		return
	}

	response := make([]interviewResponse, len(interviews))
	for i, iv := range interviews {
		response[i] = toInterviewResponse(iv)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"interviews": response,
		"count":      len(response),
	})
}

// GetInterview handles GET /studies/{studyID}/interviews/{interviewID}
func (h *StudiesHandler) GetInterview(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.authorizeStudy(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("interviewID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid interview ID")
		return
	}

	iv, err := h.interviews.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, interview.ErrNotFound) {
			writeError(w, http.StatusNotFound, "interview not found")
			return
		}
		log.Printf("failed to get interview %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to get interview")
		return
	}

	// An interview fetched through another study's path is a miss, not a leak.
	if iv.StudyID != s.ID {
		writeError(w, http.StatusNotFound, "interview not found")
		return
	}

	writeJSON(w, http.StatusOK, toInterviewResponse(iv))
}
