package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/tinyteamco/verity-sub000/internal/authz"
	"github.com/tinyteamco/verity-sub000/internal/interview"
	"github.com/tinyteamco/verity-sub000/internal/study"
)

// PublicHandler serves the unauthenticated interview surface: the link
// resolver participants land on, and the gateway and completion endpoints
// the interview engine calls with an access token.
type PublicHandler struct {
	studies       *study.Manager
	interviews    *interview.Manager
	engineBaseURL string
}

// NewPublicHandler creates a new public handler.
func NewPublicHandler(studies *study.Manager, interviews *interview.Manager, engineBaseURL string) *PublicHandler {
	return &PublicHandler{studies: studies, interviews: interviews, engineBaseURL: engineBaseURL}
}

// Start handles GET /study/{slug}/start
//
// Resolves the study, establishes exactly one pending interview for the
// caller (deduplicated on ?pid when the referring platform supplies one)
// and redirects into the interview engine. Terminal outcomes render HTML
// pages rather than redirects: the audience here is a participant's
// browser arriving from a platform link.
func (h *PublicHandler) Start(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	s, err := h.studies.GetBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, study.ErrNotFound) {
			writePage(w, http.StatusNotFound, "Study not found",
				"This interview link does not point to an active study. Please check the link you were given.")
			return
		}
		log.Printf("failed to resolve study slug %q: %v", slug, err)
		writePage(w, http.StatusInternalServerError, "Something went wrong",
			"We could not start your interview. Please try again in a moment.")
		return
	}

	pid := r.URL.Query().Get("pid")

	iv, err := h.interviews.Start(r.Context(), s.ID, pid)
	if err != nil {
		if errors.Is(err, interview.ErrAlreadyCompleted) {
			writePage(w, http.StatusOK, "Interview already completed",
				"Our records show you have already completed this interview. Thank you for participating.")
			return
		}
		log.Printf("failed to start interview for study %s: %v", s.ID, err)
		writePage(w, http.StatusInternalServerError, "Something went wrong",
			"We could not start your interview. Please try again in a moment.")
		return
	}

	redirect := h.engineBaseURL + "?token=" + url.QueryEscape(iv.AccessToken)
	http.Redirect(w, r, redirect, http.StatusFound)
}

// gatewayResponse is what the interview engine reads before running a
// session. The guide travels inline so the engine needs no second call.
type gatewayResponse struct {
	StudyTitle       string `json:"study_title"`
	InterviewGuideMD string `json:"interview_guide_markdown"`
	AccessToken      string `json:"access_token"`
	Status           string `json:"status"`
}

// tokenResource assembles the kernel's view of an interview targeted by a
// public token bearer.
func tokenResource(iv *interview.Interview) authz.Resource {
	return authz.Resource{
		Token:     iv.AccessToken,
		Status:    iv.Status,
		Completed: iv.Status == interview.StatusCompleted,
		Expired:   iv.Expired(time.Now()),
	}
}

// Get handles GET /interview/{accessToken}
func (h *PublicHandler) Get(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("accessToken")

	iv, err := h.interviews.GetByToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, interview.ErrNotFound) {
			writeError(w, http.StatusNotFound, "interview not found")
			return
		}
		log.Printf("failed to read interview: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read interview")
		return
	}

	caller := authz.Caller{Role: authz.RolePublicTokenBearer, Token: token}
	decision := authz.Authorize(caller, authz.ActionReadInterview, tokenResource(iv))
	if !decision.Allowed {
		log.Printf("gateway read denied for interview %s: branch=%s", iv.ID, decision.Branch)
		if decision.Branch == authz.BranchTokenState {
			writeError(w, http.StatusGone, "interview is no longer available")
			return
		}
		writeError(w, http.StatusNotFound, "interview not found")
		return
	}

	s, err := h.studies.GetByID(r.Context(), iv.StudyID)
	if err != nil {
		log.Printf("failed to get study %s for interview %s: %v", iv.StudyID, iv.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to read interview")
		return
	}

	guideMD := ""
	g, err := h.studies.GetGuide(r.Context(), s.ID)
	if err == nil {
		guideMD = g.ContentMD
	} else if !errors.Is(err, study.ErrGuideNotFound) {
		log.Printf("failed to get guide for study %s: %v", s.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to read interview")
		return
	}

	writeJSON(w, http.StatusOK, gatewayResponse{
		StudyTitle:       s.Title,
		InterviewGuideMD: guideMD,
		AccessToken:      iv.AccessToken,
		Status:           iv.Status,
	})
}

// completeRequest is the JSON request for finalizing an interview.
// Refs are opaque storage locators supplied by the engine; they are
// stored as-is, never opened or validated here.
type completeRequest struct {
	TranscriptRef string `json:"transcript_ref"`
	RecordingRef  string `json:"recording_ref"`
	Notes         string `json:"notes"`
}

// Complete handles POST /interview/{accessToken}/complete
//
// The first call finalizes the interview; every later call with the same
// token gets the same confirmation and its payload is discarded, so engine
// retries never observe an error. Shape problems are only rejected when
// they would affect a first write.
func (h *PublicHandler) Complete(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("accessToken")

	iv, err := h.interviews.GetByToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, interview.ErrNotFound) {
			writeError(w, http.StatusNotFound, "interview not found")
			return
		}
		log.Printf("failed to read interview: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to complete interview")
		return
	}

	caller := authz.Caller{Role: authz.RolePublicTokenBearer, Token: token}
	decision := authz.Authorize(caller, authz.ActionComplete, tokenResource(iv))
	if !decision.Allowed {
		log.Printf("completion denied for interview %s: branch=%s", iv.ID, decision.Branch)
		writeError(w, http.StatusNotFound, "interview not found")
		return
	}

	var req completeRequest
	decodeErr := json.NewDecoder(r.Body).Decode(&req)
	if decodeErr != nil || req.TranscriptRef == "" {
		// A malformed retry against an already-completed interview must
		// still succeed; shape problems only reject a first write.
		if iv.Status == interview.StatusCompleted {
			writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
			return
		}
		writeError(w, http.StatusBadRequest, "transcript_ref is required")
		return
	}

	if iv.Status == interview.StatusCompleted {
		// Well-formed replay; the stored record stands whatever this
		// payload carries.
		log.Printf("discarded replay payload for completed interview %s", iv.ID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
		return
	}

	transcriptRef := &req.TranscriptRef
	var recordingRef, notes *string
	if req.RecordingRef != "" {
		recordingRef = &req.RecordingRef
	}
	if req.Notes != "" {
		notes = &req.Notes
	}

	// The conditional update still guards against a completion racing in
	// between the read above and this write; a lost race is answered as
	// an idempotent success by the manager.
	if _, err := h.interviews.Complete(r.Context(), token, transcriptRef, recordingRef, notes); err != nil {
		if errors.Is(err, interview.ErrNotFound) {
			writeError(w, http.StatusNotFound, "interview not found")
			return
		}
		log.Printf("failed to complete interview: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to complete interview")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}
