package handler

import (
	"net/http"

	"github.com/tinyteamco/verity-sub000/internal/database"
	"github.com/tinyteamco/verity-sub000/internal/identity"
	"github.com/tinyteamco/verity-sub000/internal/interview"
	mw "github.com/tinyteamco/verity-sub000/internal/middleware"
	"github.com/tinyteamco/verity-sub000/internal/org"
	"github.com/tinyteamco/verity-sub000/internal/participant"
	"github.com/tinyteamco/verity-sub000/internal/storage"
	"github.com/tinyteamco/verity-sub000/internal/study"
	"github.com/tinyteamco/verity-sub000/internal/user"
)

// Deps holds the dependencies shared by all HTTP handlers.
type Deps struct {
	DB           *database.DB
	Orgs         *org.Manager
	Users        *user.Manager
	Studies      *study.Manager
	Interviews   *interview.Manager
	Participants *participant.Manager
	Verifier     identity.Verifier
	Store        storage.ObjectStore

	// EngineBaseURL is the interview engine the link resolver redirects to.
	EngineBaseURL string
}

// RegisterRoutes mounts all routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, deps *Deps) {
	healthHandler := NewHealthHandler(deps.DB)
	orgsHandler := NewOrgsHandler(deps.Orgs, deps.Users)
	studiesHandler := NewStudiesHandler(deps.Studies, deps.Interviews, deps.Users)
	publicHandler := NewPublicHandler(deps.Studies, deps.Interviews, deps.EngineBaseURL)
	claimHandler := NewClaimHandler(deps.Participants)
	artifactsHandler := NewArtifactsHandler(deps.Interviews, deps.Studies, deps.Users, deps.Store)

	researcher := func(h http.HandlerFunc) http.Handler {
		return mw.RequireIdentity(deps.Verifier, identity.RealmResearcher)(h)
	}
	participantAuth := func(h http.HandlerFunc) http.Handler {
		return mw.RequireIdentity(deps.Verifier, identity.RealmParticipant)(h)
	}

	mux.HandleFunc("GET /health", healthHandler.Health)

	// Researcher API. Membership is resolved from the verified token.
	mux.Handle("POST /orgs", researcher(orgsHandler.Create))
	mux.Handle("GET /orgs/current", researcher(orgsHandler.GetCurrent))
	mux.Handle("GET /orgs/current/users", researcher(orgsHandler.ListUsers))
	mux.Handle("POST /orgs/current/users", researcher(orgsHandler.CreateUser))

	mux.Handle("POST /studies", researcher(studiesHandler.Create))
	mux.Handle("GET /studies", researcher(studiesHandler.List))
	mux.Handle("GET /studies/{studyID}", researcher(studiesHandler.Get))
	mux.Handle("PATCH /studies/{studyID}", researcher(studiesHandler.Update))
	mux.Handle("DELETE /studies/{studyID}", researcher(studiesHandler.Delete))
	mux.Handle("PUT /studies/{studyID}/guide", researcher(studiesHandler.UpsertGuide))
	mux.Handle("GET /studies/{studyID}/guide", researcher(studiesHandler.GetGuide))
	mux.Handle("POST /studies/{studyID}/interviews", researcher(studiesHandler.CreateInterviewLink))
	mux.Handle("GET /studies/{studyID}/interviews", researcher(studiesHandler.ListInterviews))
	mux.Handle("GET /studies/{studyID}/interviews/{interviewID}", researcher(studiesHandler.GetInterview))

	// Artifact proxy. The tenant segment in the path is advisory; the
	// real tenant check resolves the interview's owning org server-side.
	mux.Handle("GET /orgs/{tenantID}/interviews/{interviewID}/artifacts/{name}", researcher(artifactsHandler.Get))

	// Public interview surface. No researcher identity involved.
	mux.Handle("GET /study/{slug}/start", mw.PublicCORS(http.HandlerFunc(publicHandler.Start)))
	mux.Handle("GET /interview/{accessToken}", mw.PublicCORS(http.HandlerFunc(publicHandler.Get)))
	mux.Handle("POST /interview/{accessToken}/complete", mw.PublicCORS(http.HandlerFunc(publicHandler.Complete)))

	// Claiming requires a participant-realm identity.
	mux.Handle("POST /interview/{accessToken}/claim", participantAuth(claimHandler.Claim))
}
