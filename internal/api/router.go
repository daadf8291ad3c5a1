// Package api implements the management API: provider-endpoint and
// workspace CRUD, mux-rule editing, workspace activation, and
// prompt/output/alert history readout.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/stacklok/codegate/internal/api/middleware"
	"github.com/stacklok/codegate/internal/audit"
	"github.com/stacklok/codegate/internal/provider"
	"github.com/stacklok/codegate/internal/tlscert"
	"github.com/stacklok/codegate/internal/workspace"
)

// dashboardSessionTTL bounds how long an embedded-dashboard session
// token is valid before the browser has to re-present the operator
// API key.
const dashboardSessionTTL = 12 * time.Hour

// Handlers holds every collaborator the management API dispatches to.
type Handlers struct {
	Workspaces *workspace.Registry
	Endpoints  *provider.Endpoints
	Audit      *audit.Store
	CA         *tlscert.CA
	Log        zerolog.Logger

	sessions *middleware.SessionIssuer
}

// NewRouter builds the management API's http.Handler.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	auth := middleware.NewAPIKeyAuth()
	if sessions, err := middleware.NewSessionIssuer(dashboardSessionTTL); err == nil {
		auth.SetSessions(sessions)
		h.sessions = sessions
	} else {
		h.Log.Warn().Err(err).Msg("failed to initialize dashboard session issuer; sessions disabled")
	}

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger(h.Log))
	r.Use(auth.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", h.health)
	r.Get("/ca.crt", h.serveCACert)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/token", h.issueSessionToken)

		r.Route("/provider-endpoints", func(r chi.Router) {
			r.Get("/", h.listEndpoints)
			r.Post("/", h.createEndpoint)
			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", h.updateEndpoint)
				r.Delete("/", h.deleteEndpoint)
			})
		})

		r.Route("/workspaces", func(r chi.Router) {
			r.Get("/", h.listWorkspaces)
			r.Post("/", h.createWorkspace)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", h.getWorkspace)
				r.Post("/activate", h.activateWorkspace)
				r.Post("/archive", h.archiveWorkspace)
				r.Post("/recover", h.recoverWorkspace)
				r.Delete("/", h.deleteWorkspace)
				r.Get("/muxes", h.getMuxRules)
				r.Put("/muxes", h.putMuxRules)
			})
		})

		r.Get("/prompts", h.listPrompts)
		r.Get("/prompts/{id}/outputs", h.listOutputs)
		r.Get("/alerts", h.listAlerts)
	})

	return r
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) serveCACert(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-pem-file")
	_, _ = w.Write(h.CA.CertPEM())
}

// issueSessionToken exchanges a request that already cleared the
// operator-key middleware for a short-lived dashboard session token,
// so the browser doesn't have to keep resending the operator key.
func (h *Handlers) issueSessionToken(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		respondError(w, http.StatusServiceUnavailable, "session issuance unavailable")
		return
	}
	token, err := h.sessions.Issue()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
