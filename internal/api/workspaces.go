package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/codegate/internal/workspace"
	"github.com/stacklok/codegate/pkg/models"
)

type createWorkspaceRequest struct {
	Name               string `json:"name"`
	CustomInstructions string `json:"custom_instructions"`
}

func (h *Handlers) listWorkspaces(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Workspaces.List())
}

func (h *Handlers) createWorkspace(w http.ResponseWriter, r *http.Request) {
	var req createWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	ws, err := h.Workspaces.Create(req.Name, req.CustomInstructions)
	if err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, ws)
}

func (h *Handlers) getWorkspace(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ws, err := h.Workspaces.Get(name)
	if err != nil {
		writeWorkspaceErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ws)
}

func (h *Handlers) activateWorkspace(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.Workspaces.Activate(name); err != nil {
		writeWorkspaceErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.Workspaces.CurrentSession())
}

func (h *Handlers) archiveWorkspace(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.Workspaces.Archive(name); err != nil {
		writeWorkspaceErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) recoverWorkspace(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.Workspaces.Recover(name); err != nil {
		writeWorkspaceErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) deleteWorkspace(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.Workspaces.SoftDelete(name); err != nil {
		writeWorkspaceErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) getMuxRules(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ws, err := h.Workspaces.Get(name)
	if err != nil {
		writeWorkspaceErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ws.MuxRules)
}

func (h *Handlers) putMuxRules(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var rules []models.MuxRule
	if err := json.NewDecoder(r.Body).Decode(&rules); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.Workspaces.UpdateMuxRules(name, rules); err != nil {
		writeWorkspaceErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeWorkspaceErr(w http.ResponseWriter, err error) {
	var notFound *workspace.ErrNotFound
	switch {
	case errors.As(err, &notFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, workspace.ErrDefaultImmutable):
		respondError(w, http.StatusForbidden, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
