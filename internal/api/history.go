package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/codegate/internal/audit"
)

func (h *Handlers) listPrompts(w http.ResponseWriter, r *http.Request) {
	filter := audit.ListPromptsFilter{
		WorkspaceID: r.URL.Query().Get("workspace_id"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Limit = n
		}
	}
	prompts, err := h.Audit.ListPrompts(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, prompts)
}

func (h *Handlers) listOutputs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	outputs, err := h.Audit.ListOutputs(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, outputs)
}

func (h *Handlers) listAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	alerts, err := h.Audit.ListAlerts(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, alerts)
}
