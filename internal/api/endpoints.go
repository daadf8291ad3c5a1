package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/codegate/internal/provider"
	"github.com/stacklok/codegate/pkg/models"
)

func (h *Handlers) listEndpoints(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Endpoints.List())
}

func (h *Handlers) createEndpoint(w http.ResponseWriter, r *http.Request) {
	var ep models.ProviderEndpoint
	if err := json.NewDecoder(r.Body).Decode(&ep); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := h.Endpoints.Create(ep)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handlers) updateEndpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var ep models.ProviderEndpoint
	if err := json.NewDecoder(r.Body).Decode(&ep); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	updated, err := h.Endpoints.Update(id, ep)
	if err != nil {
		writeEndpointErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (h *Handlers) deleteEndpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Endpoints.Delete(id); err != nil {
		writeEndpointErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeEndpointErr(w http.ResponseWriter, err error) {
	var notFound *provider.ErrEndpointNotFound
	if errors.As(err, &notFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}
