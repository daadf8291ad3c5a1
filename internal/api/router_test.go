package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/codegate/internal/audit"
	"github.com/stacklok/codegate/internal/provider"
	"github.com/stacklok/codegate/internal/tlscert"
	"github.com/stacklok/codegate/internal/workspace"
	"github.com/stacklok/codegate/pkg/models"
)

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	dir := t.TempDir()
	auditStore, err := audit.Open(filepath.Join(dir, "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { auditStore.Close() })

	ca, err := tlscert.LoadOrGenerate(filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key"))
	require.NoError(t, err)

	return &Handlers{
		Workspaces: workspace.NewRegistry(),
		Endpoints:  provider.NewEndpoints(),
		Audit:      auditStore,
		CA:         ca,
		Log:        zerolog.Nop(),
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHandlers(t)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAndListWorkspaces(t *testing.T) {
	h := newTestHandlers(t)
	router := NewRouter(h)

	body := strings.NewReader(`{"name":"team-a","custom_instructions":"be terse"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/workspaces/", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/workspaces/", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var workspaces []models.Workspace
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&workspaces))
	require.Len(t, workspaces, 2) // default + team-a
}

func TestActivateWorkspaceNotFound(t *testing.T) {
	h := newTestHandlers(t)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workspaces/does-not-exist/activate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArchiveDefaultWorkspaceForbidden(t *testing.T) {
	h := newTestHandlers(t)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workspaces/"+models.DefaultWorkspaceName+"/archive", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateProviderEndpoint(t *testing.T) {
	h := newTestHandlers(t)
	router := NewRouter(h)

	body := strings.NewReader(`{"name":"local-ollama","kind":"ollama","base_url":"http://localhost:11434","auth":"none"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/provider-endpoints/", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var ep models.ProviderEndpoint
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ep))
	require.NotEmpty(t, ep.ID)
	require.Equal(t, models.ProviderOllama, ep.Kind)
}

func TestCACertEndpointServesPEM(t *testing.T) {
	h := newTestHandlers(t)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/ca.crt", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "BEGIN CERTIFICATE")
}
