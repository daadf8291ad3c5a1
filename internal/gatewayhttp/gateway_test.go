package gatewayhttp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/codegate/internal/mux"
	"github.com/stacklok/codegate/internal/packageintel"
	"github.com/stacklok/codegate/internal/packageintel/vectorstore"
	"github.com/stacklok/codegate/internal/piidetect"
	"github.com/stacklok/codegate/internal/provider"
	"github.com/stacklok/codegate/internal/redaction"
	"github.com/stacklok/codegate/internal/signatures"
	"github.com/stacklok/codegate/internal/workspace"
	"github.com/stacklok/codegate/pkg/models"
)

type fakeResolver struct {
	endpoints map[string]*models.ProviderEndpoint
}

func (f *fakeResolver) ProviderEndpoint(id string) (*models.ProviderEndpoint, bool) {
	e, ok := f.endpoints[id]
	return e, ok
}

type fakeAudit struct{}

func (fakeAudit) RecordPrompt(models.PromptRecord) error { return nil }
func (fakeAudit) RecordOutput(models.OutputRecord) error { return nil }
func (fakeAudit) RecordAlert(models.AlertRecord) error   { return nil }

func newTestGateway(t *testing.T, upstreamURL string) *Gateway {
	t.Helper()
	catalog, err := signatures.LoadDefault()
	require.NoError(t, err)
	pii := piidetect.New()
	store, err := redaction.NewSubstitutionStore()
	require.NoError(t, err)
	vs := vectorstore.New()
	pkgEngine := packageintel.New(vs, nil)

	endpoint := &models.ProviderEndpoint{ID: "ep1", Name: "fake-openai", Kind: models.ProviderOpenAI, BaseURL: upstreamURL, Auth: models.AuthNone}
	router := mux.New(&fakeResolver{endpoints: map[string]*models.ProviderEndpoint{"ep1": endpoint}})

	registry := workspace.NewRegistry()
	require.NoError(t, registry.UpdateMuxRules(models.DefaultWorkspaceName, []models.MuxRule{
		{ProviderEndpointID: "ep1", ModelName: "gpt-4o", MatcherType: models.MatcherCatchAll},
	}))

	return New(Deps{
		Catalog:    catalog,
		PII:        pii,
		Packages:   pkgEngine,
		Router:     router,
		Workspaces: registry,
		Providers:  provider.NewRegistry(),
		Store:      store,
		Audit:      fakeAudit{},
		Transport:  provider.NewTransport(zerolog.Nop()),
		Log:        zerolog.Nop(),
	})
}

func TestGatewayRedactsSecretBeforeUpstreamAndRestoresInResponse(t *testing.T) {
	var capturedBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		capturedBody = string(body)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"got it\"}}]}\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer upstream.Close()

	gw := newTestGateway(t, upstream.URL)

	reqBody := `{"model":"gpt-4o","messages":[{"role":"user","content":"my key is sk-proj-abcdefghij1234567890ABCDEFGHIJ"}]}`
	req := httptest.NewRequest(http.MethodPost, "/openai/v1/chat/completions", strings.NewReader(reqBody))
	rec := httptest.NewRecorder()

	gw.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, capturedBody, "sk-proj-abcdefghij1234567890ABCDEFGHIJ")
	require.Contains(t, rec.Body.String(), "got it")
}

func TestGatewayUnknownPrefixReturns404(t *testing.T) {
	gw := newTestGateway(t, "http://localhost:0")
	req := httptest.NewRequest(http.MethodPost, "/not-a-provider/v1/chat/completions", nil)
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGatewayNoRouteReturnsBadRequest(t *testing.T) {
	gw := newTestGateway(t, "http://localhost:0")
	require.NoError(t, gw.deps.Workspaces.UpdateMuxRules(models.DefaultWorkspaceName, nil))

	reqBody := `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/openai/v1/chat/completions", strings.NewReader(reqBody))
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGatewayBlocksMaliciousPackageInfoRequest(t *testing.T) {
	gw := newTestGateway(t, "http://localhost:0")
	vs := vectorstore.New()
	require.NoError(t, vs.Upsert(context.Background(), []models.PackageRecord{
		{Ecosystem: "pypi", Name: "invokehttp", Status: models.StatusMalicious},
	}))
	gw.deps.Packages = packageintel.New(vs, nil)

	reqBody := `{"model":"gpt-4o","messages":[{"role":"user","content":"is it safe to install invokehttp?"}]}`
	req := httptest.NewRequest(http.MethodPost, "/openai/v1/chat/completions", strings.NewReader(reqBody))
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "invokehttp")
}
