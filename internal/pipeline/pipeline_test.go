package pipeline

import (
	"context"
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

type fakeAudit struct {
	prompts []models.PromptRecord
	outputs []models.OutputRecord
	alerts  []models.AlertRecord
}

func (f *fakeAudit) RecordPrompt(rec models.PromptRecord) error { f.prompts = append(f.prompts, rec); return nil }
func (f *fakeAudit) RecordOutput(rec models.OutputRecord) error { f.outputs = append(f.outputs, rec); return nil }
func (f *fakeAudit) RecordAlert(rec models.AlertRecord) error   { f.alerts = append(f.alerts, rec); return nil }

func newTestContext(t *testing.T) (*Context, *fakeAudit) {
	t.Helper()
	catalog, err := signatures.LoadDefault()
	require.NoError(t, err)

	pii := piidetect.New()
	store, err := redaction.NewSubstitutionStore()
	require.NoError(t, err)

	vs := vectorstore.New()
	require.NoError(t, vs.Upsert(context.Background(), []models.PackageRecord{
		{Ecosystem: "pypi", Name: "invokehttp", Status: models.StatusMalicious},
	}))
	pkgEngine := packageintel.New(vs, nil)

	endpoint := &models.ProviderEndpoint{ID: "ep1", Name: "openai-main", Kind: models.ProviderOpenAI, BaseURL: "https://api.openai.com", Auth: models.AuthAPIKey, APIKey: "sk-test"}
	router := mux.New(&fakeResolver{endpoints: map[string]*models.ProviderEndpoint{"ep1": endpoint}})

	registry := workspace.NewRegistry()
	require.NoError(t, registry.UpdateMuxRules(models.DefaultWorkspaceName, []models.MuxRule{
		{ProviderEndpointID: "ep1", ModelName: "gpt-4o", MatcherType: models.MatcherCatchAll},
	}))

	audit := &fakeAudit{}
	pc := NewContext(catalog, pii, pkgEngine, router, registry, provider.NewRegistry(), store, audit, zerolog.Nop())
	pc.InAdapter = provider.NewOpenAI()
	return pc, audit
}

func TestRequestPipelineRedactsSecretAndRoutes(t *testing.T) {
	pc, audit := newTestContext(t)
	raw := []byte(`{"model":"gpt-4o","messages":[{"role":"user","content":"my key is sk-proj-abcdefghij1234567890ABCDEFGHIJ"}]}`)

	outcome := NewRequestPipeline().Run(context.Background(), raw, pc)
	require.Equal(t, OutcomeContinue, outcome.Kind)
	require.NotContains(t, string(pc.OutgoingBody), "sk-proj-abcdefghij1234567890ABCDEFGHIJ")
	require.Equal(t, "openai-main", outcome.Request.ResolvedProvider.Name)
	require.Equal(t, "gpt-4o", outcome.Request.ResolvedModel)
	require.Len(t, audit.prompts, 1)
}

func TestRequestPipelineNoRouteFails(t *testing.T) {
	pc, _ := newTestContext(t)
	require.NoError(t, pc.Workspaces.UpdateMuxRules(models.DefaultWorkspaceName, nil))
	raw := []byte(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)

	outcome := NewRequestPipeline().Run(context.Background(), raw, pc)
	require.Equal(t, OutcomeFail, outcome.Kind)
	require.Equal(t, ErrRoute, outcome.Err.Kind)
}

func TestRequestPipelineBlocksMaliciousPackageInfoRequest(t *testing.T) {
	pc, _ := newTestContext(t)
	raw := []byte(`{"model":"gpt-4o","messages":[{"role":"user","content":"is it safe to install invokehttp?"}]}`)

	outcome := NewRequestPipeline().Run(context.Background(), raw, pc)
	require.Equal(t, OutcomeReplyNow, outcome.Kind)
	require.Contains(t, outcome.ReplyText, "invokehttp")
}

func TestResponsePipelineUnredactsAndPersists(t *testing.T) {
	pc, audit := newTestContext(t)
	id := pc.Store.Put("secret-literal-value", models.OriginSecret, "generic")
	pc.RedactionCount = 1
	pc.PromptID = "prompt-1"

	rp := NewResponsePipeline()
	placeholder := redaction.PlaceholderPrefix + id + redaction.PlaceholderSuffix
	var out []models.StreamChunk
	out = append(out, rp.Push(models.StreamChunk{Kind: models.DeltaText, Text: "here is your value: " + placeholder}, pc)...)
	out = append(out, rp.Push(models.StreamChunk{Kind: models.DeltaFinish}, pc)...)
	out = append(out, rp.Flush(pc)...)

	var text string
	for _, c := range out {
		text += c.Text
	}
	require.Contains(t, text, "secret-literal-value")
	require.Contains(t, text, "CodeGate prevented 1 secret")
	require.Len(t, audit.outputs, 1)
}
