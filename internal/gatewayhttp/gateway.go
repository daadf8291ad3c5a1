// Package gatewayhttp implements the clear-HTTP gateway front: it maps
// each configured provider path prefix (and the generic mux entry) to
// the pipeline, drives the request through it, forwards to the
// resolved upstream, and streams the (possibly mutated) response back
// to the client.
//
// Every response leaves this gateway as a provider-native
// server-sent-event stream, even when the client's request didn't set
// stream:true — one settled simplification so the response side only
// ever has to deal with the streaming Adapter surface
// (NewStreamDecoder/EncodeStream), which is also what the response
// pipeline's sliding-window unredact step is built around.
package gatewayhttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stacklok/codegate/internal/mux"
	"github.com/stacklok/codegate/internal/packageintel"
	"github.com/stacklok/codegate/internal/piidetect"
	"github.com/stacklok/codegate/internal/pipeline"
	"github.com/stacklok/codegate/internal/provider"
	"github.com/stacklok/codegate/internal/redaction"
	"github.com/stacklok/codegate/internal/signatures"
	"github.com/stacklok/codegate/internal/workspace"
	"github.com/stacklok/codegate/pkg/models"
)

// prefixKinds maps each clear-HTTP path prefix to the wire dialect the
// client speaks on that prefix. The mux entry has no fixed dialect; it
// defaults to the OpenAI-compatible shape, the lowest common
// denominator most coding-assistant clients already speak.
var prefixKinds = map[string]models.ProviderKind{
	"/openai":     models.ProviderOpenAI,
	"/anthropic":  models.ProviderAnthropic,
	"/ollama":     models.ProviderOllama,
	"/vllm":       models.ProviderVLLM,
	"/llamacpp":   models.ProviderLlamaCpp,
	"/openrouter": models.ProviderOpenRouter,
	"/lm-studio":  models.ProviderLMStudio,
	"/copilot":    models.ProviderCopilot,
}

const muxPrefix = "/v1/mux"

// Deps are the long-lived collaborators shared by every request; a
// fresh pipeline.Context is built from these for each request so
// concurrent requests never share per-request state.
type Deps struct {
	Catalog    *signatures.Catalog
	PII        *piidetect.Detector
	Packages   *packageintel.Engine
	Router     *mux.Router
	Workspaces *workspace.Registry
	Providers  *provider.Registry
	Store      *redaction.SubstitutionStore
	Audit      pipeline.AuditSink
	Transport  *provider.Transport
	Log        zerolog.Logger
}

// Gateway is the http.Handler mounted on the clear-HTTP port and, via
// the same ServeHTTP, on the plaintext side of the TLS-intercepted
// connection.
type Gateway struct {
	deps Deps
}

// New builds a Gateway.
func New(deps Deps) *Gateway {
	return &Gateway{deps: deps}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	kind, ok := resolveKind(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	inAdapter, ok := g.deps.Providers.ForKind(kind)
	if !ok {
		respondErr(w, http.StatusBadGateway, "no adapter registered for provider")
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		respondErr(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	pc := pipeline.NewContext(
		g.deps.Catalog, g.deps.PII, g.deps.Packages, g.deps.Router,
		g.deps.Workspaces, g.deps.Providers, g.deps.Store, g.deps.Audit, g.deps.Log,
	)
	pc.InAdapter = inAdapter

	reqPipeline := pipeline.NewRequestPipeline()
	outcome := reqPipeline.Run(r.Context(), raw, pc)

	switch outcome.Kind {
	case pipeline.OutcomeFail:
		respondErr(w, statusForError(outcome.Err.Kind), outcome.Err.Detail)
		return
	case pipeline.OutcomeReplyNow:
		g.streamReply(w, pc.InAdapter, outcome.ReplyText)
		return
	}

	g.forwardAndStream(w, r.Context(), pc, outcome.Request)
}

func resolveKind(path string) (models.ProviderKind, bool) {
	if strings.HasPrefix(path, muxPrefix) {
		return models.ProviderOpenAI, true
	}
	for prefix, kind := range prefixKinds {
		if strings.HasPrefix(path, prefix) {
			return kind, true
		}
	}
	return "", false
}

// streamReply sends a synthetic ReplyNow message (e.g. the
// malicious-package block notice) as a one-chunk SSE stream in the
// client's own wire dialect, without contacting any upstream.
func (g *Gateway) streamReply(w http.ResponseWriter, adapter provider.Adapter, text string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)

	chunks := []models.StreamChunk{
		{Seq: 0, Kind: models.DeltaText, Text: text},
		{Seq: 1, Kind: models.DeltaFinish},
	}
	body, err := adapter.EncodeStream(chunks)
	if err != nil {
		g.deps.Log.Warn().Err(err).Msg("failed to encode synthetic reply")
		return
	}
	_, _ = w.Write(body)
}

func (g *Gateway) forwardAndStream(w http.ResponseWriter, ctx context.Context, pc *pipeline.Context, req *models.RequestRecord) {
	endpoint := req.ResolvedProvider
	path := provider.EndpointPath(endpoint.Kind, req.Kind)

	resp, err := g.deps.Transport.Send(ctx, endpoint, path, pc.OutgoingBody, true)
	if err != nil {
		respondErr(w, http.StatusBadGateway, "upstream request failed: "+err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		w.WriteHeader(resp.StatusCode)
		_, _ = io.Copy(w, resp.Body)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)

	respPipeline := pipeline.NewResponsePipeline()
	decoder := pc.OutAdapter.NewStreamDecoder()
	buf := make([]byte, 4096)
	var seq uint64

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			upstreamChunks, decErr := decoder.Decode(buf[:n])
			if decErr != nil {
				g.deps.Log.Warn().Err(decErr).Msg("failed to decode upstream stream chunk")
			}
			for i := range upstreamChunks {
				upstreamChunks[i].Seq = seq
				seq++
				out := respPipeline.Push(upstreamChunks[i], pc)
				g.writeChunks(w, pc.InAdapter, out, flusher, canFlush)
			}
		}
		if readErr != nil {
			break
		}
	}

	final := respPipeline.Flush(pc)
	g.writeChunks(w, pc.InAdapter, final, flusher, canFlush)
}

func (g *Gateway) writeChunks(w http.ResponseWriter, adapter provider.Adapter, chunks []models.StreamChunk, flusher http.Flusher, canFlush bool) {
	if len(chunks) == 0 {
		return
	}
	body, err := adapter.EncodeStream(chunks)
	if err != nil {
		g.deps.Log.Warn().Err(err).Msg("failed to encode response chunk")
		return
	}
	_, _ = w.Write(body)
	if canFlush {
		flusher.Flush()
	}
}

func statusForError(kind pipeline.ErrorKind) int {
	switch kind {
	case pipeline.ErrConfig:
		return http.StatusInternalServerError
	case pipeline.ErrRoute:
		return http.StatusBadRequest
	case pipeline.ErrAuth:
		return http.StatusUnauthorized
	case pipeline.ErrUpstream:
		return http.StatusBadGateway
	case pipeline.ErrRedaction:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func respondErr(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"message": message},
	})
}
