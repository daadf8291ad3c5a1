package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/codegate/internal/provider"
	"github.com/stacklok/codegate/internal/redaction"
	"github.com/stacklok/codegate/internal/signatures"
	"github.com/stacklok/codegate/pkg/models"
)

// RequestStep is one stage of the request-side inspection chain. Steps
// run in the order they're registered in a RequestPipeline and are
// pure over their explicit inputs: all shared state lives on pc.
type RequestStep interface {
	Name() string
	Run(ctx context.Context, req *models.RequestRecord, pc *Context) Outcome
}

// RequestPipeline runs an ordered chain of RequestSteps, stopping at
// the first ReplyNow or Fail outcome.
type RequestPipeline struct {
	steps []RequestStep
}

// NewRequestPipeline builds the canonical eight-step chain: normalize,
// extract, malicious-package check, secret redact, PII redact, system
// prompt injection, mux resolution, then re-normalize to the resolved
// provider's wire shape.
func NewRequestPipeline() *RequestPipeline {
	return &RequestPipeline{steps: []RequestStep{
		NormalizeInStep{},
		FilenameHintExtractStep{},
		MaliciousPackageCheckStep{},
		SecretRedactStep{},
		PIIRedactStep{},
		SystemPromptInjectStep{},
		MuxResolveStep{},
		NormalizeOutStep{},
	}}
}

// Run executes every step in order. raw is the untouched wire body
// read off the client connection.
func (p *RequestPipeline) Run(ctx context.Context, raw []byte, pc *Context) Outcome {
	pc.RawRequest = raw
	pc.PromptID = uuid.NewString()

	// The active workspace is captured once, at entry, so an activation
	// change racing this request doesn't change which workspace it
	// completes under (spec: in-flight requests finish under the
	// workspace they started with).
	if pc.Workspaces != nil {
		pc.ResolvedWorkspace = pc.Workspaces.ActiveWorkspace()
	}

	var req *models.RequestRecord
	for _, step := range p.steps {
		out := step.Run(ctx, req, pc)
		switch out.Kind {
		case OutcomeContinue:
			req = out.Request
		case OutcomeReplyNow, OutcomeFail:
			return out
		}
	}
	return Continue(req)
}

// ── 1. NormalizeIn ──────────────────────────────────────────────

// NormalizeInStep parses the raw wire body into the common
// RequestRecord shape using the client-facing adapter (the provider
// dialect the caller believes it's speaking to).
type NormalizeInStep struct{}

func (NormalizeInStep) Name() string { return "normalize_in" }

func (NormalizeInStep) Run(_ context.Context, _ *models.RequestRecord, pc *Context) Outcome {
	if pc.InAdapter == nil {
		return Fail(ErrInternal, "no inbound adapter configured")
	}
	req, err := pc.InAdapter.NormalizeIn(pc.RawRequest)
	if err != nil {
		return Fail(ErrRoute, err.Error())
	}
	return Continue(req)
}

// ── 2. FilenameHintExtract ──────────────────────────────────────

// FilenameHintExtractStep pulls candidate filenames out of tool-result
// parts (editors send the open file's path alongside its content) so
// MuxResolve can later match filename_match rules. Package identifiers
// are extracted separately, inside packageintel.Evaluate.
type FilenameHintExtractStep struct{}

func (FilenameHintExtractStep) Name() string { return "filename_hint_extract" }

func (FilenameHintExtractStep) Run(_ context.Context, req *models.RequestRecord, pc *Context) Outcome {
	for _, m := range req.Messages {
		for _, p := range m.Parts {
			if p.Type == models.PartToolUse {
				if path, ok := p.ToolInput["path"].(string); ok && path != "" {
					pc.Filenames = append(pc.Filenames, path)
				}
				if path, ok := p.ToolInput["file_path"].(string); ok && path != "" {
					pc.Filenames = append(pc.Filenames, path)
				}
			}
		}
	}
	return Continue(req)
}

// ── 3. MaliciousPackageCheck ────────────────────────────────────

// MaliciousPackageCheckStep runs the package-intelligence policy over
// every text span in the request and short-circuits with ReplyNow when
// the user is asking about (not merely importing) a known-malicious
// package.
type MaliciousPackageCheckStep struct{}

func (MaliciousPackageCheckStep) Name() string { return "malicious_package_check" }

func (MaliciousPackageCheckStep) Run(ctx context.Context, req *models.RequestRecord, pc *Context) Outcome {
	if pc.Packages == nil {
		return Continue(req)
	}
	verdict, err := pc.Packages.Evaluate(ctx, pc.PromptID, req.AllText())
	if err != nil {
		pc.Log.Warn().Err(err).Msg("package policy evaluation failed, continuing")
		return Continue(req)
	}
	for _, a := range verdict.Alerts {
		pc.AddAlert(a)
	}
	if verdict.Blocked {
		return ReplyNow(verdict.ReplyMessage)
	}
	return Continue(req)
}

// ── 4. SecretRedact ─────────────────────────────────────────────

// SecretRedactStep finds and redacts secrets in every text span of the
// request, replacing each literal with a session-scoped placeholder.
// A panic inside signature matching is a RedactionFailure and aborts
// the request before anything is sent upstream — better to fail closed
// than let an unredacted secret leak.
type SecretRedactStep struct{}

func (SecretRedactStep) Name() string { return "secret_redact" }

func (s SecretRedactStep) Run(_ context.Context, req *models.RequestRecord, pc *Context) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Fail(ErrRedaction, fmt.Sprintf("panic during secret redaction: %v", r))
		}
	}()
	if pc.Catalog == nil {
		return Continue(req)
	}
	redactor := redaction.NewRedactor(pc.Store)

	redactText := func(text string) string {
		return s.redactText(pc.Catalog, redactor, text, &pc.RedactionCount)
	}

	if req.Kind == models.KindFIM {
		// FIM requests have no Messages array; scanning the prefix and
		// suffix directly is a cheaper single-pass check tuned to their
		// shape rather than walking an empty message list.
		req.FIMPrefix = redactText(req.FIMPrefix)
		req.FIMSuffix = redactText(req.FIMSuffix)
		return Continue(req)
	}

	if req.System != "" {
		req.System = redactText(req.System)
	}
	for i := range req.Messages {
		for j := range req.Messages[i].Parts {
			if req.Messages[i].Parts[j].Type != models.PartText {
				continue
			}
			req.Messages[i].Parts[j].Text = redactText(req.Messages[i].Parts[j].Text)
		}
	}
	return Continue(req)
}

// redactText finds secrets via catalog (named signatures plus the
// entropy fallback) and redacts them in place. FindInString reports
// line-relative offsets, so they're translated back to offsets within
// the whole string before building redaction Spans.
func (SecretRedactStep) redactText(catalog *signatures.Catalog, redactor *redaction.Redactor, text string, count *int) string {
	if text == "" {
		return text
	}
	matches := catalog.FindInString(text)
	if len(matches) == 0 {
		return text
	}

	lineStarts := make([]int, 0, strings.Count(text, "\n")+1)
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		lineStarts = append(lineStarts, offset)
		offset += len(line) + 1
	}

	spans := make([]redaction.Span, 0, len(matches))
	for _, m := range matches {
		if m.LineNumber-1 >= len(lineStarts) {
			continue
		}
		base := lineStarts[m.LineNumber-1]
		spans = append(spans, redaction.Span{
			Start:   base + m.Start,
			End:     base + m.End,
			Origin:  models.OriginSecret,
			Subtype: m.PatternName,
		})
	}
	*count += len(spans)
	return redactor.Redact(text, spans)
}

// ── 5. PIIRedact ────────────────────────────────────────────────

// PIIRedactStep finds and redacts PII spans the same way SecretRedact
// handles secrets, sharing the same session substitution store so a
// downstream response can unredact both kinds uniformly.
type PIIRedactStep struct{}

func (PIIRedactStep) Name() string { return "pii_redact" }

func (PIIRedactStep) Run(_ context.Context, req *models.RequestRecord, pc *Context) Outcome {
	if pc.PII == nil {
		return Continue(req)
	}
	redactor := redaction.NewRedactor(pc.Store)

	redactText := func(text string) string {
		spans := pc.PII.Find(text)
		if len(spans) == 0 {
			return text
		}
		rspans := make([]redaction.Span, len(spans))
		for i, sp := range spans {
			rspans[i] = redaction.Span{Start: sp.Start, End: sp.End, Origin: models.OriginPII, Subtype: string(sp.Subtype)}
		}
		pc.RedactionCount += len(spans)
		return redactor.Redact(text, rspans)
	}

	if req.Kind == models.KindFIM {
		req.FIMPrefix = redactText(req.FIMPrefix)
		req.FIMSuffix = redactText(req.FIMSuffix)
		return Continue(req)
	}

	if req.System != "" {
		req.System = redactText(req.System)
	}
	for i := range req.Messages {
		for j := range req.Messages[i].Parts {
			if req.Messages[i].Parts[j].Type != models.PartText {
				continue
			}
			req.Messages[i].Parts[j].Text = redactText(req.Messages[i].Parts[j].Text)
		}
	}
	return Continue(req)
}

// ── 6. SystemPromptInject ───────────────────────────────────────

// redactedPlaceholderPreamble tells the model that some request text
// has been replaced by opaque REDACTED<$id> placeholders, so it treats
// them as literal tokens rather than trying to guess or reconstruct
// the value they stand in for, and reproduces them verbatim in its
// reply so the response-side unredact step can restore them.
const redactedPlaceholderPreamble = "Some values in this conversation have been replaced with opaque placeholders of the form REDACTED<$id>. Treat each placeholder as an unknown literal token: do not attempt to guess, infer, or reconstruct the value it stands in for, and reproduce any placeholder you echo back exactly as given."

// SystemPromptInjectStep prepends the fixed redacted-placeholders
// safety preamble and the active workspace's custom instructions (or
// persona-selected system prompt) to the request's system message.
// pc.ResolvedWorkspace is captured once at pipeline entry, so this
// always sees the workspace the request started under.
type SystemPromptInjectStep struct{}

func (SystemPromptInjectStep) Name() string { return "system_prompt_inject" }

func (SystemPromptInjectStep) Run(_ context.Context, req *models.RequestRecord, pc *Context) Outcome {
	prefix := redactedPlaceholderPreamble
	if pc.ResolvedWorkspace != nil && pc.ResolvedWorkspace.CustomInstructions != "" {
		prefix = prefix + "\n\n" + pc.ResolvedWorkspace.CustomInstructions
	}
	if req.System == "" {
		req.System = prefix
	} else {
		req.System = prefix + "\n\n" + req.System
	}
	return Continue(req)
}

// ── 7. MuxResolve ───────────────────────────────────────────────

// MuxResolveStep picks the provider endpoint and model the request
// will actually be sent to, using the mux rules of the workspace
// captured at pipeline entry (pc.ResolvedWorkspace).
type MuxResolveStep struct{}

func (MuxResolveStep) Name() string { return "mux_resolve" }

func (MuxResolveStep) Run(_ context.Context, req *models.RequestRecord, pc *Context) Outcome {
	if pc.Router == nil {
		return Fail(ErrInternal, "mux router not configured")
	}
	ws := pc.ResolvedWorkspace
	if ws == nil {
		return Fail(ErrInternal, "no active workspace resolved")
	}

	affinity := req.Model
	if s, ok := req.LastUserMessage(); ok {
		affinity = s
	}
	decision, err := pc.Router.Resolve(ws.MuxRules, req, pc.Filenames, affinity)
	if err != nil {
		return Fail(ErrRoute, err.Error())
	}
	req.ResolvedProvider = decision.Endpoint
	req.ResolvedModel = decision.Model
	req.Workspace = ws.Name

	if !provider.SupportsProvider(decision.Endpoint.Kind) {
		return Fail(ErrRoute, fmt.Sprintf("unsupported provider kind %q", decision.Endpoint.Kind))
	}
	adapter, ok := pc.Providers.ForKind(decision.Endpoint.Kind)
	if !ok {
		return Fail(ErrRoute, fmt.Sprintf("no adapter registered for %q", decision.Endpoint.Kind))
	}
	pc.OutAdapter = adapter
	return Continue(req)
}

// ── 8. NormalizeOut ─────────────────────────────────────────────

// NormalizeOutStep serializes the (redacted, mux-resolved) request
// into the resolved provider's native wire body, ready to send
// upstream.
type NormalizeOutStep struct{}

func (NormalizeOutStep) Name() string { return "normalize_out" }

func (NormalizeOutStep) Run(_ context.Context, req *models.RequestRecord, pc *Context) Outcome {
	if pc.OutAdapter == nil {
		return Fail(ErrInternal, "no outbound adapter resolved")
	}
	body, err := pc.OutAdapter.NormalizeOut(req)
	if err != nil {
		return Fail(ErrInternal, err.Error())
	}
	pc.OutgoingBody = body

	if pc.Audit != nil {
		_ = pc.Audit.RecordPrompt(models.PromptRecord{
			ID:          pc.PromptID,
			WorkspaceID: pc.ResolvedWorkspace.ID,
			Timestamp:   time.Now().UTC(),
			Provider:    string(req.ResolvedProvider.Kind),
			Request:     string(body),
			Type:        string(req.Kind),
		})
	}
	return Continue(req)
}
