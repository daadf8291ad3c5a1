// Package models defines the common data shapes shared across the CodeGate
// gateway: workspaces, provider endpoints, the normalized request/response
// wire shape, and the audit-log entities.
package models

import "time"

// ── Workspace ────────────────────────────────────────────────

// WorkspaceState is the lifecycle state of a Workspace.
type WorkspaceState string

const (
	WorkspaceActive   WorkspaceState = "active"
	WorkspaceArchived WorkspaceState = "archived"
)

// DefaultWorkspaceName is the built-in workspace that always exists and
// can be neither archived nor deleted.
const DefaultWorkspaceName = "default"

// Workspace is a named configuration bundle scoping mux rules and custom
// instructions for requests made while it is the active workspace.
type Workspace struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	State              WorkspaceState `json:"state"`
	CustomInstructions string         `json:"custom_instructions,omitempty"`
	MuxRules           []MuxRule      `json:"mux_rules"`
	CreatedAt          time.Time      `json:"created_at"`
	DeletedAt          *time.Time     `json:"deleted_at,omitempty"`
}

// IsDefault reports whether this is the built-in default workspace.
func (w *Workspace) IsDefault() bool {
	return w.Name == DefaultWorkspaceName
}

// SoftDeleted reports whether the workspace has been soft-deleted and is
// still recoverable.
func (w *Workspace) SoftDeleted() bool {
	return w.DeletedAt != nil
}

// MatcherType enumerates the supported mux rule matcher kinds.
type MatcherType string

const (
	MatcherCatchAll         MatcherType = "catch_all"
	MatcherFilenameMatch    MatcherType = "filename_match"
	MatcherRequestTypeMatch MatcherType = "request_type_match"
	// MatcherExprMatch evaluates an arbitrary boolean expr-lang expression
	// against the request; not in the base spec's matcher set but named by
	// its "…" open-ended enumeration.
	MatcherExprMatch MatcherType = "expr_match"
)

// MuxRule routes a request to a provider+model when its matcher matches.
// Rules are evaluated top-to-bottom; the first match wins.
type MuxRule struct {
	ProviderEndpointID string      `json:"provider_endpoint_id"`
	ModelName          string      `json:"model_name"`
	MatcherType        MatcherType `json:"matcher_type"`
	Matcher            string      `json:"matcher"`
}

// ── ProviderEndpoint ─────────────────────────────────────────

// ProviderKind is the closed set of upstream wire dialects CodeGate speaks.
type ProviderKind string

const (
	ProviderOpenAI     ProviderKind = "openai"
	ProviderAnthropic  ProviderKind = "anthropic"
	ProviderOllama     ProviderKind = "ollama"
	ProviderLlamaCpp   ProviderKind = "llamacpp"
	ProviderVLLM       ProviderKind = "vllm"
	ProviderOpenRouter ProviderKind = "openrouter"
	ProviderLMStudio   ProviderKind = "lm_studio"
	ProviderCopilot    ProviderKind = "copilot"
)

// AuthKind is how CodeGate authenticates to a ProviderEndpoint.
type AuthKind string

const (
	AuthNone   AuthKind = "none"
	AuthAPIKey AuthKind = "api_key"
	AuthBearer AuthKind = "bearer"
)

// ProviderEndpoint is a configured upstream LLM provider. Global, not
// workspace-scoped.
type ProviderEndpoint struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Kind    ProviderKind `json:"kind"`
	BaseURL string       `json:"base_url"`
	Auth    AuthKind     `json:"auth"`
	APIKey  string       `json:"-"` // secret; never serialized
}

// ── Session ──────────────────────────────────────────────────

// Session is the single "current" session driving routing and redaction
// scope. Exactly one session is current at any time.
type Session struct {
	ID                string    `json:"id"`
	ActiveWorkspaceID string    `json:"active_workspace_id"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ── Common request/response shape ───────────────────────────

// RequestKind is the kind of LLM operation being requested.
type RequestKind string

const (
	KindChat       RequestKind = "chat"
	KindFIM        RequestKind = "fim"
	KindCompletion RequestKind = "completion"
	KindEmbeddings RequestKind = "embeddings"
)

// PartType discriminates the union carried by Part.
type PartType string

const (
	PartText       PartType = "text"
	PartToolUse    PartType = "tool_use"
	PartToolResult PartType = "tool_result"
	PartImageRef   PartType = "image_ref"
)

// Part is one unit of message content. Exactly one of the type-specific
// fields is populated, selected by Type.
type Part struct {
	Type PartType `json:"type"`

	Text string `json:"text,omitempty"`

	ToolUseID   string          `json:"tool_use_id,omitempty"`
	ToolName    string          `json:"tool_name,omitempty"`
	ToolInput   map[string]any  `json:"tool_input,omitempty"`
	ToolResult  string          `json:"tool_result,omitempty"`
	ToolIsError bool            `json:"tool_is_error,omitempty"`
	ImageRef    string          `json:"image_ref,omitempty"`
	ImageMime   string          `json:"image_mime,omitempty"`
}

// TextPart is a convenience constructor for the common case.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// Message is one turn in a RequestRecord's ordered conversation.
type Message struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// FirstText returns the text of the first text Part in the message, if any.
func (m Message) FirstText() (string, bool) {
	for _, p := range m.Parts {
		if p.Type == PartText {
			return p.Text, true
		}
	}
	return "", false
}

// RequestRecord is the provider-agnostic common shape every provider
// normalizer converts to/from.
type RequestRecord struct {
	Kind        RequestKind    `json:"kind"`
	System      string         `json:"system,omitempty"`
	Messages    []Message      `json:"messages"`
	Model       string         `json:"model"`
	Stream      bool           `json:"stream"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
	Stop        []string       `json:"stop,omitempty"`

	// RawProviderFields retains the untouched provider-native envelope so
	// a round trip to the same provider is byte-equivalent unless mutated.
	RawProviderFields map[string]any `json:"-"`

	// FIMPrefix/FIMSuffix are populated for RequestKind == KindFIM.
	FIMPrefix string `json:"fim_prefix,omitempty"`
	FIMSuffix string `json:"fim_suffix,omitempty"`

	// resolved by MuxResolve; not part of the wire shape.
	ResolvedProvider *ProviderEndpoint `json:"-"`
	ResolvedModel    string            `json:"-"`
	Workspace        string            `json:"-"`
}

// LastUserMessage returns the text of the most recent "user" role message.
func (r *RequestRecord) LastUserMessage() (string, bool) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].FirstText()
		}
	}
	return "", false
}

// AllText returns every text Part across every message, in order, plus the
// system prompt if present. Used by detectors that scan whole-request text.
func (r *RequestRecord) AllText() []string {
	var out []string
	if r.System != "" {
		out = append(out, r.System)
	}
	for _, m := range r.Messages {
		for _, p := range m.Parts {
			if p.Type == PartText && p.Text != "" {
				out = append(out, p.Text)
			}
		}
	}
	if r.FIMPrefix != "" {
		out = append(out, r.FIMPrefix)
	}
	if r.FIMSuffix != "" {
		out = append(out, r.FIMSuffix)
	}
	return out
}

// ── Streaming ────────────────────────────────────────────────

// ChunkDeltaKind discriminates the union carried by a StreamChunk's delta.
type ChunkDeltaKind string

const (
	DeltaText     ChunkDeltaKind = "text"
	DeltaToolCall ChunkDeltaKind = "tool_call"
	DeltaFinish   ChunkDeltaKind = "finish"
	DeltaError    ChunkDeltaKind = "error"
)

// StreamChunk is one totally-ordered unit of a streaming response.
type StreamChunk struct {
	Seq   uint64         `json:"seq"`
	Kind  ChunkDeltaKind `json:"kind"`
	Text  string         `json:"text,omitempty"`
	Err   string         `json:"error,omitempty"`

	// ProviderMeta carries provider-specific fields (finish_reason, usage,
	// tool call ids, ...) needed to denormalize back to the wire shape.
	ProviderMeta map[string]any `json:"-"`
}

// ── Redaction ────────────────────────────────────────────────

// SpanOrigin identifies which detector family produced a SubstitutionEntry.
type SpanOrigin string

const (
	OriginSecret SpanOrigin = "secret"
	OriginPII    SpanOrigin = "pii"
)

// SubstitutionEntry is one literal⇄placeholder mapping, scoped to a session.
type SubstitutionEntry struct {
	Placeholder  string     `json:"placeholder"`
	Literal      string     `json:"-"` // never serialized
	SpanOrigin   SpanOrigin `json:"span_origin"`
	Subtype      string     `json:"subtype"`
	DiscoveredAt time.Time  `json:"discovered_at"`
}

// ── Alerts & audit log ───────────────────────────────────────

// TriggerType classifies what caused an AlertRecord to be raised.
type TriggerType string

const (
	TriggerSecret             TriggerType = "secret"
	TriggerPII                TriggerType = "pii"
	TriggerMaliciousPackage   TriggerType = "malicious_package"
	TriggerDeprecatedPackage  TriggerType = "deprecated_package"
	TriggerArchivedPackage    TriggerType = "archived_package"
	TriggerPolicy             TriggerType = "policy"
)

// AlertRecord documents one inspection finding for the audit log.
type AlertRecord struct {
	ID             string      `json:"id"`
	PromptID       string      `json:"prompt_id"`
	CodeSnippet    string      `json:"code_snippet,omitempty"`
	TriggerString  string      `json:"trigger_string,omitempty"`
	TriggerType    TriggerType `json:"trigger_type"`
	TriggerCategory string     `json:"trigger_category,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// PromptRecord is the audit-log entry for an inbound request.
type PromptRecord struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Timestamp   time.Time `json:"timestamp"`
	Provider    string    `json:"provider"`
	Request     string    `json:"request"` // JSON-encoded
	Type        string    `json:"type"`
}

// OutputRecord is the audit-log entry for the response to a PromptRecord.
type OutputRecord struct {
	ID        string    `json:"id"`
	PromptID  string    `json:"prompt_id"`
	Timestamp time.Time `json:"timestamp"`
	Output    string    `json:"output"` // JSON-encoded
}

// ── Package intelligence ────────────────────────────────────

// PackageStatus is the outcome of a vector-index lookup for a package.
type PackageStatus string

const (
	StatusMalicious PackageStatus = "malicious"
	StatusDeprecated PackageStatus = "deprecated"
	StatusArchived   PackageStatus = "archived"
	StatusOK         PackageStatus = "ok"
	StatusUnknown    PackageStatus = "unknown"
)

// PackageRecord is one row of the package-intelligence vector index.
type PackageRecord struct {
	Ecosystem    string    `json:"ecosystem"`
	Name         string    `json:"name"`
	Status       PackageStatus `json:"status"`
	AdvisoryURL  string    `json:"advisory_url,omitempty"`
	Embedding    []float64 `json:"-"`
}

// PackageLocation is where an ExtractedPackage was found in the request.
type PackageLocation string

const (
	LocationCodeImport PackageLocation = "code_import"
	LocationManifest   PackageLocation = "manifest"
	LocationFreeText   PackageLocation = "free_text"
)

// ExtractedPackage is one package reference pulled out of a request by the
// code/token extractor.
type ExtractedPackage struct {
	Ecosystem string          `json:"ecosystem"`
	Name      string          `json:"name"`
	Location  PackageLocation `json:"location"`
}

// PackageLookupResult is the outcome of a vector-index nearest-neighbor
// lookup for one extracted package.
type PackageLookupResult struct {
	Package     ExtractedPackage `json:"package"`
	BestMatch   string           `json:"best_match"`
	Ecosystem   string           `json:"ecosystem,omitempty"`
	Score       float64          `json:"score"`
	Status      PackageStatus    `json:"status"`
	AdvisoryURL string           `json:"advisory_url,omitempty"`
}
