package provider

import "github.com/stacklok/codegate/pkg/models"

// Capability records a model's static, locally-known facts. Unlike the
// network-fetched catalog this is adapted from, CodeGate never phones
// home for model metadata: everything here ships with the binary, and
// an unlisted model just falls back to the conservative defaults in
// Lookup.
type Capability struct {
	ModelID           string
	ContextWindow     int
	MaxOutputTokens   int
	SupportsStreaming bool
	SupportsTools     bool
}

// builtinCapabilities is a small set of well-known local and hosted
// models so context-window enforcement and FIM eligibility work
// out of the box.
var builtinCapabilities = []Capability{
	{ModelID: "gpt-4o", ContextWindow: 128000, MaxOutputTokens: 16384, SupportsStreaming: true, SupportsTools: true},
	{ModelID: "gpt-4o-mini", ContextWindow: 128000, MaxOutputTokens: 16384, SupportsStreaming: true, SupportsTools: true},
	{ModelID: "claude-sonnet-4-20250514", ContextWindow: 200000, MaxOutputTokens: 8192, SupportsStreaming: true, SupportsTools: true},
	{ModelID: "claude-3-5-haiku-20241022", ContextWindow: 200000, MaxOutputTokens: 8192, SupportsStreaming: true, SupportsTools: true},
	{ModelID: "codellama:7b", ContextWindow: 16384, MaxOutputTokens: 4096, SupportsStreaming: true},
	{ModelID: "deepseek-coder-v2", ContextWindow: 32768, MaxOutputTokens: 4096, SupportsStreaming: true},
	{ModelID: "qwen2.5-coder:7b", ContextWindow: 32768, MaxOutputTokens: 4096, SupportsStreaming: true},
}

// defaultCapability is used for any model not in the built-in table:
// conservative enough not to overrun a small local model's context.
var defaultCapability = Capability{ContextWindow: 8192, MaxOutputTokens: 2048, SupportsStreaming: true}

// Capabilities is a read-only, in-memory lookup of per-model facts.
type Capabilities struct {
	byModel map[string]Capability
}

// NewCapabilities builds a Capabilities table seeded with the built-ins
// plus any operator-supplied overrides (later entries win on conflict).
func NewCapabilities(overrides ...Capability) *Capabilities {
	c := &Capabilities{byModel: make(map[string]Capability, len(builtinCapabilities)+len(overrides))}
	for _, cap := range builtinCapabilities {
		c.byModel[cap.ModelID] = cap
	}
	for _, cap := range overrides {
		c.byModel[cap.ModelID] = cap
	}
	return c
}

// Lookup returns the known capability for model, or defaultCapability
// if it isn't in the table.
func (c *Capabilities) Lookup(model string) Capability {
	if cap, ok := c.byModel[model]; ok {
		return cap
	}
	cap := defaultCapability
	cap.ModelID = model
	return cap
}

// SupportsProvider reports whether kind is one CodeGate knows how to
// normalize at all — used to give a clear RouteError instead of a
// confusing decode failure for a typo'd provider kind.
func SupportsProvider(kind models.ProviderKind) bool {
	switch kind {
	case models.ProviderOpenAI, models.ProviderAnthropic, models.ProviderOllama,
		models.ProviderLlamaCpp, models.ProviderVLLM, models.ProviderOpenRouter,
		models.ProviderLMStudio, models.ProviderCopilot:
		return true
	default:
		return false
	}
}
