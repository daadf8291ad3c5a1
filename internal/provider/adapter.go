// Package provider normalizes each upstream LLM wire dialect to and
// from CodeGate's common RequestRecord/StreamChunk shape. One Adapter
// implementation exists per supported provider kind; the pipeline only
// ever talks to the Adapter interface, never to a concrete provider.
package provider

import "github.com/stacklok/codegate/pkg/models"

// Adapter converts between one provider's wire format and the common
// shape. Implementations are pure: no network I/O, no upstream calls —
// those live in the Transport that surrounds an Adapter (see
// transport.go). This keeps pipeline steps testable without a live
// upstream.
type Adapter interface {
	Kind() models.ProviderKind

	// NormalizeIn parses a raw request body in this provider's native
	// (or OpenAI-compatible, where the upstream offers both) shape into
	// the common RequestRecord.
	NormalizeIn(raw []byte) (*models.RequestRecord, error)

	// NormalizeOut serializes the common RequestRecord back into this
	// provider's native request body, to be sent upstream. When
	// RawProviderFields is non-nil and the request wasn't mutated,
	// implementations return it unchanged for a byte-equivalent
	// round trip.
	NormalizeOut(req *models.RequestRecord) ([]byte, error)

	// NewStreamDecoder returns a fresh StreamDecoder for one response
	// stream. A single Adapter instance is shared by the registry
	// across every concurrent request for that provider kind, so any
	// state needed to carry a partial event across chunk boundaries
	// must live on the returned decoder, never on the Adapter itself.
	NewStreamDecoder() StreamDecoder

	// EncodeStream serializes common StreamChunks back into this
	// provider's native streaming wire format for delivery to the
	// client.
	EncodeStream(chunks []models.StreamChunk) ([]byte, error)
}

// StreamDecoder incrementally decodes one upstream response stream. It
// is scoped to a single request: create one per stream via
// Adapter.NewStreamDecoder and never share it across connections.
type StreamDecoder interface {
	// Decode turns one raw chunk of the upstream's streaming response
	// body into zero or more common StreamChunks. Called repeatedly as
	// bytes arrive; implementations must tolerate a chunk boundary
	// landing mid-event and buffer internally.
	Decode(raw []byte) ([]models.StreamChunk, error)
}

// Registry resolves a ProviderKind to its Adapter.
type Registry struct {
	adapters map[models.ProviderKind]Adapter
}

// NewRegistry builds a Registry preloaded with every built-in adapter.
func NewRegistry() *Registry {
	r := &Registry{adapters: map[models.ProviderKind]Adapter{}}
	for _, a := range []Adapter{
		NewOpenAI(),
		NewAnthropic(),
		NewOllama(),
		NewLlamaCpp(),
		NewVLLM(),
		NewOpenRouter(),
		NewLMStudio(),
		NewCopilot(),
	} {
		r.adapters[a.Kind()] = a
	}
	return r
}

// ForKind resolves kind to its Adapter.
func (r *Registry) ForKind(kind models.ProviderKind) (Adapter, bool) {
	a, ok := r.adapters[kind]
	return a, ok
}
