package pipeline

import (
	"fmt"
	"time"

	"github.com/stacklok/codegate/pkg/models"
)

// StreamStep is one stage of the response-side chain. Unlike request
// steps, stream steps run once per StreamChunk as the upstream
// response arrives, and may fan a single input chunk out into zero or
// more output chunks (e.g. Unredact splitting one input chunk into a
// held-back tail plus a safe-to-emit head).
type StreamStep interface {
	Name() string
	Run(chunk models.StreamChunk, pc *Context) []models.StreamChunk
}

// Flusher is implemented by StreamSteps that buffer input and need a
// final call at end-of-stream to emit anything still held back.
type Flusher interface {
	Flush(pc *Context) []models.StreamChunk
}

// ResponsePipeline runs the three internal response steps over every
// chunk the upstream adapter decodes: restore secrets/PII, prepend the
// one-time redaction notice, and persist the assembled output.
type ResponsePipeline struct {
	steps []StreamStep
}

// NewResponsePipeline builds the canonical three-step chain.
func NewResponsePipeline() *ResponsePipeline {
	return &ResponsePipeline{steps: []StreamStep{
		UnredactStep{},
		AlertFinalizeStep{},
		PersistOutputsStep{},
	}}
}

// Push runs one upstream-decoded chunk through every step in order,
// each step's output chunks feeding the next step as its input.
func (p *ResponsePipeline) Push(chunk models.StreamChunk, pc *Context) []models.StreamChunk {
	chunks := []models.StreamChunk{chunk}
	for _, step := range p.steps {
		var next []models.StreamChunk
		for _, c := range chunks {
			next = append(next, step.Run(c, pc)...)
		}
		chunks = next
	}
	return chunks
}

// Flush drains every step that buffers input, in order, at end of
// stream.
func (p *ResponsePipeline) Flush(pc *Context) []models.StreamChunk {
	var out []models.StreamChunk
	for _, step := range p.steps {
		if f, ok := step.(Flusher); ok {
			out = append(out, f.Flush(pc)...)
		}
	}
	return out
}

// ── 1. Unredact ─────────────────────────────────────────────────

// UnredactStep restores REDACTED<$id> placeholders to their original
// literals as the response streams, using a sliding-window buffer so a
// placeholder split across two chunk boundaries is never emitted
// half-written.
type UnredactStep struct{}

func (UnredactStep) Name() string { return "unredact" }

func (UnredactStep) Run(chunk models.StreamChunk, pc *Context) []models.StreamChunk {
	if chunk.Kind != models.DeltaText {
		return []models.StreamChunk{chunk}
	}
	if pc.streamUnredactor == nil {
		pc.streamUnredactor = newStreamUnredactorFor(pc)
	}
	restored := pc.streamUnredactor.Push(chunk.Text)
	if restored == "" {
		return nil
	}
	out := chunk
	out.Text = restored
	return []models.StreamChunk{out}
}

func (UnredactStep) Flush(pc *Context) []models.StreamChunk {
	if pc.streamUnredactor == nil {
		return nil
	}
	tail := pc.streamUnredactor.Flush()
	if tail == "" {
		return nil
	}
	return []models.StreamChunk{{Kind: models.DeltaText, Text: tail}}
}

// ── 2. AlertFinalize ────────────────────────────────────────────

// AlertFinalizeStep prepends a one-time notice to the first text chunk
// of the response when the request side redacted anything, so the user
// sees "CodeGate prevented N secret(s) from leaving your workspace."
// without CodeGate needing a separate out-of-band channel.
type AlertFinalizeStep struct{}

func (AlertFinalizeStep) Name() string { return "alert_finalize" }

func (AlertFinalizeStep) Run(chunk models.StreamChunk, pc *Context) []models.StreamChunk {
	if pc.alertNoticeEmitted || pc.RedactionCount == 0 || chunk.Kind != models.DeltaText {
		return []models.StreamChunk{chunk}
	}
	pc.alertNoticeEmitted = true
	notice := fmt.Sprintf("_CodeGate prevented %d secret(s)/PII value(s) from leaving your workspace._\n\n", pc.RedactionCount)
	return []models.StreamChunk{
		{Kind: models.DeltaText, Text: notice},
		chunk,
	}
}

// ── 3. PersistOutputs ───────────────────────────────────────────

// PersistOutputsStep accumulates the full response text so it can be
// written to the audit log once the stream finishes.
type PersistOutputsStep struct{}

func (PersistOutputsStep) Name() string { return "persist_outputs" }

func (PersistOutputsStep) Run(chunk models.StreamChunk, pc *Context) []models.StreamChunk {
	if chunk.Kind == models.DeltaText {
		pc.outputBuf = append(pc.outputBuf, chunk.Text...)
	}
	return []models.StreamChunk{chunk}
}

func (PersistOutputsStep) Flush(pc *Context) []models.StreamChunk {
	if pc.Audit != nil && pc.PromptID != "" {
		if err := pc.Audit.RecordOutput(models.OutputRecord{
			ID:        pc.PromptID + "-out",
			PromptID:  pc.PromptID,
			Timestamp: time.Now().UTC(),
			Output:    string(pc.outputBuf),
		}); err != nil {
			pc.Log.Warn().Err(err).Msg("failed to persist output")
		}
	}
	return nil
}
