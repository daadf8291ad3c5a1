package provider

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stacklok/codegate/pkg/models"
)

// openAICompat implements Adapter for every provider that speaks (or
// emulates) the OpenAI chat-completions wire shape: OpenAI itself,
// Ollama's /v1 compatibility layer, vLLM, llama.cpp's server, and
// OpenRouter and LM Studio, which both proxy the same shape verbatim.
// Copilot's own completions endpoint is close enough to reuse this too;
// see copilot.go for what it overrides.
type openAICompat struct {
	kind models.ProviderKind
}

// NewOpenAI builds the adapter for api.openai.com.
func NewOpenAI() Adapter { return &openAICompat{kind: models.ProviderOpenAI} }

// NewOllama builds the adapter for Ollama's OpenAI-compatible endpoint.
func NewOllama() Adapter { return &openAICompat{kind: models.ProviderOllama} }

// NewLlamaCpp builds the adapter for llama.cpp's server.
func NewLlamaCpp() Adapter { return &openAICompat{kind: models.ProviderLlamaCpp} }

// NewVLLM builds the adapter for vLLM's OpenAI-compatible server.
func NewVLLM() Adapter { return &openAICompat{kind: models.ProviderVLLM} }

// NewOpenRouter builds the adapter for openrouter.ai.
func NewOpenRouter() Adapter { return &openAICompat{kind: models.ProviderOpenRouter} }

// NewLMStudio builds the adapter for LM Studio's local server.
func NewLMStudio() Adapter { return &openAICompat{kind: models.ProviderLMStudio} }

func (a *openAICompat) Kind() models.ProviderKind { return a.kind }

type oaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaChatRequest struct {
	Model       string          `json:"model"`
	Messages    []oaChatMessage `json:"messages"`
	Stream      bool            `json:"stream"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	// Prompt/Suffix are the FIM shape used by llama.cpp/vLLM's
	// completions endpoint rather than chat/completions.
	Prompt string `json:"prompt,omitempty"`
	Suffix string `json:"suffix,omitempty"`
}

func (a *openAICompat) NormalizeIn(raw []byte) (*models.RequestRecord, error) {
	var env map[string]any
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("openai-compat: decode request: %w", err)
	}
	req := &models.RequestRecord{RawProviderFields: env, Kind: models.KindChat}

	if model, ok := env["model"].(string); ok {
		req.Model = model
	}
	if stream, ok := env["stream"].(bool); ok {
		req.Stream = stream
	}
	if temp, ok := env["temperature"].(float64); ok {
		req.Temperature = &temp
	}
	if mt, ok := env["max_tokens"].(float64); ok {
		v := int(mt)
		req.MaxTokens = &v
	}
	if stop, ok := env["stop"].([]any); ok {
		for _, s := range stop {
			if str, ok := s.(string); ok {
				req.Stop = append(req.Stop, str)
			}
		}
	}

	// FIM-shaped completions request: prompt + optional suffix, no
	// messages array.
	if prompt, ok := env["prompt"].(string); ok {
		if _, hasMessages := env["messages"]; !hasMessages {
			req.Kind = models.KindFIM
			req.FIMPrefix = prompt
			if suffix, ok := env["suffix"].(string); ok {
				req.FIMSuffix = suffix
			}
			return req, nil
		}
	}

	if rawMsgs, ok := env["messages"].([]any); ok {
		for _, rm := range rawMsgs {
			mm, ok := rm.(map[string]any)
			if !ok {
				continue
			}
			role, _ := mm["role"].(string)
			content, _ := mm["content"].(string)
			if role == "system" && req.System == "" {
				req.System = content
				continue
			}
			req.Messages = append(req.Messages, models.Message{
				Role:  role,
				Parts: []models.Part{models.TextPart(content)},
			})
		}
	}
	return req, nil
}

func (a *openAICompat) NormalizeOut(req *models.RequestRecord) ([]byte, error) {
	if req.Kind == models.KindFIM {
		out := map[string]any{
			"model":  modelOrResolved(req),
			"prompt": req.FIMPrefix,
			"suffix": req.FIMSuffix,
			"stream": req.Stream,
		}
		return json.Marshal(out)
	}

	msgs := make([]oaChatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, oaChatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		text, _ := m.FirstText()
		msgs = append(msgs, oaChatMessage{Role: m.Role, Content: text})
	}
	out := oaChatRequest{
		Model:       modelOrResolved(req),
		Messages:    msgs,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
	}
	return json.Marshal(out)
}

func modelOrResolved(req *models.RequestRecord) string {
	if req.ResolvedModel != "" {
		return req.ResolvedModel
	}
	return req.Model
}

type oaStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// NewStreamDecoder returns a fresh decoder for one OpenAI-shaped SSE
// stream. Each request gets its own instance so the tail buffer never
// crosses streams.
func (a *openAICompat) NewStreamDecoder() StreamDecoder {
	return &openAICompatStreamDecoder{}
}

// openAICompatStreamDecoder holds the partial SSE line carried across
// Decode calls for a single stream.
type openAICompatStreamDecoder struct {
	buf bytes.Buffer
}

// Decode parses OpenAI-shaped SSE ("data: {...}\n\n", terminated by
// "data: [DONE]"). raw may split mid-line; the tail is buffered.
func (d *openAICompatStreamDecoder) Decode(raw []byte) ([]models.StreamChunk, error) {
	d.buf.Write(raw)
	var out []models.StreamChunk
	for {
		line, err := d.buf.ReadString('\n')
		if err != nil {
			// Incomplete line: put it back for the next call.
			d.buf.Reset()
			d.buf.WriteString(line)
			break
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			out = append(out, models.StreamChunk{Kind: models.DeltaFinish})
			continue
		}
		var chunk oaStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		for _, c := range chunk.Choices {
			if c.Delta.Content != "" {
				out = append(out, models.StreamChunk{Kind: models.DeltaText, Text: c.Delta.Content})
			}
			if c.FinishReason != nil {
				out = append(out, models.StreamChunk{Kind: models.DeltaFinish})
			}
		}
	}
	return out, nil
}

func (a *openAICompat) EncodeStream(chunks []models.StreamChunk) ([]byte, error) {
	var w bytes.Buffer
	bw := bufio.NewWriter(&w)
	for _, c := range chunks {
		switch c.Kind {
		case models.DeltaText:
			payload, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{{"delta": map[string]string{"content": c.Text}}},
			})
			fmt.Fprintf(bw, "data: %s\n\n", payload)
		case models.DeltaFinish:
			fmt.Fprint(bw, "data: [DONE]\n\n")
		case models.DeltaError:
			payload, _ := json.Marshal(map[string]any{"error": c.Err})
			fmt.Fprintf(bw, "data: %s\n\n", payload)
		}
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
