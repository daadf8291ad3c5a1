package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stacklok/codegate/pkg/models"
)

// anthropicAdapter implements Adapter for the Messages API wire shape.
type anthropicAdapter struct{}

// NewAnthropic builds the adapter for api.anthropic.com.
func NewAnthropic() Adapter { return &anthropicAdapter{} }

func (a *anthropicAdapter) Kind() models.ProviderKind { return models.ProviderAnthropic }

type anthContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthMessage struct {
	Role    string             `json:"role"`
	Content []anthContentBlock `json:"content"`
}

type anthRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []anthMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	StopSeqs    []string      `json:"stop_sequences,omitempty"`
}

func (a *anthropicAdapter) NormalizeIn(raw []byte) (*models.RequestRecord, error) {
	var env map[string]any
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("anthropic: decode request: %w", err)
	}
	req := &models.RequestRecord{RawProviderFields: env, Kind: models.KindChat}

	if model, ok := env["model"].(string); ok {
		req.Model = model
	}
	if sys, ok := env["system"].(string); ok {
		req.System = sys
	}
	if stream, ok := env["stream"].(bool); ok {
		req.Stream = stream
	}
	if mt, ok := env["max_tokens"].(float64); ok {
		v := int(mt)
		req.MaxTokens = &v
	}
	if temp, ok := env["temperature"].(float64); ok {
		req.Temperature = &temp
	}
	if stops, ok := env["stop_sequences"].([]any); ok {
		for _, s := range stops {
			if str, ok := s.(string); ok {
				req.Stop = append(req.Stop, str)
			}
		}
	}
	if rawMsgs, ok := env["messages"].([]any); ok {
		for _, rm := range rawMsgs {
			mm, ok := rm.(map[string]any)
			if !ok {
				continue
			}
			role, _ := mm["role"].(string)
			text := extractAnthText(mm["content"])
			req.Messages = append(req.Messages, models.Message{
				Role:  role,
				Parts: []models.Part{models.TextPart(text)},
			})
		}
	}
	return req, nil
}

// extractAnthText handles both the plain-string and content-block-array
// shapes the Messages API accepts for a message's content field.
func extractAnthText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var sb strings.Builder
		for _, b := range v {
			bm, ok := b.(map[string]any)
			if !ok {
				continue
			}
			if bm["type"] == "text" {
				if t, ok := bm["text"].(string); ok {
					sb.WriteString(t)
				}
			}
		}
		return sb.String()
	default:
		return ""
	}
}

func (a *anthropicAdapter) NormalizeOut(req *models.RequestRecord) ([]byte, error) {
	msgs := make([]anthMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		text, _ := m.FirstText()
		msgs = append(msgs, anthMessage{
			Role:    m.Role,
			Content: []anthContentBlock{{Type: "text", Text: text}},
		})
	}
	maxTokens := 4096
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	out := anthRequest{
		Model:       modelOrResolved(req),
		System:      req.System,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		StopSeqs:    req.Stop,
	}
	return json.Marshal(out)
}

type anthStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// NewStreamDecoder returns a fresh decoder for one Anthropic
// named-event SSE stream. Each request gets its own instance so the
// tail buffer never crosses streams.
func (a *anthropicAdapter) NewStreamDecoder() StreamDecoder {
	return &anthropicStreamDecoder{}
}

// anthropicStreamDecoder holds the partial SSE line carried across
// Decode calls for a single stream.
type anthropicStreamDecoder struct {
	buf bytes.Buffer
}

// Decode parses Anthropic's named-event SSE stream:
// "event: content_block_delta\ndata: {...}\n\n", ending in
// "event: message_stop".
func (d *anthropicStreamDecoder) Decode(raw []byte) ([]models.StreamChunk, error) {
	d.buf.Write(raw)
	var out []models.StreamChunk
	for {
		line, err := d.buf.ReadString('\n')
		if err != nil {
			d.buf.Reset()
			d.buf.WriteString(line)
			break
		}
		line = strings.TrimRight(line, "\r\n")
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		var ev anthStreamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Text != "" {
				out = append(out, models.StreamChunk{Kind: models.DeltaText, Text: ev.Delta.Text})
			}
		case "message_stop":
			out = append(out, models.StreamChunk{Kind: models.DeltaFinish})
		}
	}
	return out, nil
}

func (a *anthropicAdapter) EncodeStream(chunks []models.StreamChunk) ([]byte, error) {
	var w bytes.Buffer
	for _, c := range chunks {
		switch c.Kind {
		case models.DeltaText:
			payload, _ := json.Marshal(map[string]any{
				"type":  "content_block_delta",
				"delta": map[string]string{"type": "text_delta", "text": c.Text},
			})
			fmt.Fprintf(&w, "event: content_block_delta\ndata: %s\n\n", payload)
		case models.DeltaFinish:
			fmt.Fprint(&w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
		case models.DeltaError:
			payload, _ := json.Marshal(map[string]any{"type": "error", "error": c.Err})
			fmt.Fprintf(&w, "event: error\ndata: %s\n\n", payload)
		}
	}
	return w.Bytes(), nil
}
