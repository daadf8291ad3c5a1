package provider

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stacklok/codegate/pkg/models"
)

func TestOpenAICompatNormalizeInChat(t *testing.T) {
	a := NewOpenAI()
	raw := []byte(`{"model":"gpt-4o","stream":true,"messages":[
		{"role":"system","content":"be terse"},
		{"role":"user","content":"hello"}
	]}`)
	req, err := a.NormalizeIn(raw)
	require.NoError(t, err)
	require.Equal(t, models.KindChat, req.Kind)
	require.Equal(t, "be terse", req.System)
	require.True(t, req.Stream)
	require.Len(t, req.Messages, 1)
	text, ok := req.Messages[0].FirstText()
	require.True(t, ok)
	require.Equal(t, "hello", text)
}

func TestOpenAICompatNormalizeInFIM(t *testing.T) {
	a := NewLlamaCpp()
	raw := []byte(`{"model":"codellama","prompt":"def add(a, b):\n    ","suffix":"\n    return result"}`)
	req, err := a.NormalizeIn(raw)
	require.NoError(t, err)
	require.Equal(t, models.KindFIM, req.Kind)
	require.Contains(t, req.FIMPrefix, "def add")
	require.Contains(t, req.FIMSuffix, "return result")
}

func TestOpenAICompatNormalizeOutRoundTrip(t *testing.T) {
	a := NewOpenAI()
	req := &models.RequestRecord{
		Kind:     models.KindChat,
		Model:    "gpt-4o",
		System:   "be terse",
		Messages: []models.Message{{Role: "user", Parts: []models.Part{models.TextPart("hi")}}},
	}
	out, err := a.NormalizeOut(req)
	require.NoError(t, err)
	require.Contains(t, string(out), `"content":"hi"`)
	require.Contains(t, string(out), `"role":"system"`)
}

func TestOpenAICompatDecodeStreamAcrossChunkBoundary(t *testing.T) {
	a := NewOpenAI()
	decoder := a.NewStreamDecoder()
	first := []byte("data: {\"choices\":[{\"delta\":{\"content\":\"hel")
	second := []byte("lo\"}}]}\n\ndata: [DONE]\n\n")

	chunks1, err := decoder.Decode(first)
	require.NoError(t, err)
	require.Empty(t, chunks1)

	chunks2, err := decoder.Decode(second)
	require.NoError(t, err)
	require.Len(t, chunks2, 2)
	require.Equal(t, "hello", chunks2[0].Text)
	require.Equal(t, models.DeltaFinish, chunks2[1].Kind)
}

func TestOpenAICompatStreamDecoderIsFreshPerInstance(t *testing.T) {
	a := NewOpenAI()
	first := a.NewStreamDecoder()
	second := a.NewStreamDecoder()

	_, err := first.Decode([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"partial"))
	require.NoError(t, err)

	// second must not see first's buffered partial line: concurrent
	// streams to the same provider must not share decoder state.
	chunks, err := second.Decode([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n"))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "hi", chunks[0].Text)
}
