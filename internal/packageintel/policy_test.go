package packageintel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stacklok/codegate/internal/packageintel/vectorstore"
	"github.com/stacklok/codegate/pkg/models"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store := vectorstore.New()
	require.NoError(t, store.Upsert(context.Background(), []models.PackageRecord{
		{Ecosystem: "pypi", Name: "invokehttp", Status: models.StatusMalicious},
	}))
	return New(store, nil)
}

func TestEvaluateBlocksMaliciousInfoRequest(t *testing.T) {
	e := newTestEngine(t)
	v, err := e.Evaluate(context.Background(), "prompt-1", []string{"Is it safe to use invokehttp?"})
	require.NoError(t, err)
	require.True(t, v.Blocked)
	require.Contains(t, v.ReplyMessage, "CodeGate detected one or more malicious, deprecated or archived packages.")
	require.Contains(t, v.ReplyMessage, "https://www.insight.stacklok.com/report/pypi/invokehttp?utm_source=codegate")
}

func TestEvaluateAlertsWithoutBlockingWhenNotInfoRequest(t *testing.T) {
	e := newTestEngine(t)
	v, err := e.Evaluate(context.Background(), "prompt-2", []string{
		"```python\nimport invokehttp\ninvokehttp.get('http://x')\n```",
	})
	require.NoError(t, err)
	require.False(t, v.Blocked)
	require.NotEmpty(t, v.Alerts)
}

func TestEvaluateNoExtractedPackagesIsNoop(t *testing.T) {
	e := newTestEngine(t)
	v, err := e.Evaluate(context.Background(), "prompt-3", []string{"just chatting, nothing code related"})
	require.NoError(t, err)
	require.False(t, v.Blocked)
	require.Empty(t, v.Alerts)
}
