package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stacklok/codegate/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndListPrompts(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordPrompt(models.PromptRecord{
		ID:          "p1",
		WorkspaceID: "ws1",
		Provider:    "openai",
		Type:        "chat",
		Request:     `{"model":"gpt-4o"}`,
	}))
	require.NoError(t, s.RecordPrompt(models.PromptRecord{
		ID:          "p2",
		WorkspaceID: "ws2",
		Provider:    "anthropic",
		Type:        "chat",
		Request:     `{"model":"claude-sonnet-4"}`,
	}))

	all, err := s.ListPrompts(context.Background(), ListPromptsFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	filtered, err := s.ListPrompts(context.Background(), ListPromptsFilter{WorkspaceID: "ws1"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, "p1", filtered[0].ID)
}

func TestRecordAndListOutputs(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordOutput(models.OutputRecord{ID: "o1", PromptID: "p1", Output: "hello"}))
	require.NoError(t, s.RecordOutput(models.OutputRecord{ID: "o2", PromptID: "p1", Output: "world"}))

	outs, err := s.ListOutputs(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, outs, 2)
	require.Equal(t, "hello", outs[0].Output)
}

func TestRecordAlertGeneratesIDWhenMissing(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordAlert(models.AlertRecord{
		PromptID:      "p1",
		TriggerString: "invokehttp",
		TriggerType:   models.TriggerMaliciousPackage,
	}))

	alerts, err := s.ListAlerts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.NotEmpty(t, alerts[0].ID)
	require.Equal(t, models.TriggerMaliciousPackage, alerts[0].TriggerType)
}

func TestListAlertsOrdersNewestFirst(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordAlert(models.AlertRecord{
		PromptID: "p1", TriggerType: models.TriggerSecret, Timestamp: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, s.RecordAlert(models.AlertRecord{
		PromptID: "p1", TriggerType: models.TriggerPII, Timestamp: time.Now(),
	}))

	alerts, err := s.ListAlerts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	require.Equal(t, models.TriggerPII, alerts[0].TriggerType)
}
