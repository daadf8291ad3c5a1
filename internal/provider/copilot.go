package provider

import "github.com/stacklok/codegate/pkg/models"

// copilotAdapter reuses the OpenAI-compatible wire shape: GitHub
// Copilot's completions endpoint (proxy.enterprise.githubcopilot.com,
// or api.githubcopilot.com) is OpenAI-shaped chat/completions and
// completions requests. What sets Copilot apart is transport, not
// wire shape: the extension talks HTTPS straight to GitHub with a
// pinned client, so reaching it at all requires TLS interception
// rather than a plain forward proxy (see internal/tlsproxy).
type copilotAdapter struct {
	openAICompat
}

// NewCopilot builds the adapter for GitHub Copilot's completions API.
func NewCopilot() Adapter {
	return &copilotAdapter{openAICompat{kind: models.ProviderCopilot}}
}
