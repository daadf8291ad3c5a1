package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/stacklok/codegate/pkg/models"
)

// Transport sends an already-normalized outgoing body to a resolved
// provider endpoint. It owns retry policy; adapters stay pure.
type Transport struct {
	client *http.Client
	log    zerolog.Logger
}

// NewTransport builds a Transport with a generous per-attempt timeout;
// upstream LLM calls can legitimately run long even without streaming.
func NewTransport(log zerolog.Logger) *Transport {
	return &Transport{
		client: &http.Client{Timeout: 120 * time.Second},
		log:    log,
	}
}

// Send posts body to endpoint.BaseURL+path with auth applied. Non-
// streaming requests are retried once on a transport-level or 5xx
// failure, since they're safe to resend before any bytes reach the
// client; streaming requests are never retried once the response
// headers have been read, matching the upstream-error handling design.
func (t *Transport) Send(ctx context.Context, endpoint *models.ProviderEndpoint, path string, body []byte, stream bool) (*http.Response, error) {
	do := func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("provider transport: build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		applyAuth(httpReq, endpoint)

		resp, err := t.client.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("provider transport: %w", err)
		}
		if resp.StatusCode >= 500 {
			respBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("provider transport: upstream status %d: %s", resp.StatusCode, string(respBody))
		}
		return resp, nil
	}

	if stream {
		return do()
	}

	var resp *http.Response
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1)
	err := backoff.Retry(func() error {
		r, err := do()
		if err != nil {
			t.log.Warn().Err(err).Str("endpoint", endpoint.Name).Msg("upstream call failed, retrying once")
			return err
		}
		resp = r
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// EndpointPath returns the provider-native path to POST to for a given
// request kind, appended to the endpoint's configured base URL.
func EndpointPath(kind models.ProviderKind, reqKind models.RequestKind) string {
	switch kind {
	case models.ProviderAnthropic:
		return "/v1/messages"
	default:
		if reqKind == models.KindFIM {
			return "/v1/completions"
		}
		return "/v1/chat/completions"
	}
}

func applyAuth(req *http.Request, endpoint *models.ProviderEndpoint) {
	switch endpoint.Auth {
	case models.AuthAPIKey:
		if endpoint.Kind == models.ProviderAnthropic {
			req.Header.Set("x-api-key", endpoint.APIKey)
			req.Header.Set("anthropic-version", "2023-06-01")
		} else {
			req.Header.Set("Authorization", "Bearer "+endpoint.APIKey)
		}
	case models.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+endpoint.APIKey)
	case models.AuthNone:
	}
}
