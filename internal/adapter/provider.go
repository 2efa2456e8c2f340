// Package adapter provides implementations for external AI provider integrations.
// It uses the Adapter pattern to hide provider-specific APIs behind one call contract.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/smsh73/SNSMONAI-sub000/internal/domain"
)

// Caller defines the per-provider call contract used by the orchestrator.
type Caller interface {
	// Call sends one analysis request to provider using secret.
	// Any non-2xx response or transport error is returned as an error.
	Call(ctx context.Context, provider domain.ProviderType, secret, systemPrompt, content string) (*Response, error)
}

// Response is a successful provider answer.
type Response struct {
	Provider   domain.ProviderType
	StatusCode int

	// Raw is the provider's response body, passed through untouched.
	Raw json.RawMessage

	// Text is the first answer extracted from Raw.
	Text string
}

// APIError is returned for non-2xx provider responses.
// The body is kept verbatim so operators can see what the provider said.
type APIError struct {
	Provider   domain.ProviderType
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the failure looks transient (rate limited or server side).
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}
