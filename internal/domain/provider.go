// Package domain contains the core business entities and value objects.
// These structs are framework-agnostic and represent the heart of the application.
package domain

import (
	"fmt"
	"strings"
)

// ProviderType represents an external AI analysis provider.
type ProviderType string

const (
	ProviderOpenAI     ProviderType = "openai"
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderGoogle     ProviderType = "google"
	ProviderPerplexity ProviderType = "perplexity"
)

// FallbackOrder is the fixed priority used when no provider is demanded.
// Perplexity is never part of it; it is only used when explicitly preferred.
var FallbackOrder = []ProviderType{ProviderOpenAI, ProviderGoogle, ProviderAnthropic}

// AllProviders lists every supported provider.
var AllProviders = []ProviderType{ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderPerplexity}

// IsValid reports whether p is one of the supported providers.
func (p ProviderType) IsValid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderPerplexity:
		return true
	default:
		return false
	}
}

func (p ProviderType) String() string {
	return string(p)
}

// ParseProviderType converts user input into a ProviderType.
func ParseProviderType(s string) (ProviderType, error) {
	p := ProviderType(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
	return p, nil
}

// Provider holds the endpoint configuration of a single provider.
type Provider struct {
	// Type identifies the provider for routing logic.
	Type ProviderType `json:"type" mapstructure:"type"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// Model overrides the provider's default model.
	Model string `json:"model" mapstructure:"model"`

	// MaxTokens caps the response length where the provider requires it.
	MaxTokens int `json:"max_tokens" mapstructure:"max_tokens"`

	// RateLimitPerMinute is the client-side request budget (0 disables limiting).
	RateLimitPerMinute int `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
}

// IsValid checks if the provider has all required fields.
func (p *Provider) IsValid() bool {
	return p.Type.IsValid() && p.MaxTokens >= 0 && p.RateLimitPerMinute >= 0
}
