// Package domain contains the core business entities and value objects.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// MinSecretLength is the shortest secret accepted for any provider.
const MinSecretLength = 20

// Credential is one configured access credential for a provider.
type Credential struct {
	// ID is an opaque unique identifier (uuid).
	ID string `json:"id" db:"id"`

	// Name is a human-readable label for this credential.
	Name string `json:"name" db:"name"`

	// Provider associates this credential with a specific provider.
	Provider ProviderType `json:"provider" db:"provider"`

	// Secret is the raw credential string sent to the provider.
	Secret string `json:"secret" db:"secret"`

	// IsActive marks credentials eligible for selection.
	IsActive bool `json:"is_active" db:"is_active"`

	// UsageCount is incremented once per successful call with this credential.
	UsageCount int64 `json:"usage_count" db:"usage_count"`

	// LastUsedAt is set on each successful call.
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CredentialPatch is a partial administrator update. Usage fields are never patched.
type CredentialPatch struct {
	Name     *string `json:"name,omitempty"`
	Secret   *string `json:"secret,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p CredentialPatch) IsEmpty() bool {
	return p.Name == nil && p.Secret == nil && p.IsActive == nil
}

// Apply returns c with the patch applied.
func (p CredentialPatch) Apply(c Credential) Credential {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Secret != nil {
		c.Secret = *p.Secret
	}
	if p.IsActive != nil {
		c.IsActive = *p.IsActive
	}
	return c
}

// Masked returns a copy safe to hand to API clients.
func (c Credential) Masked() Credential {
	c.Secret = MaskSecret(c.Secret)
	return c
}

// MaskSecret shortens a secret to its first and last four characters.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 12 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

// secretFormat describes what a provider's secret must look like.
type secretFormat struct {
	prefix    string
	forbidden string
}

var secretFormats = map[ProviderType]secretFormat{
	ProviderOpenAI:     {prefix: "sk-", forbidden: "sk-ant-"},
	ProviderAnthropic:  {prefix: "sk-ant-"},
	ProviderPerplexity: {prefix: "pplx-"},
	ProviderGoogle:     {},
}

// ValidateFormat is the configuration-time pre-flight check for a secret.
// It is pure and never contacts the provider.
func ValidateFormat(provider ProviderType, secret string) bool {
	return checkFormat(provider, secret) == nil
}

// ValidateCredential checks a credential before it is stored.
func ValidateCredential(c Credential) error {
	if err := checkFormat(c.Provider, c.Secret); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	return nil
}

func checkFormat(provider ProviderType, secret string) error {
	format, ok := secretFormats[provider]
	if !ok {
		return fmt.Errorf("unknown provider %q", provider)
	}
	if len(secret) < MinSecretLength {
		return fmt.Errorf("%s secret must be at least %d characters", provider, MinSecretLength)
	}
	if format.prefix != "" && !strings.HasPrefix(secret, format.prefix) {
		return fmt.Errorf("%s secret must start with %q", provider, format.prefix)
	}
	if format.forbidden != "" && strings.HasPrefix(secret, format.forbidden) {
		return fmt.Errorf("%s secret must not start with %q", provider, format.forbidden)
	}
	return nil
}

// DetectProvider guesses the provider from a secret's shape.
// Longer prefixes are checked first so anthropic keys are not taken for openai.
func DetectProvider(secret string) (ProviderType, bool) {
	switch {
	case strings.HasPrefix(secret, "sk-ant-"):
		return ProviderAnthropic, true
	case strings.HasPrefix(secret, "pplx-"):
		return ProviderPerplexity, true
	case strings.HasPrefix(secret, "sk-"):
		return ProviderOpenAI, true
	case strings.HasPrefix(secret, "AIza"):
		return ProviderGoogle, true
	default:
		return "", false
	}
}
