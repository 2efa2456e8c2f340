package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		name     string
		provider ProviderType
		secret   string
		want     bool
	}{
		{
			name:     "openai too short",
			provider: ProviderOpenAI,
			secret:   "short",
			want:     false,
		},
		{
			name:     "anthropic valid",
			provider: ProviderAnthropic,
			secret:   "sk-ant-" + strings.Repeat("x", 20),
			want:     true,
		},
		{
			name:     "openai with anthropic prefix",
			provider: ProviderOpenAI,
			secret:   "sk-ant-" + strings.Repeat("x", 20),
			want:     false,
		},
		{
			name:     "openai valid",
			provider: ProviderOpenAI,
			secret:   "sk-" + strings.Repeat("a", 30),
			want:     true,
		},
		{
			name:     "openai missing prefix",
			provider: ProviderOpenAI,
			secret:   strings.Repeat("a", 30),
			want:     false,
		},
		{
			name:     "perplexity valid",
			provider: ProviderPerplexity,
			secret:   "pplx-" + strings.Repeat("b", 20),
			want:     true,
		},
		{
			name:     "perplexity wrong prefix",
			provider: ProviderPerplexity,
			secret:   "sk-" + strings.Repeat("b", 20),
			want:     false,
		},
		{
			name:     "google has no prefix rule",
			provider: ProviderGoogle,
			secret:   strings.Repeat("g", 20),
			want:     true,
		},
		{
			name:     "google too short",
			provider: ProviderGoogle,
			secret:   strings.Repeat("g", 19),
			want:     false,
		},
		{
			name:     "unknown provider",
			provider: ProviderType("mistral"),
			secret:   strings.Repeat("m", 40),
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The check is pure: repeated calls agree.
			for i := 0; i < 2; i++ {
				if got := ValidateFormat(tt.provider, tt.secret); got != tt.want {
					t.Errorf("ValidateFormat(%s, %q) = %v, want %v", tt.provider, tt.secret, got, tt.want)
				}
			}
		})
	}
}

func TestValidateCredential_WrapsSentinel(t *testing.T) {
	err := ValidateCredential(Credential{Provider: ProviderOpenAI, Secret: "short"})
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("ValidateCredential() error = %v, want ErrInvalidCredential", err)
	}

	if err := ValidateCredential(Credential{Provider: ProviderGoogle, Secret: "AIza" + strings.Repeat("k", 30)}); err != nil {
		t.Errorf("ValidateCredential() unexpected error = %v", err)
	}
}

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		secret string
		want   ProviderType
		ok     bool
	}{
		{"sk-ant-abc", ProviderAnthropic, true},
		{"sk-abc", ProviderOpenAI, true},
		{"pplx-abc", ProviderPerplexity, true},
		{"AIzaabc", ProviderGoogle, true},
		{"unknown", "", false},
	}

	for _, tt := range tests {
		got, ok := DetectProvider(tt.secret)
		if got != tt.want || ok != tt.ok {
			t.Errorf("DetectProvider(%q) = (%s, %v), want (%s, %v)", tt.secret, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseProviderType(t *testing.T) {
	p, err := ParseProviderType("  Anthropic ")
	if err != nil || p != ProviderAnthropic {
		t.Errorf("ParseProviderType() = (%s, %v), want anthropic", p, err)
	}

	if _, err := ParseProviderType("azure"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("ParseProviderType(azure) error = %v, want ErrUnknownProvider", err)
	}
}

func TestCredentialPatch_Apply(t *testing.T) {
	c := Credential{ID: "1", Name: "old", Secret: "s", IsActive: true, UsageCount: 7}
	inactive := false
	name := "new"

	got := CredentialPatch{Name: &name, IsActive: &inactive}.Apply(c)

	if got.Name != "new" || got.IsActive {
		t.Errorf("Apply() = %+v, want name=new active=false", got)
	}
	if got.UsageCount != 7 || got.Secret != "s" {
		t.Errorf("Apply() touched unpatched fields: %+v", got)
	}
	if !(CredentialPatch{}).IsEmpty() {
		t.Error("empty patch reported non-empty")
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret("sk-1234567890abcdef"); got != "sk-1...cdef" {
		t.Errorf("MaskSecret() = %s", got)
	}
	if got := MaskSecret("short"); got != "***" {
		t.Errorf("MaskSecret(short) = %s, want ***", got)
	}
}

func TestAllProvidersFailedError(t *testing.T) {
	first := errors.New("HTTP 500: boom")
	err := &AllProvidersFailedError{Failures: []*ProviderCallError{
		{Provider: ProviderOpenAI, Err: first},
		{Provider: ProviderGoogle, Err: errors.New("HTTP 429: slow down")},
	}}

	want := "openai: HTTP 500: boom; google: HTTP 429: slow down"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, first) {
		t.Error("errors.Is should reach individual failures")
	}
}
