package domain

import (
	"encoding/json"
	"strings"
)

// AnalysisKind selects the system prompt template.
type AnalysisKind string

const (
	KindSentiment AnalysisKind = "sentiment"
	KindCrisis    AnalysisKind = "crisis"
	KindEmotion   AnalysisKind = "emotion"
	KindSummary   AnalysisKind = "summary"
	KindChat      AnalysisKind = "chat"
)

// IsValid reports whether k names one of the fixed templates.
func (k AnalysisKind) IsValid() bool {
	switch k {
	case KindSentiment, KindCrisis, KindEmotion, KindSummary, KindChat:
		return true
	default:
		return false
	}
}

// AnalysisRequest is the input to the orchestrator.
type AnalysisRequest struct {
	Kind     AnalysisKind `json:"kind"`
	Content  string       `json:"content"`
	Language string       `json:"language,omitempty"`
}

// AnalysisOutcome is the result of one orchestration attempt.
type AnalysisOutcome struct {
	Success bool `json:"success"`

	// ProviderUsed is the answering provider, or the last attempted one on failure.
	ProviderUsed ProviderType `json:"provider_used,omitempty"`

	// Result is the provider's raw response payload, null on failure.
	Result json.RawMessage `json:"result"`

	// Text is the content extracted from Result.
	Text string `json:"text,omitempty"`

	FallbackOccurred   bool           `json:"fallback_occurred"`
	AttemptedProviders []ProviderType `json:"attempted_providers"`

	// ErrorSummary is set iff Success is false.
	ErrorSummary string `json:"error_summary,omitempty"`
}

// NewOutcome returns an empty, failed outcome with a non-nil attempt list.
func NewOutcome() *AnalysisOutcome {
	return &AnalysisOutcome{AttemptedProviders: make([]ProviderType, 0)}
}

// AttemptedNames returns the attempted providers as plain strings.
func (o *AnalysisOutcome) AttemptedNames() string {
	names := make([]string, len(o.AttemptedProviders))
	for i, p := range o.AttemptedProviders {
		names[i] = string(p)
	}
	return strings.Join(names, ",")
}
