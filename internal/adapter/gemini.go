package adapter

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ============================================================================
// Gemini API Types
// ============================================================================

// GeminiRequest represents a Gemini generateContent request.
type GeminiRequest struct {
	Contents          []GeminiContent         `json:"contents"`
	SystemInstruction *GeminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

// GeminiContent represents a content block in Gemini format.
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart represents a part of a content block.
type GeminiPart struct {
	Text string `json:"text,omitempty"`
}

// GeminiGenerationConfig contains generation parameters.
type GeminiGenerationConfig struct {
	MaxOutputTokens *int `json:"maxOutputTokens,omitempty"`
}

// GeminiResponse represents a Gemini generateContent response.
type GeminiResponse struct {
	Candidates    []GeminiCandidate    `json:"candidates"`
	UsageMetadata *GeminiUsageMetadata `json:"usageMetadata,omitempty"`
}

// GeminiCandidate represents a single generated candidate.
type GeminiCandidate struct {
	Content      GeminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
	Index        int           `json:"index"`
}

// GeminiUsageMetadata contains token usage information.
type GeminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// geminiURL puts the credential in the query string, as the API expects.
func geminiURL(ep Endpoint, secret string) string {
	return fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimSuffix(ep.BaseURL, "/"), url.PathEscape(ep.Model), url.QueryEscape(secret))
}

func buildGeminiRequest(ep Endpoint, systemPrompt, content string) any {
	req := GeminiRequest{
		Contents: []GeminiContent{
			{Role: "user", Parts: []GeminiPart{{Text: content}}},
		},
	}
	// Gemini has no system role; the prompt goes into systemInstruction.
	if systemPrompt != "" {
		req.SystemInstruction = &GeminiContent{Parts: []GeminiPart{{Text: systemPrompt}}}
	}
	if ep.MaxTokens > 0 {
		maxTokens := ep.MaxTokens
		req.GenerationConfig = &GeminiGenerationConfig{MaxOutputTokens: &maxTokens}
	}
	return req
}

// extractGeminiText returns the first candidate's first part.
func extractGeminiText(body []byte) (string, error) {
	var resp GeminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal gemini response: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errEmptyResponse
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
