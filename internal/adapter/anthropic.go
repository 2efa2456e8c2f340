package adapter

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// AnthropicVersion is sent with every messages request.
const AnthropicVersion = "2023-06-01"

// defaultAnthropicMaxTokens is used because the messages API requires max_tokens.
const defaultAnthropicMaxTokens = 1024

// AnthropicRequest represents a messages API request.
type AnthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []AnthropicMessage `json:"messages"`
}

// AnthropicMessage is a single conversation turn.
type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AnthropicResponse represents a messages API response.
type AnthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Model      string                  `json:"model"`
	Content    []AnthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
}

// AnthropicContentBlock is one block of the answer.
type AnthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func authorizeAnthropic(h http.Header, secret string) {
	h.Set("x-api-key", secret)
	h.Set("anthropic-version", AnthropicVersion)
}

func buildAnthropicRequest(ep Endpoint, systemPrompt, content string) any {
	maxTokens := ep.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return AnthropicRequest{
		Model:     ep.Model,
		MaxTokens: maxTokens,
		System:    systemPrompt,
		Messages:  []AnthropicMessage{{Role: "user", Content: content}},
	}
}

// extractAnthropicText returns the first content block's text.
func extractAnthropicText(body []byte) (string, error) {
	var resp AnthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal anthropic response: %w", err)
	}
	if len(resp.Content) == 0 {
		return "", errEmptyResponse
	}
	return resp.Content[0].Text, nil
}
