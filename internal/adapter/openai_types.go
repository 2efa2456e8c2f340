// Package adapter provides implementations for external AI provider integrations.
package adapter

import (
	"encoding/json"
	"fmt"
)

// OpenAI-compatible chat completion types.
// Perplexity speaks the same wire format, so both providers share them.

// ChatRequest represents a chat completion request.
type ChatRequest struct {
	// Model specifies which model to use (e.g., "gpt-4o-mini", "sonar").
	Model string `json:"model"`

	// Messages contains the system prompt and the content to analyze.
	Messages []ChatMessage `json:"messages"`

	// MaxTokens limits the response length. Optional.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// Temperature controls randomness. Optional.
	Temperature *float64 `json:"temperature,omitempty"`
}

// ChatMessage represents a single message in the conversation.
type ChatMessage struct {
	// Role is one of: "system", "user", "assistant".
	Role string `json:"role"`

	// Content is the message text content.
	Content string `json:"content"`
}

// ChatResponse represents a chat completion response.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

// ChatChoice represents a single completion choice.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatUsage contains token usage statistics.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func buildChatRequest(ep Endpoint, systemPrompt, content string) any {
	req := ChatRequest{
		Model: ep.Model,
		Messages: []ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: content},
		},
	}
	if ep.MaxTokens > 0 {
		maxTokens := ep.MaxTokens
		req.MaxTokens = &maxTokens
	}
	return req
}

// extractChatText returns the first choice's message content.
func extractChatText(body []byte) (string, error) {
	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
