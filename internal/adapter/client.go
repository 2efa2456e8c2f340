package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/smsh73/SNSMONAI-sub000/internal/domain"
)

var errEmptyResponse = errors.New("empty response: no content to extract")

// Endpoint is where and how a provider is called.
type Endpoint struct {
	BaseURL   string
	Model     string
	MaxTokens int
}

// wireProfile is one row of the dispatch table.
type wireProfile struct {
	defaults  Endpoint
	url       func(ep Endpoint, secret string) string
	authorize func(h http.Header, secret string)
	body      func(ep Endpoint, systemPrompt, content string) any
	extract   func(body []byte) (string, error)
}

// wireProfiles maps each provider to its wire behavior. Adding a provider means adding a row.
var wireProfiles = map[domain.ProviderType]wireProfile{
	domain.ProviderOpenAI: {
		defaults:  Endpoint{BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini"},
		url:       chatCompletionsURL,
		authorize: authorizeBearer,
		body:      buildChatRequest,
		extract:   extractChatText,
	},
	domain.ProviderPerplexity: {
		defaults:  Endpoint{BaseURL: "https://api.perplexity.ai", Model: "sonar"},
		url:       chatCompletionsURL,
		authorize: authorizeBearer,
		body:      buildChatRequest,
		extract:   extractChatText,
	},
	domain.ProviderAnthropic: {
		defaults: Endpoint{BaseURL: "https://api.anthropic.com/v1", Model: "claude-3-5-haiku-latest"},
		url: func(ep Endpoint, _ string) string {
			return strings.TrimSuffix(ep.BaseURL, "/") + "/messages"
		},
		authorize: authorizeAnthropic,
		body:      buildAnthropicRequest,
		extract:   extractAnthropicText,
	},
	domain.ProviderGoogle: {
		defaults:  Endpoint{BaseURL: "https://generativelanguage.googleapis.com/v1beta", Model: "gemini-1.5-flash"},
		url:       geminiURL,
		authorize: func(http.Header, string) {},
		body:      buildGeminiRequest,
		extract:   extractGeminiText,
	},
}

func chatCompletionsURL(ep Endpoint, _ string) string {
	return strings.TrimSuffix(ep.BaseURL, "/") + "/chat/completions"
}

func authorizeBearer(h http.Header, secret string) {
	h.Set("Authorization", "Bearer "+secret)
}

// DefaultEndpoint returns the built-in endpoint for provider.
func DefaultEndpoint(provider domain.ProviderType) (Endpoint, bool) {
	wp, ok := wireProfiles[provider]
	return wp.defaults, ok
}

// Client implements Caller over HTTPS for every provider in the dispatch table.
type Client struct {
	httpClient *http.Client
	endpoints  map[domain.ProviderType]Endpoint
	limiters   map[domain.ProviderType]*rate.Limiter
	logger     *slog.Logger
}

// ClientOption is a functional option for configuring Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithEndpoint overrides the non-empty fields of a provider's endpoint.
func WithEndpoint(provider domain.ProviderType, ep Endpoint) ClientOption {
	return func(c *Client) {
		current := c.endpoints[provider]
		if ep.BaseURL != "" {
			current.BaseURL = strings.TrimSuffix(ep.BaseURL, "/")
		}
		if ep.Model != "" {
			current.Model = ep.Model
		}
		if ep.MaxTokens > 0 {
			current.MaxTokens = ep.MaxTokens
		}
		c.endpoints[provider] = current
	}
}

// WithRateLimit caps requests per minute to provider. Zero or less disables it.
func WithRateLimit(provider domain.ProviderType, perMinute int) ClientOption {
	return func(c *Client) {
		if perMinute <= 0 {
			delete(c.limiters, provider)
			return
		}
		c.limiters[provider] = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
}

// WithClientLogger sets a custom logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client with the built-in endpoints and no HTTP timeout.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{},
		endpoints:  make(map[domain.ProviderType]Endpoint, len(wireProfiles)),
		limiters:   make(map[domain.ProviderType]*rate.Limiter),
		logger:     slog.Default(),
	}
	for p, wp := range wireProfiles {
		c.endpoints[p] = wp.defaults
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Endpoint returns the effective endpoint for provider.
func (c *Client) Endpoint(provider domain.ProviderType) Endpoint {
	return c.endpoints[provider]
}

// Call performs one request against provider.
func (c *Client) Call(ctx context.Context, provider domain.ProviderType, secret, systemPrompt, content string) (*Response, error) {
	wp, ok := wireProfiles[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, provider)
	}
	ep := c.endpoints[provider]

	if limiter := c.limiters[provider]; limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(wp.body(ep, systemPrompt, content))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", provider, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, wp.url(ep, secret), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", scrubURL(err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	wp.authorize(httpReq.Header, secret)

	c.logger.Debug("calling provider",
		slog.String("provider", string(provider)),
		slog.String("model", ep.Model),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, scrubURL(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	text, err := wp.extract(respBody)
	if err != nil {
		return nil, err
	}

	return &Response{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Raw:        json.RawMessage(respBody),
		Text:       text,
	}, nil
}

// scrubURL drops the query string from transport errors so a query-string
// credential never ends up in an error summary.
func scrubURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		u, perr := url.Parse(urlErr.URL)
		if perr != nil {
			urlErr.URL = "[invalid url]"
			return err
		}
		u.RawQuery = ""
		urlErr.URL = u.String()
	}
	return err
}
