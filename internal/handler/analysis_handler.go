package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smsh73/SNSMONAI-sub000/internal/domain"
	"github.com/smsh73/SNSMONAI-sub000/internal/orchestrator"
	"github.com/smsh73/SNSMONAI-sub000/internal/ui"
)

// Resolver is the part of the orchestrator the analysis endpoint needs.
type Resolver interface {
	ResolveWithMode(ctx context.Context, mode orchestrator.Mode, req domain.AnalysisRequest, preferred domain.ProviderType) (*domain.AnalysisOutcome, error)
	ResolveWithProvider(ctx context.Context, req domain.AnalysisRequest, provider domain.ProviderType) (*domain.AnalysisOutcome, error)
}

// AnalyzeRequest is the body of POST /v1/analyze.
type AnalyzeRequest struct {
	Kind     string `json:"kind"`
	Content  string `json:"content" binding:"required"`
	Language string `json:"language"`

	// PreferredProvider is tried first when it has an active credential.
	PreferredProvider string `json:"preferred_provider"`

	// Provider selects bypass mode: only this provider is called.
	Provider string `json:"provider"`

	// Mode is sequential (default) or race. Ignored in bypass mode.
	Mode string `json:"mode"`
}

// AnalysisHandler serves the analysis endpoint.
type AnalysisHandler struct {
	resolver    Resolver
	defaultMode orchestrator.Mode
	logger      *slog.Logger
	console     bool
}

// AnalysisHandlerOption is a functional option for configuring AnalysisHandler.
type AnalysisHandlerOption func(*AnalysisHandler)

// WithDefaultMode sets the mode used when a request does not name one.
func WithDefaultMode(mode orchestrator.Mode) AnalysisHandlerOption {
	return func(h *AnalysisHandler) {
		if mode != "" {
			h.defaultMode = mode
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) AnalysisHandlerOption {
	return func(h *AnalysisHandler) {
		h.logger = logger
	}
}

// WithConsoleOutput prints each outcome to the console.
func WithConsoleOutput(enabled bool) AnalysisHandlerOption {
	return func(h *AnalysisHandler) {
		h.console = enabled
	}
}

// NewAnalysisHandler creates a new AnalysisHandler.
func NewAnalysisHandler(resolver Resolver, opts ...AnalysisHandlerOption) *AnalysisHandler {
	h := &AnalysisHandler{
		resolver:    resolver,
		defaultMode: orchestrator.ModeSequential,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// HandleAnalyze handles POST /v1/analyze.
func (h *AnalysisHandler) HandleAnalyze(c *gin.Context) {
	var body AnalyzeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_request", "Invalid request body: "+err.Error()))
		return
	}

	req := domain.AnalysisRequest{
		Kind:     domain.AnalysisKind(body.Kind),
		Content:  body.Content,
		Language: body.Language,
	}

	var (
		outcome *domain.AnalysisOutcome
		err     error
	)

	if body.Provider != "" {
		provider, perr := domain.ParseProviderType(body.Provider)
		if perr != nil {
			c.JSON(http.StatusBadRequest, errorBody("invalid_provider", perr.Error()))
			return
		}
		outcome, err = h.resolver.ResolveWithProvider(c.Request.Context(), req, provider)
	} else {
		var preferred domain.ProviderType
		if body.PreferredProvider != "" {
			p, perr := domain.ParseProviderType(body.PreferredProvider)
			if perr != nil {
				c.JSON(http.StatusBadRequest, errorBody("invalid_provider", perr.Error()))
				return
			}
			preferred = p
		}

		mode := h.defaultMode
		if body.Mode != "" {
			m, merr := orchestrator.ParseMode(body.Mode)
			if merr != nil {
				c.JSON(http.StatusBadRequest, errorBody("invalid_mode", merr.Error()))
				return
			}
			mode = m
		}

		outcome, err = h.resolver.ResolveWithMode(c.Request.Context(), mode, req, preferred)
	}

	if outcome == nil {
		status := statusFor(err)
		h.logger.Error("analysis could not be resolved",
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		c.JSON(status, errorBody("resolution_error", err.Error()))
		return
	}

	c.Set(ctxAttempted, outcome.AttemptedNames())
	if outcome.Success {
		c.Set(ctxProviderUsed, string(outcome.ProviderUsed))
	}
	if h.console {
		ui.PrintOutcome(outcome)
	}

	c.JSON(statusFor(err), outcome)
}

// statusFor maps orchestration errors onto HTTP status codes.
func statusFor(err error) int {
	var allFailed *domain.AllProvidersFailedError
	var callErr *domain.ProviderCallError

	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrUnknownProvider):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoCredentialConfigured):
		return http.StatusServiceUnavailable
	case errors.As(err, &allFailed), errors.As(err, &callErr):
		// Checked before the context cases: a per-call timeout is a provider failure.
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
