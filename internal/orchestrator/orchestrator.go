// Package orchestrator resolves analysis requests by trying providers in a
// fixed priority order until one answers.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/smsh73/SNSMONAI-sub000/internal/adapter"
	"github.com/smsh73/SNSMONAI-sub000/internal/domain"
	"github.com/smsh73/SNSMONAI-sub000/internal/metrics"
	"github.com/smsh73/SNSMONAI-sub000/internal/prompt"
	"github.com/smsh73/SNSMONAI-sub000/internal/store"
)

// Mode selects how candidates are attempted.
type Mode string

const (
	// ModeSequential tries candidates one at a time. This is the default.
	ModeSequential Mode = "sequential"

	// ModeRace starts every candidate at once and keeps the first success.
	ModeRace Mode = "race"

	// ModeBypass calls one named provider without fallback.
	ModeBypass Mode = "bypass"
)

// ParseMode accepts "", "sequential" and "race".
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSequential:
		return ModeSequential, nil
	case ModeRace:
		return ModeRace, nil
	default:
		return "", fmt.Errorf("unknown orchestration mode %q", s)
	}
}

// Resolution results used as metric labels.
const (
	resultSuccess      = "success"
	resultNoCredential = "no_credential"
	resultFailed       = "failed"
	resultAbandoned    = "abandoned"
)

// Candidate is a provider that will be attempted, with the credential it will use.
type Candidate struct {
	Provider   domain.ProviderType
	Credential domain.Credential
}

// FallbackFunc is notified each time the chain moves past a failed provider.
type FallbackFunc func(from, to domain.ProviderType, reason error)

// Orchestrator selects credentials from a store and drives the provider chain.
type Orchestrator struct {
	store       store.CredentialStore
	caller      adapter.Caller
	logger      *slog.Logger
	metrics     *metrics.Collector
	now         func() time.Time
	callTimeout time.Duration
	prompts     prompt.Builder
	onFallback  FallbackFunc
}

// Option is a functional option for configuring Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records provider calls and resolutions on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithClock overrides the time source used for LastUsedAt.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithCallTimeout bounds each provider call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.callTimeout = d
		}
	}
}

// WithPromptBuilder replaces the system prompt templates.
func WithPromptBuilder(b prompt.Builder) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.prompts = b
		}
	}
}

// WithFallbackHook registers fn to observe provider switches.
func WithFallbackHook(fn FallbackFunc) Option {
	return func(o *Orchestrator) {
		o.onFallback = fn
	}
}

// New creates an Orchestrator reading credentials from s and calling providers through caller.
func New(s store.CredentialStore, caller adapter.Caller, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   s,
		caller:  caller,
		logger:  slog.Default(),
		now:     time.Now,
		prompts: prompt.SystemPrompt,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Candidates builds the ordered, de-duplicated attempt list. The preferred
// provider goes first when it has an active credential, followed by the
// fallback order. Perplexity only appears when it is preferred.
func (o *Orchestrator) Candidates(ctx context.Context, preferred domain.ProviderType) ([]Candidate, error) {
	if preferred != "" && !preferred.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, preferred)
	}

	active, err := o.store.List(ctx, store.Filter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list active credentials: %w", err)
	}

	// First active credential per provider, in store order.
	byProvider := make(map[domain.ProviderType]domain.Credential, len(active))
	for _, c := range active {
		if _, seen := byProvider[c.Provider]; !seen {
			byProvider[c.Provider] = c
		}
	}

	candidates := make([]Candidate, 0, len(domain.FallbackOrder)+1)
	if cred, ok := byProvider[preferred]; ok && preferred != "" {
		candidates = append(candidates, Candidate{Provider: preferred, Credential: cred})
	}
	for _, p := range domain.FallbackOrder {
		if p == preferred {
			continue
		}
		if cred, ok := byProvider[p]; ok {
			candidates = append(candidates, Candidate{Provider: p, Credential: cred})
		}
	}

	return candidates, nil
}

// Resolve tries each candidate in order and stops at the first success.
//
// The outcome is returned for every orchestration result. The error is nil on
// success, domain.ErrNoCredentialConfigured when nothing was eligible,
// *domain.AllProvidersFailedError when every candidate failed, or the context
// error when ctx ended before the chain finished, including mid-call.
// A store failure returns a nil outcome.
func (o *Orchestrator) Resolve(ctx context.Context, req domain.AnalysisRequest, preferred domain.ProviderType) (*domain.AnalysisOutcome, error) {
	candidates, err := o.Candidates(ctx, preferred)
	if err != nil {
		return nil, err
	}

	outcome := domain.NewOutcome()
	if len(candidates) == 0 {
		return o.noCredential(outcome, ModeSequential, domain.ErrNoCredentialConfigured)
	}

	systemPrompt := o.prompts(req.Kind, req.Language)
	var failures []*domain.ProviderCallError

	for i, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return o.abandon(outcome, ModeSequential, failures, err)
		}

		outcome.AttemptedProviders = append(outcome.AttemptedProviders, cand.Provider)

		resp, err := o.call(ctx, cand, systemPrompt, req.Content)
		if err == nil {
			o.succeed(ctx, outcome, cand, resp)
			outcome.FallbackOccurred = len(outcome.AttemptedProviders) > 1
			o.finishSuccess(outcome, ModeSequential)
			return outcome, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			// The caller went away mid-call; that is not the provider's failure.
			if !errors.Is(err, ctxErr) {
				failures = append(failures, &domain.ProviderCallError{Provider: cand.Provider, Err: err})
			}
			return o.abandon(outcome, ModeSequential, failures, ctxErr)
		}

		failures = append(failures, &domain.ProviderCallError{Provider: cand.Provider, Err: err})

		if i+1 < len(candidates) {
			next := candidates[i+1].Provider
			o.logger.Warn("provider call failed, falling back",
				slog.String("provider", string(cand.Provider)),
				slog.String("next", string(next)),
				slog.Bool("retryable", isTransient(err)),
				slog.String("error", err.Error()),
			)
			if o.onFallback != nil {
				o.onFallback(cand.Provider, next, err)
			}
		}
	}

	outcome.ProviderUsed = candidates[len(candidates)-1].Provider
	outcome.FallbackOccurred = len(outcome.AttemptedProviders) > 1
	outcome.ErrorSummary = domain.JoinFailures(failures)

	o.logger.Error("all providers failed",
		slog.String("attempted", outcome.AttemptedNames()),
		slog.String("error", outcome.ErrorSummary),
	)
	o.metrics.RecordResolution(string(ModeSequential), resultFailed)

	return outcome, &domain.AllProvidersFailedError{Failures: failures}
}

// ResolveWithProvider calls exactly one provider, with no fallback.
// A failure is returned as *domain.ProviderCallError.
func (o *Orchestrator) ResolveWithProvider(ctx context.Context, req domain.AnalysisRequest, provider domain.ProviderType) (*domain.AnalysisOutcome, error) {
	if !provider.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, provider)
	}

	creds, err := o.store.List(ctx, store.Filter{Provider: provider, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list active credentials: %w", err)
	}

	outcome := domain.NewOutcome()
	if len(creds) == 0 {
		return o.noCredential(outcome, ModeBypass, domain.NoCredentialForProvider(provider))
	}
	if err := ctx.Err(); err != nil {
		return o.abandon(outcome, ModeBypass, nil, err)
	}

	cand := Candidate{Provider: provider, Credential: creds[0]}
	outcome.AttemptedProviders = append(outcome.AttemptedProviders, provider)

	resp, err := o.call(ctx, cand, o.prompts(req.Kind, req.Language), req.Content)
	if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
		var failures []*domain.ProviderCallError
		if !errors.Is(err, ctxErr) {
			failures = append(failures, &domain.ProviderCallError{Provider: provider, Err: err})
		}
		return o.abandon(outcome, ModeBypass, failures, ctxErr)
	}
	if err != nil {
		failure := &domain.ProviderCallError{Provider: provider, Err: err}
		outcome.ProviderUsed = provider
		outcome.ErrorSummary = failure.Error()

		o.logger.Error("provider call failed",
			slog.String("provider", string(provider)),
			slog.String("mode", string(ModeBypass)),
			slog.String("error", err.Error()),
		)
		o.metrics.RecordResolution(string(ModeBypass), resultFailed)
		return outcome, failure
	}

	o.succeed(ctx, outcome, cand, resp)
	o.finishSuccess(outcome, ModeBypass)
	return outcome, nil
}

// ResolveWithMode dispatches to Resolve or ResolveRace.
func (o *Orchestrator) ResolveWithMode(ctx context.Context, mode Mode, req domain.AnalysisRequest, preferred domain.ProviderType) (*domain.AnalysisOutcome, error) {
	if mode == ModeRace {
		return o.ResolveRace(ctx, req, preferred)
	}
	return o.Resolve(ctx, req, preferred)
}

// call runs one provider attempt, applying the per-call timeout.
func (o *Orchestrator) call(ctx context.Context, cand Candidate, systemPrompt, content string) (*adapter.Response, error) {
	callCtx := ctx
	if o.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.callTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := o.caller.Call(callCtx, cand.Provider, cand.Credential.Secret, systemPrompt, content)
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("timed out after %s: %w", o.callTimeout, err)
	}
	if err != nil && ctx.Err() != nil {
		// Cut short by the caller or by a race winner.
		o.metrics.RecordProviderCancelled(string(cand.Provider))
	} else {
		o.metrics.RecordProviderCall(string(cand.Provider), err == nil, time.Since(start))
	}

	return resp, err
}

// succeed fills the outcome and records usage on the answering credential only.
func (o *Orchestrator) succeed(ctx context.Context, outcome *domain.AnalysisOutcome, cand Candidate, resp *adapter.Response) {
	outcome.Success = true
	outcome.ProviderUsed = cand.Provider
	outcome.Result = resp.Raw
	outcome.Text = resp.Text
	outcome.ErrorSummary = ""

	// The provider already answered; a cancelled request must not lose the count.
	if err := o.store.RecordUsage(context.WithoutCancel(ctx), cand.Credential.ID, o.now()); err != nil {
		o.logger.Warn("failed to record credential usage",
			slog.String("provider", string(cand.Provider)),
			slog.String("credential_id", cand.Credential.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) finishSuccess(outcome *domain.AnalysisOutcome, mode Mode) {
	o.logger.Info("analysis resolved",
		slog.String("provider", string(outcome.ProviderUsed)),
		slog.String("mode", string(mode)),
		slog.Bool("fallback", outcome.FallbackOccurred),
		slog.String("attempted", outcome.AttemptedNames()),
	)
	o.metrics.RecordResolution(string(mode), resultSuccess)
	if outcome.FallbackOccurred {
		o.metrics.RecordFallback(string(outcome.ProviderUsed))
	}
}

func (o *Orchestrator) noCredential(outcome *domain.AnalysisOutcome, mode Mode, err error) (*domain.AnalysisOutcome, error) {
	outcome.ErrorSummary = err.Error()
	o.logger.Warn("no eligible credential",
		slog.String("mode", string(mode)),
		slog.String("error", outcome.ErrorSummary),
	)
	o.metrics.RecordResolution(string(mode), resultNoCredential)
	return outcome, err
}

// abandon ends a resolution whose context finished before the next attempt.
func (o *Orchestrator) abandon(outcome *domain.AnalysisOutcome, mode Mode, failures []*domain.ProviderCallError, ctxErr error) (*domain.AnalysisOutcome, error) {
	if n := len(outcome.AttemptedProviders); n > 0 {
		outcome.ProviderUsed = outcome.AttemptedProviders[n-1]
	}
	outcome.FallbackOccurred = len(outcome.AttemptedProviders) > 1

	summary := "resolution abandoned: " + ctxErr.Error()
	if len(failures) > 0 {
		summary = domain.JoinFailures(failures) + "; " + summary
	}
	outcome.ErrorSummary = summary

	o.logger.Warn("resolution abandoned",
		slog.String("mode", string(mode)),
		slog.String("attempted", outcome.AttemptedNames()),
		slog.String("error", ctxErr.Error()),
	)
	o.metrics.RecordResolution(string(mode), resultAbandoned)
	return outcome, ctxErr
}

// isTransient reports whether err looks like rate limiting, a provider outage or a timeout.
// It only informs logging: every failure falls back.
func isTransient(err error) bool {
	var apiErr *adapter.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
