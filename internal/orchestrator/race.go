package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/smsh73/SNSMONAI-sub000/internal/adapter"
	"github.com/smsh73/SNSMONAI-sub000/internal/domain"
)

// errRaceWon stops the group once a candidate has answered.
var errRaceWon = errors.New("race won")

// ResolveRace starts every candidate concurrently and keeps the first success.
// AttemptedProviders is the full candidate list and FallbackOccurred reports
// whether the winner was not the first candidate. Only the winner's usage is recorded.
func (o *Orchestrator) ResolveRace(ctx context.Context, req domain.AnalysisRequest, preferred domain.ProviderType) (*domain.AnalysisOutcome, error) {
	candidates, err := o.Candidates(ctx, preferred)
	if err != nil {
		return nil, err
	}

	outcome := domain.NewOutcome()
	if len(candidates) == 0 {
		return o.noCredential(outcome, ModeRace, domain.ErrNoCredentialConfigured)
	}
	if err := ctx.Err(); err != nil {
		return o.abandon(outcome, ModeRace, nil, err)
	}

	systemPrompt := o.prompts(req.Kind, req.Language)

	var (
		mu       sync.Mutex
		winner   = -1
		response *adapter.Response
		failures = make([]*domain.ProviderCallError, len(candidates))
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, cand := range candidates {
		g.Go(func() error {
			resp, err := o.call(gctx, cand, systemPrompt, req.Content)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				failures[i] = &domain.ProviderCallError{Provider: cand.Provider, Err: err}
				return nil
			}
			if winner < 0 {
				winner = i
				response = resp
			}
			return errRaceWon
		})
	}
	_ = g.Wait()

	for _, cand := range candidates {
		outcome.AttemptedProviders = append(outcome.AttemptedProviders, cand.Provider)
	}

	if winner >= 0 {
		o.succeed(ctx, outcome, candidates[winner], response)
		outcome.FallbackOccurred = winner > 0
		o.finishSuccess(outcome, ModeRace)
		return outcome, nil
	}

	collected := make([]*domain.ProviderCallError, 0, len(failures))
	for _, f := range failures {
		if f != nil {
			collected = append(collected, f)
		}
	}

	if err := ctx.Err(); err != nil {
		return o.abandon(outcome, ModeRace, collected, err)
	}

	outcome.ProviderUsed = candidates[len(candidates)-1].Provider
	outcome.FallbackOccurred = len(candidates) > 1
	outcome.ErrorSummary = domain.JoinFailures(collected)

	o.logger.Error("all providers failed",
		slog.String("mode", string(ModeRace)),
		slog.String("attempted", outcome.AttemptedNames()),
		slog.String("error", outcome.ErrorSummary),
	)
	o.metrics.RecordResolution(string(ModeRace), resultFailed)

	return outcome, &domain.AllProvidersFailedError{Failures: collected}
}
