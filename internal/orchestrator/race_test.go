package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smsh73/SNSMONAI-sub000/internal/domain"
	"github.com/smsh73/SNSMONAI-sub000/internal/metrics"
	"github.com/smsh73/SNSMONAI-sub000/internal/store"
)

func TestResolveRace_FastestSuccessWins(t *testing.T) {
	s := store.NewMemoryStore()
	creds := seed(t, s, domain.ProviderOpenAI, domain.ProviderGoogle, domain.ProviderAnthropic)

	caller := newFakeCaller()
	caller.fail[domain.ProviderOpenAI] = errors.New("HTTP 500: boom")
	caller.delay[domain.ProviderGoogle] = 10 * time.Millisecond
	caller.delay[domain.ProviderAnthropic] = 5 * time.Second

	start := time.Now()
	outcome, err := newTestOrchestrator(s, caller).ResolveRace(context.Background(), sentimentReq, "")
	if err != nil {
		t.Fatalf("ResolveRace() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("ResolveRace() took %v, slow candidate was not cancelled", elapsed)
	}

	if !outcome.Success || outcome.ProviderUsed != domain.ProviderGoogle {
		t.Errorf("outcome = %+v, want google", outcome)
	}
	if !outcome.FallbackOccurred {
		t.Error("FallbackOccurred = false, want true for a non-first winner")
	}
	want := []domain.ProviderType{domain.ProviderOpenAI, domain.ProviderGoogle, domain.ProviderAnthropic}
	if !providersEqual(outcome.AttemptedProviders, want) {
		t.Errorf("AttemptedProviders = %v, want %v", outcome.AttemptedProviders, want)
	}

	ctx := context.Background()
	for p, wantUsage := range map[domain.ProviderType]int64{
		domain.ProviderOpenAI:    0,
		domain.ProviderGoogle:    1,
		domain.ProviderAnthropic: 0,
	} {
		c, _ := s.Get(ctx, creds[p].ID)
		if c.UsageCount != wantUsage {
			t.Errorf("%s UsageCount = %d, want %d", p, c.UsageCount, wantUsage)
		}
	}
}

func TestResolveRace_FirstCandidateWinsWithoutFallback(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s, domain.ProviderOpenAI, domain.ProviderGoogle)

	caller := newFakeCaller()
	caller.delay[domain.ProviderGoogle] = 5 * time.Second

	outcome, err := newTestOrchestrator(s, caller).ResolveRace(context.Background(), sentimentReq, "")
	if err != nil {
		t.Fatalf("ResolveRace() error = %v", err)
	}
	if outcome.ProviderUsed != domain.ProviderOpenAI || outcome.FallbackOccurred {
		t.Errorf("outcome = %+v, want openai without fallback", outcome)
	}
}

func TestResolveRace_AllFail(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s, domain.ProviderOpenAI, domain.ProviderGoogle)

	caller := newFakeCaller()
	caller.fail[domain.ProviderOpenAI] = errors.New("HTTP 401: bad key")
	caller.fail[domain.ProviderGoogle] = errors.New("HTTP 400: bad request")

	outcome, err := newTestOrchestrator(s, caller).ResolveRace(context.Background(), sentimentReq, "")

	var allFailed *domain.AllProvidersFailedError
	if !errors.As(err, &allFailed) {
		t.Fatalf("ResolveRace() error = %v, want AllProvidersFailedError", err)
	}
	// Failures are reported in candidate order regardless of completion order.
	want := "openai: HTTP 401: bad key; google: HTTP 400: bad request"
	if outcome.ErrorSummary != want {
		t.Errorf("ErrorSummary = %q, want %q", outcome.ErrorSummary, want)
	}
}

func TestResolveRace_NoCredentials(t *testing.T) {
	caller := newFakeCaller()
	outcome, err := newTestOrchestrator(store.NewMemoryStore(), caller).
		ResolveRace(context.Background(), sentimentReq, "")

	if !errors.Is(err, domain.ErrNoCredentialConfigured) {
		t.Fatalf("error = %v, want ErrNoCredentialConfigured", err)
	}
	if len(outcome.AttemptedProviders) != 0 || len(caller.called()) != 0 {
		t.Errorf("outcome = %+v, calls = %v", outcome, caller.called())
	}
}

func TestResolveWithMode(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s, domain.ProviderOpenAI)
	o := newTestOrchestrator(s, newFakeCaller())

	for _, mode := range []Mode{ModeSequential, ModeRace} {
		outcome, err := o.ResolveWithMode(context.Background(), mode, sentimentReq, "")
		if err != nil || !outcome.Success {
			t.Errorf("ResolveWithMode(%s) = (%+v, %v)", mode, outcome, err)
		}
	}
}

func TestResolveRace_LosersAreNotCountedAsFailures(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s, domain.ProviderOpenAI, domain.ProviderGoogle)

	caller := newFakeCaller()
	caller.delay[domain.ProviderGoogle] = 5 * time.Second

	m := metrics.NewCollector("race")
	outcome, err := newTestOrchestrator(s, caller, WithMetrics(m)).ResolveRace(context.Background(), sentimentReq, "")
	if err != nil || outcome.ProviderUsed != domain.ProviderOpenAI {
		t.Fatalf("ResolveRace() = (%+v, %v), want openai", outcome, err)
	}

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()

	if !strings.Contains(body, `race_provider_calls_total{provider="google",status="cancelled"} 1`) {
		t.Errorf("cancelled loser not counted:\n%s", body)
	}
	if strings.Contains(body, `race_provider_calls_total{provider="google",status="failure"}`) {
		t.Errorf("cancelled loser counted as failure:\n%s", body)
	}
	if !strings.Contains(body, `race_provider_calls_total{provider="openai",status="success"} 1`) {
		t.Errorf("winner not counted:\n%s", body)
	}
}
