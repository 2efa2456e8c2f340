// Package main is the entry point for the SNSMON AI analysis router.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smsh73/SNSMONAI-sub000/internal/adapter"
	"github.com/smsh73/SNSMONAI-sub000/internal/config"
	"github.com/smsh73/SNSMONAI-sub000/internal/domain"
	"github.com/smsh73/SNSMONAI-sub000/internal/handler"
	"github.com/smsh73/SNSMONAI-sub000/internal/metrics"
	"github.com/smsh73/SNSMONAI-sub000/internal/orchestrator"
	"github.com/smsh73/SNSMONAI-sub000/internal/security"
	"github.com/smsh73/SNSMONAI-sub000/internal/store"
	"github.com/smsh73/SNSMONAI-sub000/internal/ui"
)

func main() {
	// =========================================================================
	// 1. Load configuration (Singleton)
	// =========================================================================
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// =========================================================================
	// 2. Setup structured logger with secret redaction
	// =========================================================================
	logger := setupLogger(cfg.Logging, os.Stdout)

	if cfg.Server.ConsoleOutput {
		ui.PrintBanner()
	}

	logger.Info("configuration loaded",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("store", cfg.Store.Driver),
		slog.String("mode", cfg.Orchestrator.Mode),
		slog.Int("configured_credentials", len(cfg.Credentials)),
	)

	// =========================================================================
	// 3. Open the credential store and seed configured credentials
	// =========================================================================
	ctx := context.Background()

	credStore, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		logger.Error("failed to open credential store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	seeded, err := store.Seed(ctx, credStore, cfg.SeedCredentials())
	if err != nil {
		logger.Error("failed to seed credentials", slog.String("error", err.Error()))
		os.Exit(1)
	}

	active, err := activeCounts(ctx, credStore)
	if err != nil {
		logger.Error("failed to count active credentials", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("credential store ready",
		slog.String("driver", cfg.Store.Driver),
		slog.Int("seeded", seeded),
	)
	if cfg.Server.ConsoleOutput && seeded > 0 {
		ui.PrintInfo(fmt.Sprintf("Seeded %d credential(s) from configuration", seeded))
	}

	// =========================================================================
	// 4. Create the provider client and orchestrator
	// =========================================================================
	client := newProviderClient(cfg, logger)
	collector := metrics.NewCollector(metrics.DefaultNamespace)

	mode, err := orchestrator.ParseMode(cfg.Orchestrator.Mode)
	if err != nil {
		logger.Error("invalid orchestrator mode", slog.String("error", err.Error()))
		os.Exit(1)
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(collector),
		orchestrator.WithCallTimeout(cfg.Orchestrator.CallTimeout()),
	}
	if cfg.Server.ConsoleOutput {
		orchOpts = append(orchOpts, orchestrator.WithFallbackHook(ui.PrintFallback))
	}
	orch := orchestrator.New(credStore, client, orchOpts...)

	// =========================================================================
	// 5. Setup Gin router with middleware
	// =========================================================================
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handler.NewRouter(handler.RouterConfig{
		Resolver:      orch,
		Store:         credStore,
		Metrics:       collector,
		Logger:        logger,
		DefaultMode:   mode,
		ConsoleOutput: cfg.Server.ConsoleOutput,
	})

	// =========================================================================
	// 6. Start HTTP server with graceful shutdown
	// =========================================================================
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	go func() {
		logger.Info("server starting", slog.String("address", addr))
		if cfg.Server.ConsoleOutput {
			ui.PrintStartupInfo(cfg.Server.Host, cfg.Server.Port, cfg.Store.Driver, string(mode), active)
		}

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// =========================================================================
	// 7. Graceful shutdown on SIGTERM/SIGINT
	// =========================================================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	if cfg.Server.ConsoleOutput {
		ui.PrintShutdown()
	}

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
		return
	}

	logger.Info("server stopped gracefully")
	if cfg.Server.ConsoleOutput {
		ui.PrintGoodbye()
	}
}

// setupLogger creates a structured logger that redacts secrets before writing.
func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var inner slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		inner = slog.NewTextHandler(w, opts)
	} else {
		inner = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(security.NewRedactedHandler(inner))
	slog.SetDefault(logger)

	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openStore opens the configured credential store. The returned func closes it.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.CredentialStore, func() error, error) {
	switch cfg.Driver {
	case config.StoreMemory, "":
		return store.NewMemoryStore(), func() error { return nil }, nil

	case config.StoreSQLite, config.StorePostgres:
		driver := store.DriverSQLite
		if cfg.Driver == config.StorePostgres {
			driver = store.DriverPostgres
		}
		s, err := store.OpenSQLStore(ctx, driver, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case config.StoreRedis:
		s, err := store.NewRedisStore(ctx, store.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// newProviderClient applies per-provider endpoint and rate limit overrides.
func newProviderClient(cfg *config.Configuration, logger *slog.Logger) *adapter.Client {
	opts := []adapter.ClientOption{adapter.WithClientLogger(logger)}

	for _, p := range cfg.Providers {
		opts = append(opts,
			adapter.WithEndpoint(p.Type, adapter.Endpoint{
				BaseURL:   p.BaseURL,
				Model:     p.Model,
				MaxTokens: p.MaxTokens,
			}),
			adapter.WithRateLimit(p.Type, p.RateLimitPerMinute),
		)
	}

	return adapter.NewClient(opts...)
}

// activeCounts returns the number of active credentials per provider.
func activeCounts(ctx context.Context, s store.CredentialStore) (map[domain.ProviderType]int, error) {
	creds, err := s.List(ctx, store.Filter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.ProviderType]int)
	for _, c := range creds {
		counts[c.Provider]++
	}
	return counts, nil
}
