package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smsh73/SNSMONAI-sub000/internal/domain"
	"github.com/smsh73/SNSMONAI-sub000/internal/metrics"
	"github.com/smsh73/SNSMONAI-sub000/internal/orchestrator"
	"github.com/smsh73/SNSMONAI-sub000/internal/store"
)

// RouterConfig holds the dependencies of the HTTP surface.
type RouterConfig struct {
	Resolver      Resolver
	Store         store.CredentialStore
	Metrics       *metrics.Collector
	Logger        *slog.Logger
	DefaultMode   orchestrator.Mode
	ConsoleOutput bool
}

// NewRouter builds the gin engine with middleware and all routes registered.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()

	router.Use(RecoveryMiddleware(logger))
	router.Use(CORSMiddleware())
	router.Use(LoggingMiddleware(logger))
	if cfg.Metrics != nil {
		router.Use(MetricsMiddleware(cfg.Metrics))
	}
	if cfg.ConsoleOutput {
		router.Use(ConsoleMiddleware())
	}

	analysis := NewAnalysisHandler(cfg.Resolver,
		WithDefaultMode(cfg.DefaultMode),
		WithLogger(logger),
		WithConsoleOutput(cfg.ConsoleOutput),
	)
	credentials := NewCredentialHandler(cfg.Store, logger)

	v1 := router.Group("/v1")
	v1.POST("/analyze", analysis.HandleAnalyze)

	v1.GET("/credentials", credentials.HandleList)
	v1.POST("/credentials", credentials.HandleCreate)
	v1.POST("/credentials/validate", credentials.HandleValidate)
	v1.GET("/credentials/:id", credentials.HandleGet)
	v1.PATCH("/credentials/:id", credentials.HandleUpdate)
	v1.DELETE("/credentials/:id", credentials.HandleDelete)

	router.GET("/health", healthHandler(cfg.Store, logger))
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	return router
}

// healthHandler reports active credentials per provider. The service is
// degraded, not down, when no provider has an active credential.
func healthHandler(s store.CredentialStore, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		creds, err := s.List(c.Request.Context(), store.Filter{ActiveOnly: true})
		if err != nil {
			logger.Error("health check failed", slog.String("error", err.Error()))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"error":  "credential store unavailable",
			})
			return
		}

		active := make(map[domain.ProviderType]int, len(domain.AllProviders))
		for _, p := range domain.AllProviders {
			active[p] = 0
		}
		for _, cred := range creds {
			active[cred.Provider]++
		}

		status := "healthy"
		if len(creds) == 0 {
			status = "degraded"
		}

		c.JSON(http.StatusOK, gin.H{
			"status":             status,
			"active_credentials": active,
			"fallback_order":     domain.FallbackOrder,
		})
	}
}
