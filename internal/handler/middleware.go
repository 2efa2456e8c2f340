// Package handler provides the HTTP surface of the analysis router.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smsh73/SNSMONAI-sub000/internal/metrics"
	"github.com/smsh73/SNSMONAI-sub000/internal/ui"
)

// Context keys set by handlers for the logging middleware.
const (
	ctxProviderUsed = "provider_used"
	ctxAttempted    = "attempted_providers"
)

// CORSMiddleware returns a middleware that enables permissive CORS.
// The monitoring console calls the API directly from the browser.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PATCH, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// LoggingMiddleware logs one structured line per request, including which
// provider answered an analysis.
func LoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		}
		if provider := c.GetString(ctxProviderUsed); provider != "" {
			attrs = append(attrs, slog.String("provider_used", provider))
		}
		if attempted := c.GetString(ctxAttempted); attempted != "" {
			attrs = append(attrs, slog.String("attempted", attempted))
		}

		logger.Info("request completed", attrs...)
	}
}

// MetricsMiddleware counts requests by matched route.
func MetricsMiddleware(m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// ConsoleMiddleware prints a coloured line per request.
func ConsoleMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ui.PrintRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start), c.GetString(ctxProviderUsed))
	}
}

// RecoveryMiddleware recovers from panics and returns a JSON 500.
func RecoveryMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					slog.Any("error", err),
					slog.String("path", c.Request.URL.Path),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody("internal_error", "Internal server error"))
			}
		}()

		c.Next()
	}
}

// errorBody is the JSON shape of every non-outcome error response.
func errorBody(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
