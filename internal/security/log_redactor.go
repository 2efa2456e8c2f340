// Package security keeps provider secrets out of log output.
package security

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// RedactedPlaceholder replaces every secret found in a log line.
const RedactedPlaceholder = "[REDACTED]"

// secretPatterns match the key shapes of every supported provider.
// Anthropic and Perplexity come before the generic sk- rule so they are matched whole.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{10,}`),
	regexp.MustCompile(`pplx-[a-zA-Z0-9_-]{10,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9_-]{16,}`),
	regexp.MustCompile(`AIza[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{16,}`),
	regexp.MustCompile(`(?i)x-api-key:\s*\S+`),
	regexp.MustCompile(`([?&]key=)[^&\s"]+`),
}

// Redact replaces provider secrets in s with RedactedPlaceholder.
func Redact(s string) string {
	for _, p := range secretPatterns {
		if p.NumSubexp() > 0 {
			s = p.ReplaceAllString(s, "${1}"+RedactedPlaceholder)
			continue
		}
		s = p.ReplaceAllString(s, RedactedPlaceholder)
	}
	return s
}

// RedactedHandler wraps an slog.Handler and scrubs secrets from messages and attributes.
type RedactedHandler struct {
	inner slog.Handler
}

// NewRedactedHandler wraps inner.
func NewRedactedHandler(inner slog.Handler) *RedactedHandler {
	return &RedactedHandler{inner: inner}
}

// Enabled defers to the wrapped handler.
func (h *RedactedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle redacts the record before passing it on.
func (h *RedactedHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, Redact(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

// WithAttrs redacts attrs once, up front.
func (h *RedactedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &RedactedHandler{inner: h.inner.WithAttrs(redacted)}
}

// WithGroup returns a new handler with the given group name.
func (h *RedactedHandler) WithGroup(name string) slog.Handler {
	return &RedactedHandler{inner: h.inner.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, RedactedPlaceholder)
	}

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, Redact(v.String()))
	case slog.KindGroup:
		group := v.Group()
		redacted := make([]any, len(group))
		for i, ga := range group {
			redacted[i] = redactAttr(ga)
		}
		return slog.Group(a.Key, redacted...)
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return slog.String(a.Key, Redact(x.Error()))
		case []string:
			out := make([]string, len(x))
			for i, s := range x {
				out[i] = Redact(s)
			}
			return slog.Any(a.Key, out)
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// isSensitiveKey reports whether an attribute name always carries a secret.
// Identifier attributes such as credential_id are not secret.
func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	if strings.HasSuffix(key, "_id") || key == "id" {
		return false
	}
	for _, k := range []string{"authorization", "api_key", "apikey", "api-key", "secret", "password", "token", "credential"} {
		if strings.Contains(key, k) {
			return true
		}
	}
	return false
}
