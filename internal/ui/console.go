// Package ui provides coloured console output for the analysis router.
package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/smsh73/SNSMONAI-sub000/internal/domain"
)

var (
	successBadge = color.New(color.BgGreen, color.FgBlack, color.Bold)
	warningBadge = color.New(color.FgYellow, color.Bold)
	errorBadge   = color.New(color.BgRed, color.FgWhite, color.Bold)
	infoBadge    = color.New(color.FgCyan, color.Bold)
	debugBadge   = color.New(color.FgMagenta)

	successText = color.New(color.FgGreen, color.Bold)
	warningText = color.New(color.FgYellow)
	errorText   = color.New(color.FgRed)
	infoText    = color.New(color.FgCyan)
	mutedText   = color.New(color.FgHiBlack)
	accentText  = color.New(color.FgMagenta, color.Bold)
	neonBlue    = color.New(color.FgHiCyan, color.Bold)

	methodPOST   = color.New(color.BgHiMagenta, color.FgBlack, color.Bold)
	methodGET    = color.New(color.BgHiCyan, color.FgBlack, color.Bold)
	methodPATCH  = color.New(color.BgHiYellow, color.FgBlack, color.Bold)
	methodDELETE = color.New(color.BgHiRed, color.FgBlack, color.Bold)
)

// out receives all console output.
var out io.Writer = color.Output

// SetOutput redirects console output and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	prev := out
	out = w
	return prev
}

// PrintFallback logs a provider switch.
// Format: ⚠️ [FALLBACK] openai → google (HTTP 429: ...)
func PrintFallback(from, to domain.ProviderType, reason error) {
	fmt.Fprint(out, "⚠️  ")
	warningBadge.Fprint(out, "[FALLBACK]")
	fmt.Fprint(out, " ")
	mutedText.Fprint(out, from)
	warningText.Fprint(out, " → ")
	accentText.Fprint(out, to)
	if reason != nil {
		mutedText.Fprintf(out, " (%s)", truncate(reason.Error(), 80))
	}
	fmt.Fprintln(out)
}

// PrintOutcome logs the result of one resolution.
func PrintOutcome(o *domain.AnalysisOutcome) {
	if o == nil {
		return
	}
	if o.Success {
		successBadge.Fprint(out, " OK ")
		fmt.Fprint(out, " answered by ")
		successText.Fprint(out, o.ProviderUsed)
		if o.FallbackOccurred {
			warningText.Fprintf(out, " after fallback [%s]", o.AttemptedNames())
		}
		fmt.Fprintln(out)
		return
	}

	errorBadge.Fprint(out, " FAILED ")
	fmt.Fprint(out, " ")
	if len(o.AttemptedProviders) > 0 {
		mutedText.Fprintf(out, "[%s] ", o.AttemptedNames())
	}
	errorText.Fprintln(out, truncate(o.ErrorSummary, 160))
}

// PrintInfo logs general router information.
func PrintInfo(msg string) {
	infoBadge.Fprint(out, "[SNSMON-AI]")
	fmt.Fprint(out, " ")
	infoText.Fprintln(out, msg)
}

// PrintRequest logs one served request.
func PrintRequest(method, path string, status int, latency time.Duration, provider string) {
	mutedText.Fprintf(out, "%s ", time.Now().Format("15:04:05"))

	printMethodBadge(method)
	fmt.Fprint(out, " ")

	fmt.Fprintf(out, "%-26s ", truncate(path, 26))

	printStatusBadge(status)
	fmt.Fprint(out, " ")

	printLatency(latency)

	if provider != "" {
		mutedText.Fprintf(out, " via:%s", provider)
	}
	fmt.Fprintln(out)
}

func printMethodBadge(method string) {
	switch method {
	case "POST":
		methodPOST.Fprintf(out, " %-6s", method)
	case "GET":
		methodGET.Fprintf(out, " %-6s", method)
	case "PATCH":
		methodPATCH.Fprintf(out, " %-6s", method)
	case "DELETE":
		methodDELETE.Fprintf(out, " %-6s", method)
	default:
		debugBadge.Fprintf(out, " %-6s", method)
	}
}

func printStatusBadge(status int) {
	switch {
	case status >= 200 && status < 300:
		successBadge.Fprintf(out, " %d ", status)
	case status >= 300 && status < 400:
		infoBadge.Fprintf(out, " %d ", status)
	case status >= 400 && status < 500:
		warningBadge.Fprintf(out, " %d ", status)
	default:
		errorBadge.Fprintf(out, " %d ", status)
	}
}

// printLatency colours by speed. Provider calls are slow, so the bands are wide.
func printLatency(latency time.Duration) {
	ms := latency.Milliseconds()
	s := fmt.Sprintf("%5dms", ms)

	switch {
	case ms < 2000:
		successText.Fprint(out, s)
	case ms < 10000:
		warningText.Fprint(out, s)
	default:
		errorText.Fprint(out, s)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// PrintStartupInfo prints the listen address, store and active credentials per provider.
func PrintStartupInfo(host string, port int, storeDriver, mode string, active map[domain.ProviderType]int) {
	fmt.Fprintln(out)
	infoBadge.Fprint(out, "[SNSMON-AI]")
	fmt.Fprint(out, " Server starting on ")
	neonBlue.Fprintf(out, "http://%s:%d\n", host, port)

	infoBadge.Fprint(out, "[SNSMON-AI]")
	fmt.Fprint(out, " Store: ")
	accentText.Fprint(out, storeDriver)
	fmt.Fprint(out, " | Mode: ")
	accentText.Fprintln(out, mode)

	infoBadge.Fprint(out, "[SNSMON-AI]")
	fmt.Fprint(out, " Active credentials: ")
	fmt.Fprintln(out, formatCounts(active))

	fmt.Fprintln(out)
	printEndpoints()
}

func formatCounts(active map[domain.ProviderType]int) string {
	if len(active) == 0 {
		return errorText.Sprint("none")
	}
	providers := make([]string, 0, len(active))
	for p := range active {
		providers = append(providers, string(p))
	}
	sort.Strings(providers)

	parts := make([]string, len(providers))
	for i, p := range providers {
		parts[i] = fmt.Sprintf("%s=%s", p, successText.Sprint(active[domain.ProviderType(p)]))
	}
	return strings.Join(parts, " ")
}

var endpoints = []struct {
	method, path, desc string
}{
	{"POST", "/v1/analyze", "Run an analysis with fallback"},
	{"GET", "/v1/credentials", "List credentials"},
	{"POST", "/v1/credentials", "Create a credential"},
	{"PATCH", "/v1/credentials/:id", "Update a credential"},
	{"DELETE", "/v1/credentials/:id", "Delete a credential"},
	{"POST", "/v1/credentials/validate", "Check a secret's format"},
	{"GET", "/health", "Health check"},
	{"GET", "/metrics", "Prometheus metrics"},
}

func printEndpoints() {
	mutedText.Fprintln(out, "  ┌──────────────────────────────────────────────────────────────────┐")
	for _, e := range endpoints {
		mutedText.Fprint(out, "  │ ")
		printMethodBadge(e.method)
		fmt.Fprintf(out, " %-25s ", e.path)
		mutedText.Fprintf(out, "%-30s", e.desc)
		mutedText.Fprintln(out, " │")
	}
	mutedText.Fprintln(out, "  └──────────────────────────────────────────────────────────────────┘")
	fmt.Fprintln(out)
}

// PrintShutdown prints a styled shutdown message.
func PrintShutdown() {
	fmt.Fprintln(out)
	warningBadge.Fprint(out, "[SHUTDOWN]")
	warningText.Fprintln(out, " Graceful shutdown initiated...")
}

// PrintGoodbye prints a styled goodbye message.
func PrintGoodbye() {
	successBadge.Fprint(out, " OK ")
	fmt.Fprint(out, " ")
	successText.Fprintln(out, "Server stopped.")
}
