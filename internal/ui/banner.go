package ui

import (
	"fmt"

	"github.com/fatih/color"
)

// Version is printed in the banner.
const Version = "v1.0.0"

// PrintBanner displays the startup banner.
func PrintBanner() {
	cyan := color.New(color.FgCyan, color.Bold)
	magenta := color.New(color.FgMagenta, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	white := color.New(color.FgWhite)
	dim := color.New(color.FgHiBlack)

	fmt.Fprintln(out)
	cyan.Fprintln(out, "╔════════════════════════════════════════════════════════╗")

	cyan.Fprint(out, "║  ")
	magenta.Fprint(out, "SNSMON")
	white.Fprint(out, " · ")
	yellow.Fprint(out, "AI ANALYSIS ROUTER")
	dim.Fprintf(out, "  %-24s", Version)
	cyan.Fprintln(out, "║")

	cyan.Fprint(out, "║  ")
	dim.Fprintf(out, "%-54s", "openai → google → anthropic  (perplexity on request)")
	cyan.Fprintln(out, "║")

	cyan.Fprintln(out, "╚════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out)
}
