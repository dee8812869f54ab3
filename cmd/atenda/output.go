package main

import (
	"fmt"
	"os"
)

// ANSI SGR sequences for terminal output. All human-readable messages go to
// stderr so stdout stays clean JSON for piping.
const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

func paint(code, text string) string {
	if noColor {
		return text
	}
	return code + text + ansiReset
}

func printTagged(code, tag, format string, args ...any) {
	fmt.Fprintln(os.Stderr, paint(code, tag+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) {
	printTagged(ansiGreen, "✓", format, args...)
}

func printError(format string, args ...any) {
	printTagged(ansiRed, "✗", format, args...)
}

func printWarning(format string, args ...any) {
	printTagged(ansiYellow, "⚠", format, args...)
}

func printStep(format string, args ...any) {
	printTagged(ansiCyan, "→", format, args...)
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", paint(ansiBold, label+":"), fmt.Sprintf(format, args...))
}
