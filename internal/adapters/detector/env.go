// Package detector decides whether the serve dashboard can take over the terminal.
package detector

import (
	"io"
	"os"

	"golang.org/x/term"
)

// OutputMode is how serve reports progress.
type OutputMode int

const (
	// ModeAuto defers to environment detection.
	ModeAuto OutputMode = iota
	// ModeDashboard runs the interactive dashboard.
	ModeDashboard
	// ModePlain writes log lines only.
	ModePlain
)

type fileDescriptor interface {
	Fd() uintptr
}

// DetectEnvironment returns ModeDashboard only when out is a terminal and no
// CI environment variable is set.
func DetectEnvironment(out io.Writer) OutputMode {
	f, ok := out.(fileDescriptor)
	isTTY := ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int

	ci := os.Getenv("CI")
	isCI := ci == "true" || ci == "1"

	if !isTTY || isCI {
		return ModePlain
	}
	return ModeDashboard
}

// ResolveMode applies the --output flag ("auto", "dashboard", "plain") to the
// detected mode. Unknown values keep the detected mode.
func ResolveMode(detected OutputMode, flag string) OutputMode {
	switch flag {
	case "dashboard", "tui":
		return ModeDashboard
	case "plain", "linear", "ci":
		return ModePlain
	default:
		return detected
	}
}
