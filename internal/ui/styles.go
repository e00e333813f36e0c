package ui

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/fieldward/manholeguard/internal/model"
)

// ANSI256 color codes.
const (
	colorSafe    = 70  // green
	colorCaution = 178 // amber
	colorDanger  = 160 // red
	colorMuted   = 245 // medium gray
)

var noColor bool

// RenderRiskLevel returns the level colored green, amber, or red.
func RenderRiskLevel(level model.RiskLevel) string {
	if noColor {
		return string(level)
	}
	color := colorMuted
	switch level {
	case model.RiskSafe:
		color = colorSafe
	case model.RiskCaution:
		color = colorCaution
	case model.RiskProhibited:
		color = colorDanger
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, level)
}

// RenderState returns an entry state, hazard states in red.
func RenderState(state model.EntryState) string {
	if noColor {
		return string(state)
	}
	color := colorMuted
	switch state {
	case model.StateActive, model.StateEntered:
		color = colorSafe
	case model.StateOverstayAlert, model.StateCheckinMissed:
		color = colorCaution
	case model.StateSOSTriggered, model.StateGasAlert:
		color = colorDanger
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, state)
}

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", colorMuted, s)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

// ShouldUseColor reports whether ANSI colors should go to stdout,
// honoring NO_COLOR, CLICOLOR_FORCE, CLICOLOR, and TTY detection.
func ShouldUseColor() bool {
	switch {
	case os.Getenv("NO_COLOR") != "":
		// Any non-empty value disables color (https://no-color.org).
		return false
	case strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1":
		return true
	case strings.TrimSpace(os.Getenv("CLICOLOR")) == "0":
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}
