// Package term decides once whether console output is colored and holds the
// lipgloss styles shared by the logger, the banner and the summary tables.
//
// [Configure] also sets the lipgloss color profile, so every lipgloss
// render in the process follows the same --color decision. With colors off
// the profile is plain ASCII and styles render their text unchanged.
package term

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/backmassage/neurobatch/internal/config"
)

// Palette.
var (
	ColorError   = lipgloss.Color("#FF6B6B")
	ColorSuccess = lipgloss.Color("#4CAF50")
	ColorWarn    = lipgloss.Color("#F7B801")
	ColorSkip    = lipgloss.Color("#FF8C42")
	ColorInfo    = lipgloss.Color("#5B8DEF")
	ColorDebug   = lipgloss.Color("#4DD0E1")
	ColorDry     = lipgloss.Color("#C77DFF")
	ColorDim     = lipgloss.Color("#888888")
)

// Level styles, one per log level, plus the banner style.
var (
	ErrorStyle   = level(ColorError)
	SuccessStyle = level(ColorSuccess)
	WarnStyle    = level(ColorWarn)
	SkipStyle    = level(ColorSkip)
	InfoStyle    = level(ColorInfo)
	DebugStyle   = level(ColorDebug)
	DryStyle     = level(ColorDry)
	BannerStyle  = level(ColorDry)
)

var enabled bool

func level(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(c)
}

// Configure resolves the color mode and applies it to lipgloss. Call once
// during startup (from [logging.NewLogger]).
func Configure(mode config.ColorMode) {
	enabled = resolve(mode)
	if enabled {
		lipgloss.SetColorProfile(termenv.ANSI256)
	} else {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// Enabled reports whether colors are currently active.
func Enabled() bool { return enabled }

// resolve determines whether colors should be enabled based on the configured
// mode, TTY detection, and the NO_COLOR env var (https://no-color.org).
func resolve(mode config.ColorMode) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	default: // ColorAuto
		return IsTerminal(os.Stdout) &&
			os.Getenv("NO_COLOR") == "" &&
			strings.ToLower(os.Getenv("TERM")) != "dumb"
	}
}

// IsTerminal reports whether f is attached to a TTY (character device).
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
