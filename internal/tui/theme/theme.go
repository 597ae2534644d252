// Package theme defines the color palette shared by the CLI and the watch
// dashboard.
package theme

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme is a color palette.
type Theme struct {
	Text    lipgloss.Color
	Subtext lipgloss.Color
	Overlay lipgloss.Color

	Primary lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Info    lipgloss.Color

	// Session state accents
	Active      lipgloss.Color
	Paused      lipgloss.Color
	Ready       lipgloss.Color
	Ended       lipgloss.Color
	RateLimited lipgloss.Color
	Unknown     lipgloss.Color
}

// CatppuccinMocha is the default dark palette.
var CatppuccinMocha = Theme{
	Text:    lipgloss.Color("#cdd6f4"),
	Subtext: lipgloss.Color("#a6adc8"),
	Overlay: lipgloss.Color("#6c7086"),

	Primary: lipgloss.Color("#89b4fa"),
	Success: lipgloss.Color("#a6e3a1"),
	Warning: lipgloss.Color("#f9e2af"),
	Error:   lipgloss.Color("#f38ba8"),
	Info:    lipgloss.Color("#89dceb"),

	Active:      lipgloss.Color("#a6e3a1"),
	Paused:      lipgloss.Color("#f9e2af"),
	Ready:       lipgloss.Color("#89b4fa"),
	Ended:       lipgloss.Color("#6c7086"),
	RateLimited: lipgloss.Color("#fab387"),
	Unknown:     lipgloss.Color("#585b70"),
}

// CatppuccinLatte is the light palette.
var CatppuccinLatte = Theme{
	Text:    lipgloss.Color("#4c4f69"),
	Subtext: lipgloss.Color("#6c6f85"),
	Overlay: lipgloss.Color("#9ca0b0"),

	Primary: lipgloss.Color("#1e66f5"),
	Success: lipgloss.Color("#40a02b"),
	Warning: lipgloss.Color("#df8e1d"),
	Error:   lipgloss.Color("#d20f39"),
	Info:    lipgloss.Color("#04a5e5"),

	Active:      lipgloss.Color("#40a02b"),
	Paused:      lipgloss.Color("#df8e1d"),
	Ready:       lipgloss.Color("#1e66f5"),
	Ended:       lipgloss.Color("#9ca0b0"),
	RateLimited: lipgloss.Color("#fe640b"),
	Unknown:     lipgloss.Color("#acb0be"),
}

var (
	current     Theme
	currentOnce sync.Once
)

// Current returns the active theme. VIGIL_THEME selects "latte" for light
// terminals; everything else gets mocha.
func Current() Theme {
	currentOnce.Do(func() {
		switch strings.ToLower(os.Getenv("VIGIL_THEME")) {
		case "latte", "light":
			current = CatppuccinLatte
		default:
			current = CatppuccinMocha
		}
	})
	return current
}

// HasColor reports whether the terminal supports color at all.
func HasColor() bool {
	return termenv.ColorProfile() != termenv.Ascii && os.Getenv("NO_COLOR") == ""
}

// StateColor maps a session state name to its accent color.
func StateColor(state string) lipgloss.Color {
	t := Current()
	switch state {
	case "active":
		return t.Active
	case "paused":
		return t.Paused
	case "ready":
		return t.Ready
	case "ended":
		return t.Ended
	case "error":
		return t.Error
	case "rate_limited":
		return t.RateLimited
	default:
		return t.Unknown
	}
}
