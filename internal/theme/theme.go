// Package theme holds the color palette and pre-built styles of the terminal
// output.
package theme

import (
	"sync"

	"charm.land/lipgloss/v2"
)

// Theme defines the color palette.
type Theme struct {
	Name   string
	IsDark bool

	// Semantic colors
	Primary   string // lipgloss.Color is a string type
	Secondary string

	// Background hierarchy (dark→light)
	BgBase    string
	BgSurface string
	BgActive  string

	// Foreground hierarchy (dim→bright)
	FgMuted  string
	FgSubtle string
	FgBase   string

	// Status colors
	Success string
	Error   string

	// Lazy-built styles
	styles     *Styles
	stylesOnce sync.Once
}

// Styles contains the pre-built lipgloss styles of the preview.
type Styles struct {
	Heading   lipgloss.Style
	Item      lipgloss.Style
	Muted     lipgloss.Style
	Tab       lipgloss.Style
	TabActive lipgloss.Style
	HintKey   lipgloss.Style
	HintDesc  lipgloss.Style
	StatusOK  lipgloss.Style
	StatusErr lipgloss.Style
}

var (
	current     *Theme
	currentOnce sync.Once
)

// Current returns the process-wide theme.
func Current() *Theme {
	currentOnce.Do(func() {
		current = NewCatppuccinMocha()
	})
	return current
}

// S returns the pre-built styles for this theme.
// Styles are lazily initialized on first call.
func (t *Theme) S() *Styles {
	t.stylesOnce.Do(func() {
		t.styles = t.buildStyles()
	})
	return t.styles
}

// buildStyles constructs the pre-built styles from theme colors.
func (t *Theme) buildStyles() *Styles {
	return &Styles{
		Heading: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Primary)).
			Bold(true),
		Item: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Secondary)).
			Bold(true),
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.FgMuted)),
		Tab: lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color(t.FgSubtle)),
		TabActive: lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color(t.BgBase)).
			Background(lipgloss.Color(t.Secondary)).
			Bold(true),
		HintKey: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.FgBase)).
			Bold(true),
		HintDesc: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.FgMuted)),
		StatusOK: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Success)),
		StatusErr: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Error)),
	}
}
