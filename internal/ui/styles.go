// Package ui provides terminal styling for specsync CLI output, with
// adaptive light/dark colors.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/sddkit/specsync/internal/types"
)

func init() {
	// Respect NO_COLOR and non-TTY output.
	if termenv.EnvNoColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

var (
	ColorPass = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	ColorWarn = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	ColorFail = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	ColorMuted = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// Status icons.
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
)

// RenderPass renders text with pass (green) styling.
func RenderPass(s string) string { return PassStyle.Render(s) }

// RenderWarn renders text with warning (yellow) styling.
func RenderWarn(s string) string { return WarnStyle.Render(s) }

// RenderFail renders text with fail (red) styling.
func RenderFail(s string) string { return FailStyle.Render(s) }

// RenderMuted renders text with muted (gray) styling.
func RenderMuted(s string) string { return MutedStyle.Render(s) }

// RenderHeader renders a section header in uppercase.
func RenderHeader(s string) string { return HeaderStyle.Render(strings.ToUpper(s)) }

// RenderPhase renders a phase badge: completed green, implementation accent,
// everything earlier muted.
func RenderPhase(p types.Phase) string {
	switch p {
	case types.PhaseCompleted:
		return PassStyle.Render(string(p))
	case types.PhaseImplementation:
		return AccentStyle.Render(string(p))
	case types.PhaseRequirements, types.PhaseDesign, types.PhaseTasks:
		return MutedStyle.Render(string(p))
	default:
		return string(p)
	}
}

// RenderBranch renders a branch name.
func RenderBranch(s string) string {
	if s == "" {
		return MutedStyle.Render("(no branch)")
	}
	return AccentStyle.Render(s)
}

// RenderWarnings renders a warning block, one line per entry, or "" when
// there are none.
func RenderWarnings(warnings []string) string {
	if len(warnings) == 0 {
		return ""
	}
	var b strings.Builder
	for _, w := range warnings {
		b.WriteString(WarnStyle.Render(IconWarn+" "+w) + "\n")
	}
	return b.String()
}
