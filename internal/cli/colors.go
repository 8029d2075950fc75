package cli

import "github.com/charmbracelet/lipgloss"

// Signal palette 🎚️
// Shared gate theme colours for consistent branding across CLI and TUI
var (
	// Level meter colours (quiet to loud)
	SignalTeal  = lipgloss.Color("#2EC4B6") // Gate closed / quiet
	SignalGreen = lipgloss.Color("#7BD389") // Gate open
	SignalAmber = lipgloss.Color("#FFB627") // Ramp / attention
	SignalRed   = lipgloss.Color("#E4572E") // Clipping / failure

	// Accent colours
	SlateGray = lipgloss.Color("#6C7A89") // Subtle text
)
