package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const (
	appTitle       = "Jivegate 🎚️"
	appDescription = "Silence the quiet stretches of long field recordings, keeping a padded, ramped window around every loud event."
)

// Color palette
var (
	primaryColor   = SignalTeal
	accentColor    = SignalAmber
	successColor   = SignalGreen
	errorColor     = SignalRed
	mutedColor     = lipgloss.Color("#888888") // Gray
	highlightColor = SignalAmber
	textColor      = lipgloss.Color("#FFFFFF") // White
)

// Styles
var (
	// Title style - bold teal
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// Subtitle style - muted gray
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	// Section header style
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			MarginTop(1).
			MarginBottom(1)

	// Success message style
	SuccessStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(successColor)

	// Error message style
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)

	// Highlight style for important values
	HighlightStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlightColor)

	// Key-value pair styles
	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)

	// Box style for framed content
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)
)

// PrintBanner prints the application banner
func PrintBanner() {
	fmt.Println(TitleStyle.Render(appTitle))
	fmt.Println(SubtitleStyle.Render(appDescription))
	fmt.Println()
}

// PrintVersion prints version information
func PrintVersion(version string) {
	fmt.Println(TitleStyle.Render(appTitle))
	fmt.Printf("%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
	fmt.Println()
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), message)
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Printf("%s %s\n", HighlightStyle.Render("Warning:"), message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("%s %s\n", SuccessStyle.Render("✓"), message)
}

// PrintFailure prints a per-file failure without the Error: prefix
func PrintFailure(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("✗"), message)
}

// PrintInfo prints an informational message
func PrintInfo(key, value string) {
	fmt.Printf("%s %s\n", KeyStyle.Render(key+":"), ValueStyle.Render(value))
}

// PrintSection prints a section header
func PrintSection(title string) {
	fmt.Println(HeaderStyle.Render(title))
}

// FormatDuration formats a duration nicely
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.0fms", d.Seconds()*1000)
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}

// FormatSpeed formats gating speed relative to the audio duration
func FormatSpeed(audio, elapsed time.Duration) string {
	if elapsed <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1fx realtime", audio.Seconds()/elapsed.Seconds())
}

// FormatBytes formats bytes into human-readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// PrintBox prints content in a styled box
func PrintBox(content string) {
	fmt.Println(BoxStyle.Render(content))
}

// PrintGateSummary prints the batch totals in a box
func PrintGateSummary(gated, failed int, audio, elapsed time.Duration, written int64) {
	var b strings.Builder

	if failed == 0 {
		b.WriteString(SuccessStyle.Render("✓ Gating Complete!"))
	} else {
		b.WriteString(ErrorStyle.Render(fmt.Sprintf("✗ %d file(s) failed", failed)))
	}
	b.WriteString("\n\n")

	rows := []struct{ key, value string }{
		{"Files:     ", fmt.Sprintf("%d gated, %d failed", gated, failed)},
		{"Audio:     ", FormatDuration(audio)},
		{"Elapsed:   ", FormatDuration(elapsed)},
		{"Speed:     ", FormatSpeed(audio, elapsed)},
		{"Written:   ", FormatBytes(written)},
	}
	for i, row := range rows {
		b.WriteString(KeyStyle.Render(row.key))
		b.WriteString(ValueStyle.Render(row.value))
		if i < len(rows)-1 {
			b.WriteString("\n")
		}
	}

	PrintBox(b.String())
}
