// Package style provides the shared palette, icons and lipgloss styles used by
// the log handler, the notifier and the CLI tables.
package style

import "github.com/charmbracelet/lipgloss"

// Palette.
var (
	Iris   = lipgloss.Color("#8B5CF6")
	Slate  = lipgloss.Color("#667085")
	White  = lipgloss.Color("#FFFFFF")
	Ink    = lipgloss.Color("#0B0F19")
	Green  = lipgloss.Color("#22A06B")
	Red    = lipgloss.Color("#D93025")
	Yellow = lipgloss.Color("#F59E0B")
)

// Icons.
const (
	Check   = "✓"
	Cross   = "✗"
	Warning = "!"
	Dot     = "●"
	Circle  = "○"
	Clock   = "◷"
)

// Banner returns the bordered box used for attention banners in the given accent.
func Banner(r *lipgloss.Renderer, accent lipgloss.Color) lipgloss.Style {
	return r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Foreground(accent).
		Padding(0, 1)
}

// CountStyle colors a count red when it is at or below the threshold and green above it.
func CountStyle(r *lipgloss.Renderer, count, threshold int) lipgloss.Style {
	if count <= threshold {
		return r.NewStyle().Foreground(Red).Bold(true)
	}
	return r.NewStyle().Foreground(Green)
}

// Muted is the style for secondary columns.
func Muted(r *lipgloss.Renderer) lipgloss.Style {
	return r.NewStyle().Foreground(Slate)
}

// Header is the style for table headers.
func Header(r *lipgloss.Renderer) lipgloss.Style {
	return r.NewStyle().Foreground(Iris).Bold(true)
}
