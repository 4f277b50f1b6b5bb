package tui

import (
	"github.com/charmbracelet/lipgloss"
	"go.trai.ch/tally/internal/ui/style"
)

var (
	// Pane Styles.
	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(style.Slate).
			PaddingLeft(1)

	// Job State Styles.
	queuedStyle = lipgloss.NewStyle().
			Foreground(style.Slate)

	runningStyle = lipgloss.NewStyle().
			Foreground(style.Iris).
			Bold(true)

	requeuedStyle = lipgloss.NewStyle().
			Foreground(style.Yellow)

	readyStyle = lipgloss.NewStyle().
			Foreground(style.Green)

	alertStyle = lipgloss.NewStyle().
			Foreground(style.Red).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(style.Slate)

	// Header Styles.
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Background(style.Iris).
			Foreground(style.White)
)
