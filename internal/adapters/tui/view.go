package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/ui/style"
)

// View renders the dashboard.
//
//nolint:gocritic // hugeParam ignored
func (m Model) View() string {
	if m.UpdatedAt.IsZero() && m.Err == nil {
		return "Initializing..."
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("TALLY") + "\n\n")
	s.WriteString(m.dispatchLine() + "\n")
	s.WriteString(m.challengeLine() + "\n")
	s.WriteString(m.queueLine() + "\n\n")
	s.WriteString(paneStyle.Render(m.jobList()) + "\n\n")

	footer := "q quit · r resume dispatch"
	if m.Err != nil {
		footer = alertStyle.Render(style.Cross+" "+m.Err.Error()) + "  " + footer
	}
	s.WriteString(mutedStyle.Render(footer))
	return s.String()
}

func (m Model) dispatchLine() string {
	lim := m.Status.Limiter
	if lim.Remaining > 0 {
		return requeuedStyle.Render(fmt.Sprintf("%s paused %s", style.Clock, lim.Remaining.Round(time.Second))) +
			mutedStyle.Render(fmt.Sprintf("  spacing %s", lim.Params.MinSpacing))
	}
	return readyStyle.Render(style.Check+" ready") +
		mutedStyle.Render(fmt.Sprintf("  spacing %s", lim.Params.MinSpacing))
}

func (m Model) challengeLine() string {
	ch := m.Status.Challenge
	if !ch.Active() {
		return mutedStyle.Render(style.Circle + " no verification pending")
	}
	return alertStyle.Render(fmt.Sprintf("%s verification required for %s, solve by %s",
		style.Warning, ch.Subject, ch.Deadline.Local().Format(time.TimeOnly)))
}

func (m Model) queueLine() string {
	q := m.Status.Queue
	return mutedStyle.Render(fmt.Sprintf("pending %d · in flight %d · settled %d · failed %d · requeued %d · cached %d",
		q.Pending, q.InFlight, q.Settled, q.Failed, q.Requeued, m.Status.Entries))
}

func (m Model) jobList() string {
	jobs := m.Status.Jobs
	if len(jobs) == 0 {
		return mutedStyle.Render("queue empty")
	}

	// Keep the footer visible on short terminals.
	const chrome = 10
	if limit := m.Height - chrome; m.Height > 0 && limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}

	lines := make([]string, 0, len(jobs))
	for _, j := range jobs {
		var icon string
		var st lipgloss.Style
		switch j.State {
		case domain.JobDispatched:
			icon, st = m.spinner.View(), runningStyle
		case domain.JobRequeued:
			icon, st = style.Clock, requeuedStyle
		default:
			icon, st = style.Circle, queuedStyle
		}
		line := fmt.Sprintf("%s %s", icon, st.Render(j.Key))
		if j.Attempts > 0 {
			line += mutedStyle.Render(fmt.Sprintf("  attempts %d", j.Attempts))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
