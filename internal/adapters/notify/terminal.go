// Package notify renders operator attention banners.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jonboulle/clockwork"
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/ui/output"
	"go.trai.ch/tally/internal/ui/style"
)

// Terminal writes banners to a terminal. It implements ports.Notifier.
type Terminal struct {
	mu       sync.Mutex
	w        io.Writer
	renderer *lipgloss.Renderer
	clock    clockwork.Clock
}

// NewTerminal creates a Terminal writing to w (stderr when nil).
func NewTerminal(w io.Writer, clock clockwork.Clock) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	return &Terminal{w: w, renderer: output.Renderer(w), clock: clock}
}

// ChallengeDetected asks the operator to solve a verification before deadline.
func (t *Terminal) ChallengeDetected(_ context.Context, subject string, deadline time.Time) {
	t.banner(style.Yellow, style.Warning+" Verification required",
		fmt.Sprintf("Measuring %s hit a verification page.", subject),
		fmt.Sprintf("Solve it within %s (until %s).", t.until(deadline), deadline.Format(time.Kitchen)))
}

// ChallengeResolved reports that measurement continues.
func (t *Terminal) ChallengeResolved(_ context.Context, subject string) {
	t.banner(style.Green, style.Check+" Verification solved",
		fmt.Sprintf("Resuming measurement of %s.", subject))
}

// CooldownStarted reports that dispatch is paused until until.
func (t *Terminal) CooldownStarted(_ context.Context, kind domain.ErrorKind, until time.Time) {
	t.banner(style.Red, style.Clock+" Dispatch paused",
		fmt.Sprintf("Remote signalled %s.", kind),
		fmt.Sprintf("Next request in %s (at %s).", t.until(until), until.Format(time.Kitchen)))
}

func (t *Terminal) until(at time.Time) time.Duration {
	return max(at.Sub(t.clock.Now()), 0).Round(time.Second)
}

func (t *Terminal) banner(accent lipgloss.Color, title string, lines ...string) {
	head := t.renderer.NewStyle().Bold(true).Render(title)
	body := lipgloss.JoinVertical(lipgloss.Left, append([]string{head}, lines...)...)

	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = fmt.Fprintln(t.w, style.Banner(t.renderer, accent).Render(body))
}
