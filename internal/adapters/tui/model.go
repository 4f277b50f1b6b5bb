// Package tui provides a live terminal view of the fetch queue and limiter.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.trai.ch/tally/internal/app"
)

// DefaultInterval is how often the status is polled.
const DefaultInterval = time.Second

// Source supplies status snapshots and accepts the resume control.
type Source interface {
	Status(ctx context.Context) (app.Status, error)
	ForceResume(ctx context.Context) error
}

// Model represents the dashboard state.
type Model struct {
	Status    app.Status
	Err       error
	UpdatedAt time.Time
	Width     int
	Height    int

	ctx      context.Context //nolint:containedctx // bubbletea commands run without a context
	source   Source
	interval time.Duration
	spinner  spinner.Model
}

// NewModel creates a dashboard polling source every interval.
func NewModel(ctx context.Context, source Source, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = runningStyle

	return Model{
		ctx:      ctx,
		source:   source,
		interval: interval,
		spinner:  s,
	}
}

// Init starts polling and the spinner.
//
//nolint:gocritic // hugeParam ignored
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.poll(), m.spinner.Tick)
}

// Update handles incoming messages and updates the model state.
//
//nolint:gocritic // hugeParam ignored
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.resume()
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case MsgStatus:
		m.Err = msg.Err
		if msg.Err == nil {
			m.Status = msg.Status
			m.UpdatedAt = time.Now()
		}
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return msgTick{} })

	case MsgResumed:
		m.Err = msg.Err
		return m, m.poll()

	case msgTick:
		return m, m.poll()
	}

	return m, nil
}

func (m Model) poll() tea.Cmd {
	return func() tea.Msg {
		status, err := m.source.Status(m.ctx)
		return MsgStatus{Status: status, Err: err}
	}
}

func (m Model) resume() tea.Cmd {
	return func() tea.Msg {
		return MsgResumed{Err: m.source.ForceResume(m.ctx)}
	}
}
