package tui_test

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/tally/internal/adapters/tui"
	"go.trai.ch/tally/internal/app"
	"go.trai.ch/tally/internal/engine/queue"
)

type fakeSource struct {
	status  app.Status
	err     error
	resumed int
}

func (f *fakeSource) Status(context.Context) (app.Status, error) {
	return f.status, f.err
}

func (f *fakeSource) ForceResume(context.Context) error {
	f.resumed++
	return nil
}

func TestModel_PollStoresStatus(t *testing.T) {
	src := &fakeSource{status: app.Status{Queue: queue.Stats{Pending: 2}, Entries: 7}}
	m := tui.NewModel(t.Context(), src, time.Second)

	msg := pollOnce(t, m)
	next, cmd := m.Update(msg)
	assert.NotNil(t, cmd, "next poll is scheduled")

	got := next.(tui.Model)
	require.NoError(t, got.Err)
	assert.Equal(t, 2, got.Status.Queue.Pending)
	assert.Equal(t, 7, got.Status.Entries)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestModel_PollErrorKeepsLastStatus(t *testing.T) {
	src := &fakeSource{status: app.Status{Entries: 3}}
	m := tui.NewModel(t.Context(), src, time.Second)

	next, _ := m.Update(pollOnce(t, m))
	src.err = errors.New("store unavailable")
	next, _ = next.Update(tui.MsgStatus{Err: src.err})

	got := next.(tui.Model)
	require.Error(t, got.Err)
	assert.Equal(t, 3, got.Status.Entries)
}

func TestModel_Keys(t *testing.T) {
	src := &fakeSource{}
	m := tui.NewModel(t.Context(), src, time.Second)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, tui.MsgResumed{}, msg)
	assert.Equal(t, 1, src.resumed)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_WindowSize(t *testing.T) {
	m := tui.NewModel(t.Context(), &fakeSource{}, 0)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	got := next.(tui.Model)
	assert.Equal(t, 80, got.Width)
	assert.Equal(t, 24, got.Height)
}

// pollOnce runs the Init batch and returns the status message it produces.
func pollOnce(t *testing.T, m tui.Model) tea.Msg {
	t.Helper()
	batch, ok := m.Init()().(tea.BatchMsg)
	require.True(t, ok)
	for _, cmd := range batch {
		if msg, ok := cmd().(tui.MsgStatus); ok {
			return msg
		}
	}
	t.Fatal("no status poll in Init")
	return nil
}
