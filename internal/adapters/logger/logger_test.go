package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/tally/internal/adapters/logger"
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/zerr"
)

func TestLogger_Levels(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var buf bytes.Buffer
	lg := logger.New(&buf, domain.LogLevelInfo)

	lg.Debug("hidden")
	lg.Info("job queued", "key", "cache:market:3m:alice")
	lg.Warn("cooldown set", "until", "10:05")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "● job queued key=cache:market:3m:alice")
	assert.Contains(t, out, "! cooldown set until=10:05")

	lg.SetLevel(domain.LogLevelDebug)
	lg.Debug("now visible")
	assert.Contains(t, buf.String(), "○ now visible")
}

func TestLogger_ErrorChain(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var buf bytes.Buffer
	lg := logger.New(&buf, domain.LogLevelInfo)

	err := zerr.With(zerr.Wrap(errors.New("connection refused"), "fetch failed"), "subject", "alice")
	lg.Error(err)

	out := buf.String()
	assert.Contains(t, out, "✗ Error: fetch failed (subject=alice)")
	assert.Contains(t, out, "Caused by:")
	assert.Contains(t, out, "→ connection refused")
}

func TestLogger_ErrorNil(t *testing.T) {
	var buf bytes.Buffer
	logger.New(&buf, domain.LogLevelInfo).Error(nil)
	assert.Empty(t, buf.String())
}

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	lg := logger.New(&buf, domain.LogLevelInfo)
	lg.SetJSON(true)

	lg.Info("settled", "attempts", 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "settled", rec["msg"])
	assert.InDelta(t, 2, rec["attempts"], 0)
}

func TestLogger_SetOutput(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var first, second bytes.Buffer
	lg := logger.New(&first, domain.LogLevelInfo)
	lg.SetOutput(&second)
	lg.Info("moved")

	assert.Empty(t, first.String())
	assert.Contains(t, second.String(), "moved")
}

func TestLogger_Discard(t *testing.T) {
	lg := logger.Discard()
	lg.Error(errors.New("dropped"))
	lg.Info("dropped")
}

func TestErrorReport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "standard error",
			err:  errors.New("plain"),
			want: []string{"Error: plain"},
		},
		{
			name: "wrapped sentinel",
			err:  zerr.Wrap(domain.ErrRateLimited, "measure alice"),
			want: []string{"Error: measure alice", "", "  Caused by:", "    → rate limited by remote"},
		},
		{
			name: "three layers",
			err:  zerr.Wrap(zerr.Wrap(errors.New("eof"), "read body"), "measure"),
			want: []string{"Error: measure", "", "  Caused by:", "    → read body", "    → eof"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, strings.Join(tt.want, "\n"), logger.ErrorReport(tt.err))
		})
	}
}

func TestPrettyHandler_Group(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var buf bytes.Buffer
	h := logger.NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.New(h).WithGroup("queue").With("slot", 1).Info("dispatch")

	assert.Contains(t, buf.String(), "● dispatch queue.slot=1")
}
