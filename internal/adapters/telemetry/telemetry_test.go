package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.trai.ch/tally/internal/adapters/telemetry"
	"go.trai.ch/tally/internal/core/ports"
	"go.trai.ch/tally/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func TestInterfaceSatisfaction(_ *testing.T) {
	var _ ports.Tracer = (*telemetry.OTelTracer)(nil)
	var _ ports.Span = (*telemetry.OTelSpan)(nil)
	var _ ports.Tracer = (*telemetry.NoOpTracer)(nil)
	var _ ports.Span = telemetry.NoOpSpan{}
	var _ sdktrace.SpanProcessor = (*telemetry.LogBridge)(nil)
}

func TestOTelTracer_RecordsAttributes(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tracer := telemetry.NewOTelTracer(tp)

	_, span := tracer.Start(context.Background(), "tally.measure")
	span.SetAttribute("subject", "alice")
	span.SetAttribute("months", 3)
	span.SetAttribute("truncated", true)
	span.SetAttribute("deadline", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	span.RecordError(errors.New("rate limited"))
	span.RecordError(nil)
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	got := ended[0]
	assert.Equal(t, "tally.measure", got.Name())
	assert.Equal(t, codes.Error, got.Status().Code)
	assert.Equal(t, "rate limited", got.Status().Description)
	assert.Contains(t, got.Attributes(), attribute.String("subject", "alice"))
	assert.Contains(t, got.Attributes(), attribute.Int("months", 3))
	assert.Contains(t, got.Attributes(), attribute.Bool("truncated", true))
	assert.Contains(t, got.Attributes(), attribute.String("deadline", "2024-01-02T03:04:05Z"))
}

func TestLogBridge(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)

	log.EXPECT().Debug("tally.measure", gomock.Any()).Times(1)
	log.EXPECT().Warn("tally.measure failed", gomock.Any()).Times(1)

	tp := telemetry.NewProvider(log)
	tracer := telemetry.NewOTelTracer(tp)

	_, ok := tracer.Start(context.Background(), "tally.measure")
	ok.SetAttribute("subject", "alice")
	ok.End()

	_, failed := tracer.Start(context.Background(), "tally.measure")
	failed.RecordError(errors.New("boom"))
	failed.End()

	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestNoOpTracer(t *testing.T) {
	tracer := telemetry.NewNoOpTracer()
	ctx := context.Background()

	got, span := tracer.Start(ctx, "tally.measure")
	assert.Equal(t, ctx, got)

	span.SetAttribute("key", "value")
	span.RecordError(errors.New("ignored"))
	span.End()
}
