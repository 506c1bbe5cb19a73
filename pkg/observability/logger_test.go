package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/deltacov/pkg/observability"
)

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	return record
}

func newJSONLogger(buf *bytes.Buffer, info observability.ServiceInfo) *slog.Logger {
	inner := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	return slog.New(observability.NewTracingHandler(inner, info))
}

func TestTracingHandler_InjectsTraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := newJSONLogger(&buf, observability.ServiceInfo{
		Name:        "deltacov",
		Version:     "1.4.0",
		Environment: "ci",
		Mode:        observability.ModeCLI,
	})

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)

	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)

	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	logger.InfoContext(ctx, "history collected", "files", 3)

	record := decodeRecord(t, &buf)
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", record["trace_id"])
	assert.Equal(t, "0102030405060708", record["span_id"])
	assert.Equal(t, "deltacov", record["service"])
	assert.Equal(t, "1.4.0", record["version"])
	assert.Equal(t, "ci", record["env"])
	assert.Equal(t, "cli", record["mode"])
	assert.InDelta(t, 3, record["files"], 0)
}

func TestTracingHandler_NoTraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := newJSONLogger(&buf, observability.ServiceInfo{Name: "deltacov", Mode: observability.ModeMCP})
	logger.InfoContext(context.Background(), "no span")

	record := decodeRecord(t, &buf)
	assert.NotContains(t, record, "trace_id")
	assert.NotContains(t, record, "version")
	assert.NotContains(t, record, "env")
	assert.Equal(t, "mcp", record["mode"])
}

func TestTracingHandler_WithGroupKeepsServiceTopLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := newJSONLogger(&buf, observability.ServiceInfo{Name: "deltacov", Mode: observability.ModeCLI})
	logger.WithGroup("pipeline").InfoContext(context.Background(), "stage done", slog.String("stage", "history"))

	record := decodeRecord(t, &buf)
	assert.Equal(t, "deltacov", record["service"])

	pipeline, ok := record["pipeline"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "history", pipeline["stage"])
}

func TestTracingHandler_WithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := newJSONLogger(&buf, observability.ServiceInfo{Name: "deltacov", Mode: observability.ModeCLI})
	logger.With(slog.String("file", "src/a.cpp")).InfoContext(context.Background(), "report missing")

	record := decodeRecord(t, &buf)
	assert.Equal(t, "src/a.cpp", record["file"])
	assert.Equal(t, "deltacov", record["service"])
}
