package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/astro-web3/oauthgate/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestInit_JSONWithTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Options{Level: "info", Format: "json", Output: &buf})

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	logger.DebugContext(ctx, "hidden")
	logger.InfoContext(ctx, "auth failure", slog.String("code", "invalid_token"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "debug is below the configured level")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "auth failure", entry["msg"])
	assert.Equal(t, "invalid_token", entry["code"])
	assert.Equal(t, traceID.String(), entry["trace_id"])
	assert.Equal(t, spanID.String(), entry["span_id"])
	assert.Contains(t, entry, "timestamp")
	assert.NotContains(t, entry, "time")

	// later calls are ignored
	var other bytes.Buffer
	logger.Init(logger.Options{Level: "debug", Output: &other})
	logger.WarnContext(context.Background(), "still json")
	assert.Empty(t, other.String())
	assert.Contains(t, buf.String(), `"msg":"still json"`)
}
