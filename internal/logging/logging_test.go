package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		" error ": slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestNewWriter_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, "error", "text")
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelError))
}

func TestNewWriter_JSONAndRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, "info", "JSON")
	logger.Info("signed", "signature", "0xdeadbeef", "agent", "0xabc")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "signed", line["msg"])
	assert.Equal(t, "[redacted]", line["signature"])
	assert.Equal(t, "0xabc", line["agent"])
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, Agent(ctx))

	ctx = WithRequestID(ctx, "first")
	ctx = WithRequestID(ctx, "second")
	ctx = WithAgent(ctx, "0xabc")
	assert.Equal(t, "second", RequestID(ctx))
	assert.Equal(t, "0xabc", Agent(ctx))
}

func TestFromContext(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))

	custom := New("debug", "json")
	assert.Same(t, custom, FromContext(WithLogger(context.Background(), custom)))
}

func TestL_AnnotatesRequest(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewWriter(&buf, "info", "json"))

	L(ctx).Info("bare")
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.NotContains(t, line, "request_id")

	buf.Reset()
	ctx = WithAgent(WithRequestID(ctx, "req-456"), "0xabc")
	L(ctx).Info("annotated")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-456", line["request_id"])
	assert.Equal(t, "0xabc", line["agent"])
}
