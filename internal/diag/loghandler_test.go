package diag_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/fanout/internal/diag"
)

func TestMultiHandler_FansOut(t *testing.T) {
	t.Parallel()

	var textBuf, jsonBuf bytes.Buffer
	textH := slog.NewTextHandler(&textBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	jsonH := slog.NewJSONHandler(&jsonBuf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(diag.NewMultiHandler(textH, jsonH))
	logger.Info("test message", "key", "value")

	assert.Contains(t, textBuf.String(), "test message")
	assert.Contains(t, textBuf.String(), "key=value")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &rec))
	assert.Equal(t, "test message", rec["msg"])
	assert.Equal(t, "value", rec["key"])
}

func TestMultiHandler_LevelFiltering(t *testing.T) {
	t.Parallel()

	var debugBuf, warnBuf bytes.Buffer
	debugH := slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	warnH := slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn})

	logger := slog.New(diag.NewMultiHandler(debugH, warnH))
	logger.Info("info msg")
	logger.Warn("warn msg")

	assert.Contains(t, debugBuf.String(), "info msg")
	assert.Contains(t, debugBuf.String(), "warn msg")

	assert.NotContains(t, warnBuf.String(), "info msg")
	assert.Contains(t, warnBuf.String(), "warn msg")
}

func TestMultiHandler_Enabled(t *testing.T) {
	t.Parallel()

	warnH := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	errH := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError})

	m := diag.NewMultiHandler(warnH, errH)

	assert.True(t, m.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, m.Enabled(context.Background(), slog.LevelError))
	assert.False(t, m.Enabled(context.Background(), slog.LevelInfo))
}

func TestMultiHandler_WithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	m := diag.NewMultiHandler(h)
	logger := slog.New(m.WithAttrs([]slog.Attr{slog.String("component", "engine")}))

	logger.Info("hello")
	assert.Contains(t, buf.String(), "component=engine")
}

func TestMultiHandler_WithGroup(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	m := diag.NewMultiHandler(h)
	logger := slog.New(m.WithGroup("fanout"))

	logger.Info("event", "type", "FileCompleted")

	lines := strings.TrimSpace(buf.String())
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines), &rec))

	group, ok := rec["fanout"].(map[string]any)
	require.True(t, ok, "expected group 'fanout' in JSON output")
	assert.Equal(t, "FileCompleted", group["type"])
}

func TestLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, diag.Level(true, false))
	assert.Equal(t, slog.LevelDebug, diag.Level(true, true))
	assert.Equal(t, slog.LevelError, diag.Level(false, true))
	assert.Equal(t, slog.LevelWarn, diag.Level(false, false))
}

func TestNewLogger_TeesJSON(t *testing.T) {
	t.Parallel()

	var text, js bytes.Buffer
	logger := diag.NewLogger(&text, slog.LevelWarn, &js)
	logger.Debug("debug only in json", "src", "/a")
	logger.Error("copy failed", "src", "/a", "dst", "/b")

	assert.NotContains(t, text.String(), "debug only in json")
	assert.Contains(t, text.String(), "copy failed")
	assert.Contains(t, js.String(), "debug only in json")
	assert.Contains(t, js.String(), `"dst":"/b"`)
}

func TestNewLogger_TextOnly(t *testing.T) {
	t.Parallel()

	var text bytes.Buffer
	logger := diag.NewLogger(&text, slog.LevelInfo, nil)
	logger.Info("hello", "k", 1)
	assert.Contains(t, text.String(), "k=1")
}
