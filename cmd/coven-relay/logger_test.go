// ABOUTME: Tests for the log handler selection and colorized output
// ABOUTME: Color is disabled so output can be compared as plain text

package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-relay/internal/config"
)

func withoutColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(config.LoggingConfig{Level: "info", Format: "json"}, &buf))

	logger.Debug("hidden")
	logger.Info("relayed", "identity", "user:@a:x")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "relayed", rec["msg"])
	assert.Equal(t, "user:@a:x", rec["identity"])
}

func TestColorHandler_Format(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer
	logger := slog.New(newHandler(config.LoggingConfig{Level: "debug"}, &buf)).With("component", "dispatch")

	logger.Warn("backend call failed", "remaining", 1)

	out := buf.String()
	assert.Contains(t, out, "WRN backend call failed component=dispatch remaining=1\n")
}

func TestColorHandler_Groups(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer
	logger := slog.New(newHandler(config.LoggingConfig{Level: "info"}, &buf))

	logger.WithGroup("matrix").With("room", "!r").Info("sent", slog.Group("event", "id", "$1"))

	assert.Contains(t, buf.String(), "INF sent matrix.room=!r matrix.event.id=$1")
}

func TestColorHandler_Level(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer
	logger := slog.New(newHandler(config.LoggingConfig{Level: "error"}, &buf))

	logger.Warn("quiet")
	logger.Error("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "ERR loud")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}
