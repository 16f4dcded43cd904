package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	ConfigureLogging("debug", "json")
	t.Cleanup(func() {
		ConfigureLogging("info", "text")
		SetLogOutput(os.Stderr)
	})

	logger := NewLogger("dispatcher").With("request_id", "r-1")
	logger.Warn("provider failed", "provider", "openai", "error", errors.New("boom"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "dispatcher", line["component"])
	assert.Equal(t, "r-1", line["request_id"])
	assert.Equal(t, "openai", line["provider"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "warning", line["level"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	ConfigureLogging("error", "text")
	t.Cleanup(func() {
		ConfigureLogging("info", "text")
		SetLogOutput(os.Stderr)
	})

	NewLogger("test").Info("hidden")
	assert.Empty(t, buf.String())

	NewLogger("test").Error("shown", "dangling")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "extra=dangling")
}
