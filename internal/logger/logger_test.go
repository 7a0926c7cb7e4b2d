package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T, f string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	SetFormat(f)
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetFormat("text")
		SetLevel("INFO")
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t, "text")
	SetLevel("WARN")

	Debug("debug message")
	Info("info message")
	Warn("warn message %d", 1)
	Error("error message %s", "x")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message 1")
	assert.Contains(t, out, "error message x")
}

func TestSetLevel_IgnoresUnknown(t *testing.T) {
	captureOutput(t, "text")
	SetLevel("ERROR")
	SetLevel("verbose")

	assert.Equal(t, LevelError, GetLevel())
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t, "json")
	SetLevel("DEBUG")

	Info("session %s connected", "abc")

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "session abc connected", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestWith_AddsComponent(t *testing.T) {
	buf := captureOutput(t, "json")

	l := With("engine")
	l.Info().Str("session", "s1").Msg("dispatched")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "s1", entry["session"])
}

func TestInit_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dittosync.log")
	require.NoError(t, Init("debug", "json", path))
	t.Cleanup(func() {
		_ = Close()
		SetLevel("INFO")
		SetFormat("text")
	})

	Debug("written to file")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestInit_Rejects(t *testing.T) {
	assert.Error(t, Init("loud", "text", "stdout"))
	assert.Error(t, Init("info", "xml", "stdout"))
}
