package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/dittosync/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand runs the root command with args and returns captured output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		configFile, logLevel, initForce = "", "", false
		rootCmd.SetArgs(nil)
	})

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"start", "init", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "dittosync dev"), "got %q", out)
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := executeCommand(t, "--config", path, "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "# DittoSync Configuration File")

	_, err = executeCommand(t, "--config", path, "init")
	assert.ErrorContains(t, err, "already exists")

	_, err = executeCommand(t, "--config", path, "init", "--force")
	assert.NoError(t, err)
}

func TestLoadConfig_LogLevelOverride(t *testing.T) {
	configFile = filepath.Join(t.TempDir(), "missing.yaml")
	logLevel = "debug"
	t.Cleanup(func() { configFile, logLevel = "", "" })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)

	logLevel = "loud"
	_, err = loadConfig()
	assert.Error(t, err)
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Store.Type = "memory"
	cfg.Adapters.WebSocket.Port = 0
	cfg.Adapters.TCP.Enabled = true
	cfg.Adapters.TCP.Port = 0
	cfg.Server.ShutdownTimeout = 2 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestRun_InvalidStore(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Store.Type = "filesystem"
	cfg.Store.Filesystem = map[string]any{}

	err := run(context.Background(), cfg)
	assert.Error(t, err)
}
