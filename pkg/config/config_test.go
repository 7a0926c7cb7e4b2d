package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "info"

store:
  type: "memory"

adapters:
  websocket:
    enabled: true
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected normalized level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Adapters.WebSocket.Port != DefaultWebSocketPort {
		t.Errorf("Expected default websocket port %d, got %d", DefaultWebSocketPort, cfg.Adapters.WebSocket.Port)
	}
	if cfg.Adapters.WebSocket.Path != "/ws" {
		t.Errorf("Expected default websocket path '/ws', got %q", cfg.Adapters.WebSocket.Path)
	}
	if cfg.Engine.TextSuffix != ".txt" {
		t.Errorf("Expected default text suffix '.txt', got %q", cfg.Engine.TextSuffix)
	}
	if cfg.Adapters.TCP.Enabled {
		t.Error("TCP adapter should be disabled unless configured")
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// An explicit but missing path must not fall back to ~/.config/dittosync
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Store.Type != "filesystem" {
		t.Errorf("Expected default store type 'filesystem', got %q", cfg.Store.Type)
	}
	if cfg.Store.Filesystem["path"] != DefaultStorePath {
		t.Errorf("Expected default store path %q, got %v", DefaultStorePath, cfg.Store.Filesystem["path"])
	}
	if !cfg.Adapters.WebSocket.Enabled {
		t.Error("Expected websocket adapter enabled by default")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	if err := os.WriteFile(configPath, []byte("logging:\n  level: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
engine:
  text_suffix: "txt"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for suffix without leading dot")
	}
}

func TestLoad_FullConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  shutdown_timeout: 5s
  metrics:
    enabled: false
    port: 9191

store:
  type: badger
  badger:
    path: /var/lib/dittosync
  cache:
    enabled: true
    max_cost_bytes: 1048576

engine:
  report_errors: true
  broadcast_structural: true
  queue_size: 32

adapters:
  websocket:
    enabled: true
    port: 8080
    allowed_origins:
      - https://editor.example
    ping_interval: 10s
  tcp:
    enabled: true
    port: 8081
    timeouts:
      idle: 1m

rate_limit:
  operations_per_second: 50
  burst: 100
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected shutdown_timeout 5s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Store.Type != "badger" || cfg.Store.Badger["path"] != "/var/lib/dittosync" {
		t.Errorf("Unexpected store config: %+v", cfg.Store)
	}
	if !cfg.Store.Cache.Enabled || cfg.Store.Cache.MaxCostBytes != 1048576 {
		t.Errorf("Unexpected cache config: %+v", cfg.Store.Cache)
	}
	if !cfg.Engine.ReportErrors || !cfg.Engine.BroadcastStructural || cfg.Engine.QueueSize != 32 {
		t.Errorf("Unexpected engine config: %+v", cfg.Engine)
	}
	if cfg.Adapters.WebSocket.PingInterval != 10*time.Second {
		t.Errorf("Expected ping_interval 10s, got %v", cfg.Adapters.WebSocket.PingInterval)
	}
	if cfg.Adapters.WebSocket.PongTimeout != 20*time.Second {
		t.Errorf("Expected pong_timeout derived from ping_interval (20s), got %v", cfg.Adapters.WebSocket.PongTimeout)
	}
	if len(cfg.Adapters.WebSocket.AllowedOrigins) != 1 {
		t.Errorf("Expected one allowed origin, got %v", cfg.Adapters.WebSocket.AllowedOrigins)
	}
	if !cfg.Adapters.TCP.Enabled || cfg.Adapters.TCP.Port != 8081 {
		t.Errorf("Unexpected tcp config: %+v", cfg.Adapters.TCP)
	}
	if cfg.Adapters.TCP.Timeouts.Idle != time.Minute {
		t.Errorf("Expected tcp idle timeout 1m, got %v", cfg.Adapters.TCP.Timeouts.Idle)
	}
	if cfg.RateLimit.OperationsPerSecond != 50 || cfg.RateLimit.Burst != 100 {
		t.Errorf("Unexpected rate limit: %+v", cfg.RateLimit)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Store.Type != "filesystem" {
		t.Errorf("Expected default store 'filesystem', got %q", cfg.Store.Type)
	}
	if !cfg.Adapters.WebSocket.Enabled {
		t.Error("Expected websocket adapter enabled")
	}
	if cfg.Adapters.TCP.Port != DefaultTCPPort {
		t.Errorf("Expected default tcp port %d, got %d", DefaultTCPPort, cfg.Adapters.TCP.Port)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	expected := filepath.Join(tmpDir, "dittosync", "config.yaml")
	if got := GetDefaultConfigPath(); got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
	if ConfigExists() {
		t.Error("ConfigExists should be false in an empty directory")
	}
}

func TestGetConfigDir(t *testing.T) {
	dir := GetConfigDir()
	if filepath.Base(dir) != "dittosync" {
		t.Errorf("Expected directory name 'dittosync', got %q", filepath.Base(dir))
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("DITTOSYNC_LOGGING_LEVEL", "ERROR")
	t.Setenv("DITTOSYNC_ADAPTERS_WEBSOCKET_PORT", "8088")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Env vars override keys viper knows about from the file
	configContent := `
logging:
  level: "INFO"

adapters:
  websocket:
    enabled: true
    port: 9010
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Adapters.WebSocket.Port != 8088 {
		t.Errorf("Expected websocket port 8088 from env var, got %d", cfg.Adapters.WebSocket.Port)
	}
}
