package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittosync/pkg/adapter/tcp"
	"github.com/marmos91/dittosync/pkg/adapter/websocket"
	"github.com/marmos91/dittosync/pkg/engine"
	"github.com/marmos91/dittosync/pkg/session"
)

const (
	// DefaultWebSocketPort is the port browsers connect to.
	DefaultWebSocketPort = 9010

	// DefaultTCPPort is the port of the raw TCP transport.
	DefaultTCPPort = 9011

	// DefaultMetricsPort is the port of the Prometheus endpoint.
	DefaultMetricsPort = 9090

	// DefaultStorePath is where the filesystem store keeps documents.
	DefaultStorePath = "./files"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Called after loading from file and environment to fill in missing values.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend-specific defaults are handled by the store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStoreDefaults(&cfg.Store)
	applyEngineDefaults(&cfg.Engine)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = DefaultMetricsPort
	}
}

// applyStoreDefaults sets file store defaults.
func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	// Populated for every backend so generated config files show them
	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = DefaultStorePath
	}
	if _, ok := cfg.Badger["path"]; !ok {
		cfg.Badger["path"] = "./files.db"
	}

	if cfg.Cache.MaxCostBytes == 0 {
		cfg.Cache.MaxCostBytes = 64 << 20 // 64MB
	}
}

// applyEngineDefaults sets engine defaults.
func applyEngineDefaults(cfg *engine.Config) {
	if cfg.TextSuffix == "" {
		cfg.TextSuffix = engine.DefaultTextSuffix
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = session.DefaultQueueSize
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	// A config that mentions no adapter at all (nothing enabled, no ports)
	// gets the websocket adapter so that it passes validation. An explicit
	// enabled: false with a port set is respected.
	if !cfg.WebSocket.Enabled && !cfg.TCP.Enabled &&
		cfg.WebSocket.Port == 0 && cfg.TCP.Port == 0 {
		cfg.WebSocket.Enabled = true
	}

	applyWebSocketDefaults(&cfg.WebSocket)
	applyTCPDefaults(&cfg.TCP)
}

// applyWebSocketDefaults sets websocket adapter defaults.
func applyWebSocketDefaults(cfg *websocket.WebSocketConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultWebSocketPort
	}
	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = []string{}
	}
	cfg.ApplyDefaults()
}

// applyTCPDefaults sets TCP adapter defaults.
func applyTCPDefaults(cfg *tcp.TCPConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultTCPPort
	}
	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = 5 * time.Minute
	}
	cfg.ApplyDefaults()
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Adapters: AdaptersConfig{
			WebSocket: websocket.WebSocketConfig{
				Enabled: true,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
