package config

import (
	"github.com/marmos91/dittosync/pkg/metrics"
	promMetrics "github.com/marmos91/dittosync/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// SyncMetrics is shared by the engine, the session registry and the
	// adapters (never nil, noop if disabled)
	SyncMetrics metrics.SyncMetrics
}

// InitializeMetrics creates the metrics components described by cfg.
//
// If metrics are enabled:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates the Prometheus-backed collector
//
// If metrics are disabled, the server is nil and the collector is a no-op.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			SyncMetrics: metrics.NewNoopSyncMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Server.Metrics.Port,
	})

	return &MetricsResult{
		Server:      server,
		SyncMetrics: promMetrics.NewSyncMetrics(),
	}
}
