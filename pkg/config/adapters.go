package config

import (
	"fmt"

	"github.com/marmos91/dittosync/pkg/adapter"
	"github.com/marmos91/dittosync/pkg/adapter/tcp"
	"github.com/marmos91/dittosync/pkg/adapter/websocket"
	"github.com/marmos91/dittosync/pkg/metrics"
)

// CreateAdapters creates all enabled transport adapters from the configuration.
//
// Every adapter receives the same rate limit settings and metrics collector.
// The engine is injected later by server.SyncServer.AddAdapter.
//
// Parameters:
//   - cfg: The complete DittoSync configuration
//   - m: Metrics collector (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: Enabled adapters in registration order (websocket, tcp)
//   - error: If no adapter is enabled
func CreateAdapters(cfg *Config, m metrics.SyncMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.WebSocket.Enabled {
		adapters = append(adapters, websocket.New(cfg.Adapters.WebSocket, cfg.RateLimit, m))
	}

	if cfg.Adapters.TCP.Enabled {
		adapters = append(adapters, tcp.New(cfg.Adapters.TCP, cfg.RateLimit, m))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
