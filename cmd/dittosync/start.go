package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/config"
	"github.com/marmos91/dittosync/pkg/engine"
	"github.com/marmos91/dittosync/pkg/server"
	"github.com/marmos91/dittosync/pkg/session"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the synchronization server",
	Long: `Start the synchronization server with the configured store and
transports. Runs until SIGINT or SIGTERM, then shuts down gracefully.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg)
}

// loadConfig loads the configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Logging.Level = strings.ToUpper(logLevel)
		if err := config.Validate(cfg); err != nil {
			return nil, fmt.Errorf("invalid --log-level: %w", err)
		}
	}

	return cfg, nil
}

// run wires the store, engine and adapters from cfg and serves until ctx is
// cancelled. A context-triggered shutdown is not an error.
func run(ctx context.Context, cfg *config.Config) error {
	// ========================================================================
	// Step 1: Metrics
	// ========================================================================

	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	// ========================================================================
	// Step 2: File store
	// ========================================================================

	st, err := config.CreateStore(ctx, &cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close store: %v", err)
		}
	}()
	logger.Info("Store: type=%s", cfg.Store.Type)

	// ========================================================================
	// Step 3: Engine and adapters
	// ========================================================================

	registry := session.NewRegistry(metricsResult.SyncMetrics)
	eng := engine.New(st, registry, cfg.Engine, metricsResult.SyncMetrics)

	srv := server.New(eng, cfg.Server.ShutdownTimeout)

	adapters, err := config.CreateAdapters(cfg, metricsResult.SyncMetrics)
	if err != nil {
		return err
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return fmt.Errorf("failed to add %s adapter: %w", a.Protocol(), err)
		}
	}

	// ========================================================================
	// Step 4: Serve until shutdown
	// ========================================================================

	logger.Info("DittoSync is running. Press Ctrl+C to stop.")
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, ctx.Err()) {
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}
