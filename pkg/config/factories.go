package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/store"
	"github.com/marmos91/dittosync/pkg/store/badger"
	"github.com/marmos91/dittosync/pkg/store/cache"
	"github.com/marmos91/dittosync/pkg/store/fs"
	"github.com/marmos91/dittosync/pkg/store/memory"
	"github.com/marmos91/dittosync/pkg/store/s3"
	"github.com/mitchellh/mapstructure"
)

// CreateStore creates the file store selected by cfg.Type.
//
// The type-specific section is decoded into the backend's own Config and
// passed to its constructor. When cfg.Cache.Enabled is set the backend is
// wrapped with the read cache.
//
// Supported types:
//   - "filesystem": pkg/store/fs (flat directory, default)
//   - "memory": pkg/store/memory (volatile, tests and demos)
//   - "badger": pkg/store/badger (embedded key-value database)
//   - "s3": pkg/store/s3 (Amazon S3 or compatible storage)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: File store configuration
//
// Returns:
//   - store.Store: Initialized store, ready for the engine
//   - error: Configuration or initialization error
func CreateStore(ctx context.Context, cfg *StoreConfig) (store.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		st  store.Store
		err error
	)

	switch cfg.Type {
	case "filesystem":
		st, err = createFilesystemStore(ctx, cfg.Filesystem)
	case "memory":
		st = memory.New()
	case "badger":
		st, err = createBadgerStore(ctx, cfg.Badger)
	case "s3":
		st, err = createS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown store type: %q (supported: filesystem, memory, badger, s3)", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if !cfg.Cache.Enabled {
		return st, nil
	}

	cached, err := cache.New(st, cfg.Cache)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create store cache: %w", err)
	}
	logger.Info("Store cache enabled: max_cost_bytes=%d", cfg.Cache.MaxCostBytes)
	return cached, nil
}

// decodeOptions decodes a type-specific section into out. Values coming from
// environment variables arrive as strings, so the decoder is weakly typed.
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(options)
}

// createFilesystemStore creates a directory-backed store.
func createFilesystemStore(ctx context.Context, options map[string]any) (store.Store, error) {
	var storeCfg fs.Config
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem store config: %w", err)
	}

	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem store: path is required")
	}

	st, err := fs.New(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem store: %w", err)
	}
	return st, nil
}

// createBadgerStore opens a BadgerDB-backed store.
func createBadgerStore(ctx context.Context, options map[string]any) (store.Store, error) {
	var storeCfg badger.Config
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger store config: %w", err)
	}

	st, err := badger.New(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger store: %w", err)
	}
	return st, nil
}

// createS3Store creates an S3-backed store. Client construction (endpoint,
// credentials, retries) lives in pkg/store/s3.
func createS3Store(ctx context.Context, options map[string]any) (store.Store, error) {
	var storeCfg s3.Config
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 store config: %w", err)
	}

	st, err := s3.New(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 store: %w", err)
	}
	return st, nil
}
