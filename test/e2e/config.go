package e2e

import (
	"fmt"
	"path/filepath"

	"github.com/marmos91/dittosync/pkg/config"
	"github.com/marmos91/dittosync/pkg/store/cache"
)

// StoreType represents the file store backend under test
type StoreType string

const (
	StoreMemory     StoreType = "memory"
	StoreFilesystem StoreType = "filesystem"
	StoreBadger     StoreType = "badger"
	StoreS3         StoreType = "s3"
)

// TestContextProvider is an interface for providing test context dependencies
type TestContextProvider interface {
	CreateTempDir(prefix string) string
	GetConfig() *TestConfig
}

// TestConfig holds the configuration for a test run
type TestConfig struct {
	Name  string
	Store StoreType
	Cache bool

	// Durable reports whether content survives a server restart
	Durable bool

	// storeDir is created once per context so that a restart reopens the
	// same data
	storeDir string

	// S3-specific fields (set by localstack setup)
	s3Endpoint string
	s3Bucket   string
}

// String returns a string representation of the configuration
func (tc *TestConfig) String() string {
	if tc.Cache {
		return fmt.Sprintf("%s+cache", tc.Store)
	}
	return string(tc.Store)
}

// StoreConfig builds the store section the server would read from its
// config file.
func (tc *TestConfig) StoreConfig(testCtx TestContextProvider) (*config.StoreConfig, error) {
	cfg := &config.StoreConfig{
		Type:       string(tc.Store),
		Filesystem: map[string]any{},
		Badger:     map[string]any{},
		S3:         map[string]any{},
		Cache:      cache.Config{Enabled: tc.Cache, MaxCostBytes: 8 << 20},
	}

	switch tc.Store {
	case StoreMemory:

	case StoreFilesystem:
		if tc.storeDir == "" {
			tc.storeDir = testCtx.CreateTempDir("dittosync-files-*")
		}
		cfg.Filesystem["path"] = filepath.Join(tc.storeDir, "files")

	case StoreBadger:
		if tc.storeDir == "" {
			tc.storeDir = testCtx.CreateTempDir("dittosync-badger-*")
		}
		cfg.Badger["path"] = filepath.Join(tc.storeDir, "files.db")

	case StoreS3:
		if tc.s3Bucket == "" {
			return nil, fmt.Errorf("S3 bucket not initialized (localstack not running?)")
		}
		cfg.S3["bucket"] = tc.s3Bucket
		cfg.S3["region"] = "us-east-1"
		cfg.S3["endpoint"] = tc.s3Endpoint
		cfg.S3["access_key_id"] = "test"
		cfg.S3["secret_access_key"] = "test"
		cfg.S3["key_prefix"] = "e2e/"

	default:
		return nil, fmt.Errorf("unknown store type: %s", tc.Store)
	}

	return cfg, nil
}

// AllConfigurations returns all test configurations that run without
// external services
func AllConfigurations() []*TestConfig {
	return []*TestConfig{
		{Name: "memory", Store: StoreMemory},
		{Name: "filesystem", Store: StoreFilesystem, Durable: true},
		{Name: "filesystem-cache", Store: StoreFilesystem, Cache: true, Durable: true},
		{Name: "badger", Store: StoreBadger, Durable: true},
		{Name: "badger-cache", Store: StoreBadger, Cache: true, Durable: true},
	}
}

// S3Configurations returns configurations that use S3 (requires localstack)
func S3Configurations() []*TestConfig {
	return []*TestConfig{
		{Name: "s3", Store: StoreS3, Durable: true},
		{Name: "s3-cache", Store: StoreS3, Cache: true, Durable: true},
	}
}

// GetConfiguration returns a specific configuration by name
func GetConfiguration(name string) *TestConfig {
	for _, cfg := range AllConfigurations() {
		if cfg.Name == name {
			return cfg
		}
	}
	for _, cfg := range S3Configurations() {
		if cfg.Name == name {
			return cfg
		}
	}
	return nil
}
