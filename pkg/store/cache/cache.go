// Package cache provides a read-through cache that decorates any File Store.
//
// Reads are served from a ristretto cache when possible; every mutation goes
// to the wrapped store first and then updates or evicts the cached entry.
// The cache is a pure accelerator: an entry missing from the cache (never
// admitted, evicted, or still buffered) simply falls through to the store.
package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/marmos91/dittosync/pkg/store"
)

// Config holds the cache settings decoded from the store.cache section.
type Config struct {
	// Enabled turns the cache on.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// MaxCostBytes bounds the total size of cached content (default 64MB).
	MaxCostBytes int64 `mapstructure:"max_cost_bytes" validate:"min=0" yaml:"max_cost_bytes"`
}

func (c *Config) applyDefaults() {
	if c.MaxCostBytes <= 0 {
		c.MaxCostBytes = 64 << 20
	}
}

// CachedStore wraps a store.Store with a content cache.
//
// Thread Safety:
// mu orders cache updates with respect to the underlying store calls, so a
// slow read can never re-insert content older than a write that finished
// after it started.
type CachedStore struct {
	inner store.Store
	cache *ristretto.Cache[string, string]
	mu    sync.RWMutex
}

var _ store.Store = (*CachedStore)(nil)

// New wraps inner with a cache sized by cfg.
func New(inner store.Store, cfg Config) (*CachedStore, error) {
	if inner == nil {
		return nil, fmt.Errorf("cache: inner store is required")
	}
	cfg.applyDefaults()

	// NumCounters should be ~10x the expected number of entries; documents
	// are assumed to average at least 1KB.
	numCounters := max(cfg.MaxCostBytes/1024*10, 1000)

	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: numCounters,
		MaxCost:     cfg.MaxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	return &CachedStore{inner: inner, cache: c}, nil
}

// Unwrap returns the decorated store.
func (s *CachedStore) Unwrap() store.Store {
	return s.inner
}

func cost(content string) int64 {
	return int64(len(content)) + 1
}

func (s *CachedStore) List(ctx context.Context) ([]string, error) {
	return s.inner.List(ctx)
}

func (s *CachedStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := store.ValidateName(name); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.cache.Get(name); ok {
		return true, nil
	}
	return s.inner.Exists(ctx, name)
}

func (s *CachedStore) Read(ctx context.Context, name string) (string, error) {
	if err := store.ValidateName(name); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if content, ok := s.cache.Get(name); ok {
		return content, nil
	}

	content, err := s.inner.Read(ctx, name)
	if err != nil {
		return "", err
	}
	s.cache.Set(name, content, cost(content))
	return content, nil
}

func (s *CachedStore) Write(ctx context.Context, name string, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Del(name)
	if err := s.inner.Write(ctx, name, content); err != nil {
		return err
	}
	s.cache.Set(name, content, cost(content))
	return nil
}

func (s *CachedStore) Create(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.inner.Create(ctx, name); err != nil {
		return err
	}
	s.cache.Set(name, "", cost(""))
	return nil
}

func (s *CachedStore) Rename(ctx context.Context, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.inner.Rename(ctx, oldName, newName)
	if err == nil {
		s.cache.Del(oldName)
		s.cache.Del(newName)
	}
	return err
}

func (s *CachedStore) Remove(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.inner.Remove(ctx, name)
	if err == nil {
		s.cache.Del(name)
	}
	return err
}

// Close closes the cache and the wrapped store.
func (s *CachedStore) Close() error {
	s.cache.Close()
	return s.inner.Close()
}

// Wait blocks until buffered cache writes have been applied. Tests use it to
// make cache hits deterministic.
func (s *CachedStore) Wait() {
	s.cache.Wait()
}
