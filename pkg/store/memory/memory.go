// Package memory implements an in-memory File Store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/dittosync/pkg/store"
)

// MemoryStore keeps every file in a map.
//
// It is designed for tests and ephemeral deployments: content is lost when
// the process exits. All operations are protected by a sync.RWMutex; strings
// are immutable, so values are stored and returned as is.
type MemoryStore struct {
	mu     sync.RWMutex
	files  map[string]string
	closed bool
}

var _ store.Store = (*MemoryStore)(nil)

// New creates an empty in-memory store.
func New() *MemoryStore {
	return &MemoryStore{
		files: make(map[string]string),
	}
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	return names, nil
}

func (s *MemoryStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := s.check(ctx, name); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, store.ErrClosed
	}
	_, ok := s.files[name]
	return ok, nil
}

func (s *MemoryStore) Read(ctx context.Context, name string) (string, error) {
	if err := s.check(ctx, name); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", store.ErrClosed
	}
	content, ok := s.files[name]
	if !ok {
		return "", fmt.Errorf("file %q: %w", name, store.ErrNotFound)
	}
	return content, nil
}

func (s *MemoryStore) Write(ctx context.Context, name string, content string) error {
	if err := s.check(ctx, name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	s.files[name] = content
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, name string) error {
	if err := s.check(ctx, name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	if _, ok := s.files[name]; ok {
		return fmt.Errorf("file %q: %w", name, store.ErrAlreadyExists)
	}
	s.files[name] = ""
	return nil
}

func (s *MemoryStore) Rename(ctx context.Context, oldName, newName string) error {
	if err := s.check(ctx, oldName); err != nil {
		return err
	}
	if err := store.ValidateName(newName); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	content, ok := s.files[oldName]
	if !ok {
		return fmt.Errorf("file %q: %w", oldName, store.ErrNotFound)
	}
	if _, taken := s.files[newName]; taken {
		return fmt.Errorf("file %q: %w", newName, store.ErrAlreadyExists)
	}
	delete(s.files, oldName)
	s.files[newName] = content
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, name string) error {
	if err := s.check(ctx, name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	if _, ok := s.files[name]; !ok {
		return fmt.Errorf("file %q: %w", name, store.ErrNotFound)
	}
	delete(s.files, name)
	return nil
}

// Close drops all content.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.files = nil
	return nil
}

func (s *MemoryStore) check(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return store.ValidateName(name)
}
