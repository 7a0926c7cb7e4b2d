// Package fs implements the directory-backed File Store.
//
// Every document is a regular file directly under the store root. The store
// operates on an afero.Fs confined to the root with afero.BasePathFs, so the
// same code runs against the OS filesystem in production and an in-memory
// filesystem in tests.
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/store"
	"github.com/spf13/afero"
)

// Config holds the filesystem store settings decoded from the
// store.filesystem configuration section.
type Config struct {
	// Path is the root directory holding the documents.
	Path string `mapstructure:"path"`

	// FileMode is the permission used for new files (default 0644).
	FileMode os.FileMode `mapstructure:"file_mode"`

	// DirMode is the permission used when creating the root (default 0755).
	DirMode os.FileMode `mapstructure:"dir_mode"`
}

func (c *Config) applyDefaults() {
	if c.FileMode == 0 {
		c.FileMode = 0644
	}
	if c.DirMode == 0 {
		c.DirMode = 0755
	}
}

// FSStore implements store.Store on a flat directory.
//
// Thread Safety:
// Reads go straight to the filesystem. Mutations take mu so that the
// check-then-act sequences in Create and Rename cannot interleave.
type FSStore struct {
	root     string
	fs       afero.Fs
	fileMode os.FileMode
	mu       sync.Mutex
}

var _ store.Store = (*FSStore)(nil)

// New creates a store rooted at cfg.Path on the OS filesystem.
func New(ctx context.Context, cfg Config) (*FSStore, error) {
	return NewWithFs(ctx, afero.NewOsFs(), cfg)
}

// NewWithFs creates a store rooted at cfg.Path on the given filesystem.
//
// The root directory is created when missing.
func NewWithFs(ctx context.Context, base afero.Fs, cfg Config) (*FSStore, error) {
	// ========================================================================
	// Step 1: Check context and configuration
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("filesystem store: path is required")
	}
	cfg.applyDefaults()

	// ========================================================================
	// Step 2: Create the root directory if it doesn't exist
	// ========================================================================

	if err := base.MkdirAll(cfg.Path, cfg.DirMode); err != nil {
		return nil, fmt.Errorf("failed to create store root %s: %w", cfg.Path, err)
	}

	info, err := base.Stat(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat store root %s: %w", cfg.Path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store root %s is not a directory", cfg.Path)
	}

	logger.Debug("Filesystem store rooted at %s", cfg.Path)

	return &FSStore{
		root:     cfg.Path,
		fs:       afero.NewBasePathFs(base, cfg.Path),
		fileMode: cfg.FileMode,
	}, nil
}

// Root returns the directory the store is confined to.
func (s *FSStore) Root() string {
	return s.root
}

// List returns the names of the regular files directly under the root.
// Subdirectories are ignored.
func (s *FSStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(s.fs, "/")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.root, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Mode().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func (s *FSStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := check(ctx, name); err != nil {
		return false, err
	}
	return s.exists(name)
}

func (s *FSStore) Read(ctx context.Context, name string) (string, error) {
	if err := check(ctx, name); err != nil {
		return "", err
	}

	data, err := afero.ReadFile(s.fs, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("file %q: %w", name, store.ErrNotFound)
		}
		return "", fmt.Errorf("read %q: %w", name, err)
	}
	return string(data), nil
}

func (s *FSStore) Write(ctx context.Context, name string, content string) error {
	if err := check(ctx, name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := afero.WriteFile(s.fs, name, []byte(content), s.fileMode); err != nil {
		return fmt.Errorf("write %q: %w", name, err)
	}
	return nil
}

func (s *FSStore) Create(ctx context.Context, name string) error {
	if err := check(ctx, name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fs.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, s.fileMode)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("file %q: %w", name, store.ErrAlreadyExists)
		}
		return fmt.Errorf("create %q: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("create %q: %w", name, err)
	}
	return nil
}

func (s *FSStore) Rename(ctx context.Context, oldName, newName string) error {
	if err := check(ctx, oldName); err != nil {
		return err
	}
	if err := store.ValidateName(newName); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.exists(oldName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("file %q: %w", oldName, store.ErrNotFound)
	}

	// Any entry (file or directory) under the new name blocks the rename
	if _, err := s.fs.Stat(newName); err == nil {
		return fmt.Errorf("file %q: %w", newName, store.ErrAlreadyExists)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %q: %w", newName, err)
	}

	if err := s.fs.Rename(oldName, newName); err != nil {
		return fmt.Errorf("rename %q to %q: %w", oldName, newName, err)
	}
	return nil
}

func (s *FSStore) Remove(ctx context.Context, name string) error {
	if err := check(ctx, name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.exists(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("file %q: %w", name, store.ErrNotFound)
	}

	if err := s.fs.Remove(name); err != nil {
		return fmt.Errorf("remove %q: %w", name, err)
	}
	return nil
}

// Close is a no-op: the store holds no open descriptors between calls.
func (s *FSStore) Close() error {
	return nil
}

// exists reports whether name is a regular file under the root.
func (s *FSStore) exists(name string) (bool, error) {
	info, err := s.fs.Stat(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %q: %w", name, err)
	}
	return info.Mode().IsRegular(), nil
}

func check(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return store.ValidateName(name)
}
