// Package badger implements a File Store on top of BadgerDB.
//
// Each document is one key ("f:<name>") whose value is a JSON record holding
// the content. Rename and Create run inside a
// single read-write transaction, so the existence checks and the mutation
// are atomic even without the engine's serialization.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/store"
)

// Config holds the badger store settings decoded from the store.badger
// configuration section.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string `mapstructure:"path"`

	// InMemory keeps the whole database in RAM (tests, demos).
	//
	// In this mode badger keeps values inside the LSM tree, so one encoded
	// record cannot exceed InMemoryMaxRecordSize. Larger writes fail with
	// ErrRecordTooLarge. The on-disk mode has no such cap.
	InMemory bool `mapstructure:"in_memory"`

	// SyncWrites forces an fsync on every commit.
	SyncWrites bool `mapstructure:"sync_writes"`

	// BlockCacheSizeMB sizes badger's block cache (default 64).
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`
}

// InMemoryMaxRecordSize is the largest encoded record an in-memory store
// accepts. Badger caps in-memory values at its value threshold, which
// cannot be raised above 1 MiB.
const InMemoryMaxRecordSize = 1 << 20

// ErrRecordTooLarge is returned by Write when an in-memory store cannot
// hold the encoded record.
var ErrRecordTooLarge = errors.New("record exceeds in-memory size limit")

// fileRecord is the JSON value stored under each document key.
type fileRecord struct {
	Content string `json:"content"`
}

// BadgerStore implements store.Store with BadgerDB.
type BadgerStore struct {
	db *badger.DB

	// maxRecord is InMemoryMaxRecordSize for in-memory stores, 0 otherwise
	maxRecord int
}

var _ store.Store = (*BadgerStore)(nil)

// New opens (or creates) the database described by cfg.
func New(ctx context.Context, cfg Config) (*BadgerStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Path == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger store: path is required")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}

	// Documents are small text blobs; compression buys nothing
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	blockCacheMB := cfg.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.Path, err)
	}

	logger.Debug("Badger store opened (path=%q in_memory=%v)", cfg.Path, cfg.InMemory)

	s := &BadgerStore{db: db}
	if cfg.InMemory {
		s.maxRecord = InMemoryMaxRecordSize
	}
	return s, nil
}

func (s *BadgerStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixFile)

		it := txn.NewIterator(opts)
		defer it.Close()

		count := 0
		for it.Rewind(); it.Valid(); it.Next() {
			// Check context periodically on large stores
			if count%100 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			count++
			names = append(names, nameFromKey(it.Item().Key()))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func (s *BadgerStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := check(ctx, name); err != nil {
		return false, err
	}

	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = exists(txn, name)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("stat %q: %w", name, err)
	}
	return found, nil
}

func (s *BadgerStore) Read(ctx context.Context, name string) (string, error) {
	if err := check(ctx, name); err != nil {
		return "", err
	}

	var record fileRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyFile(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("file %q: %w", name, store.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", err
		}
		return "", fmt.Errorf("read %q: %w", name, err)
	}
	return record.Content, nil
}

func (s *BadgerStore) Write(ctx context.Context, name string, content string) error {
	if err := check(ctx, name); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return s.put(txn, name, content)
	})
	if err != nil {
		return fmt.Errorf("write %q: %w", name, err)
	}
	return nil
}

func (s *BadgerStore) Create(ctx context.Context, name string) error {
	if err := check(ctx, name); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		found, err := exists(txn, name)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("file %q: %w", name, store.ErrAlreadyExists)
		}
		return s.put(txn, name, "")
	})
	return wrapTxnError("create", name, err)
}

func (s *BadgerStore) Rename(ctx context.Context, oldName, newName string) error {
	if err := check(ctx, oldName); err != nil {
		return err
	}
	if err := store.ValidateName(newName); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyFile(oldName))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("file %q: %w", oldName, store.ErrNotFound)
		}
		if err != nil {
			return err
		}

		taken, err := exists(txn, newName)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("file %q: %w", newName, store.ErrAlreadyExists)
		}

		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := txn.Set(keyFile(newName), val); err != nil {
			return err
		}
		return txn.Delete(keyFile(oldName))
	})
	return wrapTxnError("rename", oldName, err)
}

func (s *BadgerStore) Remove(ctx context.Context, name string) error {
	if err := check(ctx, name); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		found, err := exists(txn, name)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("file %q: %w", name, store.ErrNotFound)
		}
		return txn.Delete(keyFile(name))
	})
	return wrapTxnError("remove", name, err)
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func exists(txn *badger.Txn, name string) (bool, error) {
	_, err := txn.Get(keyFile(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *BadgerStore) put(txn *badger.Txn, name, content string) error {
	val, err := json.Marshal(fileRecord{Content: content})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if s.maxRecord > 0 && len(val) > s.maxRecord {
		return fmt.Errorf("record for %q is %d bytes (limit %d): %w", name, len(val), s.maxRecord, ErrRecordTooLarge)
	}
	return txn.Set(keyFile(name), val)
}

// wrapTxnError leaves store sentinels untouched and adds context to
// everything else.
func wrapTxnError(op, name string, err error) error {
	if err == nil || store.IsExpected(err) {
		return err
	}
	return fmt.Errorf("%s %q: %w", op, name, err)
}

func check(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return store.ValidateName(name)
}
