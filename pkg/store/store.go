// Package store defines the File Store: the durable mapping from a flat file
// name to its text content that every DittoSync backend implements.
//
// Backends:
//   - fs: a directory on disk (default), one file per document
//   - memory: a map, for tests and ephemeral deployments
//   - badger: an embedded BadgerDB key-value store
//   - s3: an S3 bucket (or compatible service) under a key prefix
//   - cache: a read-through cache decorating any of the above
//
// Names are flat: there are no directories. Every backend validates names
// with ValidateName before touching storage, so a name can never escape the
// store root regardless of which layer receives it first.
package store

import "context"

// Store is the File Store contract.
//
// All methods have synchronous semantics: when they return, the effect is
// durable for the backend in question (or the call failed).
//
// Thread Safety:
// Implementations must be safe for concurrent use. The synchronization engine
// serializes its own calls, but the store may also be shared with tooling.
type Store interface {
	// List returns the names of every file in the store, in no particular
	// order. Filtering (e.g. by suffix) is the caller's business.
	List(ctx context.Context) ([]string, error)

	// Exists reports whether a file with the given name exists.
	Exists(ctx context.Context, name string) (bool, error)

	// Read returns the full content of the named file.
	//
	// Returns ErrNotFound if the file does not exist.
	Read(ctx context.Context, name string) (string, error)

	// Write replaces the full content of the named file, creating it if it
	// does not exist.
	Write(ctx context.Context, name string, content string) error

	// Create creates the named file with empty content.
	//
	// Returns ErrAlreadyExists if the file exists.
	Create(ctx context.Context, name string) error

	// Rename changes the name of a file, preserving its content.
	//
	// Returns ErrNotFound if oldName does not exist and ErrAlreadyExists if
	// newName does.
	Rename(ctx context.Context, oldName, newName string) error

	// Remove deletes the named file.
	//
	// Returns ErrNotFound if the file does not exist.
	Remove(ctx context.Context, name string) error

	// Close releases backend resources. The store must not be used afterwards.
	Close() error
}
