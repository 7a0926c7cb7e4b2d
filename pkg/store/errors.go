package store

import "errors"

// ============================================================================
// Standard File Store Errors
// ============================================================================

// These errors give every backend a common vocabulary for the expected
// failure conditions. The synchronization engine maps them onto operation
// outcomes; any other error is treated as an I/O failure.
//
// Implementations wrap them with the offending name:
//
//	if !exists {
//	    return fmt.Errorf("file %q: %w", name, store.ErrNotFound)
//	}

var (
	// ErrNotFound indicates the named file does not exist.
	//
	// Returned by Read, Rename (source) and Remove.
	ErrNotFound = errors.New("file not found")

	// ErrAlreadyExists indicates a file with this name already exists.
	//
	// Returned by Create and Rename (target). Write never returns it: writes
	// overwrite or create.
	ErrAlreadyExists = errors.New("file already exists")

	// ErrInvalidName indicates a name that is empty, contains separators or
	// would resolve outside the store root.
	ErrInvalidName = errors.New("invalid file name")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store closed")
)

// IsExpected reports whether err is one of the conditions callers are
// expected to handle (not found, already exists, invalid name), as opposed
// to a genuine I/O failure.
func IsExpected(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrInvalidName)
}
