package store

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxNameLength is the longest accepted file name, in bytes.
const MaxNameLength = 255

// ValidateName checks that name is a single, flat path component that cannot
// resolve outside the store root.
//
// Rejected:
//   - empty names, "." and ".."
//   - names containing '/', '\\' or NUL
//   - names that are not valid UTF-8
//   - names longer than MaxNameLength bytes
//   - names that filepath.Clean would rewrite
//
// The returned error wraps ErrInvalidName.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty name: %w", ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("name %q: %w", name, ErrInvalidName)
	case len(name) > MaxNameLength:
		return fmt.Errorf("name too long (%d bytes): %w", len(name), ErrInvalidName)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("name %q contains a path separator: %w", name, ErrInvalidName)
	case !utf8.ValidString(name):
		return fmt.Errorf("name is not valid UTF-8: %w", ErrInvalidName)
	case filepath.Clean(name) != name:
		return fmt.Errorf("name %q is not canonical: %w", name, ErrInvalidName)
	}
	return nil
}

// ResolvePath joins a validated name onto root and verifies the result is
// still a direct child of root.
func ResolvePath(root, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}

	cleanRoot := filepath.Clean(root)
	full := filepath.Join(cleanRoot, name)
	if filepath.Dir(full) != cleanRoot {
		return "", fmt.Errorf("name %q escapes root: %w", name, ErrInvalidName)
	}
	return full, nil
}
