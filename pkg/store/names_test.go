package store

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain text file", "notes.txt", false},
		{"spaces and unicode", "résumé draft.txt", false},
		{"dotfile", ".hidden.txt", false},
		{"no extension", "README", false},
		{"empty", "", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
		{"parent traversal", "../etc/passwd", true},
		{"nested traversal", "a/../../b.txt", true},
		{"absolute path", "/etc/passwd", true},
		{"subdirectory", "dir/file.txt", true},
		{"windows separator", "..\\secret.txt", true},
		{"nul byte", "a\x00.txt", true},
		{"invalid utf8", "bad\xff.txt", true},
		{"too long", strings.Repeat("a", MaxNameLength+1), true},
		{"max length", strings.Repeat("a", MaxNameLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidName), "error should wrap ErrInvalidName: %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestResolvePath(t *testing.T) {
	root := t.TempDir()

	p, err := ResolvePath(root, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "notes.txt"), p)

	_, err = ResolvePath(root, "../outside.txt")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestIsExpected(t *testing.T) {
	assert.True(t, IsExpected(ErrNotFound))
	assert.True(t, IsExpected(ErrAlreadyExists))
	assert.True(t, IsExpected(ValidateName("")))
	assert.False(t, IsExpected(errors.New("disk on fire")))
	assert.False(t, IsExpected(nil))
}
