package testing

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/marmos91/dittosync/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBasicTests covers Create, Read, Write and Exists.
func (suite *StoreTestSuite) RunBasicTests(t *testing.T) {
	t.Run("CreateThenReadIsEmpty", suite.testCreateThenRead)
	t.Run("CreateExistingFails", suite.testCreateExisting)
	t.Run("WriteCreatesFile", suite.testWriteCreates)
	t.Run("WriteOverwrites", suite.testWriteOverwrites)
	t.Run("ReadMissing", suite.testReadMissing)
	t.Run("ContentRoundTrip", suite.testContentRoundTrip)
}

func (suite *StoreTestSuite) testCreateThenRead(t *testing.T) {
	s := suite.NewStore(t)
	ctx := testContext()

	require.NoError(t, s.Create(ctx, "new.txt"))

	exists, err := s.Exists(ctx, "new.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	content, err := s.Read(ctx, "new.txt")
	require.NoError(t, err)
	assert.Equal(t, "", content)
}

func (suite *StoreTestSuite) testCreateExisting(t *testing.T) {
	s := suite.NewStore(t)
	ctx := testContext()

	require.NoError(t, s.Write(ctx, "taken.txt", "keep me"))

	err := s.Create(ctx, "taken.txt")
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	content, err := s.Read(ctx, "taken.txt")
	require.NoError(t, err)
	assert.Equal(t, "keep me", content, "Create must not truncate an existing file")
}

func (suite *StoreTestSuite) testWriteCreates(t *testing.T) {
	s := suite.NewStore(t)
	ctx := testContext()

	exists, err := s.Exists(ctx, "implicit.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Write(ctx, "implicit.txt", "hello"))

	content, err := s.Read(ctx, "implicit.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", content)
}

func (suite *StoreTestSuite) testWriteOverwrites(t *testing.T) {
	s := suite.NewStore(t)
	ctx := testContext()

	require.NoError(t, s.Write(ctx, "doc.txt", "a much longer first version"))
	require.NoError(t, s.Write(ctx, "doc.txt", "short"))

	content, err := s.Read(ctx, "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "short", content, "Write must replace content in full")
}

func (suite *StoreTestSuite) testReadMissing(t *testing.T) {
	s := suite.NewStore(t)

	_, err := s.Read(testContext(), "ghost.txt")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func (suite *StoreTestSuite) testContentRoundTrip(t *testing.T) {
	s := suite.NewStore(t)
	ctx := testContext()

	samples := map[string]string{
		"multiline.txt": "line one\nline two\r\nline three\n",
		"unicode.txt":   "héllo wörld ✓ 日本語",
		"large.txt":     strings.Repeat("x", suite.largeContentSize()),
	}

	for name, want := range samples {
		require.NoError(t, s.Write(ctx, name, want))
		got, err := s.Read(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, want, got, "content of %s", name)
	}
}

// RunListTests covers List.
func (suite *StoreTestSuite) RunListTests(t *testing.T) {
	t.Run("EmptyStore", func(t *testing.T) {
		s := suite.NewStore(t)
		names, err := s.List(testContext())
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("ListsAllNames", func(t *testing.T) {
		s := suite.NewStore(t)
		ctx := testContext()

		require.NoError(t, s.Create(ctx, "a.txt"))
		require.NoError(t, s.Write(ctx, "b.txt", "b"))
		require.NoError(t, s.Write(ctx, "c.md", "c"))

		names, err := s.List(ctx)
		require.NoError(t, err)
		sort.Strings(names)
		assert.Equal(t, []string{"a.txt", "b.txt", "c.md"}, names)
	})
}

// RunRenameTests covers Rename.
func (suite *StoreTestSuite) RunRenameTests(t *testing.T) {
	t.Run("MovesContent", func(t *testing.T) {
		s := suite.NewStore(t)
		ctx := testContext()

		require.NoError(t, s.Write(ctx, "old.txt", "payload"))
		require.NoError(t, s.Rename(ctx, "old.txt", "new.txt"))

		exists, err := s.Exists(ctx, "old.txt")
		require.NoError(t, err)
		assert.False(t, exists)

		content, err := s.Read(ctx, "new.txt")
		require.NoError(t, err)
		assert.Equal(t, "payload", content)
	})

	t.Run("MissingSource", func(t *testing.T) {
		s := suite.NewStore(t)
		err := s.Rename(testContext(), "ghost.txt", "new.txt")
		assert.ErrorIs(t, err, store.ErrNotFound)

		exists, err := s.Exists(testContext(), "new.txt")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("ExistingTarget", func(t *testing.T) {
		s := suite.NewStore(t)
		ctx := testContext()

		require.NoError(t, s.Write(ctx, "a.txt", "A"))
		require.NoError(t, s.Write(ctx, "b.txt", "B"))

		err := s.Rename(ctx, "a.txt", "b.txt")
		assert.ErrorIs(t, err, store.ErrAlreadyExists)

		a, err := s.Read(ctx, "a.txt")
		require.NoError(t, err)
		b, err := s.Read(ctx, "b.txt")
		require.NoError(t, err)
		assert.Equal(t, "A", a)
		assert.Equal(t, "B", b)
	})
}

// RunRemoveTests covers Remove.
func (suite *StoreTestSuite) RunRemoveTests(t *testing.T) {
	t.Run("RemovesFile", func(t *testing.T) {
		s := suite.NewStore(t)
		ctx := testContext()

		require.NoError(t, s.Write(ctx, "bye.txt", "x"))
		require.NoError(t, s.Remove(ctx, "bye.txt"))

		_, err := s.Read(ctx, "bye.txt")
		assert.ErrorIs(t, err, store.ErrNotFound)

		names, err := s.List(ctx)
		require.NoError(t, err)
		assert.NotContains(t, names, "bye.txt")
	})

	t.Run("MissingFile", func(t *testing.T) {
		s := suite.NewStore(t)
		err := s.Remove(testContext(), "ghost.txt")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

// RunNameTests checks that every method rejects unsafe names.
func (suite *StoreTestSuite) RunNameTests(t *testing.T) {
	bad := []string{"", "..", "../escape.txt", "sub/dir.txt", "/abs.txt", "a\\b.txt"}

	s := suite.NewStore(t)
	ctx := testContext()
	require.NoError(t, s.Write(ctx, "valid.txt", "v"))

	for _, name := range bad {
		t.Run(fmt.Sprintf("%q", name), func(t *testing.T) {
			_, err := s.Exists(ctx, name)
			assert.ErrorIs(t, err, store.ErrInvalidName, "Exists")

			_, err = s.Read(ctx, name)
			assert.ErrorIs(t, err, store.ErrInvalidName, "Read")

			assert.ErrorIs(t, s.Write(ctx, name, "x"), store.ErrInvalidName, "Write")
			assert.ErrorIs(t, s.Create(ctx, name), store.ErrInvalidName, "Create")
			assert.ErrorIs(t, s.Remove(ctx, name), store.ErrInvalidName, "Remove")
			assert.ErrorIs(t, s.Rename(ctx, "valid.txt", name), store.ErrInvalidName, "Rename target")
			assert.ErrorIs(t, s.Rename(ctx, name, "other.txt"), store.ErrInvalidName, "Rename source")
		})
	}

	content, err := s.Read(ctx, "valid.txt")
	require.NoError(t, err)
	assert.Equal(t, "v", content, "rejected renames must leave the source intact")
}

// RunConcurrencyTests writes distinct files from many goroutines.
func (suite *StoreTestSuite) RunConcurrencyTests(t *testing.T) {
	s := suite.NewStore(t)
	ctx := testContext()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("worker-%02d.txt", i)
			if err := s.Write(ctx, name, name); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, names, workers)

	for _, name := range names {
		content, err := s.Read(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, name, content)
	}
}
