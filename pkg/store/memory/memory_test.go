package memory

import (
	"context"
	"testing"

	"github.com/marmos91/dittosync/pkg/store"
	storetesting "github.com/marmos91/dittosync/pkg/store/testing"
	"github.com/stretchr/testify/assert"
)

func TestMemoryStore(t *testing.T) {
	suite := &storetesting.StoreTestSuite{
		NewStore: func(t *testing.T) store.Store {
			s := New()
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
	suite.Run(t)
}

func TestMemoryStore_Closed(t *testing.T) {
	s := New()
	_ = s.Close()

	_, err := s.Read(context.Background(), "a.txt")
	assert.ErrorIs(t, err, store.ErrClosed)
	assert.ErrorIs(t, s.Write(context.Background(), "a.txt", "x"), store.ErrClosed)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Create(ctx, "a.txt"), context.Canceled)
}
