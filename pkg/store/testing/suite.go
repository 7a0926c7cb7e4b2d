// Package testing provides a conformance suite shared by every File Store
// backend.
package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittosync/pkg/store"
)

// StoreTestSuite tests the store.Store contract, not implementation details,
// so the same assertions run against memory, filesystem, badger and S3.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    suite := &storetesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) store.Store {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test. Cleanup (Close,
	// temp directories) should be registered on t.
	NewStore func(t *testing.T) store.Store

	// MaxContentSize caps the largest sample written by the content tests.
	// Zero means the backend has no limit and the default 1 MiB sample is
	// used.
	MaxContentSize int
}

// defaultLargeContent is the size of the large sample for unlimited
// backends.
const defaultLargeContent = 1 << 20

// largeContentSize returns the size of the large sample, leaving room for a
// backend's per-record encoding overhead below MaxContentSize.
func (suite *StoreTestSuite) largeContentSize() int {
	if suite.MaxContentSize <= 0 {
		return defaultLargeContent
	}
	return min(defaultLargeContent, suite.MaxContentSize-256)
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("BasicOperations", suite.RunBasicTests)
	t.Run("ListOperations", suite.RunListTests)
	t.Run("RenameOperations", suite.RunRenameTests)
	t.Run("RemoveOperations", suite.RunRemoveTests)
	t.Run("NameValidation", suite.RunNameTests)
	t.Run("Concurrency", suite.RunConcurrencyTests)
}

func testContext() context.Context {
	return context.Background()
}
