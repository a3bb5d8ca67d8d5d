package memory

import (
	"testing"

	"github.com/marmos91/dedupfs/pkg/metadata"
	"github.com/marmos91/dedupfs/pkg/metadata/storetest"
)

func TestConformance(t *testing.T) {
	storetest.RunStoreTests(t, func(t *testing.T) metadata.Store {
		s := New()
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
