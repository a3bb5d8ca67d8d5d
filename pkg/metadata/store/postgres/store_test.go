//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/marmos91/dedupfs/pkg/metadata"
	"github.com/marmos91/dedupfs/pkg/metadata/storetest"
)

// newTestStore connects to the database named by DEDUPFS_TEST_POSTGRES_DSN,
// runs migrations and truncates all tables so every test starts empty.
func newTestStore(t *testing.T) metadata.Store {
	t.Helper()

	dsn := os.Getenv("DEDUPFS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DEDUPFS_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}

	ctx := context.Background()
	s, err := New(ctx, &Config{
		DSN:         dsn,
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if _, err := s.pool.Exec(ctx, "TRUNCATE fs_nodes, blobs"); err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storetest.RunStoreTests(t, func(t *testing.T) metadata.Store {
		return newTestStore(t)
	})
}
