package badger

import (
	"testing"

	"github.com/marmos91/dedupfs/pkg/blob"
	"github.com/marmos91/dedupfs/pkg/metadata"
	"github.com/marmos91/dedupfs/pkg/metadata/storetest"
)

func TestConformance(t *testing.T) {
	storetest.RunStoreTests(t, func(t *testing.T) metadata.Store {
		s, err := New(&Config{Path: t.TempDir()})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestReopenPersistsData(t *testing.T) {
	dir := t.TempDir()

	s, err := New(&Config{Path: dir})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := t.Context()
	hash := blob.HashOf([]byte("persisted"))
	if err := s.IncrementBlobRef(ctx, hash, 7); err != nil {
		t.Fatalf("IncrementBlobRef failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = New(&Config{Path: dir})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = s.Close() }()

	rec, err := s.GetBlobRecord(ctx, hash)
	if err != nil {
		t.Fatalf("GetBlobRecord after reopen failed: %v", err)
	}
	if rec.RefCount != 1 || rec.Size != 7 {
		t.Errorf("record = %+v, want refcount 1 size 7", rec)
	}
}
