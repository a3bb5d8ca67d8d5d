// Package storetest provides a conformance suite for metadata.Store
// implementations. Every backing (memory, postgres, badger) runs the same
// suite so behavior stays identical regardless of what is underneath.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dedupfs/pkg/blob"
	"github.com/marmos91/dedupfs/pkg/metadata"
)

// Factory creates a fresh, empty store for a single test. Cleanup is the
// factory's responsibility (t.Cleanup).
type Factory func(t *testing.T) metadata.Store

// RunStoreTests runs the full conformance suite against stores produced by
// the factory.
func RunStoreTests(t *testing.T, factory Factory) {
	t.Run("CreateAndGetNode", func(t *testing.T) { testCreateAndGetNode(t, factory) })
	t.Run("CreateNodeConflict", func(t *testing.T) { testCreateNodeConflict(t, factory) })
	t.Run("GetNodeNotFound", func(t *testing.T) { testGetNodeNotFound(t, factory) })
	t.Run("UpdateNode", func(t *testing.T) { testUpdateNode(t, factory) })
	t.Run("UpdateMissingNodeIsNoop", func(t *testing.T) { testUpdateMissingNode(t, factory) })
	t.Run("DeleteNodeIdempotent", func(t *testing.T) { testDeleteNodeIdempotent(t, factory) })
	t.Run("ListChildrenOrdering", func(t *testing.T) { testListChildrenOrdering(t, factory) })
	t.Run("ListChildrenDirectOnly", func(t *testing.T) { testListChildrenDirectOnly(t, factory) })
	t.Run("TenantIsolation", func(t *testing.T) { testTenantIsolation(t, factory) })
	t.Run("BlobRefLifecycle", func(t *testing.T) { testBlobRefLifecycle(t, factory) })
	t.Run("BlobRefConcurrentIncrement", func(t *testing.T) { testBlobRefConcurrentIncrement(t, factory) })
	t.Run("BlobRefDecrementMissing", func(t *testing.T) { testBlobRefDecrementMissing(t, factory) })
	t.Run("BlobRefNeverNegative", func(t *testing.T) { testBlobRefNeverNegative(t, factory) })
	t.Run("OrphansOldestFirst", func(t *testing.T) { testOrphansOldestFirst(t, factory) })
	t.Run("OrphansLimit", func(t *testing.T) { testOrphansLimit(t, factory) })
	t.Run("RemoveBlobIfOrphan", func(t *testing.T) { testRemoveBlobIfOrphan(t, factory) })
	t.Run("HealthCheck", func(t *testing.T) { testHealthCheck(t, factory) })
}

func mustPath(t *testing.T, s string) metadata.Path {
	t.Helper()
	p, err := metadata.ParsePath(s)
	if err != nil {
		t.Fatalf("ParsePath(%q) failed: %v", s, err)
	}
	return p
}

func testHash(s string) blob.Hash {
	return blob.HashOf([]byte(s))
}

func fileNode(t *testing.T, path string, content string) *metadata.Node {
	t.Helper()
	data := []byte(content)
	return metadata.NewFileNode(mustPath(t, path), blob.HashOf(data), int64(len(data)), "application/octet-stream")
}

func dirNode(t *testing.T, path string) *metadata.Node {
	t.Helper()
	return metadata.NewDirectoryNode(mustPath(t, path))
}

func testCreateAndGetNode(t *testing.T, factory Factory) {
	ctx := context.Background()
	ts := factory(t).Tenant(uuid.New())

	want := fileNode(t, "/docs/a.txt", "file contents")
	if err := ts.CreateNode(ctx, want); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	got, err := ts.GetNodeByPath(ctx, want.Path)
	if err != nil {
		t.Fatalf("GetNodeByPath failed: %v", err)
	}
	if got.Path != want.Path {
		t.Errorf("Path = %q, want %q", got.Path, want.Path)
	}
	if got.Type != metadata.NodeTypeFile {
		t.Errorf("Type = %v, want file", got.Type)
	}
	if got.Hash != want.Hash {
		t.Errorf("Hash = %q, want %q", got.Hash, want.Hash)
	}
	if got.Size != want.Size {
		t.Errorf("Size = %d, want %d", got.Size, want.Size)
	}
	if got.MimeType != want.MimeType {
		t.Errorf("MimeType = %q, want %q", got.MimeType, want.MimeType)
	}
}

func testCreateNodeConflict(t *testing.T, factory Factory) {
	ctx := context.Background()
	ts := factory(t).Tenant(uuid.New())

	node := dirNode(t, "/projects")
	if err := ts.CreateNode(ctx, node); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	err := ts.CreateNode(ctx, dirNode(t, "/projects"))
	if !metadata.IsAlreadyExists(err) {
		t.Errorf("second CreateNode returned %v, want AlreadyExists", err)
	}
}

func testGetNodeNotFound(t *testing.T, factory Factory) {
	ctx := context.Background()
	ts := factory(t).Tenant(uuid.New())

	_, err := ts.GetNodeByPath(ctx, mustPath(t, "/nope"))
	if !metadata.IsNotFound(err) {
		t.Errorf("GetNodeByPath returned %v, want NotFound", err)
	}
}

func testUpdateNode(t *testing.T, factory Factory) {
	ctx := context.Background()
	ts := factory(t).Tenant(uuid.New())

	node := fileNode(t, "/a.txt", "v1")
	if err := ts.CreateNode(ctx, node); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	node.Hash = testHash("v2")
	node.Size = 2
	node.ModifiedAt = time.Now().UTC().Add(time.Minute)
	if err := ts.UpdateNode(ctx, node); err != nil {
		t.Fatalf("UpdateNode failed: %v", err)
	}

	got, err := ts.GetNodeByPath(ctx, node.Path)
	if err != nil {
		t.Fatalf("GetNodeByPath failed: %v", err)
	}
	if got.Hash != testHash("v2") {
		t.Errorf("Hash = %q, want updated hash", got.Hash)
	}
	if got.Size != 2 {
		t.Errorf("Size = %d, want 2", got.Size)
	}
}

func testUpdateMissingNode(t *testing.T, factory Factory) {
	ctx := context.Background()
	ts := factory(t).Tenant(uuid.New())

	if err := ts.UpdateNode(ctx, fileNode(t, "/ghost.txt", "x")); err != nil {
		t.Errorf("UpdateNode on missing path returned %v, want nil", err)
	}
	if _, err := ts.GetNodeByPath(ctx, mustPath(t, "/ghost.txt")); !metadata.IsNotFound(err) {
		t.Errorf("update must not create nodes; GetNodeByPath returned %v, want NotFound", err)
	}
}

func testDeleteNodeIdempotent(t *testing.T, factory Factory) {
	ctx := context.Background()
	ts := factory(t).Tenant(uuid.New())

	node := fileNode(t, "/tmp.txt", "x")
	if err := ts.CreateNode(ctx, node); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	if err := ts.DeleteNode(ctx, node.Path); err != nil {
		t.Fatalf("DeleteNode failed: %v", err)
	}
	if err := ts.DeleteNode(ctx, node.Path); err != nil {
		t.Errorf("second DeleteNode returned %v, want nil", err)
	}
	if _, err := ts.GetNodeByPath(ctx, node.Path); !metadata.IsNotFound(err) {
		t.Errorf("GetNodeByPath after delete returned %v, want NotFound", err)
	}
}

func testListChildrenOrdering(t *testing.T, factory Factory) {
	ctx := context.Background()
	ts := factory(t).Tenant(uuid.New())

	for _, n := range []*metadata.Node{
		fileNode(t, "/zeta.txt", "z"),
		dirNode(t, "/videos"),
		fileNode(t, "/alpha.txt", "a"),
		dirNode(t, "/docs"),
	} {
		if err := ts.CreateNode(ctx, n); err != nil {
			t.Fatalf("CreateNode(%s) failed: %v", n.Path, err)
		}
	}

	children, err := ts.ListChildren(ctx, metadata.RootPath)
	if err != nil {
		t.Fatalf("ListChildren failed: %v", err)
	}

	want := []metadata.Path{"/docs", "/videos", "/alpha.txt", "/zeta.txt"}
	if len(children) != len(want) {
		t.Fatalf("ListChildren returned %d nodes, want %d", len(children), len(want))
	}
	for i, w := range want {
		if children[i].Path != w {
			t.Errorf("children[%d].Path = %q, want %q", i, children[i].Path, w)
		}
	}
}

func testListChildrenDirectOnly(t *testing.T, factory Factory) {
	ctx := context.Background()
	ts := factory(t).Tenant(uuid.New())

	for _, n := range []*metadata.Node{
		dirNode(t, "/docs"),
		dirNode(t, "/docs/sub"),
		fileNode(t, "/docs/a.txt", "a"),
		fileNode(t, "/docs/sub/deep.txt", "d"),
		fileNode(t, "/docsfile.txt", "sibling with shared prefix"),
	} {
		if err := ts.CreateNode(ctx, n); err != nil {
			t.Fatalf("CreateNode(%s) failed: %v", n.Path, err)
		}
	}

	children, err := ts.ListChildren(ctx, mustPath(t, "/docs"))
	if err != nil {
		t.Fatalf("ListChildren failed: %v", err)
	}

	want := []metadata.Path{"/docs/sub", "/docs/a.txt"}
	if len(children) != len(want) {
		t.Fatalf("ListChildren returned %d nodes, want %d: %v", len(children), len(want), paths(children))
	}
	for i, w := range want {
		if children[i].Path != w {
			t.Errorf("children[%d].Path = %q, want %q", i, children[i].Path, w)
		}
	}

	empty, err := ts.ListChildren(ctx, mustPath(t, "/docs/sub/deep.txt"))
	if err != nil {
		t.Fatalf("ListChildren on leaf failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("ListChildren on a file returned %d nodes, want 0", len(empty))
	}

	// Multibyte directory names: the depth cutoff must count the same way
	// the paths are stored, or grandchildren leak into the listing.
	for _, n := range []*metadata.Node{
		dirNode(t, "/üü"),
		dirNode(t, "/üü/日本語"),
		fileNode(t, "/üü/ä.txt", "umlaut"),
		fileNode(t, "/üü/日本語/deep.txt", "grandchild"),
	} {
		if err := ts.CreateNode(ctx, n); err != nil {
			t.Fatalf("CreateNode(%s) failed: %v", n.Path, err)
		}
	}

	multibyte, err := ts.ListChildren(ctx, mustPath(t, "/üü"))
	if err != nil {
		t.Fatalf("ListChildren(/üü) failed: %v", err)
	}
	wantMultibyte := []metadata.Path{"/üü/日本語", "/üü/ä.txt"}
	if len(multibyte) != len(wantMultibyte) {
		t.Fatalf("ListChildren(/üü) returned %d nodes, want %d: %v",
			len(multibyte), len(wantMultibyte), paths(multibyte))
	}
	for i, w := range wantMultibyte {
		if multibyte[i].Path != w {
			t.Errorf("multibyte children[%d].Path = %q, want %q", i, multibyte[i].Path, w)
		}
	}
}

func paths(nodes []*metadata.Node) []metadata.Path {
	out := make([]metadata.Path, len(nodes))
	for i, n := range nodes {
		out[i] = n.Path
	}
	return out
}

func testTenantIsolation(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t)
	tenantA := store.Tenant(uuid.New())
	tenantB := store.Tenant(uuid.New())

	node := fileNode(t, "/shared-path.txt", "belongs to A")
	if err := tenantA.CreateNode(ctx, node); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	if _, err := tenantB.GetNodeByPath(ctx, node.Path); !metadata.IsNotFound(err) {
		t.Errorf("tenant B sees tenant A's node: %v", err)
	}

	// Same path in another tenant is not a conflict.
	if err := tenantB.CreateNode(ctx, fileNode(t, "/shared-path.txt", "belongs to B")); err != nil {
		t.Errorf("CreateNode in tenant B failed: %v", err)
	}

	children, err := tenantB.ListChildren(ctx, metadata.RootPath)
	if err != nil {
		t.Fatalf("ListChildren failed: %v", err)
	}
	if len(children) != 1 {
		t.Errorf("tenant B ListChildren returned %d nodes, want 1", len(children))
	}
}

func testBlobRefLifecycle(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t)

	h := testHash("blob lifecycle")
	if err := store.IncrementBlobRef(ctx, h, 42); err != nil {
		t.Fatalf("IncrementBlobRef failed: %v", err)
	}

	rec, err := store.GetBlobRecord(ctx, h)
	if err != nil {
		t.Fatalf("GetBlobRecord failed: %v", err)
	}
	if rec.RefCount != 1 {
		t.Errorf("RefCount = %d after first increment, want 1", rec.RefCount)
	}
	if rec.Size != 42 {
		t.Errorf("Size = %d, want 42", rec.Size)
	}

	if err := store.IncrementBlobRef(ctx, h, 42); err != nil {
		t.Fatalf("IncrementBlobRef failed: %v", err)
	}
	rec, err = store.GetBlobRecord(ctx, h)
	if err != nil {
		t.Fatalf("GetBlobRecord failed: %v", err)
	}
	if rec.RefCount != 2 {
		t.Errorf("RefCount = %d after second increment, want 2", rec.RefCount)
	}

	n, err := store.DecrementBlobRef(ctx, h)
	if err != nil {
		t.Fatalf("DecrementBlobRef failed: %v", err)
	}
	if n != 1 {
		t.Errorf("DecrementBlobRef returned %d, want 1", n)
	}
	n, err = store.DecrementBlobRef(ctx, h)
	if err != nil {
		t.Fatalf("DecrementBlobRef failed: %v", err)
	}
	if n != 0 {
		t.Errorf("DecrementBlobRef returned %d, want 0", n)
	}
}

func testBlobRefConcurrentIncrement(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t)

	const goroutines = 16
	const perGoroutine = 25
	h := testHash("concurrent")

	var wg sync.WaitGroup
	errCh := make(chan error, goroutines)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				if err := store.IncrementBlobRef(ctx, h, 10); err != nil {
					errCh <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("IncrementBlobRef failed: %v", err)
	}

	rec, err := store.GetBlobRecord(ctx, h)
	if err != nil {
		t.Fatalf("GetBlobRecord failed: %v", err)
	}
	if want := int64(goroutines * perGoroutine); rec.RefCount != want {
		t.Errorf("RefCount = %d after concurrent increments, want %d", rec.RefCount, want)
	}
}

func testBlobRefDecrementMissing(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t)

	n, err := store.DecrementBlobRef(ctx, testHash("never seen"))
	if err != nil {
		t.Fatalf("DecrementBlobRef on missing record failed: %v", err)
	}
	if n != 0 {
		t.Errorf("DecrementBlobRef on missing record returned %d, want 0", n)
	}
}

func testBlobRefNeverNegative(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t)

	h := testHash("underflow")
	if err := store.IncrementBlobRef(ctx, h, 1); err != nil {
		t.Fatalf("IncrementBlobRef failed: %v", err)
	}
	if _, err := store.DecrementBlobRef(ctx, h); err != nil {
		t.Fatalf("DecrementBlobRef failed: %v", err)
	}

	_, err := store.DecrementBlobRef(ctx, h)
	if !metadata.IsInvariant(err) {
		t.Errorf("decrement below zero returned %v, want Invariant", err)
	}

	rec, err := store.GetBlobRecord(ctx, h)
	if err != nil {
		t.Fatalf("GetBlobRecord failed: %v", err)
	}
	if rec.RefCount != 0 {
		t.Errorf("RefCount = %d after failed decrement, want 0", rec.RefCount)
	}
}

func testOrphansOldestFirst(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t)

	// Orphan three blobs in a known order; lastAccessedAt follows the
	// decrement, so orphans must come back in decrement order.
	hashes := []blob.Hash{testHash("o1"), testHash("o2"), testHash("o3")}
	for _, h := range hashes {
		if err := store.IncrementBlobRef(ctx, h, 1); err != nil {
			t.Fatalf("IncrementBlobRef failed: %v", err)
		}
	}
	for _, h := range hashes {
		if _, err := store.DecrementBlobRef(ctx, h); err != nil {
			t.Fatalf("DecrementBlobRef failed: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A referenced blob must never appear.
	live := testHash("live")
	if err := store.IncrementBlobRef(ctx, live, 1); err != nil {
		t.Fatalf("IncrementBlobRef failed: %v", err)
	}

	orphans, err := store.GetOrphanBlobs(ctx, 0)
	if err != nil {
		t.Fatalf("GetOrphanBlobs failed: %v", err)
	}
	if len(orphans) != len(hashes) {
		t.Fatalf("GetOrphanBlobs returned %d hashes, want %d", len(orphans), len(hashes))
	}
	for i, h := range hashes {
		if orphans[i] != h {
			t.Errorf("orphans[%d] = %s, want %s", i, orphans[i], h)
		}
	}
}

func testOrphansLimit(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t)

	for i := range 5 {
		h := testHash(fmt.Sprintf("orphan-%d", i))
		if err := store.IncrementBlobRef(ctx, h, 1); err != nil {
			t.Fatalf("IncrementBlobRef failed: %v", err)
		}
		if _, err := store.DecrementBlobRef(ctx, h); err != nil {
			t.Fatalf("DecrementBlobRef failed: %v", err)
		}
	}

	orphans, err := store.GetOrphanBlobs(ctx, 2)
	if err != nil {
		t.Fatalf("GetOrphanBlobs failed: %v", err)
	}
	if len(orphans) != 2 {
		t.Errorf("GetOrphanBlobs(limit=2) returned %d hashes, want 2", len(orphans))
	}
}

func testRemoveBlobIfOrphan(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t)

	h := testHash("to remove")
	if err := store.IncrementBlobRef(ctx, h, 1); err != nil {
		t.Fatalf("IncrementBlobRef failed: %v", err)
	}

	// Still referenced: must not be removed.
	removed, err := store.RemoveBlobIfOrphan(ctx, h)
	if err != nil {
		t.Fatalf("RemoveBlobIfOrphan failed: %v", err)
	}
	if removed {
		t.Error("RemoveBlobIfOrphan removed a referenced blob")
	}

	if _, err := store.DecrementBlobRef(ctx, h); err != nil {
		t.Fatalf("DecrementBlobRef failed: %v", err)
	}

	removed, err = store.RemoveBlobIfOrphan(ctx, h)
	if err != nil {
		t.Fatalf("RemoveBlobIfOrphan failed: %v", err)
	}
	if !removed {
		t.Error("RemoveBlobIfOrphan did not remove an orphan")
	}
	if _, err := store.GetBlobRecord(ctx, h); !metadata.IsNotFound(err) {
		t.Errorf("GetBlobRecord after removal returned %v, want NotFound", err)
	}

	// Missing record: reports false without error.
	removed, err = store.RemoveBlobIfOrphan(ctx, h)
	if err != nil {
		t.Fatalf("RemoveBlobIfOrphan on missing record failed: %v", err)
	}
	if removed {
		t.Error("RemoveBlobIfOrphan reported removal of a missing record")
	}
}

func testHealthCheck(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t)

	if err := store.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}
