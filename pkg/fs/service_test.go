package fs

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/marmos91/dedupfs/pkg/blob"
	blobmem "github.com/marmos91/dedupfs/pkg/blob/store/memory"
	"github.com/marmos91/dedupfs/pkg/metadata"
	metamem "github.com/marmos91/dedupfs/pkg/metadata/store/memory"
)

type testEnv struct {
	svc   *Service
	meta  *metamem.Store
	blobs *blobmem.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	meta := metamem.New()
	blobs := blobmem.New()
	t.Cleanup(func() {
		_ = meta.Close()
		_ = blobs.Close()
	})
	return &testEnv{
		svc:   New(meta, blobs),
		meta:  meta,
		blobs: blobs,
	}
}

// bootstrap creates the tenant root.
func (e *testEnv) bootstrap(t *testing.T, tenant metadata.TenantID) {
	t.Helper()
	if _, err := e.svc.CreateDirectory(context.Background(), tenant, "/"); err != nil {
		t.Fatalf("CreateDirectory(/) failed: %v", err)
	}
}

func (e *testEnv) mustWrite(t *testing.T, tenant metadata.TenantID, path, content string) *metadata.Node {
	t.Helper()
	node, err := e.svc.WriteFile(context.Background(), tenant, path, []byte(content))
	if err != nil {
		t.Fatalf("WriteFile(%s) failed: %v", path, err)
	}
	return node
}

func (e *testEnv) refCount(t *testing.T, h blob.Hash) int64 {
	t.Helper()
	rec, err := e.meta.GetBlobRecord(context.Background(), h)
	if err != nil {
		if metadata.IsNotFound(err) {
			return 0
		}
		t.Fatalf("GetBlobRecord failed: %v", err)
	}
	return rec.RefCount
}

func TestWriteThenRead(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := uuid.New()
	env.bootstrap(t, tenant)

	node := env.mustWrite(t, tenant, "/hello.txt", "Hello World")
	if want := blob.Hash("a591a6d40bf420404a011733cfb7b190d62c65bf0bcda32b57b277d9ad9f146e"); node.Hash != want {
		t.Errorf("node hash = %s, want %s", node.Hash, want)
	}

	data, err := env.svc.ReadFile(ctx, tenant, "/hello.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "Hello World" {
		t.Errorf("ReadFile returned %q, want %q", data, "Hello World")
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := uuid.New()
	env.bootstrap(t, tenant)

	content := []byte{0x00, 0xff, 0x10, 0x20, 'h', 'i'}
	node, err := env.svc.WriteFile(ctx, tenant, "/bin.dat", content)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if node.Hash != blob.HashOf(content) {
		t.Errorf("node hash = %s, want hash of content", node.Hash)
	}

	data, err := env.svc.ReadFile(ctx, tenant, "/bin.dat")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Errorf("ReadFile returned %v, want %v", data, content)
	}
}

func TestCrossTenantDedup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	t1, t2 := uuid.New(), uuid.New()
	env.bootstrap(t, t1)
	env.bootstrap(t, t2)

	n1 := env.mustWrite(t, t1, "/a", "same")
	n2 := env.mustWrite(t, t2, "/b", "same")

	if n1.Hash != n2.Hash {
		t.Fatalf("hashes differ: %s vs %s", n1.Hash, n2.Hash)
	}
	if env.blobs.Len() != 1 {
		t.Errorf("blob store holds %d objects, want 1", env.blobs.Len())
	}
	if env.blobs.WriteCount() != 1 {
		t.Errorf("blob Write called %d times, want 1", env.blobs.WriteCount())
	}
	if got := env.refCount(t, n1.Hash); got != 2 {
		t.Errorf("refcount = %d, want 2", got)
	}

	if err := env.svc.DeleteFile(ctx, t1, "/a"); err != nil {
		t.Fatalf("DeleteFile failed: %v", err)
	}
	if got := env.refCount(t, n1.Hash); got != 1 {
		t.Errorf("refcount after first delete = %d, want 1", got)
	}
	if exists, _ := env.blobs.Exists(ctx, n1.Hash); !exists {
		t.Error("blob removed while still referenced")
	}

	if err := env.svc.DeleteFile(ctx, t2, "/b"); err != nil {
		t.Fatalf("DeleteFile failed: %v", err)
	}
	if got := env.refCount(t, n1.Hash); got != 0 {
		t.Errorf("refcount after final delete = %d, want 0", got)
	}
	if exists, _ := env.blobs.Exists(ctx, n1.Hash); exists {
		t.Error("unreferenced blob still present")
	}
}

func TestOverwriteWithDifferentContent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := uuid.New()
	env.bootstrap(t, tenant)

	h1 := blob.HashOf([]byte("v1"))
	h2 := blob.HashOf([]byte("v2"))

	env.mustWrite(t, tenant, "/x", "v1")
	if got := env.refCount(t, h1); got != 1 {
		t.Fatalf("refcount(h1) = %d, want 1", got)
	}

	node := env.mustWrite(t, tenant, "/x", "v2")
	if node.Hash != h2 {
		t.Errorf("node hash = %s, want h2", node.Hash)
	}
	if got := env.refCount(t, h2); got != 1 {
		t.Errorf("refcount(h2) = %d, want 1", got)
	}
	if got := env.refCount(t, h1); got != 0 {
		t.Errorf("refcount(h1) = %d, want 0", got)
	}
	if exists, _ := env.blobs.Exists(ctx, h2); !exists {
		t.Error("blob h2 missing")
	}
	if exists, _ := env.blobs.Exists(ctx, h1); exists {
		t.Error("blob h1 still present after losing its last reference")
	}

	data, err := env.svc.ReadFile(ctx, tenant, "/x")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "v2" {
		t.Errorf("ReadFile returned %q, want %q", data, "v2")
	}
}

func TestIdempotentRewrite(t *testing.T) {
	env := newTestEnv(t)
	tenant := uuid.New()
	env.bootstrap(t, tenant)

	first := env.mustWrite(t, tenant, "/p", "B")
	second := env.mustWrite(t, tenant, "/p", "B")

	if got := env.refCount(t, first.Hash); got != 1 {
		t.Errorf("refcount = %d, want 1", got)
	}
	if env.blobs.WriteCount() != 1 {
		t.Errorf("blob Write called %d times, want 1", env.blobs.WriteCount())
	}
	if second.ModifiedAt.Before(first.ModifiedAt) {
		t.Error("second write did not advance modifiedAt")
	}
}

func TestCopyIsMetadataOnly(t *testing.T) {
	env := newTestEnv(t)
	tenant := uuid.New()
	env.bootstrap(t, tenant)

	src := env.mustWrite(t, tenant, "/a", "shared content")
	dst, err := env.svc.CopyFile(context.Background(), tenant, "/a", "/b")
	if err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}

	if dst.Hash != src.Hash {
		t.Errorf("copy hash = %s, want %s", dst.Hash, src.Hash)
	}
	if dst.Size != src.Size || dst.MimeType != src.MimeType {
		t.Errorf("copy attributes differ: %+v vs %+v", dst, src)
	}
	if got := env.refCount(t, src.Hash); got != 2 {
		t.Errorf("refcount = %d, want 2", got)
	}
	if env.blobs.WriteCount() != 1 {
		t.Errorf("blob Write called %d times, want 1", env.blobs.WriteCount())
	}
}

func TestInvalidPathRejectedBeforeStoreCalls(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := uuid.New()

	_, err := env.svc.WriteFile(ctx, tenant, "/../etc/passwd", []byte("B"))
	if !metadata.IsInvalidPath(err) {
		t.Fatalf("WriteFile returned %v, want InvalidPath", err)
	}
	if env.blobs.WriteCount() != 0 || env.blobs.Len() != 0 {
		t.Error("blob store was touched for an invalid path")
	}

	for _, rawPath := range []string{"", "relative/path", "/nul\x00byte"} {
		if _, err := env.svc.WriteFile(ctx, tenant, rawPath, []byte("B")); !metadata.IsInvalidPath(err) {
			t.Errorf("WriteFile(%q) returned %v, want InvalidPath", rawPath, err)
		}
	}
}

func TestNonEmptyDirectoryDeleteRefused(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := uuid.New()
	env.bootstrap(t, tenant)

	if _, err := env.svc.CreateDirectory(ctx, tenant, "/d"); err != nil {
		t.Fatalf("CreateDirectory failed: %v", err)
	}
	env.mustWrite(t, tenant, "/d/f", "B")

	err := env.svc.DeleteDirectory(ctx, tenant, "/d")
	if !metadata.IsConflict(err) {
		t.Fatalf("DeleteDirectory on non-empty dir returned %v, want Conflict", err)
	}

	if err := env.svc.DeleteFile(ctx, tenant, "/d/f"); err != nil {
		t.Fatalf("DeleteFile failed: %v", err)
	}
	if err := env.svc.DeleteDirectory(ctx, tenant, "/d"); err != nil {
		t.Fatalf("DeleteDirectory on empty dir failed: %v", err)
	}
	if _, err := env.svc.GetInfo(ctx, tenant, "/d"); !metadata.IsNotFound(err) {
		t.Errorf("GetInfo after delete returned %v, want NotFound", err)
	}
}

func TestCreateDirectoryValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := uuid.New()
	env.bootstrap(t, tenant)

	// Re-creating the root is a conflict.
	if _, err := env.svc.CreateDirectory(ctx, tenant, "/"); !metadata.IsConflict(err) {
		t.Errorf("second CreateDirectory(/) returned %v, want Conflict", err)
	}

	// Parent must exist.
	if _, err := env.svc.CreateDirectory(ctx, tenant, "/no/parent"); !metadata.IsNotFound(err) {
		t.Errorf("CreateDirectory without parent returned %v, want NotFound", err)
	}

	// Creating over a file is a conflict.
	env.mustWrite(t, tenant, "/f", "x")
	if _, err := env.svc.CreateDirectory(ctx, tenant, "/f"); !metadata.IsConflict(err) {
		t.Errorf("CreateDirectory over file returned %v, want Conflict", err)
	}
}

func TestWriteFileToDirectoryPath(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := uuid.New()
	env.bootstrap(t, tenant)

	if _, err := env.svc.CreateDirectory(ctx, tenant, "/d"); err != nil {
		t.Fatalf("CreateDirectory failed: %v", err)
	}
	if _, err := env.svc.WriteFile(ctx, tenant, "/d", []byte("x")); !metadata.IsConflict(err) {
		t.Errorf("WriteFile to directory path returned %v, want Conflict", err)
	}
}

func TestReadMissingBlobIsCorruption(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := uuid.New()
	env.bootstrap(t, tenant)

	node := env.mustWrite(t, tenant, "/f", "doomed")
	if err := env.blobs.Delete(ctx, node.Hash); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, err := env.svc.ReadFile(ctx, tenant, "/f")
	if !metadata.IsCorrupted(err) {
		t.Errorf("ReadFile with missing blob returned %v, want Corrupted", err)
	}
}

func TestListDirectoryOrdering(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := uuid.New()
	env.bootstrap(t, tenant)

	if _, err := env.svc.CreateDirectory(ctx, tenant, "/sub"); err != nil {
		t.Fatalf("CreateDirectory failed: %v", err)
	}
	env.mustWrite(t, tenant, "/a.txt", "a")
	env.mustWrite(t, tenant, "/z.txt", "z")

	children, err := env.svc.ListDirectory(ctx, tenant, "/")
	if err != nil {
		t.Fatalf("ListDirectory failed: %v", err)
	}

	want := []metadata.Path{"/sub", "/a.txt", "/z.txt"}
	if len(children) != len(want) {
		t.Fatalf("ListDirectory returned %d nodes, want %d", len(children), len(want))
	}
	for i, w := range want {
		if children[i].Path != w {
			t.Errorf("children[%d].Path = %q, want %q", i, children[i].Path, w)
		}
	}

	// Listing a file is a conflict, not an empty listing.
	if _, err := env.svc.ListDirectory(ctx, tenant, "/a.txt"); !metadata.IsConflict(err) {
		t.Errorf("ListDirectory on file returned %v, want Conflict", err)
	}
}

func TestMoveFileKeepsRefcount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := uuid.New()
	env.bootstrap(t, tenant)

	src := env.mustWrite(t, tenant, "/old", "moving content")
	node, err := env.svc.MoveFile(ctx, tenant, "/old", "/new")
	if err != nil {
		t.Fatalf("MoveFile failed: %v", err)
	}

	if node.Hash != src.Hash {
		t.Errorf("moved hash = %s, want %s", node.Hash, src.Hash)
	}
	if got := env.refCount(t, src.Hash); got != 1 {
		t.Errorf("refcount after move = %d, want 1", got)
	}
	if exists, _ := env.blobs.Exists(ctx, src.Hash); !exists {
		t.Error("blob deleted during move")
	}
	if _, err := env.svc.GetInfo(ctx, tenant, "/old"); !metadata.IsNotFound(err) {
		t.Errorf("source still present after move: %v", err)
	}
}

func TestMoveOverExistingDestination(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := uuid.New()
	env.bootstrap(t, tenant)

	env.mustWrite(t, tenant, "/src", "a")
	env.mustWrite(t, tenant, "/dst", "b")

	if _, err := env.svc.MoveFile(ctx, tenant, "/src", "/dst"); !metadata.IsConflict(err) {
		t.Errorf("MoveFile over existing destination returned %v, want Conflict", err)
	}
	// Source untouched after the refused move.
	if _, err := env.svc.GetInfo(ctx, tenant, "/src"); err != nil {
		t.Errorf("source missing after refused move: %v", err)
	}
}

func TestCopyDirectoryRecursive(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := uuid.New()
	env.bootstrap(t, tenant)

	for _, dir := range []string{"/src", "/src/sub"} {
		if _, err := env.svc.CreateDirectory(ctx, tenant, dir); err != nil {
			t.Fatalf("CreateDirectory(%s) failed: %v", dir, err)
		}
	}
	env.mustWrite(t, tenant, "/src/a.txt", "alpha")
	env.mustWrite(t, tenant, "/src/sub/b.txt", "beta")

	writesBefore := env.blobs.WriteCount()
	if err := env.svc.CopyDirectory(ctx, tenant, "/src", "/dst"); err != nil {
		t.Fatalf("CopyDirectory failed: %v", err)
	}
	if env.blobs.WriteCount() != writesBefore {
		t.Error("CopyDirectory wrote blobs; copies must be metadata-only")
	}

	for _, path := range []string{"/dst", "/dst/sub"} {
		node, err := env.svc.GetInfo(ctx, tenant, path)
		if err != nil {
			t.Fatalf("GetInfo(%s) failed: %v", path, err)
		}
		if !node.IsDir() {
			t.Errorf("%s is not a directory", path)
		}
	}
	for path, want := range map[string]string{
		"/dst/a.txt":     "alpha",
		"/dst/sub/b.txt": "beta",
	} {
		data, err := env.svc.ReadFile(ctx, tenant, path)
		if err != nil {
			t.Fatalf("ReadFile(%s) failed: %v", path, err)
		}
		if string(data) != want {
			t.Errorf("ReadFile(%s) = %q, want %q", path, data, want)
		}
	}

	if got := env.refCount(t, blob.HashOf([]byte("alpha"))); got != 2 {
		t.Errorf("refcount(alpha) = %d, want 2", got)
	}
}

func TestCopyDirectoryIntoItselfRefused(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := uuid.New()
	env.bootstrap(t, tenant)

	if _, err := env.svc.CreateDirectory(ctx, tenant, "/d"); err != nil {
		t.Fatalf("CreateDirectory failed: %v", err)
	}
	if err := env.svc.CopyDirectory(ctx, tenant, "/d", "/d/inner"); !metadata.IsInvalidPath(err) {
		t.Errorf("CopyDirectory into own subtree returned %v, want InvalidPath", err)
	}
}

func TestMoveDirectory(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := uuid.New()
	env.bootstrap(t, tenant)

	if _, err := env.svc.CreateDirectory(ctx, tenant, "/src"); err != nil {
		t.Fatalf("CreateDirectory failed: %v", err)
	}
	env.mustWrite(t, tenant, "/src/f", "payload")
	h := blob.HashOf([]byte("payload"))

	if err := env.svc.MoveDirectory(ctx, tenant, "/src", "/dst"); err != nil {
		t.Fatalf("MoveDirectory failed: %v", err)
	}

	if _, err := env.svc.GetInfo(ctx, tenant, "/src"); !metadata.IsNotFound(err) {
		t.Errorf("source still present after move: %v", err)
	}
	data, err := env.svc.ReadFile(ctx, tenant, "/dst/f")
	if err != nil {
		t.Fatalf("ReadFile after move failed: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("ReadFile = %q, want %q", data, "payload")
	}
	if got := env.refCount(t, h); got != 1 {
		t.Errorf("refcount after move = %d, want 1", got)
	}
	if exists, _ := env.blobs.Exists(ctx, h); !exists {
		t.Error("blob deleted during directory move")
	}
}

func TestTenantIsolation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	t1, t2 := uuid.New(), uuid.New()
	env.bootstrap(t, t1)
	env.bootstrap(t, t2)

	env.mustWrite(t, t1, "/secret.txt", "tenant one data")

	if _, err := env.svc.ReadFile(ctx, t2, "/secret.txt"); !metadata.IsNotFound(err) {
		t.Errorf("tenant 2 read tenant 1's file: %v", err)
	}

	children, err := env.svc.ListDirectory(ctx, t2, "/")
	if err != nil {
		t.Fatalf("ListDirectory failed: %v", err)
	}
	if len(children) != 0 {
		t.Errorf("tenant 2 sees %d foreign nodes", len(children))
	}

	// Same path, different content per tenant.
	env.mustWrite(t, t2, "/secret.txt", "tenant two data")
	data, err := env.svc.ReadFile(ctx, t1, "/secret.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "tenant one data" {
		t.Errorf("tenant 1 data changed: %q", data)
	}
}

func TestRootDeletionForbidden(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := uuid.New()
	env.bootstrap(t, tenant)

	if err := env.svc.DeleteDirectory(ctx, tenant, "/"); !metadata.IsConflict(err) {
		t.Errorf("DeleteDirectory(/) returned %v, want Conflict", err)
	}
}

func TestRootIsNeverAFile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := uuid.New()

	// Before bootstrap: the root slot is empty, but only a directory may
	// ever occupy it.
	if _, err := env.svc.WriteFile(ctx, tenant, "/", []byte("data")); !metadata.IsConflict(err) {
		t.Fatalf("WriteFile(/) on fresh tenant returned %v, want Conflict", err)
	}
	if _, err := env.svc.GetInfo(ctx, tenant, "/"); !metadata.IsNotFound(err) {
		t.Fatalf("GetInfo(/) after refused write returned %v, want NotFound", err)
	}

	// The refused write must not brick the tenant.
	env.bootstrap(t, tenant)
	if _, err := env.svc.ListDirectory(ctx, tenant, "/"); err != nil {
		t.Fatalf("ListDirectory(/) after bootstrap failed: %v", err)
	}

	// After bootstrap: the existing root directory is a conflict too.
	if _, err := env.svc.WriteFile(ctx, tenant, "/", []byte("data")); !metadata.IsConflict(err) {
		t.Errorf("WriteFile(/) on bootstrapped tenant returned %v, want Conflict", err)
	}

	// Copy and move share the guard.
	src := env.mustWrite(t, tenant, "/src.txt", "payload")
	if _, err := env.svc.CopyFile(ctx, tenant, "/src.txt", "/"); !metadata.IsConflict(err) {
		t.Errorf("CopyFile to / returned %v, want Conflict", err)
	}
	if _, err := env.svc.MoveFile(ctx, tenant, "/src.txt", "/"); !metadata.IsConflict(err) {
		t.Errorf("MoveFile to / returned %v, want Conflict", err)
	}
	if got := env.refCount(t, src.Hash); got != 1 {
		t.Errorf("source refcount after refused copy/move = %d, want 1", got)
	}
	if _, err := env.svc.ReadFile(ctx, tenant, "/src.txt"); err != nil {
		t.Errorf("source unreadable after refused move: %v", err)
	}
}

func TestMimeTypeFromSuffix(t *testing.T) {
	env := newTestEnv(t)
	tenant := uuid.New()
	env.bootstrap(t, tenant)

	node := env.mustWrite(t, tenant, "/page.html", "<html></html>")
	if node.MimeType != "text/html" {
		t.Errorf("MimeType = %q, want text/html", node.MimeType)
	}

	node = env.mustWrite(t, tenant, "/noext", "data")
	if node.MimeType != "application/octet-stream" {
		t.Errorf("MimeType = %q, want application/octet-stream", node.MimeType)
	}
}

func TestRefcountExactness(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tenant := uuid.New()
	env.bootstrap(t, tenant)

	content := "counted"
	h := blob.HashOf([]byte(content))

	env.mustWrite(t, tenant, "/one", content)
	env.mustWrite(t, tenant, "/two", content)
	if _, err := env.svc.CopyFile(ctx, tenant, "/one", "/three"); err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}
	if got := env.refCount(t, h); got != 3 {
		t.Errorf("refcount = %d, want 3", got)
	}

	if err := env.svc.DeleteFile(ctx, tenant, "/two"); err != nil {
		t.Fatalf("DeleteFile failed: %v", err)
	}
	if _, err := env.svc.MoveFile(ctx, tenant, "/three", "/moved"); err != nil {
		t.Fatalf("MoveFile failed: %v", err)
	}
	if got := env.refCount(t, h); got != 2 {
		t.Errorf("refcount = %d, want 2", got)
	}
}
