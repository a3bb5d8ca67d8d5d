//go:build integration

package s3

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/marmos91/dedupfs/pkg/blob"
)

// newTestStore connects to an S3-compatible endpoint (e.g. MinIO).
// Set DEDUPFS_TEST_S3_ENDPOINT and DEDUPFS_TEST_S3_BUCKET to run.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	endpoint := os.Getenv("DEDUPFS_TEST_S3_ENDPOINT")
	bucket := os.Getenv("DEDUPFS_TEST_S3_BUCKET")
	if endpoint == "" || bucket == "" {
		t.Skip("DEDUPFS_TEST_S3_ENDPOINT / DEDUPFS_TEST_S3_BUCKET not set, skipping S3 tests")
	}

	s, err := NewFromConfig(context.Background(), Config{
		Bucket:          bucket,
		KeyPrefix:       "dedupfs-test/",
		Region:          "us-east-1",
		Endpoint:        endpoint,
		UsePathStyle:    true,
		AccessKeyID:     os.Getenv("DEDUPFS_TEST_S3_ACCESS_KEY"),
		SecretAccessKey: os.Getenv("DEDUPFS_TEST_S3_SECRET_KEY"),
	})
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_WriteReadDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	data := []byte("s3 round trip")
	h := blob.HashOf(data)

	if err := s.Write(ctx, h, data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	ok, err := s.Exists(ctx, h)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !ok {
		t.Error("Exists = false after write")
	}

	read, err := s.Read(ctx, h)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(read) != string(data) {
		t.Errorf("Read returned %q, want %q", read, data)
	}

	if err := s.Delete(ctx, h); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Read(ctx, h); !errors.Is(err, blob.ErrBlobNotFound) {
		t.Errorf("Read after Delete returned %v, want ErrBlobNotFound", err)
	}
}

func TestStore_DeleteMany(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var hashes []blob.Hash
	for _, content := range []string{"s3-a", "s3-b", "s3-c"} {
		data := []byte(content)
		h := blob.HashOf(data)
		if err := s.Write(ctx, h, data); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		hashes = append(hashes, h)
	}

	failed, err := s.DeleteMany(ctx, hashes)
	if err != nil {
		t.Fatalf("DeleteMany failed: %v", err)
	}
	if len(failed) != 0 {
		t.Errorf("DeleteMany failed hashes = %v, want none", failed)
	}
}

func TestStore_Walk(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	data := []byte("s3 walk")
	h := blob.HashOf(data)
	if err := s.Write(ctx, h, data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Delete(ctx, h) })

	found := false
	err := s.Walk(ctx, func(info blob.ObjectInfo) error {
		if info.Hash == h {
			found = true
			if info.Size != int64(len(data)) {
				t.Errorf("Walk size = %d, want %d", info.Size, len(data))
			}
			if info.Modified.IsZero() {
				t.Error("Walk returned zero Modified")
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if !found {
		t.Error("Walk did not visit the written object")
	}
}

func TestStore_HealthCheck(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}
