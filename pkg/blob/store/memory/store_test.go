package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/marmos91/dedupfs/pkg/blob"
)

func TestStore_WriteAndRead(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer func() { _ = s.Close() }()

	data := []byte("hello world")
	h := blob.HashOf(data)

	if err := s.Write(ctx, h, data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	read, err := s.Read(ctx, h)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(read) != string(data) {
		t.Errorf("Read returned %q, want %q", read, data)
	}
}

func TestStore_ReadNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer func() { _ = s.Close() }()

	_, err := s.Read(ctx, blob.HashOf([]byte("missing")))
	if !errors.Is(err, blob.ErrBlobNotFound) {
		t.Errorf("Read returned %v, want ErrBlobNotFound", err)
	}
}

func TestStore_ReadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer func() { _ = s.Close() }()

	data := []byte("immutable")
	h := blob.HashOf(data)
	if err := s.Write(ctx, h, data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	read, err := s.Read(ctx, h)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	read[0] = 'X'

	again, err := s.Read(ctx, h)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(again) != string(data) {
		t.Errorf("stored bytes mutated through returned slice: %q", again)
	}
}

func TestStore_DeleteMany(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer func() { _ = s.Close() }()

	h1 := blob.HashOf([]byte("a"))
	h2 := blob.HashOf([]byte("b"))
	if err := s.Write(ctx, h1, []byte("a")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Write(ctx, h2, []byte("b")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	failed, err := s.DeleteMany(ctx, []blob.Hash{h1, h2})
	if err != nil {
		t.Fatalf("DeleteMany failed: %v", err)
	}
	if len(failed) != 0 {
		t.Errorf("DeleteMany failed hashes = %v, want none", failed)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after DeleteMany, want 0", s.Len())
	}
}

func TestStore_Walk(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer func() { _ = s.Close() }()

	want := map[blob.Hash]int64{}
	for _, content := range []string{"walk a", "walk bb"} {
		data := []byte(content)
		h := blob.HashOf(data)
		if err := s.Write(ctx, h, data); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		want[h] = int64(len(data))
	}

	got := map[blob.Hash]int64{}
	err := s.Walk(ctx, func(info blob.ObjectInfo) error {
		got[info.Hash] = info.Size
		if info.Modified.IsZero() {
			t.Errorf("Walk returned zero Modified for %s", info.Hash)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("Walk visited %d objects, want %d", len(got), len(want))
	}
	for h, size := range want {
		if got[h] != size {
			t.Errorf("Walk size for %s = %d, want %d", h, got[h], size)
		}
	}
}

func TestStore_ClosedOperations(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Close()

	h := blob.HashOf([]byte("x"))
	if err := s.Write(ctx, h, []byte("x")); !errors.Is(err, blob.ErrStoreClosed) {
		t.Errorf("Write on closed store returned %v, want ErrStoreClosed", err)
	}
	if _, err := s.Read(ctx, h); !errors.Is(err, blob.ErrStoreClosed) {
		t.Errorf("Read on closed store returned %v, want ErrStoreClosed", err)
	}
}
