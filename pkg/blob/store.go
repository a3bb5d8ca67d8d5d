package blob

import (
	"context"
	"errors"
	"time"
)

// Standard blob store errors. The engine checks for these sentinels and maps
// them into its error taxonomy.
var (
	// ErrBlobNotFound indicates the requested blob does not exist.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrInvalidHash indicates a hash string failed format validation.
	ErrInvalidHash = errors.New("invalid content hash")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("blob store is closed")
)

// ObjectInfo describes one stored blob during a Walk.
type ObjectInfo struct {
	Hash     Hash
	Size     int64
	Modified time.Time
}

// Store persists immutable byte-strings keyed by their content hash.
//
// Implementations must make Write idempotent: writing the same (hash, bytes)
// pair twice leaves the store in the same observable state, and concurrent
// writers of the same hash must never expose a half-written object (all
// completed writers observe the final bytes). Content addressing makes this
// safe: two writers of the same hash carry the same bytes.
type Store interface {
	// Write stores data under h. Idempotent per key.
	Write(ctx context.Context, h Hash, data []byte) error

	// Read returns the bytes stored under h, or ErrBlobNotFound.
	Read(ctx context.Context, h Hash) ([]byte, error)

	// Exists reports whether h is present without transferring bytes.
	Exists(ctx context.Context, h Hash) (bool, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, h Hash) error

	// DeleteMany removes a batch of objects. Partial failure does not abort
	// the rest; the hashes that could not be deleted are returned so a later
	// pass can retry them.
	DeleteMany(ctx context.Context, hashes []Hash) (failed []Hash, err error)

	// Walk calls fn once per stored object, in unspecified order. Entries
	// that are not valid content hashes (stray temp files) are skipped.
	// A non-nil error from fn stops the walk and is returned.
	Walk(ctx context.Context, fn func(info ObjectInfo) error) error

	// HealthCheck verifies the store is reachable and operational.
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
