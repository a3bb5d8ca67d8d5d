// Package metadata defines the node model, path validation, error taxonomy
// and store contract for the deduplicating file-system engine.
//
// The metadata store is the single serialization point for (tenant, path)
// uniqueness and for blob reference-count arithmetic. Implementations live
// under store/ (memory, postgres, badger) and are verified against the same
// conformance suite in storetest.
package metadata

import (
	"context"

	"github.com/marmos91/dedupfs/pkg/blob"
)

// DefaultOrphanBatchSize bounds a single GetOrphanBlobs call so reclamation
// stays predictable.
const DefaultOrphanBatchSize = 1000

// Store is the tenant-independent surface of a metadata store.
//
// Blob reference counts are global (dedup crosses tenant boundaries), so
// refcount arithmetic lives here. Node records are tenant-scoped; callers
// obtain a TenantStore handle per operation via Tenant. Handles are cheap,
// short-lived values; implementations must not keep mutable process-global
// tenant state.
type Store interface {
	// Tenant returns a store handle scoped to the given tenant. All node
	// operations on the handle see only that tenant's namespace.
	Tenant(id TenantID) TenantStore

	// IncrementBlobRef atomically bumps the refcount for h, creating the
	// record with refcount 1 (size recorded from the argument) if it does
	// not exist. Safe under concurrent callers for the same hash; the
	// engine's dedup correctness depends on that.
	IncrementBlobRef(ctx context.Context, h blob.Hash, size int64) error

	// DecrementBlobRef atomically decrements the refcount for h and returns
	// the new count. A missing record returns 0. A decrement that would
	// drive the count negative surfaces an Invariant error: it is a bug,
	// not an allowed transition.
	DecrementBlobRef(ctx context.Context, h blob.Hash) (int64, error)

	// GetBlobRecord returns the record for h, or a NotFound error.
	GetBlobRecord(ctx context.Context, h blob.Hash) (*BlobRecord, error)

	// GetOrphanBlobs returns up to limit hashes with refcount zero, oldest
	// lastAccessedAt first. limit <= 0 uses DefaultOrphanBatchSize.
	GetOrphanBlobs(ctx context.Context, limit int) ([]blob.Hash, error)

	// RemoveBlobIfOrphan deletes the record for h only if its refcount is
	// still zero, atomically, and reports whether it was removed. The
	// reclaimer uses this to close the window between snapshotting orphans
	// and deleting their bytes.
	RemoveBlobIfOrphan(ctx context.Context, h blob.Hash) (bool, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// TenantStore is a per-tenant handle over node records. Every call is scoped
// to the tenant the handle was created for; callers never pass the tenant id
// per call.
type TenantStore interface {
	// CreateNode inserts a new node. Fails with AlreadyExists if the path
	// is taken.
	CreateNode(ctx context.Context, node *Node) error

	// GetNodeByPath returns the node at path, or a NotFound error.
	GetNodeByPath(ctx context.Context, path Path) (*Node, error)

	// UpdateNode replaces the mutable attributes of the node at node.Path
	// (hash, size, mime type, modifiedAt for files; modifiedAt for
	// directories). No-op if no node matches; callers verify existence
	// first.
	UpdateNode(ctx context.Context, node *Node) error

	// DeleteNode removes the node at path. Idempotent: deleting a missing
	// path is not an error at this layer.
	DeleteNode(ctx context.Context, path Path) error

	// ListChildren returns the nodes exactly one component below dir,
	// directories before files, then ascending path.
	ListChildren(ctx context.Context, dir Path) ([]*Node, error)
}
