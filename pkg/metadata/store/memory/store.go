// Package memory provides an in-memory metadata store for tests and
// development. All data is lost when the store is closed.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/dedupfs/pkg/blob"
	"github.com/marmos91/dedupfs/pkg/metadata"
)

// Store is an in-memory implementation of metadata.Store.
//
// A single RWMutex serializes all mutations, which trivially provides the
// atomicity the contract requires for refcount arithmetic and
// (tenant, path) uniqueness.
type Store struct {
	mu     sync.RWMutex
	nodes  map[metadata.TenantID]map[metadata.Path]*metadata.Node
	blobs  map[blob.Hash]*metadata.BlobRecord
	closed bool
}

// New creates an empty in-memory metadata store.
func New() *Store {
	return &Store{
		nodes: make(map[metadata.TenantID]map[metadata.Path]*metadata.Node),
		blobs: make(map[blob.Hash]*metadata.BlobRecord),
	}
}

// Tenant returns a handle scoped to the given tenant.
func (s *Store) Tenant(id metadata.TenantID) metadata.TenantStore {
	return &tenantStore{store: s, tenant: id}
}

// IncrementBlobRef bumps the refcount for h, creating the record if needed.
func (s *Store) IncrementBlobRef(ctx context.Context, h blob.Hash, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	rec, ok := s.blobs[h]
	if !ok {
		s.blobs[h] = &metadata.BlobRecord{
			Hash:           h,
			RefCount:       1,
			Size:           size,
			CreatedAt:      now,
			LastAccessedAt: now,
		}
		return nil
	}

	rec.RefCount++
	rec.LastAccessedAt = now
	return nil
}

// DecrementBlobRef decrements the refcount for h and returns the new count.
func (s *Store) DecrementBlobRef(ctx context.Context, h blob.Hash) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.blobs[h]
	if !ok {
		return 0, nil
	}
	if rec.RefCount == 0 {
		return 0, metadata.NewInvariantError("refcount for " + string(h) + " would go negative")
	}

	rec.RefCount--
	rec.LastAccessedAt = time.Now().UTC()
	return rec.RefCount, nil
}

// GetBlobRecord returns a copy of the record for h.
func (s *Store) GetBlobRecord(ctx context.Context, h blob.Hash) (*metadata.BlobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.blobs[h]
	if !ok {
		return nil, metadata.NewNotFoundError(metadata.Path(h), "blob record")
	}
	cp := *rec
	return &cp, nil
}

// GetOrphanBlobs returns up to limit orphan hashes, oldest first.
func (s *Store) GetOrphanBlobs(ctx context.Context, limit int) ([]blob.Hash, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = metadata.DefaultOrphanBatchSize
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var orphans []*metadata.BlobRecord
	for _, rec := range s.blobs {
		if rec.RefCount == 0 {
			orphans = append(orphans, rec)
		}
	}
	sort.Slice(orphans, func(i, j int) bool {
		return orphans[i].LastAccessedAt.Before(orphans[j].LastAccessedAt)
	})

	if len(orphans) > limit {
		orphans = orphans[:limit]
	}
	hashes := make([]blob.Hash, len(orphans))
	for i, rec := range orphans {
		hashes[i] = rec.Hash
	}
	return hashes, nil
}

// RemoveBlobIfOrphan deletes the record for h if its refcount is still zero.
func (s *Store) RemoveBlobIfOrphan(ctx context.Context, h blob.Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.blobs[h]
	if !ok || rec.RefCount != 0 {
		return false, nil
	}
	delete(s.blobs, h)
	return true, nil
}

// HealthCheck reports whether the store is usable.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return metadata.NewUnavailableError("HealthCheck", nil)
	}
	return nil
}

// Close drops all data.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = nil
	s.blobs = nil
	s.closed = true
	return nil
}

// Ensure Store implements metadata.Store.
var _ metadata.Store = (*Store)(nil)
