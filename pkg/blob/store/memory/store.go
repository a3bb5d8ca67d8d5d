// Package memory provides an in-memory blob store for tests and development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/dedupfs/pkg/blob"
)

// Store is an in-memory implementation of blob.Store.
// Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	objects  map[blob.Hash][]byte
	modified map[blob.Hash]time.Time
	writes   int
	closed   bool
}

// New creates an empty in-memory blob store.
func New() *Store {
	return &Store{
		objects:  make(map[blob.Hash][]byte),
		modified: make(map[blob.Hash]time.Time),
	}
}

// Write stores data under h.
func (s *Store) Write(ctx context.Context, h blob.Hash, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return blob.ErrStoreClosed
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[h] = cp
	s.modified[h] = time.Now().UTC()
	s.writes++
	return nil
}

// Read returns the bytes stored under h.
func (s *Store) Read(ctx context.Context, h blob.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, blob.ErrStoreClosed
	}

	data, ok := s.objects[h]
	if !ok {
		return nil, blob.ErrBlobNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Exists reports presence of h.
func (s *Store) Exists(ctx context.Context, h blob.Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, blob.ErrStoreClosed
	}

	_, ok := s.objects[h]
	return ok, nil
}

// Delete removes the object. Missing objects are ignored.
func (s *Store) Delete(ctx context.Context, h blob.Hash) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return blob.ErrStoreClosed
	}

	delete(s.objects, h)
	delete(s.modified, h)
	return nil
}

// DeleteMany removes a batch of objects.
func (s *Store) DeleteMany(ctx context.Context, hashes []blob.Hash) ([]blob.Hash, error) {
	if err := ctx.Err(); err != nil {
		return hashes, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return hashes, blob.ErrStoreClosed
	}

	for _, h := range hashes {
		delete(s.objects, h)
		delete(s.modified, h)
	}
	return nil, nil
}

// Walk visits every stored object. The callback runs on a snapshot so fn may
// call back into the store.
func (s *Store) Walk(ctx context.Context, fn func(info blob.ObjectInfo) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return blob.ErrStoreClosed
	}
	infos := make([]blob.ObjectInfo, 0, len(s.objects))
	for h, data := range s.objects {
		infos = append(infos, blob.ObjectInfo{
			Hash:     h,
			Size:     int64(len(data)),
			Modified: s.modified[h],
		})
	}
	s.mu.RUnlock()

	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

// HealthCheck reports whether the store is usable.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return blob.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// Len returns the number of stored objects (for testing).
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// WriteCount returns the total number of Write calls (for testing dedup
// behavior: a deduplicated write never reaches the store).
func (s *Store) WriteCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Ensure Store implements blob.Store.
var _ blob.Store = (*Store)(nil)
