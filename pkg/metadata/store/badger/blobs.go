package badger

import (
	"context"
	"errors"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dedupfs/pkg/blob"
	"github.com/marmos91/dedupfs/pkg/metadata"
)

// getBlobRecord reads a blob record inside a transaction. Returns nil when
// the record does not exist.
func getBlobRecord(txn *badger.Txn, h blob.Hash) (*metadata.BlobRecord, error) {
	item, err := txn.Get(keyBlob(h))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec *metadata.BlobRecord
	err = item.Value(func(val []byte) error {
		var decErr error
		rec, decErr = decodeBlobRecord(val)
		return decErr
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// putBlobRecord writes a blob record inside a transaction.
func putBlobRecord(txn *badger.Txn, rec *metadata.BlobRecord) error {
	data, err := encodeBlobRecord(rec)
	if err != nil {
		return err
	}
	return txn.Set(keyBlob(rec.Hash), data)
}

// IncrementBlobRef bumps the refcount for h, creating the record if needed.
// Badger transactions are serializable; the update helper retries on
// conflicts between concurrent increments.
func (s *Store) IncrementBlobRef(ctx context.Context, h blob.Hash, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.update(func(txn *badger.Txn) error {
		now := time.Now().UTC()
		rec, err := getBlobRecord(txn, h)
		if err != nil {
			return metadata.NewUnavailableError("IncrementBlobRef", err)
		}
		if rec == nil {
			rec = &metadata.BlobRecord{
				Hash:           h,
				RefCount:       1,
				Size:           size,
				CreatedAt:      now,
				LastAccessedAt: now,
			}
		} else {
			rec.RefCount++
			rec.LastAccessedAt = now
		}
		return putBlobRecord(txn, rec)
	})
}

// DecrementBlobRef decrements the refcount for h and returns the new count.
func (s *Store) DecrementBlobRef(ctx context.Context, h blob.Hash) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int64
	err := s.update(func(txn *badger.Txn) error {
		rec, err := getBlobRecord(txn, h)
		if err != nil {
			return metadata.NewUnavailableError("DecrementBlobRef", err)
		}
		if rec == nil {
			count = 0
			return nil
		}
		if rec.RefCount == 0 {
			return metadata.NewInvariantError("refcount for " + string(h) + " would go negative")
		}
		rec.RefCount--
		rec.LastAccessedAt = time.Now().UTC()
		count = rec.RefCount
		return putBlobRecord(txn, rec)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetBlobRecord returns the record for h.
func (s *Store) GetBlobRecord(ctx context.Context, h blob.Hash) (*metadata.BlobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *metadata.BlobRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var getErr error
		rec, getErr = getBlobRecord(txn, h)
		return getErr
	})
	if err != nil {
		return nil, metadata.NewUnavailableError("GetBlobRecord", err)
	}
	if rec == nil {
		return nil, metadata.NewNotFoundError(metadata.Path(h), "blob record")
	}
	return rec, nil
}

// GetOrphanBlobs returns up to limit orphan hashes, oldest first. Badger has
// no secondary indexes, so this scans all blob records; acceptable for the
// single-node deployments this backing targets.
func (s *Store) GetOrphanBlobs(ctx context.Context, limit int) ([]blob.Hash, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = metadata.DefaultOrphanBatchSize
	}

	var orphans []*metadata.BlobRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixBlob)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				rec, err := decodeBlobRecord(val)
				if err != nil {
					return err
				}
				if rec.RefCount == 0 {
					orphans = append(orphans, rec)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, metadata.NewUnavailableError("GetOrphanBlobs", err)
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

// RemoveBlobIfOrphan deletes the record for h only if its refcount is still
// zero. The check and delete share a transaction, so a concurrent increment
// either commits before (record survives) or conflicts and retries after.
func (s *Store) RemoveBlobIfOrphan(ctx context.Context, h blob.Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var removed bool
	err := s.update(func(txn *badger.Txn) error {
		removed = false
		rec, err := getBlobRecord(txn, h)
		if err != nil {
			return metadata.NewUnavailableError("RemoveBlobIfOrphan", err)
		}
		if rec == nil || rec.RefCount != 0 {
			return nil
		}
		if err := txn.Delete(keyBlob(h)); err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}
