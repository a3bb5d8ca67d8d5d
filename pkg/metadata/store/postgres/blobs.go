package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/marmos91/dedupfs/pkg/blob"
	"github.com/marmos91/dedupfs/pkg/metadata"
)

// IncrementBlobRef bumps the refcount for h, creating the record if needed.
// The upsert is a single statement, so concurrent increments for the same
// hash serialize inside PostgreSQL.
func (s *Store) IncrementBlobRef(ctx context.Context, h blob.Hash, size int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO blobs (hash, reference_count, size, created_at, last_accessed_at)
		VALUES ($1, 1, $2, now(), now())
		ON CONFLICT (hash) DO UPDATE
		SET reference_count  = blobs.reference_count + 1,
		    last_accessed_at = now()`,
		string(h), size,
	)
	if err != nil {
		return mapError("IncrementBlobRef", err)
	}
	return nil
}

// DecrementBlobRef decrements the refcount for h and returns the new count.
// The reference_count >= 0 CHECK constraint fires on underflow, which maps
// to an Invariant error.
func (s *Store) DecrementBlobRef(ctx context.Context, h blob.Hash) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		UPDATE blobs
		SET reference_count  = reference_count - 1,
		    last_accessed_at = now()
		WHERE hash = $1
		RETURNING reference_count`,
		string(h),
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		if pgErrCode(err) == pgCheckViolation {
			return 0, metadata.NewInvariantError("refcount for " + string(h) + " would go negative")
		}
		return 0, mapError("DecrementBlobRef", err)
	}
	return count, nil
}

// GetBlobRecord returns the record for h.
func (s *Store) GetBlobRecord(ctx context.Context, h blob.Hash) (*metadata.BlobRecord, error) {
	var (
		rec  metadata.BlobRecord
		hash string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT hash, reference_count, size, created_at, last_accessed_at
		FROM blobs
		WHERE hash = $1`,
		string(h),
	).Scan(&hash, &rec.RefCount, &rec.Size, &rec.CreatedAt, &rec.LastAccessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, metadata.NewNotFoundError(metadata.Path(h), "blob record")
		}
		return nil, mapError("GetBlobRecord", err)
	}
	rec.Hash = blob.Hash(hash)
	return &rec, nil
}

// GetOrphanBlobs returns up to limit orphan hashes, oldest first. The scan
// runs entirely on the partial orphan index.
func (s *Store) GetOrphanBlobs(ctx context.Context, limit int) ([]blob.Hash, error) {
	if limit <= 0 {
		limit = metadata.DefaultOrphanBatchSize
	}

	rows, err := s.pool.Query(ctx, `
		SELECT hash
		FROM blobs
		WHERE reference_count = 0
		ORDER BY last_accessed_at ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, mapError("GetOrphanBlobs", err)
	}
	defer rows.Close()

	var hashes []blob.Hash
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, mapError("GetOrphanBlobs", err)
		}
		hashes = append(hashes, blob.Hash(hash))
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("GetOrphanBlobs", err)
	}
	return hashes, nil
}

// RemoveBlobIfOrphan deletes the record for h only if its refcount is still
// zero. The condition lives in the DELETE itself, so a concurrent increment
// between snapshot and delete keeps the record alive.
func (s *Store) RemoveBlobIfOrphan(ctx context.Context, h blob.Hash) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM blobs
		WHERE hash = $1 AND reference_count = 0`,
		string(h),
	)
	if err != nil {
		return false, mapError("RemoveBlobIfOrphan", err)
	}
	return tag.RowsAffected() > 0, nil
}
