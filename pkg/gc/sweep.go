package gc

import (
	"context"
	"time"

	"github.com/marmos91/dedupfs/internal/logger"
	"github.com/marmos91/dedupfs/pkg/blob"
	"github.com/marmos91/dedupfs/pkg/metadata"
)

// DefaultSweepMinAge is the grace window for unrecorded objects. The engine
// writes bytes before committing the refcount, so an object can legitimately
// exist without a record for the duration of an in-flight write. One hour is
// far beyond any plausible write latency.
const DefaultSweepMinAge = time.Hour

// SweepOptions configures a store sweep.
type SweepOptions struct {
	// MinAge is how old an unrecorded object must be before it is deleted.
	// 0 uses DefaultSweepMinAge; a negative value disables the grace window.
	MinAge time.Duration

	// DryRun reports what would be deleted without removing anything.
	DryRun bool
}

// SweepStats holds statistics about a sweep run.
type SweepStats struct {
	ObjectsScanned int   // Objects visited in the blob store
	SkippedYoung   int   // Unrecorded objects inside the grace window
	BlobsDeleted   int   // Unrecorded objects deleted
	BytesReclaimed int64 // Total size of deleted objects
	Errors         int   // Non-fatal errors (failed lookups, failed deletions)
}

// SweepUnrecorded walks the blob store and deletes objects that have no
// record in the metadata store. These are leftovers of crashes between the
// byte write and the refcount commit; the refcount reclaimer never sees them
// because no record exists to go orphan. Objects younger than MinAge are left
// alone so an in-flight write is never swept out from under its commit.
func SweepUnrecorded(ctx context.Context, meta metadata.Store, blobs blob.Store, options *SweepOptions) (*SweepStats, error) {
	if options == nil {
		options = &SweepOptions{}
	}
	minAge := options.MinAge
	if minAge == 0 {
		minAge = DefaultSweepMinAge
	}
	cutoff := time.Now().Add(-minAge)

	stats := &SweepStats{}
	var unrecorded []blob.Hash
	sizes := make(map[blob.Hash]int64)

	err := blobs.Walk(ctx, func(info blob.ObjectInfo) error {
		stats.ObjectsScanned++

		_, err := meta.GetBlobRecord(ctx, info.Hash)
		switch {
		case err == nil:
			return nil
		case metadata.IsNotFound(err):
		default:
			logger.Warn("sweep: failed to look up blob record",
				logger.Hash(string(info.Hash)), logger.Err(err))
			stats.Errors++
			return nil
		}

		if minAge > 0 && info.Modified.After(cutoff) {
			stats.SkippedYoung++
			return nil
		}

		unrecorded = append(unrecorded, info.Hash)
		sizes[info.Hash] = info.Size
		return nil
	})
	if err != nil {
		return stats, err
	}

	if options.DryRun {
		stats.BlobsDeleted = len(unrecorded)
		for _, h := range unrecorded {
			stats.BytesReclaimed += sizes[h]
		}
		return stats, nil
	}

	if len(unrecorded) > 0 {
		failed, err := blobs.DeleteMany(ctx, unrecorded)
		if err != nil {
			logger.Warn("sweep: some blob deletions failed",
				logger.Count(len(failed)), logger.Err(err))
		}
		failedSet := make(map[blob.Hash]struct{}, len(failed))
		for _, h := range failed {
			failedSet[h] = struct{}{}
			stats.Errors++
		}
		for _, h := range unrecorded {
			if _, ok := failedSet[h]; ok {
				continue
			}
			stats.BlobsDeleted++
			stats.BytesReclaimed += sizes[h]
		}
	}

	logger.Info("sweep: run complete",
		"objects_scanned", stats.ObjectsScanned,
		"blobs_deleted", stats.BlobsDeleted,
		"bytes_reclaimed", stats.BytesReclaimed,
		"skipped_young", stats.SkippedYoung,
		"errors", stats.Errors,
		"dry_run", options.DryRun,
	)
	return stats, nil
}
