package gc

import (
	"context"
	"time"

	"github.com/marmos91/dedupfs/internal/logger"
	"github.com/marmos91/dedupfs/pkg/blob"
	"github.com/marmos91/dedupfs/pkg/metadata"
)

// Stats holds statistics about a reclamation run.
type Stats struct {
	Batches        int   // Batches processed
	OrphansScanned int   // Orphan hashes returned by the metadata store
	SkippedLive    int   // Hashes re-referenced between snapshot and removal
	RecordsRemoved int   // Blob records removed from the metadata store
	BlobsDeleted   int   // Blob objects deleted from the blob store
	BytesReclaimed int64 // Total size of deleted blobs
	Errors         int   // Non-fatal errors (failed byte deletions, lookups)
}

// merge folds a batch's stats into the run total.
func (s *Stats) merge(batch *Stats) {
	s.Batches += batch.Batches
	s.OrphansScanned += batch.OrphansScanned
	s.SkippedLive += batch.SkippedLive
	s.RecordsRemoved += batch.RecordsRemoved
	s.BlobsDeleted += batch.BlobsDeleted
	s.BytesReclaimed += batch.BytesReclaimed
	s.Errors += batch.Errors
}

// Options configures a reclamation run.
type Options struct {
	// BatchSize bounds each orphan snapshot. 0 uses
	// metadata.DefaultOrphanBatchSize.
	BatchSize int

	// DryRun reports what would be reclaimed without removing anything.
	DryRun bool

	// Progress is called after each batch. May be nil.
	Progress func(stats Stats)

	// Metrics receives the outcome of each Reclaim run. May be nil.
	Metrics Metrics
}

// ReclaimBatch runs a single reclamation batch: snapshot up to BatchSize
// orphans, conditionally remove their records, then delete their bytes.
func ReclaimBatch(ctx context.Context, meta metadata.Store, blobs blob.Store, options *Options) (*Stats, error) {
	if options == nil {
		options = &Options{}
	}
	batchSize := options.BatchSize
	if batchSize <= 0 {
		batchSize = metadata.DefaultOrphanBatchSize
	}

	stats := &Stats{Batches: 1}

	hashes, err := meta.GetOrphanBlobs(ctx, batchSize)
	if err != nil {
		return stats, err
	}
	stats.OrphansScanned = len(hashes)
	if len(hashes) == 0 {
		return stats, nil
	}

	logger.Debug("reclaimer: scanning orphan batch",
		logger.Count(len(hashes)))

	if options.DryRun {
		for _, h := range hashes {
			if rec, err := meta.GetBlobRecord(ctx, h); err == nil {
				stats.BytesReclaimed += rec.Size
			}
		}
		stats.RecordsRemoved = len(hashes)
		return stats, nil
	}

	// Remove records first, bytes second. A record removal only succeeds
	// while the refcount is still zero, so a concurrent writer that
	// re-references the hash keeps both record and bytes.
	var confirmed []blob.Hash
	sizes := make(map[blob.Hash]int64, len(hashes))
	for _, h := range hashes {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if rec, err := meta.GetBlobRecord(ctx, h); err == nil {
			sizes[h] = rec.Size
		}

		removed, err := meta.RemoveBlobIfOrphan(ctx, h)
		if err != nil {
			logger.Warn("reclaimer: failed to remove blob record",
				logger.Hash(string(h)), logger.Err(err))
			stats.Errors++
			continue
		}
		if !removed {
			stats.SkippedLive++
			continue
		}
		stats.RecordsRemoved++
		confirmed = append(confirmed, h)
	}

	if len(confirmed) == 0 {
		return stats, nil
	}

	failed, err := blobs.DeleteMany(ctx, confirmed)
	if err != nil {
		logger.Warn("reclaimer: some blob deletions failed",
			logger.Count(len(failed)), logger.Err(err))
	}
	failedSet := make(map[blob.Hash]struct{}, len(failed))
	for _, h := range failed {
		failedSet[h] = struct{}{}
		stats.Errors++
	}
	for _, h := range confirmed {
		if _, ok := failedSet[h]; ok {
			continue
		}
		stats.BlobsDeleted++
		stats.BytesReclaimed += sizes[h]
	}

	return stats, nil
}

// Reclaim repeats ReclaimBatch until a batch returns fewer orphans than the
// batch size, then reports the aggregate.
func Reclaim(ctx context.Context, meta metadata.Store, blobs blob.Store, options *Options) (*Stats, error) {
	if options == nil {
		options = &Options{}
	}
	batchSize := options.BatchSize
	if batchSize <= 0 {
		batchSize = metadata.DefaultOrphanBatchSize
	}

	start := time.Now()
	total := &Stats{}
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		batch, err := ReclaimBatch(ctx, meta, blobs, options)
		total.merge(batch)
		if err != nil {
			return total, err
		}
		if options.Progress != nil {
			options.Progress(*total)
		}

		// A dry run never shrinks the orphan set; one batch is the answer.
		if options.DryRun || batch.OrphansScanned < batchSize {
			break
		}
		// No progress means every remaining orphan is live again or failing;
		// stop instead of spinning on the same snapshot.
		if batch.RecordsRemoved == 0 {
			break
		}
	}

	logger.Info("reclaimer: run complete",
		"batches", total.Batches,
		"orphans_scanned", total.OrphansScanned,
		"records_removed", total.RecordsRemoved,
		"blobs_deleted", total.BlobsDeleted,
		"bytes_reclaimed", total.BytesReclaimed,
		"skipped_live", total.SkippedLive,
		"errors", total.Errors,
		"dry_run", options.DryRun,
	)
	if options.Metrics != nil {
		options.Metrics.PassCompleted(*total, time.Since(start))
	}
	return total, nil
}
