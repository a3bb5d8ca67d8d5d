package commands

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dedupfs/internal/logger"
	"github.com/marmos91/dedupfs/pkg/config"
	"github.com/marmos91/dedupfs/pkg/gc"
	"github.com/marmos91/dedupfs/pkg/metrics"
	metricsprom "github.com/marmos91/dedupfs/pkg/metrics/prometheus"
)

var (
	reclaimDryRun    bool
	reclaimBatchSize int
	reclaimWatch     bool
	reclaimSweep     bool
	reclaimSweepAge  time.Duration
)

var reclaimCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Remove orphaned content",
	Long: `Scan the metadata store for blobs whose reference count dropped to zero
and remove them, along with their stored bytes.

Orphans accumulate when byte deletion fails after the last reference to a
blob is removed. Reclamation is safe to run while the system is serving
traffic: a blob that gains a reference between the scan and the removal is
left alone.

With --sweep, the blob store itself is also scanned for objects that have no
metadata record at all (leftovers of a crash between the byte write and the
metadata commit). Objects younger than --sweep-min-age are never touched, so
in-flight writes are safe.

Examples:
  # One reclamation pass
  dedupfs reclaim

  # Report without removing anything
  dedupfs reclaim --dry-run

  # Also sweep the blob store for unrecorded objects
  dedupfs reclaim --sweep

  # Run periodically at the configured interval
  dedupfs reclaim --watch`,
	RunE: runReclaim,
}

func init() {
	reclaimCmd.Flags().BoolVar(&reclaimDryRun, "dry-run", false, "Report what would be reclaimed without removing anything")
	reclaimCmd.Flags().IntVar(&reclaimBatchSize, "batch-size", 0, "Orphans per batch (0 uses the configured or default size)")
	reclaimCmd.Flags().BoolVar(&reclaimWatch, "watch", false, "Keep running, repeating at the configured reclaimer interval")
	reclaimCmd.Flags().BoolVar(&reclaimSweep, "sweep", false, "Also scan the blob store for objects with no metadata record")
	reclaimCmd.Flags().DurationVar(&reclaimSweepAge, "sweep-min-age", gc.DefaultSweepMinAge, "Minimum age before an unrecorded object is swept")
}

func runReclaim(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	meta, err := config.NewMetadataStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = meta.Close() }()

	blobs, err := config.NewBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = blobs.Close() }()

	batchSize := reclaimBatchSize
	if batchSize == 0 {
		batchSize = cfg.Reclaimer.BatchSize
	}
	options := &gc.Options{
		BatchSize: batchSize,
		DryRun:    reclaimDryRun,
		Progress: func(batch gc.Stats) {
			logger.Debug("Reclamation batch complete",
				"scanned", batch.OrphansScanned,
				"removed", batch.RecordsRemoved)
		},
	}

	var sweepOptions *gc.SweepOptions
	if reclaimSweep {
		sweepOptions = &gc.SweepOptions{
			MinAge: reclaimSweepAge,
			DryRun: reclaimDryRun,
		}
	}

	if !reclaimWatch {
		stats, err := gc.Reclaim(ctx, meta, blobs, options)
		if err != nil {
			return fmt.Errorf("reclamation failed: %w", err)
		}
		printStats(stats, reclaimDryRun)

		if sweepOptions != nil {
			sweepStats, err := gc.SweepUnrecorded(ctx, meta, blobs, sweepOptions)
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			printSweepStats(sweepStats, reclaimDryRun)
		}
		return nil
	}

	interval := cfg.Reclaimer.Interval
	if interval <= 0 {
		return fmt.Errorf("--watch requires reclaimer.interval to be set in the configuration")
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		options.Metrics = metricsprom.NewReclaimerMetrics()
		go serveMetrics(cfg.Metrics.Port)
	}

	logger.Info("Reclaimer started", "interval", interval, "dry_run", reclaimDryRun)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		stats, err := gc.Reclaim(ctx, meta, blobs, options)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("Reclaimer stopped")
				return nil
			}
			logger.Error("Reclamation pass failed", "error", err)
		} else if stats.OrphansScanned > 0 {
			logger.Info("Reclamation pass complete",
				"orphans_scanned", stats.OrphansScanned,
				"records_removed", stats.RecordsRemoved,
				"blobs_deleted", stats.BlobsDeleted,
				"bytes_reclaimed", stats.BytesReclaimed,
				"errors", stats.Errors)
		}

		if sweepOptions != nil && ctx.Err() == nil {
			if sweepStats, err := gc.SweepUnrecorded(ctx, meta, blobs, sweepOptions); err != nil {
				if ctx.Err() == nil {
					logger.Error("Sweep pass failed", "error", err)
				}
			} else if sweepStats.BlobsDeleted > 0 || sweepStats.Errors > 0 {
				logger.Info("Sweep pass complete",
					"objects_scanned", sweepStats.ObjectsScanned,
					"blobs_deleted", sweepStats.BlobsDeleted,
					"bytes_reclaimed", sweepStats.BytesReclaimed,
					"errors", sweepStats.Errors)
			}
		}

		select {
		case <-ctx.Done():
			logger.Info("Reclaimer stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// serveMetrics exposes the Prometheus endpoint for long-running reclaimers.
func serveMetrics(port int) {
	handler := metrics.Handler()
	if handler == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	addr := fmt.Sprintf(":%d", port)
	logger.Info("Metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics endpoint failed", "error", err)
	}
}

func printStats(stats *gc.Stats, dryRun bool) {
	verb := "Reclaimed"
	if dryRun {
		verb = "Would reclaim"
	}
	fmt.Printf("%s %d blob(s) in %d batch(es)\n", verb, stats.RecordsRemoved, stats.Batches)
	fmt.Printf("  Orphans scanned: %d\n", stats.OrphansScanned)
	fmt.Printf("  Bytes reclaimed: %d\n", stats.BytesReclaimed)
	if stats.SkippedLive > 0 {
		fmt.Printf("  Skipped (re-referenced): %d\n", stats.SkippedLive)
	}
	if stats.Errors > 0 {
		fmt.Printf("  Errors: %d\n", stats.Errors)
	}
}

func printSweepStats(stats *gc.SweepStats, dryRun bool) {
	verb := "Swept"
	if dryRun {
		verb = "Would sweep"
	}
	fmt.Printf("%s %d unrecorded blob(s) of %d scanned\n", verb, stats.BlobsDeleted, stats.ObjectsScanned)
	fmt.Printf("  Bytes reclaimed: %d\n", stats.BytesReclaimed)
	if stats.SkippedYoung > 0 {
		fmt.Printf("  Skipped (inside grace window): %d\n", stats.SkippedYoung)
	}
	if stats.Errors > 0 {
		fmt.Printf("  Errors: %d\n", stats.Errors)
	}
}
