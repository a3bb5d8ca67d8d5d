package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dedupfs/pkg/gc"
	"github.com/marmos91/dedupfs/pkg/metrics"
)

// reclaimerMetrics is the Prometheus implementation of gc.Metrics.
type reclaimerMetrics struct {
	passes         prometheus.Counter
	passDuration   prometheus.Histogram
	orphansScanned prometheus.Counter
	recordsRemoved prometheus.Counter
	blobsDeleted   prometheus.Counter
	bytesReclaimed prometheus.Counter
	skippedLive    prometheus.Counter
	errors         prometheus.Counter
}

// NewReclaimerMetrics creates a Prometheus-backed gc.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called); the
// reclaimer treats a nil Metrics as disabled.
func NewReclaimerMetrics() gc.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &reclaimerMetrics{
		passes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dedupfs_reclaimer_passes_total",
				Help: "Completed reclamation passes",
			},
		),
		passDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dedupfs_reclaimer_pass_duration_seconds",
				Help:    "Duration of reclamation passes in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		orphansScanned: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dedupfs_reclaimer_orphans_scanned_total",
				Help: "Orphan candidates returned by the metadata store",
			},
		),
		recordsRemoved: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dedupfs_reclaimer_records_removed_total",
				Help: "Blob records removed from the metadata store",
			},
		),
		blobsDeleted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dedupfs_reclaimer_blobs_deleted_total",
				Help: "Blob objects deleted from the blob store",
			},
		),
		bytesReclaimed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dedupfs_reclaimer_bytes_reclaimed_total",
				Help: "Total bytes of deleted blobs",
			},
		),
		skippedLive: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dedupfs_reclaimer_skipped_live_total",
				Help: "Orphan candidates re-referenced before removal",
			},
		),
		errors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dedupfs_reclaimer_errors_total",
				Help: "Non-fatal errors during reclamation",
			},
		),
	}
}

func (m *reclaimerMetrics) PassCompleted(stats gc.Stats, duration time.Duration) {
	m.passes.Inc()
	m.passDuration.Observe(duration.Seconds())
	m.orphansScanned.Add(float64(stats.OrphansScanned))
	m.recordsRemoved.Add(float64(stats.RecordsRemoved))
	m.blobsDeleted.Add(float64(stats.BlobsDeleted))
	m.bytesReclaimed.Add(float64(stats.BytesReclaimed))
	m.skippedLive.Add(float64(stats.SkippedLive))
	m.errors.Add(float64(stats.Errors))
}

// Ensure reclaimerMetrics implements gc.Metrics.
var _ gc.Metrics = (*reclaimerMetrics)(nil)
