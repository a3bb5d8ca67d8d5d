// Package prometheus provides Prometheus-backed implementations of the
// metric interfaces defined by their consumers.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dedupfs/pkg/fs"
	"github.com/marmos91/dedupfs/pkg/metrics"
)

// engineMetrics is the Prometheus implementation of fs.Metrics.
type engineMetrics struct {
	operations     *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	blobsWritten   prometheus.Counter
	blobWriteBytes prometheus.Histogram
	dedupHits      prometheus.Counter
	blobsDeleted   prometheus.Counter
}

// NewEngineMetrics creates a Prometheus-backed fs.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called); the
// service falls back to its no-op sink.
func NewEngineMetrics() fs.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &engineMetrics{
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dedupfs_operations_total",
				Help: "Total engine operations by operation and outcome",
			},
			[]string{"operation", "status"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dedupfs_operation_duration_seconds",
				Help:    "Duration of engine operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		blobsWritten: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dedupfs_blobs_written_total",
				Help: "Blobs actually written to the blob store",
			},
		),
		blobWriteBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "dedupfs_blob_write_bytes",
				Help: "Distribution of written blob sizes",
				Buckets: []float64{
					1024,      // 1KB
					16384,     // 16KB
					131072,    // 128KB
					1048576,   // 1MB
					16777216,  // 16MB
					134217728, // 128MB
				},
			},
		),
		dedupHits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dedupfs_dedup_hits_total",
				Help: "Writes whose content was already present in the blob store",
			},
		),
		blobsDeleted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dedupfs_blobs_deleted_total",
				Help: "Blobs removed from the blob store",
			},
		),
	}
}

func (m *engineMetrics) OperationCompleted(op string, err error, seconds float64) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(op, status).Inc()
	m.duration.WithLabelValues(op).Observe(seconds)
}

func (m *engineMetrics) BlobWritten(size int64) {
	m.blobsWritten.Inc()
	m.blobWriteBytes.Observe(float64(size))
}

func (m *engineMetrics) BlobDeduplicated() {
	m.dedupHits.Inc()
}

func (m *engineMetrics) BlobDeleted() {
	m.blobsDeleted.Inc()
}

// Ensure engineMetrics implements fs.Metrics.
var _ fs.Metrics = (*engineMetrics)(nil)
