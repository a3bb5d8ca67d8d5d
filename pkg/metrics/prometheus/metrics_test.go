package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/marmos91/dedupfs/pkg/gc"
	"github.com/marmos91/dedupfs/pkg/metrics"
)

func TestConstructorsNilWhenDisabled(t *testing.T) {
	// Registry not initialized yet in this test binary.
	if metrics.IsEnabled() {
		t.Skip("registry already initialized by another test")
	}
	if m := NewEngineMetrics(); m != nil {
		t.Error("NewEngineMetrics() != nil with metrics disabled")
	}
	if m := NewReclaimerMetrics(); m != nil {
		t.Error("NewReclaimerMetrics() != nil with metrics disabled")
	}
}

func TestMetricsRecord(t *testing.T) {
	metrics.InitRegistry()
	reg := metrics.GetRegistry()

	engine := NewEngineMetrics()
	if engine == nil {
		t.Fatal("NewEngineMetrics() = nil with metrics enabled")
	}
	engine.OperationCompleted("WriteFile", nil, 0.01)
	engine.OperationCompleted("WriteFile", errors.New("boom"), 0.02)
	engine.BlobWritten(4096)
	engine.BlobDeduplicated()
	engine.BlobDeleted()

	if got := testutil.ToFloat64(engine.(*engineMetrics).dedupHits); got != 1 {
		t.Errorf("dedup hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(engine.(*engineMetrics).blobsWritten); got != 1 {
		t.Errorf("blobs written = %v, want 1", got)
	}

	reclaimer := NewReclaimerMetrics()
	if reclaimer == nil {
		t.Fatal("NewReclaimerMetrics() = nil with metrics enabled")
	}
	reclaimer.PassCompleted(gc.Stats{
		Batches:        2,
		OrphansScanned: 5,
		RecordsRemoved: 4,
		BlobsDeleted:   4,
		BytesReclaimed: 1024,
		SkippedLive:    1,
	}, 50*time.Millisecond)

	rm := reclaimer.(*reclaimerMetrics)
	if got := testutil.ToFloat64(rm.passes); got != 1 {
		t.Errorf("passes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rm.bytesReclaimed); got != 1024 {
		t.Errorf("bytes reclaimed = %v, want 1024", got)
	}

	// Everything above must have landed in the shared registry.
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, name := range []string{
		"dedupfs_operations_total",
		"dedupfs_blob_write_bytes",
		"dedupfs_reclaimer_passes_total",
		"dedupfs_reclaimer_bytes_reclaimed_total",
	} {
		if !found[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}
