package fs

// Metrics receives engine-level events. The prometheus subpackage provides a
// real implementation; NopMetrics is the default.
type Metrics interface {
	// OperationCompleted records one engine operation with its outcome.
	OperationCompleted(op string, err error, seconds float64)

	// BlobWritten records a blob actually written to the blob store.
	BlobWritten(size int64)

	// BlobDeduplicated records a write whose content was already stored.
	BlobDeduplicated()

	// BlobDeleted records a blob removed from the blob store.
	BlobDeleted()
}

type nopMetrics struct{}

func (nopMetrics) OperationCompleted(string, error, float64) {}
func (nopMetrics) BlobWritten(int64)                         {}
func (nopMetrics) BlobDeduplicated()                         {}
func (nopMetrics) BlobDeleted()                              {}

// NopMetrics returns a Metrics that discards everything.
func NopMetrics() Metrics {
	return nopMetrics{}
}
