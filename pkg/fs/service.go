// Package fs implements the deduplicating file-system engine: the only
// component allowed to mutate the metadata store and the blob store together.
//
// Correctness rests on two ordering rules:
//
//  1. Never orphan a live blob: on content changes the new hash's refcount is
//     incremented before the old one is decremented, so no committed node
//     ever points at a refcount-zero record.
//  2. Never leak on crash: blob bytes are written before any metadata commit.
//     A crash in between leaves an orphan blob, which the reclaimer removes;
//     no metadata ever points at missing bytes.
//
// The service itself holds no mutable state beyond its store references.
// Tenant scoping happens per call via metadata.Store.Tenant handles.
package fs

import (
	"context"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dedupfs/internal/logger"
	"github.com/marmos91/dedupfs/pkg/blob"
	"github.com/marmos91/dedupfs/pkg/metadata"
)

// defaultMimeType is used when the path suffix maps to nothing.
const defaultMimeType = "application/octet-stream"

// Service is the deduplicating file-system engine.
type Service struct {
	meta    metadata.Store
	blobs   blob.Store
	metrics Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics attaches a metrics sink to the service.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New creates a file-system service over the given stores.
func New(meta metadata.Store, blobs blob.Store, opts ...Option) *Service {
	s := &Service{
		meta:    meta,
		blobs:   blobs,
		metrics: NopMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// begin sets up per-operation logging context and returns a completion hook.
func (s *Service) begin(ctx context.Context, tenant metadata.TenantID, op, path string) (context.Context, func(err error)) {
	lc := logger.NewLogContext(tenant.String()).WithOperation(op).WithPath(path)
	ctx = logger.WithContext(ctx, lc)
	start := time.Now()

	return ctx, func(err error) {
		seconds := time.Since(start).Seconds()
		s.metrics.OperationCompleted(op, err, seconds)
		if err != nil {
			logger.DebugCtx(ctx, "operation failed", logger.Err(err))
			return
		}
		logger.DebugCtx(ctx, "operation completed", logger.DurationMs(seconds*1000))
	}
}

// requireDirectory returns the directory node at path, mapping a file node to
// NotDirectory and absence to NotFound.
func requireDirectory(ctx context.Context, ts metadata.TenantStore, path metadata.Path) (*metadata.Node, error) {
	node, err := ts.GetNodeByPath(ctx, path)
	if err != nil {
		if metadata.IsNotFound(err) {
			return nil, metadata.NewNotFoundError(path, "directory")
		}
		return nil, err
	}
	if !node.IsDir() {
		return nil, metadata.NewNotDirectoryError(path)
	}
	return node, nil
}

// requireFile returns the file node at path, mapping a directory node to
// IsDirectory and absence to NotFound.
func requireFile(ctx context.Context, ts metadata.TenantStore, path metadata.Path) (*metadata.Node, error) {
	node, err := ts.GetNodeByPath(ctx, path)
	if err != nil {
		if metadata.IsNotFound(err) {
			return nil, metadata.NewNotFoundError(path, "file")
		}
		return nil, err
	}
	if node.IsDir() {
		return nil, metadata.NewIsDirectoryError(path)
	}
	return node, nil
}

// requireParent verifies the parent of path exists and is a directory.
func requireParent(ctx context.Context, ts metadata.TenantStore, path metadata.Path) error {
	if path == metadata.RootPath {
		return nil
	}
	_, err := requireDirectory(ctx, ts, path.Parent())
	return err
}

// requireAbsent verifies nothing exists at path.
func requireAbsent(ctx context.Context, ts metadata.TenantStore, path metadata.Path) error {
	_, err := ts.GetNodeByPath(ctx, path)
	if err == nil {
		return metadata.NewAlreadyExistsError(path)
	}
	if metadata.IsNotFound(err) {
		return nil
	}
	return err
}

// mimeTypeFor derives a mime type from the path suffix. Parameters such as
// charset are dropped; unknown suffixes fall back to application/octet-stream.
func mimeTypeFor(path metadata.Path) string {
	t := mime.TypeByExtension(filepath.Ext(string(path)))
	if t == "" {
		return defaultMimeType
	}
	if mt, _, ok := strings.Cut(t, ";"); ok {
		return strings.TrimSpace(mt)
	}
	return t
}
