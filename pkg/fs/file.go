package fs

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/dedupfs/internal/logger"
	"github.com/marmos91/dedupfs/pkg/blob"
	"github.com/marmos91/dedupfs/pkg/metadata"
)

// WriteFile stores content at path, deduplicating by content hash. An
// existing file at path is overwritten; an existing directory is a conflict.
func (s *Service) WriteFile(ctx context.Context, tenant metadata.TenantID, rawPath string, data []byte) (node *metadata.Node, err error) {
	ctx, done := s.begin(ctx, tenant, "write_file", rawPath)
	defer func() { done(err) }()

	path, err := metadata.ParsePath(rawPath)
	if err != nil {
		return nil, err
	}

	h := blob.HashOf(data)
	size := int64(len(data))

	// Blob bytes go in before any metadata commit. A crash after this point
	// leaves an orphan at worst, never a node with missing bytes.
	present, err := s.blobs.Exists(ctx, h)
	if err != nil {
		return nil, metadata.NewUnavailableError("WriteFile", err)
	}
	if present {
		s.metrics.BlobDeduplicated()
	} else {
		if err := s.blobs.Write(ctx, h, data); err != nil {
			return nil, metadata.NewUnavailableError("WriteFile", err)
		}
		s.metrics.BlobWritten(size)
	}

	ts := s.meta.Tenant(tenant)

	existing, err := ts.GetNodeByPath(ctx, path)
	switch {
	case err == nil:
		return s.overwriteFile(ctx, ts, existing, h, size)
	case metadata.IsNotFound(err):
		return s.createFile(ctx, ts, path, h, size)
	default:
		return nil, err
	}
}

// createFile inserts a new file node. The refcount increment precedes the
// node insert so the node never references a refcount-zero record; a failed
// insert rolls the increment back.
func (s *Service) createFile(ctx context.Context, ts metadata.TenantStore, path metadata.Path, h blob.Hash, size int64) (*metadata.Node, error) {
	// The root can only ever be a directory, bootstrapped or not.
	if path.IsRoot() {
		return nil, metadata.NewIsDirectoryError(path)
	}
	if err := requireParent(ctx, ts, path); err != nil {
		return nil, err
	}

	if err := s.meta.IncrementBlobRef(ctx, h, size); err != nil {
		return nil, err
	}

	node := metadata.NewFileNode(path, h, size, mimeTypeFor(path))
	if err := ts.CreateNode(ctx, node); err != nil {
		if _, decErr := s.meta.DecrementBlobRef(ctx, h); decErr != nil {
			logger.ErrorCtx(ctx, "failed to roll back refcount after create failure",
				logger.Hash(string(h)), logger.Err(decErr))
		}
		return nil, err
	}
	return node, nil
}

// overwriteFile replaces the content of an existing file node. Same-hash
// rewrites only bump modifiedAt; content changes increment the new hash
// before decrementing the old one.
func (s *Service) overwriteFile(ctx context.Context, ts metadata.TenantStore, node *metadata.Node, h blob.Hash, size int64) (*metadata.Node, error) {
	if node.IsDir() {
		return nil, metadata.NewIsDirectoryError(node.Path)
	}

	if node.Hash == h {
		node.ModifiedAt = time.Now().UTC()
		if err := ts.UpdateNode(ctx, node); err != nil {
			return nil, err
		}
		return node, nil
	}

	oldHash := node.Hash

	if err := s.meta.IncrementBlobRef(ctx, h, size); err != nil {
		return nil, err
	}

	node.Hash = h
	node.Size = size
	node.MimeType = mimeTypeFor(node.Path)
	node.ModifiedAt = time.Now().UTC()
	if err := ts.UpdateNode(ctx, node); err != nil {
		if _, decErr := s.meta.DecrementBlobRef(ctx, h); decErr != nil {
			logger.ErrorCtx(ctx, "failed to roll back refcount after update failure",
				logger.Hash(string(h)), logger.Err(decErr))
		}
		return nil, err
	}

	s.releaseBlobRef(ctx, oldHash)
	return node, nil
}

// releaseBlobRef decrements a hash's refcount and deletes the bytes when the
// count reaches zero. Byte deletion failures are logged, not surfaced: the
// record stays at refcount zero and the reclaimer retries later.
func (s *Service) releaseBlobRef(ctx context.Context, h blob.Hash) {
	count, err := s.meta.DecrementBlobRef(ctx, h)
	if err != nil {
		logger.ErrorCtx(ctx, "failed to decrement refcount",
			logger.Hash(string(h)), logger.Err(err))
		return
	}
	if count > 0 {
		return
	}
	if err := s.blobs.Delete(ctx, h); err != nil {
		logger.WarnCtx(ctx, "failed to delete unreferenced blob, leaving for reclaimer",
			logger.Hash(string(h)), logger.Err(err))
		return
	}
	s.metrics.BlobDeleted()
}

// ReadFile returns the content of the file at path. A node whose blob is
// missing surfaces Corrupted; that is an invariant violation, not a retryable
// condition.
func (s *Service) ReadFile(ctx context.Context, tenant metadata.TenantID, rawPath string) (data []byte, err error) {
	ctx, done := s.begin(ctx, tenant, "read_file", rawPath)
	defer func() { done(err) }()

	path, err := metadata.ParsePath(rawPath)
	if err != nil {
		return nil, err
	}

	node, err := requireFile(ctx, s.meta.Tenant(tenant), path)
	if err != nil {
		return nil, err
	}

	data, err = s.blobs.Read(ctx, node.Hash)
	if err != nil {
		if errors.Is(err, blob.ErrBlobNotFound) {
			return nil, metadata.NewCorruptedError(path, string(node.Hash))
		}
		return nil, metadata.NewUnavailableError("ReadFile", err)
	}
	return data, nil
}

// DeleteFile removes the file at path and releases its content reference.
func (s *Service) DeleteFile(ctx context.Context, tenant metadata.TenantID, rawPath string) (err error) {
	ctx, done := s.begin(ctx, tenant, "delete_file", rawPath)
	defer func() { done(err) }()

	path, err := metadata.ParsePath(rawPath)
	if err != nil {
		return err
	}

	ts := s.meta.Tenant(tenant)
	node, err := requireFile(ctx, ts, path)
	if err != nil {
		return err
	}

	if err := ts.DeleteNode(ctx, path); err != nil {
		return err
	}
	s.releaseBlobRef(ctx, node.Hash)
	return nil
}

// CopyFile duplicates the file at src to dst. Pure metadata: the destination
// node shares the source's hash and only the refcount changes.
func (s *Service) CopyFile(ctx context.Context, tenant metadata.TenantID, rawSrc, rawDst string) (node *metadata.Node, err error) {
	ctx, done := s.begin(ctx, tenant, "copy_file", rawSrc)
	defer func() { done(err) }()

	src, err := metadata.ParsePath(rawSrc)
	if err != nil {
		return nil, err
	}
	dst, err := metadata.ParsePath(rawDst)
	if err != nil {
		return nil, err
	}

	ts := s.meta.Tenant(tenant)
	srcNode, err := requireFile(ctx, ts, src)
	if err != nil {
		return nil, err
	}
	return s.copyFileNode(ctx, ts, srcNode, dst)
}

// copyFileNode clones srcNode's content reference at dst. The destination
// must be absent; overwrite-by-copy is a conflict by design.
func (s *Service) copyFileNode(ctx context.Context, ts metadata.TenantStore, srcNode *metadata.Node, dst metadata.Path) (*metadata.Node, error) {
	// The root can only ever be a directory, bootstrapped or not.
	if dst.IsRoot() {
		return nil, metadata.NewIsDirectoryError(dst)
	}
	if err := requireAbsent(ctx, ts, dst); err != nil {
		return nil, err
	}
	if err := requireParent(ctx, ts, dst); err != nil {
		return nil, err
	}

	if err := s.meta.IncrementBlobRef(ctx, srcNode.Hash, srcNode.Size); err != nil {
		return nil, err
	}

	node := metadata.NewFileNode(dst, srcNode.Hash, srcNode.Size, srcNode.MimeType)
	if err := ts.CreateNode(ctx, node); err != nil {
		if _, decErr := s.meta.DecrementBlobRef(ctx, srcNode.Hash); decErr != nil {
			logger.ErrorCtx(ctx, "failed to roll back refcount after copy failure",
				logger.Hash(string(srcNode.Hash)), logger.Err(decErr))
		}
		return nil, err
	}
	return node, nil
}

// MoveFile relocates the file at src to dst. Implemented as copy then delete;
// the destination's increment commits before the source's decrement, so the
// shared hash never transits through zero.
func (s *Service) MoveFile(ctx context.Context, tenant metadata.TenantID, rawSrc, rawDst string) (node *metadata.Node, err error) {
	ctx, done := s.begin(ctx, tenant, "move_file", rawSrc)
	defer func() { done(err) }()

	src, err := metadata.ParsePath(rawSrc)
	if err != nil {
		return nil, err
	}
	dst, err := metadata.ParsePath(rawDst)
	if err != nil {
		return nil, err
	}

	ts := s.meta.Tenant(tenant)
	srcNode, err := requireFile(ctx, ts, src)
	if err != nil {
		return nil, err
	}

	node, err = s.copyFileNode(ctx, ts, srcNode, dst)
	if err != nil {
		return nil, err
	}

	if err := ts.DeleteNode(ctx, src); err != nil {
		return nil, err
	}
	s.releaseBlobRef(ctx, srcNode.Hash)
	return node, nil
}

// GetInfo returns the node at path, file or directory.
func (s *Service) GetInfo(ctx context.Context, tenant metadata.TenantID, rawPath string) (node *metadata.Node, err error) {
	ctx, done := s.begin(ctx, tenant, "get_info", rawPath)
	defer func() { done(err) }()

	path, err := metadata.ParsePath(rawPath)
	if err != nil {
		return nil, err
	}
	return s.meta.Tenant(tenant).GetNodeByPath(ctx, path)
}
