package fs

import (
	"context"

	"github.com/marmos91/dedupfs/pkg/metadata"
)

// CreateDirectory creates an empty directory at path. The parent must exist;
// any existing node at path is a conflict. Root creation is permitted only
// once, at tenant bootstrap.
func (s *Service) CreateDirectory(ctx context.Context, tenant metadata.TenantID, rawPath string) (node *metadata.Node, err error) {
	ctx, done := s.begin(ctx, tenant, "create_directory", rawPath)
	defer func() { done(err) }()

	path, err := metadata.ParsePath(rawPath)
	if err != nil {
		return nil, err
	}

	ts := s.meta.Tenant(tenant)
	if err := requireAbsent(ctx, ts, path); err != nil {
		return nil, err
	}
	if err := requireParent(ctx, ts, path); err != nil {
		return nil, err
	}

	node = metadata.NewDirectoryNode(path)
	if err := ts.CreateNode(ctx, node); err != nil {
		return nil, err
	}
	return node, nil
}

// ListDirectory returns the direct children of the directory at path,
// directories first, then ascending path.
func (s *Service) ListDirectory(ctx context.Context, tenant metadata.TenantID, rawPath string) (children []*metadata.Node, err error) {
	ctx, done := s.begin(ctx, tenant, "list_directory", rawPath)
	defer func() { done(err) }()

	path, err := metadata.ParsePath(rawPath)
	if err != nil {
		return nil, err
	}

	ts := s.meta.Tenant(tenant)
	if _, err := requireDirectory(ctx, ts, path); err != nil {
		return nil, err
	}
	return ts.ListChildren(ctx, path)
}

// DeleteDirectory removes the empty directory at path. Non-empty directories
// and the root are refused.
func (s *Service) DeleteDirectory(ctx context.Context, tenant metadata.TenantID, rawPath string) (err error) {
	ctx, done := s.begin(ctx, tenant, "delete_directory", rawPath)
	defer func() { done(err) }()

	path, err := metadata.ParsePath(rawPath)
	if err != nil {
		return err
	}
	if path == metadata.RootPath {
		return &metadata.StoreError{
			Code:    metadata.ErrNotEmpty,
			Message: "root directory cannot be deleted",
			Path:    string(path),
		}
	}

	ts := s.meta.Tenant(tenant)
	if _, err := requireDirectory(ctx, ts, path); err != nil {
		return err
	}

	children, err := ts.ListChildren(ctx, path)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return metadata.NewNotEmptyError(path)
	}

	return ts.DeleteNode(ctx, path)
}

// CopyDirectory recursively copies the subtree at src to dst. File copies are
// metadata-only. The operation is not atomic: a failure partway leaves the
// destination nodes created so far in place.
func (s *Service) CopyDirectory(ctx context.Context, tenant metadata.TenantID, rawSrc, rawDst string) (err error) {
	ctx, done := s.begin(ctx, tenant, "copy_directory", rawSrc)
	defer func() { done(err) }()

	src, err := metadata.ParsePath(rawSrc)
	if err != nil {
		return err
	}
	dst, err := metadata.ParsePath(rawDst)
	if err != nil {
		return err
	}
	// Copying a directory into its own subtree would recurse forever.
	if dst == src || dst.IsDescendantOf(src) {
		return metadata.NewInvalidPathError(string(dst), "destination is inside source")
	}

	ts := s.meta.Tenant(tenant)
	if _, err := requireDirectory(ctx, ts, src); err != nil {
		return err
	}
	if err := requireAbsent(ctx, ts, dst); err != nil {
		return err
	}
	if err := requireParent(ctx, ts, dst); err != nil {
		return err
	}

	return s.copySubtree(ctx, ts, src, dst)
}

// copySubtree copies src's subtree to dst pre-order: the destination
// directory first, then each child.
func (s *Service) copySubtree(ctx context.Context, ts metadata.TenantStore, src, dst metadata.Path) error {
	if err := ts.CreateNode(ctx, metadata.NewDirectoryNode(dst)); err != nil {
		return err
	}

	children, err := ts.ListChildren(ctx, src)
	if err != nil {
		return err
	}
	for _, child := range children {
		childDst := dst.Join(child.Path.Base())
		if child.IsDir() {
			if err := s.copySubtree(ctx, ts, child.Path, childDst); err != nil {
				return err
			}
			continue
		}
		if _, err := s.copyFileNode(ctx, ts, child, childDst); err != nil {
			return err
		}
	}
	return nil
}

// MoveDirectory relocates the subtree at src to dst: copy, then delete the
// source bottom-up. Same non-atomicity caveat as CopyDirectory.
func (s *Service) MoveDirectory(ctx context.Context, tenant metadata.TenantID, rawSrc, rawDst string) (err error) {
	ctx, done := s.begin(ctx, tenant, "move_directory", rawSrc)
	defer func() { done(err) }()

	src, err := metadata.ParsePath(rawSrc)
	if err != nil {
		return err
	}
	if src == metadata.RootPath {
		return &metadata.StoreError{
			Code:    metadata.ErrNotEmpty,
			Message: "root directory cannot be moved",
			Path:    string(src),
		}
	}

	if err := s.CopyDirectory(ctx, tenant, rawSrc, rawDst); err != nil {
		return err
	}
	return s.deleteSubtree(ctx, s.meta.Tenant(tenant), src)
}

// deleteSubtree removes dir's subtree post-order: children before parents.
// File deletions release their content references; the copy that preceded
// this in a move keeps every shared refcount above zero.
func (s *Service) deleteSubtree(ctx context.Context, ts metadata.TenantStore, dir metadata.Path) error {
	children, err := ts.ListChildren(ctx, dir)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.IsDir() {
			if err := s.deleteSubtree(ctx, ts, child.Path); err != nil {
				return err
			}
			continue
		}
		if err := ts.DeleteNode(ctx, child.Path); err != nil {
			return err
		}
		s.releaseBlobRef(ctx, child.Hash)
	}
	return ts.DeleteNode(ctx, dir)
}
