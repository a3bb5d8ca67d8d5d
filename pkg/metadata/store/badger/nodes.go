package badger

import (
	"context"
	"errors"
	"sort"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dedupfs/pkg/metadata"
)

// tenantStore is a Store handle scoped to one tenant.
type tenantStore struct {
	store  *Store
	tenant metadata.TenantID
}

// CreateNode inserts a node. Fails if a node already exists at the path.
func (t *tenantStore) CreateNode(ctx context.Context, node *metadata.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeNode(node)
	if err != nil {
		return metadata.NewUnavailableError("CreateNode", err)
	}

	key := keyNode(t.tenant, node.Path)
	return t.store.update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return metadata.NewAlreadyExistsError(node.Path)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return metadata.NewUnavailableError("CreateNode", err)
		}
		return txn.Set(key, data)
	})
}

// GetNodeByPath returns the node at path.
func (t *tenantStore) GetNodeByPath(ctx context.Context, path metadata.Path) (*metadata.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var node *metadata.Node
	err := t.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyNode(t.tenant, path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return metadata.NewNotFoundError(path, "node")
		}
		if err != nil {
			return metadata.NewUnavailableError("GetNodeByPath", err)
		}
		return item.Value(func(val []byte) error {
			var decErr error
			node, decErr = decodeNode(val)
			return decErr
		})
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// UpdateNode replaces the node stored at node.Path. Updating a missing path
// is a no-op; callers verify existence first.
func (t *tenantStore) UpdateNode(ctx context.Context, node *metadata.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeNode(node)
	if err != nil {
		return metadata.NewUnavailableError("UpdateNode", err)
	}

	key := keyNode(t.tenant, node.Path)
	return t.store.update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return metadata.NewUnavailableError("UpdateNode", err)
		}
		return txn.Set(key, data)
	})
}

// DeleteNode removes the node at path. Badger deletes are idempotent.
func (t *tenantStore) DeleteNode(ctx context.Context, path metadata.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return t.store.update(func(txn *badger.Txn) error {
		return txn.Delete(keyNode(t.tenant, path))
	})
}

// ListChildren returns the direct children of dir, directories first, then
// ascending path. The prefix scan covers the whole subtree; the depth filter
// drops grandchildren.
func (t *tenantStore) ListChildren(ctx context.Context, dir metadata.Path) ([]*metadata.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := keyNodePrefix(t.tenant, dir)

	var children []*metadata.Node
	err := t.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				node, err := decodeNode(val)
				if err != nil {
					return err
				}
				if node.Path.IsChildOf(dir) {
					children = append(children, node)
				}
				return nil
			})
			if err != nil {
				return metadata.NewUnavailableError("ListChildren", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(children, func(i, j int) bool {
		if children[i].IsDir() != children[j].IsDir() {
			return children[i].IsDir()
		}
		return children[i].Path < children[j].Path
	})
	return children, nil
}

// Ensure tenantStore implements metadata.TenantStore.
var _ metadata.TenantStore = (*tenantStore)(nil)
