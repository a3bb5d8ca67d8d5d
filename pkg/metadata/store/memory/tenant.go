package memory

import (
	"context"
	"sort"

	"github.com/marmos91/dedupfs/pkg/metadata"
)

// tenantStore is a Store handle scoped to one tenant.
type tenantStore struct {
	store  *Store
	tenant metadata.TenantID
}

// nodesLocked returns the node map for the tenant, creating it if needed.
// Callers must hold the store write lock.
func (t *tenantStore) nodesLocked() map[metadata.Path]*metadata.Node {
	nodes, ok := t.store.nodes[t.tenant]
	if !ok {
		nodes = make(map[metadata.Path]*metadata.Node)
		t.store.nodes[t.tenant] = nodes
	}
	return nodes
}

// CreateNode inserts a node. Fails if a node already exists at the path.
func (t *tenantStore) CreateNode(ctx context.Context, node *metadata.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	nodes := t.nodesLocked()
	if _, exists := nodes[node.Path]; exists {
		return metadata.NewAlreadyExistsError(node.Path)
	}

	cp := *node
	nodes[node.Path] = &cp
	return nil
}

// GetNodeByPath returns a copy of the node at path.
func (t *tenantStore) GetNodeByPath(ctx context.Context, path metadata.Path) (*metadata.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	node, ok := t.store.nodes[t.tenant][path]
	if !ok {
		return nil, metadata.NewNotFoundError(path, "node")
	}
	cp := *node
	return &cp, nil
}

// UpdateNode replaces the node stored at node.Path. Updating a missing path
// is a no-op; callers verify existence first.
func (t *tenantStore) UpdateNode(ctx context.Context, node *metadata.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	nodes := t.nodesLocked()
	if _, exists := nodes[node.Path]; !exists {
		return nil
	}

	cp := *node
	nodes[node.Path] = &cp
	return nil
}

// DeleteNode removes the node at path. Deleting a missing node is a no-op.
func (t *tenantStore) DeleteNode(ctx context.Context, path metadata.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	delete(t.store.nodes[t.tenant], path)
	return nil
}

// ListChildren returns the direct children of dir, directories first, each
// group sorted by path ascending.
func (t *tenantStore) ListChildren(ctx context.Context, dir metadata.Path) ([]*metadata.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	var children []*metadata.Node
	for path, node := range t.store.nodes[t.tenant] {
		if path.IsChildOf(dir) {
			cp := *node
			children = append(children, &cp)
		}
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
