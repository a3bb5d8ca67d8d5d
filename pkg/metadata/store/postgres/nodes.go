package postgres

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"

	"github.com/marmos91/dedupfs/pkg/blob"
	"github.com/marmos91/dedupfs/pkg/metadata"
)

// tenantStore is a Store handle scoped to one tenant. Handles are cheap
// values over the shared pool.
type tenantStore struct {
	store  *Store
	tenant metadata.TenantID
}

const nodeColumns = "path, node_type, blob_hash, size, mime_type, created_at, modified_at"

// scanNode reads one fs_nodes row into a Node.
func scanNode(row pgx.Row) (*metadata.Node, error) {
	var (
		node     metadata.Node
		path     string
		nodeType int16
		hash     string
	)
	err := row.Scan(&path, &nodeType, &hash, &node.Size, &node.MimeType, &node.CreatedAt, &node.ModifiedAt)
	if err != nil {
		return nil, err
	}
	node.Path = metadata.Path(path)
	node.Type = metadata.NodeType(nodeType)
	node.Hash = blob.Hash(hash)
	return &node, nil
}

// CreateNode inserts a node. A primary key violation maps to AlreadyExists.
func (t *tenantStore) CreateNode(ctx context.Context, node *metadata.Node) error {
	_, err := t.store.pool.Exec(ctx, `
		INSERT INTO fs_nodes (tenant_id, path, node_type, blob_hash, size, mime_type, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.tenant, string(node.Path), int16(node.Type), string(node.Hash),
		node.Size, node.MimeType, node.CreatedAt, node.ModifiedAt,
	)
	if err != nil {
		if pgErrCode(err) == pgUniqueViolation {
			return metadata.NewAlreadyExistsError(node.Path)
		}
		return mapError("CreateNode", err)
	}
	return nil
}

// GetNodeByPath returns the node at path.
func (t *tenantStore) GetNodeByPath(ctx context.Context, path metadata.Path) (*metadata.Node, error) {
	row := t.store.pool.QueryRow(ctx, `
		SELECT `+nodeColumns+`
		FROM fs_nodes
		WHERE tenant_id = $1 AND path = $2`,
		t.tenant, string(path),
	)
	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, metadata.NewNotFoundError(path, "node")
		}
		return nil, mapError("GetNodeByPath", err)
	}
	return node, nil
}

// UpdateNode replaces the mutable attributes of the node at node.Path.
// Updating a missing path affects zero rows and is a no-op.
func (t *tenantStore) UpdateNode(ctx context.Context, node *metadata.Node) error {
	_, err := t.store.pool.Exec(ctx, `
		UPDATE fs_nodes
		SET blob_hash = $3, size = $4, mime_type = $5, modified_at = $6
		WHERE tenant_id = $1 AND path = $2`,
		t.tenant, string(node.Path),
		string(node.Hash), node.Size, node.MimeType, node.ModifiedAt,
	)
	if err != nil {
		return mapError("UpdateNode", err)
	}
	return nil
}

// DeleteNode removes the node at path. Idempotent.
func (t *tenantStore) DeleteNode(ctx context.Context, path metadata.Path) error {
	_, err := t.store.pool.Exec(ctx, `
		DELETE FROM fs_nodes
		WHERE tenant_id = $1 AND path = $2`,
		t.tenant, string(path),
	)
	if err != nil {
		return mapError("DeleteNode", err)
	}
	return nil
}

// ListChildren returns the direct children of dir, directories first, then
// ascending path. The LIKE prefix hits idx_fs_nodes_prefix; the strpos filter
// drops grandchildren (anything with a further slash past the prefix).
// substr counts characters, not bytes, so the offset is a rune count.
func (t *tenantStore) ListChildren(ctx context.Context, dir metadata.Path) ([]*metadata.Node, error) {
	prefix := string(dir)
	if prefix != "/" {
		prefix += "/"
	}

	rows, err := t.store.pool.Query(ctx, `
		SELECT `+nodeColumns+`
		FROM fs_nodes
		WHERE tenant_id = $1
		  AND path LIKE $2 ESCAPE '\'
		  AND path <> $3
		  AND strpos(substr(path, $4), '/') = 0
		ORDER BY node_type DESC, path ASC`,
		t.tenant, escapeLike(prefix)+"%", string(dir), utf8.RuneCountInString(prefix)+1,
	)
	if err != nil {
		return nil, mapError("ListChildren", err)
	}
	defer rows.Close()

	var children []*metadata.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, mapError("ListChildren", err)
		}
		children = append(children, node)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("ListChildren", err)
	}
	return children, nil
}

// escapeLike escapes LIKE metacharacters so paths containing % or _ match
// literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// Ensure tenantStore implements metadata.TenantStore.
var _ metadata.TenantStore = (*tenantStore)(nil)
