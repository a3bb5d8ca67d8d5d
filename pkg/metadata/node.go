package metadata

import (
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dedupfs/pkg/blob"
)

// TenantID identifies an isolation boundary. Each tenant has an independent
// path namespace rooted at "/". Tenants are created externally; the engine
// only consumes the identifier.
type TenantID = uuid.UUID

// NodeType tags a Node as a file or a directory. The variant set is closed:
// the store is a tree of exactly these two kinds.
type NodeType int8

const (
	NodeTypeFile NodeType = iota + 1
	NodeTypeDirectory
)

// String returns the persisted form of the type tag.
func (t NodeType) String() string {
	switch t {
	case NodeTypeFile:
		return "file"
	case NodeTypeDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// ParseNodeType converts the persisted type column back to the tag.
func ParseNodeType(s string) (NodeType, bool) {
	switch s {
	case "file":
		return NodeTypeFile, true
	case "directory":
		return NodeTypeDirectory, true
	default:
		return 0, false
	}
}

// Node is a metadata record for a path: a tagged variant of file or
// directory. File-only attributes (Hash, Size, MimeType) are zero for
// directories.
type Node struct {
	Path Path
	Type NodeType

	// File attributes. Hash always references a live BlobRecord while the
	// node exists (refcount >= 1).
	Hash     blob.Hash
	Size     int64
	MimeType string

	CreatedAt  time.Time
	ModifiedAt time.Time
}

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool {
	return n.Type == NodeTypeDirectory
}

// IsFile reports whether the node is a regular file.
func (n *Node) IsFile() bool {
	return n.Type == NodeTypeFile
}

// NewFileNode builds a file node with timestamps set to now.
func NewFileNode(path Path, hash blob.Hash, size int64, mimeType string) *Node {
	now := time.Now().UTC()
	return &Node{
		Path:       path,
		Type:       NodeTypeFile,
		Hash:       hash,
		Size:       size,
		MimeType:   mimeType,
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

// NewDirectoryNode builds a directory node with timestamps set to now.
func NewDirectoryNode(path Path) *Node {
	now := time.Now().UTC()
	return &Node{
		Path:       path,
		Type:       NodeTypeDirectory,
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

// BlobRecord tracks how many file nodes across all tenants reference a blob.
// A record with RefCount zero is an orphan, eligible for reclamation.
type BlobRecord struct {
	Hash           blob.Hash
	RefCount       int64
	Size           int64
	CreatedAt      time.Time
	LastAccessedAt time.Time
}
