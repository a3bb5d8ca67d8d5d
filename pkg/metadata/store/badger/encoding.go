package badger

import (
	"encoding/json"

	"github.com/marmos91/dedupfs/pkg/blob"
	"github.com/marmos91/dedupfs/pkg/metadata"
)

const (
	prefixNode = "n:"
	prefixBlob = "b:"
)

// keyNode generates a node key: "n:<tenantUUID>:<path>".
func keyNode(tenant metadata.TenantID, path metadata.Path) []byte {
	return []byte(prefixNode + tenant.String() + ":" + string(path))
}

// keyNodePrefix generates the scan prefix for a directory's subtree:
// "n:<tenantUUID>:<dir>/". For the root the trailing slash is already there.
func keyNodePrefix(tenant metadata.TenantID, dir metadata.Path) []byte {
	p := string(dir)
	if p != "/" {
		p += "/"
	}
	return []byte(prefixNode + tenant.String() + ":" + p)
}

// keyBlob generates a blob record key: "b:<hash>".
func keyBlob(h blob.Hash) []byte {
	return []byte(prefixBlob + string(h))
}

func encodeNode(node *metadata.Node) ([]byte, error) {
	return json.Marshal(node)
}

func decodeNode(data []byte) (*metadata.Node, error) {
	var node metadata.Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func encodeBlobRecord(rec *metadata.BlobRecord) ([]byte, error) {
	return json.Marshal(rec)
}

func decodeBlobRecord(data []byte) (*metadata.BlobRecord, error) {
	var rec metadata.BlobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
