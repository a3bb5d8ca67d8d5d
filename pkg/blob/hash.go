// Package blob defines content addressing for immutable byte-strings and the
// store contract that persists them.
//
// A blob is identified by the SHA-256 of its bytes, rendered as 64 lowercase
// hex characters. Two blobs with equal hashes are the same blob; the store
// keeps exactly one copy.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashLen is the length of a rendered content hash.
const HashLen = 64

// Hash is a validated content hash: exactly 64 lowercase hex characters.
type Hash string

// HashOf computes the content hash of data.
func HashOf(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// ParseHash validates s as a content hash.
// Uppercase hex is rejected; hashes are canonical in lowercase only.
func ParseHash(s string) (Hash, error) {
	if len(s) != HashLen {
		return "", fmt.Errorf("%w: length %d, want %d", ErrInvalidHash, len(s), HashLen)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("%w: invalid character %q at offset %d", ErrInvalidHash, c, i)
		}
	}
	return Hash(s), nil
}

// ShardKey returns the sharded object key for h:
// the first two and next two hex characters as directories, then the full
// hash ("ab/c1/abc1..."). With two shard levels any one directory stays
// under ~65k entries at 256M objects.
func (h Hash) ShardKey() string {
	return string(h[0:2]) + "/" + string(h[2:4]) + "/" + string(h)
}

func (h Hash) String() string {
	return string(h)
}
