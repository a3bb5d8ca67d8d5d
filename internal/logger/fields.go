package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so logs can be
// aggregated and queried by key.
const (
	// Engine operations
	KeyTenant    = "tenant"    // Tenant identifier
	KeyOperation = "operation" // Engine operation name: WriteFile, CopyDirectory, ...
	KeyPath      = "path"      // Full file/directory path
	KeySrcPath   = "src_path"  // Source path for copy/move operations
	KeyDstPath   = "dst_path"  // Destination path for copy/move operations
	KeyNodeType  = "node_type" // Node type: file, directory
	KeySize      = "size"      // Content size in bytes

	// Content addressing
	KeyHash     = "hash"     // Content hash (sha256, lowercase hex)
	KeyRefCount = "refcount" // Blob reference count after the operation

	// Storage backends
	KeyStoreType = "store_type" // Store type: memory, fs, s3, postgres, badger
	KeyBucket    = "bucket"     // S3 bucket name
	KeyKey       = "key"        // Object key in the blob store

	// Operation metadata
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyCount      = "count"       // Generic count (children, orphans, batch size)
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// Tenant returns a slog.Attr for a tenant identifier
func Tenant(id string) slog.Attr {
	return slog.String(KeyTenant, id)
}

// Operation returns a slog.Attr for an engine operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Path returns a slog.Attr for a file/directory path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// SrcPath returns a slog.Attr for a copy/move source path
func SrcPath(p string) slog.Attr {
	return slog.String(KeySrcPath, p)
}

// DstPath returns a slog.Attr for a copy/move destination path
func DstPath(p string) slog.Attr {
	return slog.String(KeyDstPath, p)
}

// Hash returns a slog.Attr for a content hash
func Hash(h string) slog.Attr {
	return slog.String(KeyHash, h)
}

// RefCount returns a slog.Attr for a blob reference count
func RefCount(n int64) slog.Attr {
	return slog.Int64(KeyRefCount, n)
}

// Size returns a slog.Attr for a content size
func Size(n int64) slog.Attr {
	return slog.Int64(KeySize, n)
}

// StoreType returns a slog.Attr for a store type
func StoreType(t string) slog.Attr {
	return slog.String(KeyStoreType, t)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Count returns a slog.Attr for a generic count
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}
