// Package fs provides a filesystem-backed blob store implementation.
//
// Objects live at <root>/<hash[0:2]>/<hash[2:4]>/<hash>. Shard directories
// are created lazily on first write. Publication is atomic per key: bytes go
// to a temporary file first and are renamed into place, so concurrent
// writers of the same hash never expose a half-written object.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/marmos91/dedupfs/pkg/blob"
)

// Store is a filesystem-backed implementation of blob.Store.
type Store struct {
	mu       sync.RWMutex
	basePath string
	fsync    bool
	closed   bool
}

// Config holds configuration for the filesystem blob store.
type Config struct {
	// BasePath is the root directory for blob storage.
	BasePath string `mapstructure:"base_path" validate:"required" yaml:"base_path"`

	// CreateDir creates the base directory if it doesn't exist.
	// Default: true
	CreateDir bool `mapstructure:"create_dir" yaml:"create_dir"`

	// Fsync syncs file and shard directory after each write. Slower, but
	// survives power loss. Default: false.
	Fsync bool `mapstructure:"fsync" yaml:"fsync"`

	// DirMode is the permission mode for created directories.
	// Default: 0755
	DirMode os.FileMode `mapstructure:"dir_mode" yaml:"dir_mode"`

	// FileMode is the permission mode for created files.
	// Default: 0644
	FileMode os.FileMode `mapstructure:"file_mode" yaml:"file_mode"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig(basePath string) Config {
	return Config{
		BasePath:  basePath,
		CreateDir: true,
		DirMode:   0755,
		FileMode:  0644,
	}
}

// New creates a new filesystem blob store with the given configuration.
func New(cfg Config) (*Store, error) {
	if cfg.BasePath == "" {
		return nil, errors.New("base path is required")
	}

	if cfg.DirMode == 0 {
		cfg.DirMode = 0755
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0644
	}

	if cfg.CreateDir {
		if err := os.MkdirAll(cfg.BasePath, cfg.DirMode); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(cfg.BasePath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("base path is not a directory")
	}

	return &Store{
		basePath: cfg.BasePath,
		fsync:    cfg.Fsync,
	}, nil
}

// NewWithPath creates a new filesystem blob store with default configuration.
func NewWithPath(basePath string) (*Store, error) {
	return New(DefaultConfig(basePath))
}

// objectPath returns the sharded filesystem path for a hash.
func (s *Store) objectPath(h blob.Hash) string {
	return filepath.Join(s.basePath, filepath.FromSlash(h.ShardKey()))
}

// Write stores data under h. The write goes to a temporary file in the shard
// directory and is renamed into place, so a crash mid-write leaves at most a
// stray .tmp file and never a truncated object.
func (s *Store) Write(ctx context.Context, h blob.Hash, data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return blob.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.objectPath(h)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, string(h)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if s.fsync {
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	// Atomic publication per key
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if s.fsync {
		return syncDir(dir)
	}
	return nil
}

// Read returns the bytes stored under h.
func (s *Store) Read(ctx context.Context, h blob.Hash) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, blob.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.objectPath(h))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, blob.ErrBlobNotFound
		}
		return nil, err
	}
	return data, nil
}

// Exists reports presence without reading the bytes.
func (s *Store) Exists(ctx context.Context, h blob.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, blob.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(s.objectPath(h))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes the object. Missing objects are silently ignored.
func (s *Store) Delete(ctx context.Context, h blob.Hash) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return blob.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.remove(h)
}

// remove deletes a single object and prunes empty shard directories.
// Caller holds at least a read lock.
func (s *Store) remove(h blob.Hash) error {
	path := s.objectPath(h)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	s.cleanEmptyDirs(filepath.Dir(path))
	return nil
}

// DeleteMany removes a batch of objects. Individual failures do not abort
// the batch; the failed hashes are returned for a later retry.
func (s *Store) DeleteMany(ctx context.Context, hashes []blob.Hash) ([]blob.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return hashes, blob.ErrStoreClosed
	}

	var failed []blob.Hash
	for _, h := range hashes {
		if err := ctx.Err(); err != nil {
			failed = append(failed, h)
			continue
		}
		if err := s.remove(h); err != nil {
			failed = append(failed, h)
		}
	}

	if len(failed) > 0 {
		return failed, fmt.Errorf("failed to delete %d of %d blobs", len(failed), len(hashes))
	}
	return nil, nil
}

// Walk visits every stored object under the base path. Stray .tmp files and
// anything whose name is not a valid content hash are skipped, so a crashed
// writer's leftovers never surface as objects.
func (s *Store) Walk(ctx context.Context, fn func(info blob.ObjectInfo) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return blob.ErrStoreClosed
	}

	return filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Shard directories can vanish mid-walk when a concurrent delete
			// prunes them.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}

		h, parseErr := blob.ParseHash(d.Name())
		if parseErr != nil {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}

		return fn(blob.ObjectInfo{
			Hash:     h,
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	})
}

// cleanEmptyDirs removes empty shard directories up to the base path.
func (s *Store) cleanEmptyDirs(dir string) {
	for dir != s.basePath && strings.HasPrefix(dir, s.basePath) {
		err := os.Remove(dir)
		if err != nil {
			// Directory not empty or other error, stop
			break
		}
		dir = filepath.Dir(dir)
	}
}

// HealthCheck verifies the store is accessible and operational.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return blob.ErrStoreClosed
	}

	_, err := os.Stat(s.basePath)
	return err
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// BasePath returns the base path of the store (for testing).
func (s *Store) BasePath() string {
	return s.basePath
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// Ensure Store implements blob.Store.
var _ blob.Store = (*Store)(nil)
