// Package badger implements the metadata store on BadgerDB, an embedded
// key-value store. Suited to single-node deployments that want persistence
// without running PostgreSQL.
//
// Key namespace:
//
//	Data Type      Prefix   Key Format                Value Type
//	=============================================================
//	Node records   "n:"     n:<tenantUUID>:<path>     Node (JSON)
//	Blob records   "b:"     b:<hash>                  BlobRecord (JSON)
//
// Node keys embed the tenant, so tenant isolation falls out of the key
// layout, and children of a directory share a key prefix, which makes
// listings a bounded prefix scan.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dedupfs/internal/logger"
	"github.com/marmos91/dedupfs/pkg/metadata"
)

// maxTxnRetries bounds optimistic-concurrency retries on badger.ErrConflict.
const maxTxnRetries = 10

// valueLogGCInterval is how often the value log garbage collector runs.
const valueLogGCInterval = 5 * time.Minute

// Config holds the configuration for the Badger metadata store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string `mapstructure:"path" validate:"required_without=InMemory" yaml:"path"`

	// InMemory keeps all data in RAM. For tests.
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory"`

	// SyncWrites makes every commit fsync. Slower, safer.
	SyncWrites bool `mapstructure:"sync_writes" yaml:"sync_writes"`
}

// Store is a BadgerDB-backed implementation of metadata.Store.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	stopGC chan struct{}
	doneGC chan struct{}
}

// New opens (or creates) the database at cfg.Path.
func New(cfg *Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("badger path is required")
	}

	log := logger.With("component", "badger_metadata_store")

	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: log,
		stopGC: make(chan struct{}),
		doneGC: make(chan struct{}),
	}
	go s.runValueLogGC()

	log.Info("Badger metadata store initialized",
		"path", cfg.Path,
		"in_memory", cfg.InMemory,
		"sync_writes", cfg.SyncWrites,
	)
	return s, nil
}

// runValueLogGC reclaims value-log space periodically until Close.
func (s *Store) runValueLogGC() {
	defer close(s.doneGC)

	ticker := time.NewTicker(valueLogGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite just means there was nothing to reclaim.
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("value log GC failed", "error", err)
			}
		}
	}
}

// Tenant returns a handle scoped to the given tenant.
func (s *Store) Tenant(id metadata.TenantID) metadata.TenantStore {
	return &tenantStore{store: s, tenant: id}
}

// update runs fn in a read-write transaction, retrying on optimistic
// concurrency conflicts.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for range maxTxnRetries {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return metadata.NewUnavailableError("transaction", err)
}

// HealthCheck reports whether the database is open.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return metadata.NewUnavailableError("HealthCheck", badger.ErrDBClosed)
	}
	return nil
}

// Close stops the GC loop and closes the database.
func (s *Store) Close() error {
	close(s.stopGC)
	<-s.doneGC

	s.logger.Info("Closing Badger metadata store")
	return s.db.Close()
}

// Ensure Store implements metadata.Store.
var _ metadata.Store = (*Store)(nil)
