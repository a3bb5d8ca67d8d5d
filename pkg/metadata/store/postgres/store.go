// Package postgres implements the metadata store on PostgreSQL via pgx.
//
// All refcount arithmetic runs as single atomic statements (INSERT ... ON
// CONFLICT, UPDATE ... RETURNING), so the store never needs explicit
// transactions for the hot path. The blobs table carries a CHECK constraint
// that turns refcount underflow into an Invariant error.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marmos91/dedupfs/internal/logger"
	"github.com/marmos91/dedupfs/pkg/metadata"
)

// PostgreSQL error codes the store maps to domain errors.
const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// Store is a PostgreSQL-backed implementation of metadata.Store.
type Store struct {
	pool   *pgxpool.Pool
	config *Config
	logger *slog.Logger
}

// New creates a PostgreSQL metadata store, connecting and optionally running
// migrations per cfg.AutoMigrate.
func New(ctx context.Context, cfg *Config) (*Store, error) {
	cfg.ApplyDefaults()

	log := logger.With("component", "postgres_metadata_store")

	pool, err := createConnectionPool(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if cfg.AutoMigrate {
		if err := runMigrations(ctx, cfg.ConnectionString(), log); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	} else {
		log.Info("AutoMigrate is disabled; run 'dedupfs migrate' to apply migrations manually")
	}

	log.Info("PostgreSQL metadata store initialized",
		"host", cfg.Host,
		"database", cfg.Database,
		"max_conns", cfg.MaxConns,
	)

	return &Store{
		pool:   pool,
		config: cfg,
		logger: log,
	}, nil
}

// Tenant returns a handle scoped to the given tenant.
func (s *Store) Tenant(id metadata.TenantID) metadata.TenantStore {
	return &tenantStore{store: s, tenant: id}
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return metadata.NewUnavailableError("HealthCheck", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.logger.Info("Closing PostgreSQL metadata store")
	s.pool.Close()
	return nil
}

// mapError converts low-level pgx errors into the domain taxonomy. Context
// cancellation passes through untouched so callers can detect it.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se *metadata.StoreError
	if errors.As(err, &se) {
		return err
	}
	return metadata.NewUnavailableError(op, err)
}

// pgErrCode extracts the SQLSTATE code from a pgx error, if present.
func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Ensure Store implements metadata.Store.
var _ metadata.Store = (*Store)(nil)
