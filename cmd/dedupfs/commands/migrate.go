package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dedupfs/internal/logger"
	"github.com/marmos91/dedupfs/pkg/config"
	"github.com/marmos91/dedupfs/pkg/metadata/store/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run schema migrations for the PostgreSQL metadata store.

This command applies pending migrations to the configured database. It is
required after upgrading dedupfs when schema changes have been made, unless
auto_migrate is enabled in the configuration.

Examples:
  # Run migrations with default config
  dedupfs migrate

  # Run migrations with custom config
  dedupfs migrate --config /etc/dedupfs/config.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	if cfg.Metadata.Store != "postgres" {
		return fmt.Errorf("migrations only apply to the postgres metadata store (configured: %q)", cfg.Metadata.Store)
	}

	logger.Info("Running database migrations",
		"host", cfg.Metadata.Postgres.Host,
		"database", cfg.Metadata.Postgres.Database)

	if err := postgres.RunMigrations(cmd.Context(), &cfg.Metadata.Postgres); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Println("Migrations completed successfully")
	return nil
}
