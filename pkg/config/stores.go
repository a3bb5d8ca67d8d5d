package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dedupfs/pkg/blob"
	blobfs "github.com/marmos91/dedupfs/pkg/blob/store/fs"
	blobmemory "github.com/marmos91/dedupfs/pkg/blob/store/memory"
	blobs3 "github.com/marmos91/dedupfs/pkg/blob/store/s3"
	"github.com/marmos91/dedupfs/pkg/metadata"
	metabadger "github.com/marmos91/dedupfs/pkg/metadata/store/badger"
	metamemory "github.com/marmos91/dedupfs/pkg/metadata/store/memory"
	metapostgres "github.com/marmos91/dedupfs/pkg/metadata/store/postgres"
)

// NewMetadataStore creates the metadata store selected by the configuration.
func NewMetadataStore(ctx context.Context, cfg *Config) (metadata.Store, error) {
	switch cfg.Metadata.Store {
	case "memory":
		return metamemory.New(), nil
	case "badger":
		store, err := metabadger.New(&cfg.Metadata.Badger)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger metadata store: %w", err)
		}
		return store, nil
	case "postgres":
		store, err := metapostgres.New(ctx, &cfg.Metadata.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres metadata store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown metadata store type: %q", cfg.Metadata.Store)
	}
}

// NewBlobStore creates the blob store selected by the configuration.
func NewBlobStore(ctx context.Context, cfg *Config) (blob.Store, error) {
	switch cfg.Blob.Store {
	case "memory":
		return blobmemory.New(), nil
	case "fs":
		store, err := blobfs.New(cfg.Blob.FS)
		if err != nil {
			return nil, fmt.Errorf("failed to open filesystem blob store: %w", err)
		}
		return store, nil
	case "s3":
		store, err := blobs3.NewFromConfig(ctx, cfg.Blob.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 blob store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown blob store type: %q", cfg.Blob.Store)
	}
}
