// Package bootstrap wires configuration into a ready prompt service. It is
// shared by the API server and the standalone renderer.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ghimmohmoh/ghimmohmoh/internal/archive"
	"github.com/ghimmohmoh/ghimmohmoh/internal/assistant"
	"github.com/ghimmohmoh/ghimmohmoh/internal/config"
	"github.com/ghimmohmoh/ghimmohmoh/internal/prompt"
	"github.com/ghimmohmoh/ghimmohmoh/internal/promptctx"
	"github.com/ghimmohmoh/ghimmohmoh/internal/storage"
	s3store "github.com/ghimmohmoh/ghimmohmoh/internal/storage/s3"
	"github.com/ghimmohmoh/ghimmohmoh/internal/warehouse"
	"github.com/ghimmohmoh/ghimmohmoh/internal/warehouse/duckdb"
)

type Runtime struct {
	Service     *assistant.Service
	Source      *warehouse.SQLSource
	Cache       *promptctx.Cache
	ObjectStore storage.ObjectStore
	closers     []func() error
}

type Options struct {
	// ObjectStore replaces the S3 store built from cfg.ObjectStore.
	ObjectStore storage.ObjectStore
	// ForceArchive enables the archive regardless of cfg.Archive.Enabled.
	ForceArchive bool
}

func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*Runtime, error) {
	dialect, err := warehouse.DialectForDriver(cfg.Warehouse.Driver)
	if err != nil {
		return nil, &config.ConfigurationError{Key: "GHIMMOHMOH_WAREHOUSE_DRIVER", Err: err}
	}

	rt := &Runtime{ObjectStore: opts.ObjectStore}
	archiveEnabled := cfg.Archive.Enabled || opts.ForceArchive
	if rt.ObjectStore == nil && (archiveEnabled || len(cfg.DuckDB.MountObjects) > 0) {
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize object store: %w", err)
		}
		rt.ObjectStore = store
	}

	db, err := rt.openWarehouse(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rt.Source = warehouse.NewSQLSource(db, dialect, cfg.Prompt.SampleLimit)
	rt.Cache = promptctx.NewCache(promptctx.NewBuilder(rt.Source, logger), promptctx.CacheOptions{
		Size:         cfg.Cache.Size,
		TTL:          cfg.Cache.TTL,
		BuildTimeout: cfg.Warehouse.QueryTimeout,
	})

	var promptArchive *archive.Archive
	if archiveEnabled {
		promptArchive = archive.New(rt.ObjectStore)
	}

	rt.Service, err = assistant.NewService(assistant.Config{
		Request: promptctx.Request{
			Table:         cfg.Prompt.Table,
			Description:   cfg.Prompt.Description,
			MetadataQuery: MetadataQuery(cfg, dialect),
		},
		Template: prompt.Template{
			AssistantName: cfg.Prompt.AssistantName,
			Dialect:       dialect.DisplayName,
		},
		QueryTimeout: cfg.Warehouse.QueryTimeout,
	}, rt.Cache, promptArchive, logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) openWarehouse(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if cfg.Warehouse.Driver == config.DriverDuckDB {
		var mounts []duckdb.Mount
		if len(cfg.DuckDB.MountObjects) > 0 {
			mounts = []duckdb.Mount{{Table: cfg.Prompt.Table, ObjectKeys: cfg.DuckDB.MountObjects}}
		}
		wh, err := duckdb.Open(ctx, duckdb.Config{DSN: cfg.Warehouse.DSN, Store: rt.ObjectStore, Mounts: mounts})
		if err != nil {
			return nil, fmt.Errorf("open duckdb warehouse: %w", err)
		}
		rt.closers = append(rt.closers, wh.Close)
		return wh.DB, nil
	}

	db, err := warehouse.Open(ctx, warehouse.DBConfig{
		Driver:          cfg.Warehouse.Driver,
		DSN:             cfg.Warehouse.DSN,
		MaxOpenConns:    cfg.Warehouse.MaxOpenConns,
		MaxIdleConns:    cfg.Warehouse.MaxIdleConns,
		ConnMaxIdleTime: cfg.Warehouse.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Warehouse.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, db.Close)
	return db, nil
}

// MetadataQuery resolves the configured sample query: empty when disabled,
// the dialect's default when unset.
func MetadataQuery(cfg config.Config, dialect warehouse.Dialect) string {
	if !cfg.Prompt.MetadataQueryEnabled {
		return ""
	}
	if query := strings.TrimSpace(cfg.Prompt.MetadataQuery); query != "" {
		return query
	}
	return dialect.SampleQuery(cfg.Prompt.Table, cfg.Prompt.SampleLimit)
}

func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
