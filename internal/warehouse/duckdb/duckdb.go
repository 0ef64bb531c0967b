// Package duckdb provides a local warehouse backed by an embedded DuckDB
// database. Parquet objects from the object store are mounted as views so the
// prompt pipeline can run without a remote warehouse.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/ghimmohmoh/ghimmohmoh/internal/storage"
	"github.com/ghimmohmoh/ghimmohmoh/internal/tableref"
)

// Mount exposes the parquet objects under ObjectKeys as the view Table.
type Mount struct {
	Table      tableref.Locator
	ObjectKeys []string
}

type Config struct {
	DSN    string
	Store  storage.ObjectStore
	Mounts []Mount
}

type Warehouse struct {
	DB      *sql.DB
	workDir string
}

func Open(ctx context.Context, cfg Config) (*Warehouse, error) {
	if len(cfg.Mounts) > 0 && cfg.Store == nil {
		return nil, fmt.Errorf("object store is required for mounts")
	}

	db, err := sql.Open("duckdb", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// Mounted views live in attached in-memory catalogs; keep one connection.
	db.SetMaxOpenConns(1)

	w := &Warehouse{DB: db}
	if len(cfg.Mounts) == 0 {
		return w, nil
	}

	w.workDir, err = os.MkdirTemp("", "ghimmohmoh-duckdb-")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create duckdb work dir: %w", err)
	}
	for index, mount := range cfg.Mounts {
		if err := w.mount(ctx, cfg.Store, index, mount); err != nil {
			_ = w.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Warehouse) mount(ctx context.Context, store storage.ObjectStore, index int, mount Mount) error {
	if mount.Table.IsZero() {
		return fmt.Errorf("mount %d: table is required", index)
	}
	if len(mount.ObjectKeys) == 0 {
		return fmt.Errorf("mount %s: no object keys", mount.Table)
	}

	localPaths := make([]string, 0, len(mount.ObjectKeys))
	for fileIndex, key := range mount.ObjectKeys {
		reader, err := store.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("get object %q: %w", key, err)
		}
		localPath := filepath.Join(w.workDir, fmt.Sprintf("%s_%d_%d.parquet", sanitizeFileComponent(mount.Table.Table), index, fileIndex))
		if err := writeFile(localPath, reader); err != nil {
			_ = reader.Close()
			return fmt.Errorf("write local parquet file %q: %w", localPath, err)
		}
		if err := reader.Close(); err != nil {
			return fmt.Errorf("close object %q: %w", key, err)
		}
		localPaths = append(localPaths, localPath)
	}

	database := quoteIdent(mount.Table.Database)
	schema := database + "." + quoteIdent(mount.Table.Schema)
	statements := []string{
		fmt.Sprintf(`ATTACH IF NOT EXISTS ':memory:' AS %s`, database),
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),
		fmt.Sprintf(`CREATE OR REPLACE VIEW %s.%s AS SELECT * FROM read_parquet(%s)`, schema, quoteIdent(mount.Table.Table), quoteStringArray(localPaths)),
	}
	for _, statement := range statements {
		if _, err := w.DB.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("mount %s: %w", mount.Table, err)
		}
	}
	return nil
}

// Close closes the database and removes downloaded parquet files.
func (w *Warehouse) Close() error {
	err := w.DB.Close()
	if w.workDir != "" {
		if removeErr := os.RemoveAll(w.workDir); removeErr != nil && err == nil {
			err = removeErr
		}
	}
	return err
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}
