package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghimmohmoh/ghimmohmoh/internal/tableref"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("ghimmohmoh-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Warehouse.Driver != DriverDuckDB {
		t.Fatalf("Warehouse.Driver = %q", cfg.Warehouse.Driver)
	}
	if cfg.Prompt.SchemaPath != "GHIMMOHMOG_SAMPLE.PUBLIC" {
		t.Fatalf("Prompt.SchemaPath = %q", cfg.Prompt.SchemaPath)
	}
	if cfg.Prompt.Table.String() != "GHIMMOHMOG_SAMPLE.PUBLIC.VIEW3" {
		t.Fatalf("Prompt.Table = %q", cfg.Prompt.Table.String())
	}
	if !cfg.Prompt.MetadataQueryEnabled {
		t.Fatal("Prompt.MetadataQueryEnabled should default to true")
	}
	if cfg.Prompt.SampleLimit != 100 {
		t.Fatalf("Prompt.SampleLimit = %d", cfg.Prompt.SampleLimit)
	}
	if cfg.Prompt.AssistantName != "Ghimmohmoh" {
		t.Fatalf("Prompt.AssistantName = %q", cfg.Prompt.AssistantName)
	}
	if cfg.Cache.Size != 64 || cfg.Cache.TTL != 0 {
		t.Fatalf("Cache = %#v", cfg.Cache)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Archive.Enabled {
		t.Fatal("Archive.Enabled should default to false")
	}
}

func TestLoadProdProfileRequiresDSN(t *testing.T) {
	_, err := Load("ghimmohmoh-api", mapLookup(map[string]string{"GHIMMOHMOH_PROFILE": "prod"}))
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want ConfigurationError", err)
	}
	if cfgErr.Key != "GHIMMOHMOH_WAREHOUSE_DSN" {
		t.Fatalf("Key = %q", cfgErr.Key)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("ghimmohmoh-api", mapLookup(map[string]string{
		"GHIMMOHMOH_PROFILE":       "prod",
		"GHIMMOHMOH_WAREHOUSE_DSN": "user:pass@account/db",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Warehouse.Driver != DriverSnowflake {
		t.Fatalf("Warehouse.Driver = %q", cfg.Warehouse.Driver)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	cfg, err := Load("ghimmohmoh-api", mapLookup(map[string]string{
		"GHIMMOHMOH_PROFILE":                 "test",
		"GHIMMOHMOH_HTTP_ADDR":               ":9999",
		"GHIMMOHMOH_HTTP_READ_TIMEOUT":       "2s",
		"GHIMMOHMOH_LOG_LEVEL":               "error",
		"GHIMMOHMOH_WAREHOUSE_DRIVER":        "PGX",
		"GHIMMOHMOH_WAREHOUSE_DSN":           "postgres://example",
		"GHIMMOHMOH_WAREHOUSE_QUERY_TIMEOUT": "7s",
		"GHIMMOHMOH_SCHEMA_PATH":             "analytics.public",
		"GHIMMOHMOH_TABLE_VIEW":              "events",
		"GHIMMOHMOH_TABLE_DESCRIPTION":       "  Events table.  ",
		"GHIMMOHMOH_METADATA_QUERY":          "SELECT title, category FROM analytics.public.events LIMIT 5",
		"GHIMMOHMOH_SAMPLE_LIMIT":            "5",
		"GHIMMOHMOH_CACHE_SIZE":              "3",
		"GHIMMOHMOH_CACHE_TTL":               "10m",
		"GHIMMOHMOH_ASSISTANT_NAME":          "Helper",
		"GHIMMOHMOH_ARCHIVE_ENABLED":         "true",
		"GHIMMOHMOH_OBJECTSTORE_BUCKET":      "prompts",
		"GHIMMOHMOH_AUTH_REQUIRED":           "true",
		"GHIMMOHMOH_AUTH_STATIC_KEYS":        "k1:ops:prompt_admin",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %s", cfg.HTTP.ReadTimeout)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Warehouse.Driver != DriverPGX {
		t.Fatalf("Warehouse.Driver = %q", cfg.Warehouse.Driver)
	}
	if cfg.Warehouse.QueryTimeout != 7*time.Second {
		t.Fatalf("Warehouse.QueryTimeout = %s", cfg.Warehouse.QueryTimeout)
	}
	want := tableref.Locator{Database: "analytics", Schema: "public", Table: "events"}
	if cfg.Prompt.Table != want {
		t.Fatalf("Prompt.Table = %#v", cfg.Prompt.Table)
	}
	if cfg.Prompt.Description != "  Events table.  " {
		t.Fatalf("Prompt.Description = %q", cfg.Prompt.Description)
	}
	if cfg.Prompt.MetadataQuery == "" {
		t.Fatal("Prompt.MetadataQuery should be set")
	}
	if cfg.Prompt.SampleLimit != 5 {
		t.Fatalf("Prompt.SampleLimit = %d", cfg.Prompt.SampleLimit)
	}
	if cfg.Cache.Size != 3 || cfg.Cache.TTL != 10*time.Minute {
		t.Fatalf("Cache = %#v", cfg.Cache)
	}
	if cfg.Prompt.AssistantName != "Helper" {
		t.Fatalf("Prompt.AssistantName = %q", cfg.Prompt.AssistantName)
	}
	if !cfg.Archive.Enabled || cfg.ObjectStore.Bucket != "prompts" {
		t.Fatalf("Archive = %#v, bucket = %q", cfg.Archive, cfg.ObjectStore.Bucket)
	}
	if !cfg.Auth.Required || cfg.Auth.StaticKeys != "k1:ops:prompt_admin" {
		t.Fatalf("Auth = %#v", cfg.Auth)
	}
}

func TestLoadParsesDuckDBMounts(t *testing.T) {
	cfg, err := Load("ghimmohmoh-api", mapLookup(map[string]string{
		"GHIMMOHMOH_DUCKDB_MOUNT_OBJECTS": " fixtures/view3-a.parquet, ,fixtures/view3-b.parquet ",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.DuckDB.MountObjects) != 2 {
		t.Fatalf("MountObjects = %#v", cfg.DuckDB.MountObjects)
	}
	if cfg.DuckDB.MountObjects[1] != "fixtures/view3-b.parquet" {
		t.Fatalf("MountObjects[1] = %q", cfg.DuckDB.MountObjects[1])
	}
	if !cfg.Prompt.WarmOnStart {
		t.Fatal("WarmOnStart should stay on when the DuckDB view is mounted")
	}
}

func TestLoadSkipsWarmUpForEmptyDuckDB(t *testing.T) {
	cfg, err := Load("ghimmohmoh-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Prompt.WarmOnStart {
		t.Fatal("WarmOnStart should be off for DuckDB without mounts")
	}

	cfg, err = Load("ghimmohmoh-api", mapLookup(map[string]string{
		"GHIMMOHMOH_WAREHOUSE_DSN": "/var/lib/ghimmohmoh/sample.duckdb",
		"GHIMMOHMOH_WARM_ON_START": "true",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Prompt.WarmOnStart {
		t.Fatal("explicit GHIMMOHMOH_WARM_ON_START should win")
	}

	cfg, err = Load("ghimmohmoh-api", mapLookup(map[string]string{
		"GHIMMOHMOH_PROFILE":       "prod",
		"GHIMMOHMOH_WAREHOUSE_DSN": "user:pass@account/db",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Prompt.WarmOnStart {
		t.Fatal("WarmOnStart should default to true for snowflake")
	}
}

func TestLoadRejectsMalformedSchemaPath(t *testing.T) {
	tests := []string{"ONLY_DB", "DB.SCHEMA.EXTRA", "DB.", "DB.SCHEMA;DROP"}
	for _, schemaPath := range tests {
		_, err := Load("ghimmohmoh-api", mapLookup(map[string]string{"GHIMMOHMOH_SCHEMA_PATH": schemaPath}))
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("schema path %q: error = %v, want ConfigurationError", schemaPath, err)
		}
		if cfgErr.Key != "GHIMMOHMOH_SCHEMA_PATH" {
			t.Fatalf("schema path %q: Key = %q", schemaPath, cfgErr.Key)
		}
		if !errors.Is(err, tableref.ErrInvalidLocator) {
			t.Fatalf("schema path %q: error = %v, want ErrInvalidLocator", schemaPath, err)
		}
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"GHIMMOHMOH_PROFILE": "oops"},
		{"GHIMMOHMOH_HTTP_READ_TIMEOUT": "NaN"},
		{"GHIMMOHMOH_WAREHOUSE_DRIVER": "oracle"},
		{"GHIMMOHMOH_WAREHOUSE_MAX_OPEN_CONNS": "oops"},
		{"GHIMMOHMOH_SAMPLE_LIMIT": "0"},
		{"GHIMMOHMOH_CACHE_SIZE": "-1"},
		{"GHIMMOHMOH_CACHE_TTL": "-1s"},
		{"GHIMMOHMOH_METADATA_QUERY_ENABLED": "maybe"},
		{"GHIMMOHMOH_LOG_LEVEL": "verbose"},
		{"GHIMMOHMOH_ARCHIVE_ENABLED": "true", "GHIMMOHMOH_OBJECTSTORE_BUCKET": ""},
		{"GHIMMOHMOH_WAREHOUSE_DRIVER": "pgx", "GHIMMOHMOH_WAREHOUSE_DSN": "postgres://x", "GHIMMOHMOH_DUCKDB_MOUNT_OBJECTS": "a.parquet"},
	}
	for _, env := range tests {
		_, err := Load("ghimmohmoh-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("Load() error = %v for env %#v, want ConfigurationError", err, env)
		}
	}
}

func TestChainPrefersEarlierLookups(t *testing.T) {
	lookup := Chain(
		mapLookup(map[string]string{"A": "env"}),
		nil,
		mapLookup(map[string]string{"A": "secrets", "B": "secrets"}),
	)
	if value, _ := lookup("A"); value != "env" {
		t.Fatalf("A = %q", value)
	}
	if value, _ := lookup("B"); value != "secrets" {
		t.Fatalf("B = %q", value)
	}
	if _, ok := lookup("C"); ok {
		t.Fatal("C should be missing")
	}
}

func TestSecretsFileLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.env")
	if err := os.WriteFile(path, []byte("GHIMMOHMOH_SCHEMA_PATH=SECRET_DB.PUBLIC\n"), 0o600); err != nil {
		t.Fatalf("write secrets: %v", err)
	}
	secrets, err := SecretsFileLookup(path)
	if err != nil {
		t.Fatalf("SecretsFileLookup() error = %v", err)
	}
	cfg, err := Load("ghimmohmoh-api", Chain(mapLookup(map[string]string{}), secrets))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Prompt.Table.String() != "SECRET_DB.PUBLIC.VIEW3" {
		t.Fatalf("Prompt.Table = %q", cfg.Prompt.Table.String())
	}

	if _, err := SecretsFileLookup(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("expected error for missing secrets file")
	}
}

func TestLoadDotEnvSkipsMissingFiles(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
