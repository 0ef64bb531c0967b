package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ghimmohmoh/ghimmohmoh/internal/tableref"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	DriverSnowflake = "snowflake"
	DriverPGX       = "pgx"
	DriverPostgres  = "postgres"
	DriverDuckDB    = "duckdb"
)

const defaultTableDescription = `
This table has sample covers attendance-based events that impact businesses. Attended events are gatherings with a start and end date/time, where people come together in one location for entertainment or business.
`

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Warehouse     WarehouseConfig
	Prompt        PromptConfig
	Cache         CacheConfig
	ObjectStore   ObjectStoreConfig
	Archive       ArchiveConfig
	DuckDB        DuckDBConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type WarehouseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

type PromptConfig struct {
	SchemaPath           string
	View                 string
	Table                tableref.Locator
	Description          string
	MetadataQuery        string
	MetadataQueryEnabled bool
	SampleLimit          int
	AssistantName        string
	WarmOnStart          bool
}

type CacheConfig struct {
	Size int
	TTL  time.Duration
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ArchiveConfig struct {
	Enabled bool
}

type DuckDBConfig struct {
	MountObjects []string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

// ConfigurationError reports a setting that is present but unusable.
type ConfigurationError struct {
	Key string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Key, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// LoadFromEnv reads the process environment, falling back to the file named by
// GHIMMOHMOH_SECRETS_FILE for keys the environment does not set.
func LoadFromEnv(serviceName string) (Config, error) {
	lookup := LookupFunc(os.LookupEnv)
	if path := strings.TrimSpace(os.Getenv(SecretsFileEnv)); path != "" {
		secrets, err := SecretsFileLookup(path)
		if err != nil {
			return Config{}, &ConfigurationError{Key: SecretsFileEnv, Err: err}
		}
		lookup = Chain(lookup, secrets)
	}
	return Load(serviceName, lookup)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("GHIMMOHMOH_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, &ConfigurationError{Key: "GHIMMOHMOH_PROFILE", Err: fmt.Errorf("unknown profile %q", profile)}
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	var mountObjects string
	appliers := []func() error{
		func() error { return applyString(lookup, "GHIMMOHMOH_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "GHIMMOHMOH_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "GHIMMOHMOH_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "GHIMMOHMOH_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "GHIMMOHMOH_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "GHIMMOHMOH_WAREHOUSE_DRIVER", &cfg.Warehouse.Driver) },
		func() error { return applyString(lookup, "GHIMMOHMOH_WAREHOUSE_DSN", &cfg.Warehouse.DSN) },
		func() error { return applyInt(lookup, "GHIMMOHMOH_WAREHOUSE_MAX_OPEN_CONNS", &cfg.Warehouse.MaxOpenConns) },
		func() error { return applyInt(lookup, "GHIMMOHMOH_WAREHOUSE_MAX_IDLE_CONNS", &cfg.Warehouse.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "GHIMMOHMOH_WAREHOUSE_CONN_MAX_IDLE_TIME", &cfg.Warehouse.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "GHIMMOHMOH_WAREHOUSE_CONN_MAX_LIFETIME", &cfg.Warehouse.ConnMaxLifetime)
		},
		func() error { return applyDuration(lookup, "GHIMMOHMOH_WAREHOUSE_QUERY_TIMEOUT", &cfg.Warehouse.QueryTimeout) },
		func() error { return applyString(lookup, "GHIMMOHMOH_SCHEMA_PATH", &cfg.Prompt.SchemaPath) },
		func() error { return applyString(lookup, "GHIMMOHMOH_TABLE_VIEW", &cfg.Prompt.View) },
		func() error { return applyRawString(lookup, "GHIMMOHMOH_TABLE_DESCRIPTION", &cfg.Prompt.Description) },
		func() error { return applyString(lookup, "GHIMMOHMOH_METADATA_QUERY", &cfg.Prompt.MetadataQuery) },
		func() error {
			return applyBool(lookup, "GHIMMOHMOH_METADATA_QUERY_ENABLED", &cfg.Prompt.MetadataQueryEnabled)
		},
		func() error { return applyInt(lookup, "GHIMMOHMOH_SAMPLE_LIMIT", &cfg.Prompt.SampleLimit) },
		func() error { return applyString(lookup, "GHIMMOHMOH_ASSISTANT_NAME", &cfg.Prompt.AssistantName) },
		func() error { return applyBool(lookup, "GHIMMOHMOH_WARM_ON_START", &cfg.Prompt.WarmOnStart) },
		func() error { return applyInt(lookup, "GHIMMOHMOH_CACHE_SIZE", &cfg.Cache.Size) },
		func() error { return applyDuration(lookup, "GHIMMOHMOH_CACHE_TTL", &cfg.Cache.TTL) },
		func() error { return applyString(lookup, "GHIMMOHMOH_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "GHIMMOHMOH_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "GHIMMOHMOH_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "GHIMMOHMOH_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error {
			return applyString(lookup, "GHIMMOHMOH_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "GHIMMOHMOH_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "GHIMMOHMOH_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "GHIMMOHMOH_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyBool(lookup, "GHIMMOHMOH_ARCHIVE_ENABLED", &cfg.Archive.Enabled) },
		func() error { return applyString(lookup, "GHIMMOHMOH_DUCKDB_MOUNT_OBJECTS", &mountObjects) },
		func() error { return applyBool(lookup, "GHIMMOHMOH_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "GHIMMOHMOH_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyBool(lookup, "GHIMMOHMOH_AUTH_REQUIRED", &cfg.Auth.Required) },
		func() error { return applyString(lookup, "GHIMMOHMOH_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}
	cfg.DuckDB.MountObjects = splitList(mountObjects)

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if err := finalize(&cfg); err != nil {
		return Config{}, err
	}
	// A DuckDB warehouse without mounts starts empty, so warming it would
	// fail every start. Opt in with GHIMMOHMOH_WARM_ON_START when the DSN
	// points at a database file that already holds the table.
	if _, explicit := lookup("GHIMMOHMOH_WARM_ON_START"); !explicit &&
		cfg.Warehouse.Driver == DriverDuckDB && len(cfg.DuckDB.MountObjects) == 0 {
		cfg.Prompt.WarmOnStart = false
	}
	return cfg, nil
}

func finalize(cfg *Config) error {
	cfg.Warehouse.Driver = strings.ToLower(cfg.Warehouse.Driver)
	switch cfg.Warehouse.Driver {
	case DriverSnowflake, DriverPGX, DriverPostgres, DriverDuckDB:
	default:
		return &ConfigurationError{Key: "GHIMMOHMOH_WAREHOUSE_DRIVER", Err: fmt.Errorf("unsupported driver %q", cfg.Warehouse.Driver)}
	}

	table, err := tableref.Join(cfg.Prompt.SchemaPath, cfg.Prompt.View)
	if err != nil {
		return &ConfigurationError{Key: "GHIMMOHMOH_SCHEMA_PATH", Err: err}
	}
	cfg.Prompt.Table = table

	if cfg.Prompt.SampleLimit <= 0 {
		return &ConfigurationError{Key: "GHIMMOHMOH_SAMPLE_LIMIT", Err: fmt.Errorf("must be > 0, got %d", cfg.Prompt.SampleLimit)}
	}
	if cfg.Cache.Size < 0 {
		return &ConfigurationError{Key: "GHIMMOHMOH_CACHE_SIZE", Err: fmt.Errorf("must be >= 0, got %d", cfg.Cache.Size)}
	}
	if cfg.Cache.TTL < 0 {
		return &ConfigurationError{Key: "GHIMMOHMOH_CACHE_TTL", Err: fmt.Errorf("must be >= 0, got %s", cfg.Cache.TTL)}
	}
	if cfg.Archive.Enabled && cfg.ObjectStore.Bucket == "" {
		return &ConfigurationError{Key: "GHIMMOHMOH_OBJECTSTORE_BUCKET", Err: fmt.Errorf("bucket is required when archiving is enabled")}
	}
	if len(cfg.DuckDB.MountObjects) > 0 && cfg.Warehouse.Driver != DriverDuckDB {
		return &ConfigurationError{Key: "GHIMMOHMOH_DUCKDB_MOUNT_OBJECTS", Err: fmt.Errorf("mounts require the %s driver", DriverDuckDB)}
	}
	if cfg.Warehouse.Driver != DriverDuckDB && cfg.Warehouse.DSN == "" {
		return &ConfigurationError{Key: "GHIMMOHMOH_WAREHOUSE_DSN", Err: fmt.Errorf("dsn is required for driver %q", cfg.Warehouse.Driver)}
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "ghimmohmoh-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Warehouse: WarehouseConfig{
			Driver:          DriverDuckDB,
			DSN:             "",
			MaxOpenConns:    4,
			MaxIdleConns:    4,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    30 * time.Second,
		},
		Prompt: PromptConfig{
			SchemaPath:           "GHIMMOHMOG_SAMPLE.PUBLIC",
			View:                 "VIEW3",
			Description:          defaultTableDescription,
			MetadataQueryEnabled: true,
			SampleLimit:          100,
			AssistantName:        "Ghimmohmoh",
			WarmOnStart:          true,
		},
		Cache: CacheConfig{
			Size: 64,
			TTL:  0,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "ghimmohmoh",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		Archive: ArchiveConfig{
			Enabled: false,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Prompt.WarmOnStart = false
	case ProfileProd:
		cfg.Warehouse.Driver = DriverSnowflake
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

// applyRawString keeps surrounding whitespace, which is significant in prompt text.
func applyRawString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = raw
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return &ConfigurationError{Key: key, Err: err}
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return &ConfigurationError{Key: key, Err: err}
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return &ConfigurationError{Key: key, Err: err}
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return &ConfigurationError{Key: key, Err: fmt.Errorf("unknown level %q", raw)}
	}
	return nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			values = append(values, part)
		}
	}
	return values
}
