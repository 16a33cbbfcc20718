// Package config loads process configuration from the environment, reading a
// .env file first when one is present.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"cylindercore/internal/archive"
	"cylindercore/internal/cache"
	"cylindercore/internal/core"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Archive   ArchiveConfig
	Cache     CacheConfig
	Catalog   CatalogConfig
	Log       LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"CYLINDER_SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"CYLINDER_SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"CYLINDER_SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"CYLINDER_SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"CYLINDER_SERVER_SHUTDOWN_TIMEOUT" default:"20s"`
	CORSOrigins     []string      `envconfig:"CYLINDER_CORS_ORIGINS" default:"*"`
}

// StorageConfig selects the persistent store.
type StorageConfig struct {
	Driver      string `envconfig:"CYLINDER_STORAGE_DRIVER" default:"sqlite"` // memory, sqlite, postgres or mysql
	SQLitePath  string `envconfig:"CYLINDER_SQLITE_PATH" default:"./data/cylindercore.db"`
	PostgresDSN string `envconfig:"CYLINDER_POSTGRES_DSN"`
	MySQLDSN    string `envconfig:"CYLINDER_MYSQL_DSN"`
}

// ArchiveConfig selects the audit report archive backend.
type ArchiveConfig struct {
	Driver            string `envconfig:"CYLINDER_ARCHIVE_DRIVER" default:"fs"` // fs, memory or s3
	FSRoot            string `envconfig:"CYLINDER_ARCHIVE_FS_ROOT" default:"./data/archive"`
	S3Bucket          string `envconfig:"CYLINDER_ARCHIVE_S3_BUCKET"`
	S3Region          string `envconfig:"CYLINDER_ARCHIVE_S3_REGION" default:"us-east-1"`
	S3Endpoint        string `envconfig:"CYLINDER_ARCHIVE_S3_ENDPOINT"`
	S3PathStyle       bool   `envconfig:"CYLINDER_ARCHIVE_S3_PATH_STYLE" default:"false"`
	S3AccessKeyID     string `envconfig:"CYLINDER_ARCHIVE_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `envconfig:"CYLINDER_ARCHIVE_S3_SECRET_ACCESS_KEY"`
}

// CacheConfig holds idempotency cache settings.
type CacheConfig struct {
	Type           string        `envconfig:"CYLINDER_CACHE_TYPE" default:"memory"` // memory or redis
	IdempotencyTTL time.Duration `envconfig:"CYLINDER_IDEMPOTENCY_TTL" default:"24h"`

	RedisHost     string `envconfig:"CYLINDER_REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"CYLINDER_REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"CYLINDER_REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"CYLINDER_REDIS_DB" default:"0"`
}

// CatalogConfig points at the gas compatibility catalogue.
type CatalogConfig struct {
	Path string `envconfig:"CYLINDER_CATALOG_PATH"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `envconfig:"CYLINDER_LOG_LEVEL" default:"info"`
	Format string `envconfig:"CYLINDER_LOG_FORMAT" default:"json"` // json or text
}

// RateLimitConfig bounds mutating requests per actor. A zero rate disables
// limiting.
type RateLimitConfig struct {
	RPS   float64 `envconfig:"CYLINDER_RATE_LIMIT_RPS" default:"20"`
	Burst int     `envconfig:"CYLINDER_RATE_LIMIT_BURST" default:"40"`
}

// Address returns the server address in host:port format.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// StoreConfig converts the section for core.OpenPersistentStore.
func (s StorageConfig) StoreConfig() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(s.Driver),
		SQLitePath:  s.SQLitePath,
		PostgresDSN: s.PostgresDSN,
		MySQLDSN:    s.MySQLDSN,
	}
}

// StoreConfig converts the section for archive.Open.
func (a ArchiveConfig) StoreConfig() archive.Config {
	return archive.Config{
		Driver: archive.Driver(a.Driver),
		FSRoot: a.FSRoot,
		S3: archive.S3Config{
			Bucket:          a.S3Bucket,
			Region:          a.S3Region,
			Endpoint:        a.S3Endpoint,
			PathStyle:       a.S3PathStyle,
			AccessKeyID:     a.S3AccessKeyID,
			SecretAccessKey: a.S3SecretAccessKey,
		},
	}
}

// StoreConfig converts the section for cache.Open.
func (c CacheConfig) StoreConfig() cache.Config {
	return cache.Config{
		Driver:        cache.Driver(c.Type),
		RedisAddr:     c.RedisAddress(),
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
	}
}

// Validate reports every inconsistent setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	switch c.Storage.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("CYLINDER_POSTGRES_DSN required for postgres storage"))
		}
	case "mysql":
		if c.Storage.MySQLDSN == "" {
			errs = append(errs, errors.New("CYLINDER_MYSQL_DSN required for mysql storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Archive.Driver {
	case "fs", "memory":
	case "s3":
		if c.Archive.S3Bucket == "" {
			errs = append(errs, errors.New("CYLINDER_ARCHIVE_S3_BUCKET required for s3 archive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown archive driver %q", c.Archive.Driver))
	}
	if !slices.Contains([]string{"memory", "redis"}, c.Cache.Type) {
		errs = append(errs, fmt.Errorf("unknown cache type %q", c.Cache.Type))
	}
	if c.Cache.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("idempotency ttl must be positive"))
	}
	if !slices.Contains([]string{"json", "text"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if c.RateLimit.RPS < 0 || (c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate limit needs a non-negative rate and a positive burst"))
	}
	return errors.Join(errs...)
}

// Load reads the given env files (".env" when none are named; missing files
// are ignored), then the environment, and validates the result. Variables
// already set in the environment win over file values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
