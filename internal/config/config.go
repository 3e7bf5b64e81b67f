package config

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Supported store drivers
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Store    StoreConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	NFC      NFCConfig
	Geo      GeoConfig
	Ingest   IngestConfig
	Breaker  BreakerConfig
	Azure    AzureConfig
	Archive  ArchiveConfig
	Logging  LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string
	Environment     string
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// StoreConfig selects the record store backend
type StoreConfig struct {
	Driver string // postgres or mongo
}

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig holds the catalog cache configuration. An empty Addr disables the cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NFCConfig holds tag provisioning configuration
type NFCConfig struct {
	AppID string
}

// GeoConfig holds pharmacy ranking defaults
type GeoConfig struct {
	RadiusMeters float64
	K            int
	CacheTTL     time.Duration
}

// IngestConfig holds prescription ingestion configuration
type IngestConfig struct {
	MaxConcurrency int
	Timezone       string
}

// BreakerConfig holds the catalog circuit breaker settings
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// AzureConfig holds Azure service configuration
type AzureConfig struct {
	Storage StorageConfig
}

// StorageConfig holds Azure Blob Storage configuration
type StorageConfig struct {
	AccountName      string
	AccountKey       string
	ConnectionString string
	BlobEndpoint     string
	ArchiveContainer string
}

// ArchiveConfig holds tag archive encryption settings. An empty Key disables archiving.
type ArchiveConfig struct {
	Key string // hex encoded 32 byte AES key
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// Load reads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdowntimeout", 30*time.Second)
	v.SetDefault("server.allowedorigins", []string{"*"})

	// Database defaults
	v.SetDefault("database.maxopenconns", 25)
	v.SetDefault("database.maxidleconns", 5)
	v.SetDefault("database.connmaxlifetime", 5*time.Minute)

	v.SetDefault("store.driver", DriverPostgres)
	v.SetDefault("mongo.database", "rxtag")

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 10*time.Minute)

	v.SetDefault("nfc.appid", "com.example.rxtag")

	v.SetDefault("geo.radiusmeters", 6000.0)
	v.SetDefault("geo.k", 3)
	v.SetDefault("geo.cachettl", 15*time.Minute)

	v.SetDefault("ingest.maxconcurrency", 8)
	v.SetDefault("ingest.timezone", "UTC")

	v.SetDefault("breaker.maxrequests", 1)
	v.SetDefault("breaker.interval", time.Minute)
	v.SetDefault("breaker.timeout", 30*time.Second)
	v.SetDefault("breaker.failurethreshold", 5)

	v.SetDefault("azure.storage.archivecontainer", "tag-archive")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.environment", "ENV", "ENVIRONMENT")

	// Stores
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("store.driver", "STORE_DRIVER")
	v.BindEnv("mongo.uri", "MONGODB_URI")
	v.BindEnv("mongo.database", "MONGODB_DATABASE")

	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("redis.ttl", "REDIS_TTL")

	v.BindEnv("nfc.appid", "NFC_APP_ID")

	v.BindEnv("geo.radiusmeters", "GEO_RADIUS_METERS")
	v.BindEnv("geo.k", "GEO_K")
	v.BindEnv("geo.cachettl", "GEO_CACHE_TTL")

	v.BindEnv("ingest.maxconcurrency", "INGEST_MAX_CONCURRENCY")
	v.BindEnv("ingest.timezone", "INGEST_TIMEZONE")

	v.BindEnv("breaker.timeout", "BREAKER_TIMEOUT")
	v.BindEnv("breaker.failurethreshold", "BREAKER_FAILURE_THRESHOLD")

	// Azure Storage
	v.BindEnv("azure.storage.accountname", "AZURE_STORAGE_ACCOUNT_NAME")
	v.BindEnv("azure.storage.accountkey", "AZURE_STORAGE_ACCOUNT_KEY")
	v.BindEnv("azure.storage.connectionstring", "AZURE_STORAGE_CONNECTION_STRING")
	v.BindEnv("azure.storage.blobendpoint", "AZURE_STORAGE_BLOB_ENDPOINT")
	v.BindEnv("azure.storage.archivecontainer", "AZURE_STORAGE_ARCHIVE_CONTAINER")
	v.BindEnv("archive.key", "ARCHIVE_KEY")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.format", "LOG_FORMAT")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required")
		}
	case DriverMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("mongo.uri is required when store.driver is %s", DriverMongo)
		}
		// pharmacies and audit entries always live in Postgres
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required")
		}
	default:
		return fmt.Errorf("unsupported store.driver %q", c.Store.Driver)
	}

	if c.NFC.AppID == "" {
		return fmt.Errorf("nfc.appid is required")
	}

	if c.Geo.RadiusMeters < 0 {
		return fmt.Errorf("geo.radiusmeters must not be negative")
	}

	if c.Geo.K < 0 {
		return fmt.Errorf("geo.k must not be negative")
	}

	if c.Ingest.MaxConcurrency < 1 {
		return fmt.Errorf("ingest.maxconcurrency must be at least 1")
	}

	if _, err := time.LoadLocation(c.Ingest.Timezone); err != nil {
		return fmt.Errorf("invalid ingest.timezone: %w", err)
	}

	if c.Archive.Key != "" {
		if _, err := c.ArchiveKeyBytes(); err != nil {
			return err
		}
		if c.Azure.Storage.ConnectionString == "" && (c.Azure.Storage.AccountName == "" || c.Azure.Storage.AccountKey == "") {
			return fmt.Errorf("azure storage credentials are required when archive.key is set (either connection string or account name + key)")
		}
	}

	return nil
}

// ArchiveKeyBytes decodes the archive key
func (c *Config) ArchiveKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(c.Archive.Key)
	if err != nil {
		return nil, fmt.Errorf("archive.key must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("archive.key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// Location returns the time zone prescription timestamps are parsed in
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Ingest.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ArchiveEnabled reports whether committed payloads are archived
func (c *Config) ArchiveEnabled() bool {
	return c.Archive.Key != ""
}

// CacheEnabled reports whether catalog lookups go through Redis
func (c *Config) CacheEnabled() bool {
	return c.Redis.Addr != ""
}
