// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Upload   UploadConfig
	Auth     AuthConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Archive  ArchiveConfig
	Sync     SyncConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on; PORT is honoured for PaaS deploys (default: 8000)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8000"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing a response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is a postgres:// URL or a SQLite path (sqlite://, file:, *.db).
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the number of idle connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// StorageConfig locates workbooks on disk.
type StorageConfig struct {
	// ExcelFolder holds the live workbooks (default: ./excel_files)
	ExcelFolder string `env:"EXCEL_FOLDER" default:"./excel_files"`

	// ArchiveFolder receives soft-deleted workbooks with the local backend
	ArchiveFolder string `env:"ARCHIVE_FOLDER" default:"./excel_files/_archives"`

	// SheetMaxRow is the last physical row read into caches and counts (default: 1000)
	SheetMaxRow int `env:"SHEET_MAX_ROW" default:"1000"`

	// SkipListSync disables the sync run by the list-files operation.
	// RENDER is read as an alias for hosted deploys without a persistent disk.
	SkipListSync bool `env:"SKIP_LIST_SYNC" envAlt:"RENDER" default:"false"`

	// KeywordsFile overrides the embedded classification keyword set
	KeywordsFile string `env:"KEYWORDS_FILE"`
}

// UploadConfig holds workbook import settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"52428800"`

	// MaxConcurrent is the maximum number of parallel imports (default: 3)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"3"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`
}

// AuthConfig holds token settings.
type AuthConfig struct {
	// JWTSecret signs access and refresh tokens (required)
	JWTSecret string `env:"JWT_SECRET" required:"true"`

	// AccessTTL is the lifetime of access tokens (default: 1h)
	AccessTTL time.Duration `env:"JWT_ACCESS_TTL" default:"1h"`

	// RefreshTTL is the lifetime of refresh tokens (default: 7 days)
	RefreshTTL time.Duration `env:"JWT_REFRESH_TTL" default:"168h"`

	// SetupToken guards the bootstrap endpoint; empty disables it
	SetupToken string `env:"SETUP_TOKEN"`

	// SetupDataFile is the dump loaded by setup when load_data=true
	SetupDataFile string `env:"SETUP_DATA_FILE" default:"./data_export.json"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the rate limit per IP (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// CORSAllowedOrigins lists browser origins allowed to call the API
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Archive backends.
const (
	ArchiveLocal = "local"
	ArchiveS3    = "s3"
)

// ArchiveConfig selects where soft-deleted workbooks are kept.
type ArchiveConfig struct {
	// Backend is local or s3 (default: local)
	Backend string `env:"ARCHIVE_BACKEND" default:"local"`

	S3Bucket    string `env:"ARCHIVE_S3_BUCKET"`
	S3Region    string `env:"ARCHIVE_S3_REGION" default:"us-east-1"`
	S3Endpoint  string `env:"ARCHIVE_S3_ENDPOINT"`
	S3Prefix    string `env:"ARCHIVE_S3_PREFIX" default:"archives"`
	S3AccessKey string `env:"ARCHIVE_S3_ACCESS_KEY"`
	S3SecretKey string `env:"ARCHIVE_S3_SECRET_KEY"`
}

// SyncConfig holds the background cache sync settings.
type SyncConfig struct {
	// Interval between background syncs; 0 disables them (default: 0)
	Interval time.Duration `env:"SYNC_INTERVAL" default:"0s"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
