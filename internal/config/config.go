package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates runtime configuration for the PhotoVault API.
type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	MinIO     MinIOConfig
	Auth      AuthConfig
	Metrics   MetricsConfig
	Lifecycle LifecycleConfig
	Storage   StorageConfig
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	// MaxConnIdle is how long an unused connection stays in the pool.
	MaxConnIdle time.Duration
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// MinIOConfig carries MinIO connection and bucket information.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	BackupBucket    string
	UseSSL          bool
	Region          string
	PresignTTL      time.Duration
}

// AuthConfig groups authentication-related settings.
type AuthConfig struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	BcryptCost         int
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string
}

// LifecycleConfig tunes photo status transitions.
type LifecycleConfig struct {
	MaxStorageRetries int
}

// StorageConfig holds per-user storage defaults and content encryption settings.
type StorageConfig struct {
	DefaultQuotaBytes int64
	MaxUploadBytes    int64
	EncryptionSecret  string
	BackupBatchSize   int
}

// Load reads configuration values from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:         getString("PHOTOVAULT_API_HOST", "0.0.0.0"),
			Port:         getInt("PHOTOVAULT_API_PORT", 8080),
			ReadTimeout:  getDuration("PHOTOVAULT_API_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDuration("PHOTOVAULT_API_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  getDuration("PHOTOVAULT_API_IDLE_TIMEOUT", 60*time.Second),
		},
		Postgres: PostgresConfig{
			Host:        getString("POSTGRES_HOST", "localhost"),
			Port:        getInt("POSTGRES_PORT", 5432),
			User:        getString("POSTGRES_USER", "photovault_app"),
			Password:    getString("POSTGRES_PASSWORD", "change-me"),
			Database:    getString("POSTGRES_DB", "photovault"),
			SSLMode:     strings.ToLower(getString("POSTGRES_SSL_MODE", "disable")),
			MaxConns:    int32(getInt("POSTGRES_MAX_CONNS", 10)),
			MaxConnIdle: getDuration("POSTGRES_MAX_CONN_IDLE", 5*time.Minute),
		},
		MinIO: MinIOConfig{
			Endpoint:        getString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getString("MINIO_ROOT_USER", "photovault"),
			SecretAccessKey: getString("MINIO_ROOT_PASSWORD", "change-me-strong-password"),
			Bucket:          getString("MINIO_BUCKET", "photos"),
			BackupBucket:    getString("MINIO_BACKUP_BUCKET", "photos-backup"),
			UseSSL:          getBool("MINIO_USE_SSL", false),
			Region:          getString("MINIO_REGION", ""),
			PresignTTL:      getDuration("MINIO_PRESIGN_TTL", 15*time.Minute),
		},
		Auth: loadAuthConfig(),
		Metrics: MetricsConfig{
			PrometheusPath: getString("PHOTOVAULT_METRICS_PATH", "/metrics"),
		},
		Lifecycle: LifecycleConfig{
			MaxStorageRetries: getInt("PHOTOVAULT_MAX_STORAGE_RETRIES", 3),
		},
		Storage: StorageConfig{
			DefaultQuotaBytes: getInt64("PHOTOVAULT_DEFAULT_QUOTA_BYTES", 10_000_000_000),
			MaxUploadBytes:    getInt64("PHOTOVAULT_MAX_UPLOAD_BYTES", 100<<20),
			EncryptionSecret:  getString("PHOTOVAULT_ENCRYPTION_SECRET", ""),
			BackupBatchSize:   getInt("PHOTOVAULT_BACKUP_BATCH_SIZE", 50),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Lifecycle.MaxStorageRetries < 0 {
		return fmt.Errorf("PHOTOVAULT_MAX_STORAGE_RETRIES must not be negative")
	}
	if c.Storage.DefaultQuotaBytes <= 0 {
		return fmt.Errorf("PHOTOVAULT_DEFAULT_QUOTA_BYTES must be positive")
	}
	if c.MinIO.Bucket == c.MinIO.BackupBucket {
		return fmt.Errorf("MINIO_BACKUP_BUCKET must differ from MINIO_BUCKET")
	}
	return nil
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.ToLower(strings.TrimSpace(val))
		switch val {
		case "1", "true", "t", "yes", "y":
			return true
		case "0", "false", "f", "no", "n":
			return false
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func loadAuthConfig() AuthConfig {
	cost := getInt("PHOTOVAULT_AUTH_BCRYPT_COST", 12)
	if cost < 4 || cost > 31 {
		cost = 12
	}

	return AuthConfig{
		AccessTokenSecret:  getString("PHOTOVAULT_JWT_SECRET", "change-me-to-a-32-byte-secret"),
		RefreshTokenSecret: getString("PHOTOVAULT_JWT_REFRESH_SECRET", "change-me-to-a-64-byte-secret"),
		AccessTokenTTL:     getDuration("PHOTOVAULT_AUTH_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:    getDuration("PHOTOVAULT_AUTH_REFRESH_TOKEN_TTL", 720*time.Hour),
		BcryptCost:         cost,
	}
}
