package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for loom-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (optional; enables the queue-backed job runner)
	Redis RedisConfig `yaml:"redis"`

	// Upload ingress configuration
	Uploads UploadConfig `yaml:"uploads"`

	// Cleaning pipeline configuration
	Cleaning CleaningConfig `yaml:"cleaning"`

	// Library override files (optional)
	Libraries LibrariesConfig `yaml:"libraries"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"loom"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"loom_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// RedisConfig holds Redis configuration. An empty host disables Redis and the
// orchestrator falls back to the inline job runner.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// UploadConfig holds file upload ingress settings.
type UploadConfig struct {
	// Dir is the directory where uploaded files are stored.
	Dir string `yaml:"dir" env:"UPLOAD_DIR" env-default:"uploads"`
	// MaxFileSizeMB is the per-file size cap at ingress.
	MaxFileSizeMB int64 `yaml:"max_file_size_mb" env:"UPLOAD_MAX_FILE_SIZE_MB" env-default:"100"`
	// MaxFilesPerRequest caps how many files one project-create call may carry.
	MaxFilesPerRequest int `yaml:"max_files_per_request" env:"UPLOAD_MAX_FILES" env-default:"10"`
	// AllowedExtensions restricts upload ingress. Other parsers exist but are
	// exercised via content type only.
	AllowedExtensions []string `yaml:"allowed_extensions" env:"UPLOAD_ALLOWED_EXTENSIONS" env-default:"csv,xlsx,xls,json"`
}

// CleaningConfig holds cleaning pipeline settings.
type CleaningConfig struct {
	// MaxParallelJobs bounds concurrent cleaning jobs per project.
	MaxParallelJobs int `yaml:"max_parallel_jobs" env:"CLEANING_MAX_PARALLEL_JOBS" env-default:"3"`
	// StageTimeoutMinutes is the per-stage timeout.
	StageTimeoutMinutes int `yaml:"stage_timeout_minutes" env:"CLEANING_STAGE_TIMEOUT_MINUTES" env-default:"10"`
	// DefaultCountryCode is the E.164 country code applied when a phone value
	// carries none. Deployment-wide setting.
	DefaultCountryCode string `yaml:"default_country_code" env:"CLEANING_DEFAULT_COUNTRY_CODE" env-default:"1"`
	// LogDir is where per-operation cleaning log documents are written.
	LogDir string `yaml:"log_dir" env:"CLEANING_LOG_DIR" env-default:"logs/cleaning"`
}

// LibrariesConfig points at optional YAML files that override the compiled-in
// domain signature and KPI libraries. Empty paths keep the built-ins.
type LibrariesConfig struct {
	DomainLibraryPath string `yaml:"domain_library_path" env:"DOMAIN_LIBRARY_PATH" env-default:""`
	KpiLibraryPath    string `yaml:"kpi_library_path" env:"KPI_LIBRARY_PATH" env-default:""`
}

// StageTimeout returns the per-stage timeout as a duration.
func (c *CleaningConfig) StageTimeout() time.Duration {
	return time.Duration(c.StageTimeoutMinutes) * time.Minute
}

// MaxFileSizeBytes returns the per-file size cap in bytes.
func (c *UploadConfig) MaxFileSizeBytes() int64 {
	return c.MaxFileSizeMB << 20
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// RedisEnabled reports whether a Redis host is configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

func (c *Config) validate() error {
	if c.Cleaning.MaxParallelJobs < 1 {
		return fmt.Errorf("cleaning.max_parallel_jobs must be >= 1, got %d", c.Cleaning.MaxParallelJobs)
	}
	if c.Cleaning.StageTimeoutMinutes < 1 {
		return fmt.Errorf("cleaning.stage_timeout_minutes must be >= 1, got %d", c.Cleaning.StageTimeoutMinutes)
	}
	if c.Uploads.MaxFileSizeMB < 1 {
		return fmt.Errorf("uploads.max_file_size_mb must be >= 1, got %d", c.Uploads.MaxFileSizeMB)
	}
	if c.Uploads.MaxFilesPerRequest < 1 {
		return fmt.Errorf("uploads.max_files_per_request must be >= 1, got %d", c.Uploads.MaxFilesPerRequest)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
