package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadDefaults(t *testing.T) {
	// No config.yaml in the test working directory, so defaults apply.
	cfg, err := Load("test")
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Version)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 3, cfg.Cleaning.MaxParallelJobs)
	assert.Equal(t, 10, cfg.Cleaning.StageTimeoutMinutes)
	assert.Equal(t, "1", cfg.Cleaning.DefaultCountryCode)
	assert.Equal(t, int64(100), cfg.Uploads.MaxFileSizeMB)
	assert.Equal(t, 10, cfg.Uploads.MaxFilesPerRequest)
	assert.False(t, cfg.RedisEnabled())
}

func TestLoadFromYAMLFile(t *testing.T) {
	doc, err := yaml.Marshal(map[string]any{
		"port": "9090",
		"env":  "production",
		"cleaning": map[string]any{
			"max_parallel_jobs":    4,
			"default_country_code": "49",
		},
		"uploads": map[string]any{
			"max_file_size_mb": 50,
		},
	})
	require.NoError(t, err)

	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile("config.yaml", doc, 0o644))

	cfg, err := Load("test")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, 4, cfg.Cleaning.MaxParallelJobs)
	assert.Equal(t, "49", cfg.Cleaning.DefaultCountryCode)
	assert.Equal(t, int64(50), cfg.Uploads.MaxFileSizeMB)
	// Unset fields keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.BindAddr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CLEANING_MAX_PARALLEL_JOBS", "5")
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("CLEANING_DEFAULT_COUNTRY_CODE", "44")

	cfg, err := Load("test")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Cleaning.MaxParallelJobs)
	assert.Equal(t, "44", cfg.Cleaning.DefaultCountryCode)
	assert.True(t, cfg.RedisEnabled())
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("CLEANING_MAX_PARALLEL_JOBS", "0")

	_, err := Load("test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_parallel_jobs")
}

func TestConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.local",
		Port:     5433,
		User:     "loom",
		Password: "secret",
		Database: "loom_engine",
		SSLMode:  "disable",
	}
	assert.Equal(t,
		"host=db.local port=5433 user=loom password=secret dbname=loom_engine sslmode=disable",
		cfg.ConnectionString())
}

func TestMaxFileSizeBytes(t *testing.T) {
	cfg := UploadConfig{MaxFileSizeMB: 100}
	assert.Equal(t, int64(100*1024*1024), cfg.MaxFileSizeBytes())
}

func TestStageTimeout(t *testing.T) {
	cfg := CleaningConfig{StageTimeoutMinutes: 10}
	assert.Equal(t, "10m0s", cfg.StageTimeout().String())
}
