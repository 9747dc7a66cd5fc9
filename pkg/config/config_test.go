package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := load(viper.New(), t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, time.Minute, cfg.Scheduler.Interval)
	require.Equal(t, 1, cfg.Scheduler.Concurrency)
	require.Equal(t, "openai", cfg.Analysis.Provider)
	require.Equal(t, "sqlite", cfg.Database.Type)
	require.Equal(t, "log", cfg.Notify.Mode)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
APP_ENV: production
SCHEDULER:
  INTERVAL: 30s
  CONCURRENCY: 2
ANALYSIS:
  PROVIDER: ollama
  MODEL: llava
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("SCHEDULER_CONCURRENCY", "4")

	cfg, err := load(viper.New(), dir)
	require.NoError(t, err)

	require.Equal(t, "production", cfg.AppEnv)
	require.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
	require.Equal(t, 4, cfg.Scheduler.Concurrency)
	require.Equal(t, "ollama", cfg.Analysis.Provider)
	require.Equal(t, "llava", cfg.Analysis.Model)
}

func TestValidate(t *testing.T) {
	cfg, err := load(viper.New(), t.TempDir())
	require.NoError(t, err)

	bad := *cfg
	bad.Scheduler.Interval = 0
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Analysis.Provider = "gemini"
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Credentials.Backend = "keychain"
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Otel.Protocol = "zipkin"
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.TLS.Enable = true
	require.Error(t, bad.Validate())
}
