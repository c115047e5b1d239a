package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Pool.RotateAfterFailures)
	assert.InDelta(t, 20.0, cfg.Pool.DeactivateBelowRate, 0.001)
	assert.Equal(t, 10, cfg.Pool.MinSampleSize)
	assert.Equal(t, 3, cfg.Platform.MaxAttempts)
	assert.InDelta(t, 0.5, cfg.Platform.RequestsPerSecond, 0.001)
	assert.Equal(t, 100, cfg.Discovery.TargetCount)
	assert.Equal(t, 3000, cfg.Discovery.MinDelayMs)
	assert.Equal(t, 8000, cfg.Discovery.MaxDelayMs)
	assert.True(t, cfg.Discovery.MatchURLContains)
	assert.Equal(t, 50, cfg.Enrichment.BatchSize)
	assert.True(t, cfg.Enrichment.SkipPrivate)
	assert.True(t, cfg.Enrichment.OnlyMissingData)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
log:
  level: debug
  format: console
server:
  port: 9090
pool:
  rotate_after_failures: 5
  endpoints:
    - http://10.0.0.1:8080
    - socks5://u:p@10.0.0.2:1080
discovery:
  match_url_contains: false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Pool.RotateAfterFailures)
	assert.Len(t, cfg.Pool.Endpoints, 2)
	assert.False(t, cfg.Discovery.MatchURLContains)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Pool.MinSampleSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ACQUIRE_LOG_LEVEL", "warn")
	t.Setenv("ACQUIRE_STORE_DATABASE_URL", "postgres://localhost/acq")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "postgres://localhost/acq", cfg.Store.DatabaseURL)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Pool.RotateAfterFailures = 3
	cfg.Pool.DeactivateBelowRate = 20
	cfg.Pool.MinSampleSize = 10
	return cfg
}

func TestValidateDiscovery(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("discovery")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "platform.base_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/acq"
	cfg.Platform.BaseURL = "https://gateway.local"
	assert.NoError(t, cfg.Validate("discovery"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/acq"
	cfg.Platform.BaseURL = "https://gateway.local"
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateMonitoring(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/acq"

	err := cfg.Validate("monitoring")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring.webhook_url is required")
}

func TestValidatePoolBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/acq"

	cfg.Pool.DeactivateBelowRate = 120
	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deactivate_below_rate")

	cfg.Pool.DeactivateBelowRate = 20
	cfg.Pool.RotateAfterFailures = 0
	err = cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rotate_after_failures")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestLoadTargets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	body := `
countries: [de]
platforms: [instagram, tiktok]
tags: [fitness, vegan]
locations:
  - id: "213359469"
    name: Berlin
    country: DE
external:
  - url: https://example.com/creators.csv
    format: csv
    column: handle
    platform: instagram
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	targets, err := LoadTargets(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"instagram", "tiktok"}, targets.Platforms)
	assert.Equal(t, []string{"fitness", "vegan"}, targets.Tags)
	require.Len(t, targets.Locations, 1)
	assert.Equal(t, "Berlin", targets.Locations[0].Name)
	require.Len(t, targets.External, 1)
	assert.Equal(t, "handle", targets.External[0].Column)
}

func TestLoadTargets_Missing(t *testing.T) {
	_, err := LoadTargets(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
