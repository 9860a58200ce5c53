package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "claimtrace.db", cfg.Store.SQLitePath)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, int64(2048), cfg.Anthropic.MaxTokens)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 60, cfg.Retry.AttemptTimeoutSecs)
	assert.Equal(t, 5, cfg.Retry.BreakerFailureThreshold)
	assert.Equal(t, 5, cfg.Batch.MaxConcurrentExtractions)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 0.5, cfg.Alerts.HardFailRate, 0.001)
	assert.Equal(t, 20, cfg.Alerts.MinWindowAttempts)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: sqlite
  sqlite_path: /tmp/lineage.db
retry:
  max_attempts: 5
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(".", "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/lineage.db", cfg.Store.SQLitePath)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 60, cfg.Retry.AttemptTimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0644))

	t.Setenv("CLAIMTRACE_STORE_DRIVER", "postgres")
	t.Setenv("CLAIMTRACE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chTempDir(t)

	t.Setenv("CLAIMTRACE_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

// validDefaults returns a Config populated like Load with no file or env.
func validDefaults() *Config {
	return &Config{
		Store:  StoreConfig{Driver: "sqlite", SQLitePath: "claimtrace.db"},
		Retry:  RetryConfig{MaxAttempts: 3},
		Batch:  BatchConfig{MaxConcurrentExtractions: 5},
		Server: ServerConfig{Port: 8080},
	}
}

func TestValidateExtract_RequiresKey(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")

	cfg.Anthropic.Key = "sk-ant-key"
	assert.NoError(t, cfg.Validate("extract"))
}

func TestValidateLink_SkipsKey(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("link"))
}

func TestValidate_StoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store = StoreConfig{Driver: "postgres"}

	err := cfg.Validate("link")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("link")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.MaxConcurrentExtractions = 0
	err := cfg.Validate("link")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_extractions must be between 1 and 50")

	cfg.Batch.MaxConcurrentExtractions = 51
	err = cfg.Validate("link")
	assert.Error(t, err)

	cfg.Batch.MaxConcurrentExtractions = 50
	assert.NoError(t, cfg.Validate("link"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
