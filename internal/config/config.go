// Package config loads application configuration from config.yaml and
// CLAIMTRACE_* environment variables, and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Verify    VerifyConfig    `yaml:"verify" mapstructure:"verify"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Alerts    AlertConfig     `yaml:"alerts" mapstructure:"alerts"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the lineage store backend.
type StoreConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// SQLitePath is used when Driver is "sqlite".
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns   int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns   int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for the proposal collaborator.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	// RatePerSecond bounds proposal calls across all workers.
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// VerifyConfig overrides verification thresholds; zero values fall back to
// the engine defaults.
type VerifyConfig struct {
	FuzzyThreshold      float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	ConfidenceFloor     float64 `yaml:"confidence_floor" mapstructure:"confidence_floor"`
	DescriptionOverlap  float64 `yaml:"description_overlap" mapstructure:"description_overlap"`
	PageMismatchPenalty float64 `yaml:"page_mismatch_penalty" mapstructure:"page_mismatch_penalty"`
	DescMismatchPenalty float64 `yaml:"desc_mismatch_penalty" mapstructure:"desc_mismatch_penalty"`
}

// RetryConfig configures the extraction retry loop and upstream resilience.
type RetryConfig struct {
	MaxAttempts        int `yaml:"max_attempts" mapstructure:"max_attempts"`
	AttemptTimeoutSecs int `yaml:"attempt_timeout_secs" mapstructure:"attempt_timeout_secs"`
	// Transient-error retry inside one proposal attempt.
	UpstreamMaxAttempts int `yaml:"upstream_max_attempts" mapstructure:"upstream_max_attempts"`
	InitialBackoffMs    int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs        int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	// Circuit breaker on the proposal collaborator.
	BreakerFailureThreshold int `yaml:"breaker_failure_threshold" mapstructure:"breaker_failure_threshold"`
	BreakerResetTimeoutSecs int `yaml:"breaker_reset_timeout_secs" mapstructure:"breaker_reset_timeout_secs"`
}

// BatchConfig configures batch extraction.
type BatchConfig struct {
	MaxConcurrentExtractions int `yaml:"max_concurrent_extractions" mapstructure:"max_concurrent_extractions"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// AlertConfig configures the hard-failure-rate webhook alerter.
type AlertConfig struct {
	WebhookURL        string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	HardFailRate      float64 `yaml:"hard_fail_rate" mapstructure:"hard_fail_rate"`
	MinWindowAttempts int     `yaml:"min_window_attempts" mapstructure:"min_window_attempts"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CLAIMTRACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "claimtrace.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.rate_per_second", 2.0)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.attempt_timeout_secs", 60)
	v.SetDefault("retry.upstream_max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.breaker_failure_threshold", 5)
	v.SetDefault("retry.breaker_reset_timeout_secs", 30)
	v.SetDefault("batch.max_concurrent_extractions", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("alerts.hard_fail_rate", 0.5)
	v.SetDefault("alerts.min_window_attempts", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields required for the given run mode ("extract",
// "serve", "link"). Link-only invocations never touch the Anthropic API, so
// they skip the key requirement.
func (c *Config) Validate(mode string) error {
	var missing []string

	requireStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				missing = append(missing, "store.database_url is required for the postgres driver")
			}
		case "sqlite":
			if c.Store.SQLitePath == "" {
				missing = append(missing, "store.sqlite_path is required for the sqlite driver")
			}
		default:
			missing = append(missing, "store.driver must be postgres or sqlite")
		}
	}

	switch mode {
	case "extract", "serve":
		requireStore()
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
	case "link":
		requireStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode == "serve" && c.Server.Port <= 0 {
		missing = append(missing, "server.port must be > 0")
	}
	if c.Batch.MaxConcurrentExtractions < 1 || c.Batch.MaxConcurrentExtractions > 50 {
		missing = append(missing, "batch.max_concurrent_extractions must be between 1 and 50")
	}
	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > 10 {
		missing = append(missing, "retry.max_attempts must be between 1 and 10")
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
