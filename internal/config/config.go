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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Platform   PlatformConfig   `yaml:"platform" mapstructure:"platform"`
	Pool       PoolConfig       `yaml:"pool" mapstructure:"pool"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Enrichment EnrichmentConfig `yaml:"enrichment" mapstructure:"enrichment"`
	Fetcher    FetcherConfig    `yaml:"fetcher" mapstructure:"fetcher"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// PlatformConfig configures the scraping gateway client.
type PlatformConfig struct {
	BaseURL             string  `yaml:"base_url" mapstructure:"base_url"`
	Key                 string  `yaml:"key" mapstructure:"key"`
	UserAgent           string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs         int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond   float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst               int     `yaml:"burst" mapstructure:"burst"`
	MaxAttempts         int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs    int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs        int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	CircuitThreshold    int     `yaml:"circuit_threshold" mapstructure:"circuit_threshold"`
	CircuitCoolDownSecs int     `yaml:"circuit_cool_down_secs" mapstructure:"circuit_cool_down_secs"`
}

// PoolConfig configures endpoint rotation and health scoring.
type PoolConfig struct {
	RotateAfterFailures int      `yaml:"rotate_after_failures" mapstructure:"rotate_after_failures"`
	DeactivateBelowRate float64  `yaml:"deactivate_below_rate" mapstructure:"deactivate_below_rate"`
	MinSampleSize       int      `yaml:"min_sample_size" mapstructure:"min_sample_size"`
	Endpoints           []string `yaml:"endpoints" mapstructure:"endpoints"`
}

// DiscoveryConfig holds defaults for discovery runs started without explicit
// values.
type DiscoveryConfig struct {
	TargetsFile        string `yaml:"targets_file" mapstructure:"targets_file"`
	TargetCount        int    `yaml:"target_count" mapstructure:"target_count"`
	MinDelayMs         int    `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	MaxDelayMs         int    `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	TermDelayMs        int    `yaml:"term_delay_ms" mapstructure:"term_delay_ms"`
	TagDailyQuota      int    `yaml:"tag_daily_quota" mapstructure:"tag_daily_quota"`
	ChainDailyQuota    int    `yaml:"chain_daily_quota" mapstructure:"chain_daily_quota"`
	GeoDailyQuota      int    `yaml:"geo_daily_quota" mapstructure:"geo_daily_quota"`
	ExternalDailyQuota int    `yaml:"external_daily_quota" mapstructure:"external_daily_quota"`
	SeedSample         int    `yaml:"seed_sample" mapstructure:"seed_sample"`
	FollowersPerSeed   int    `yaml:"followers_per_seed" mapstructure:"followers_per_seed"`
	SecondHopSample    int    `yaml:"second_hop_sample" mapstructure:"second_hop_sample"`
	MatchURLContains   bool   `yaml:"match_url_contains" mapstructure:"match_url_contains"`
}

// EnrichmentConfig holds defaults for enrichment batches.
type EnrichmentConfig struct {
	BatchSize       int  `yaml:"batch_size" mapstructure:"batch_size"`
	MinDelayMs      int  `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	MaxDelayMs      int  `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	SkipPrivate     bool `yaml:"skip_private" mapstructure:"skip_private"`
	OnlyMissingData bool `yaml:"only_missing_data" mapstructure:"only_missing_data"`
}

// FetcherConfig configures downloads of external listing sources.
type FetcherConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// MonitoringConfig configures health checks and alerting.
type MonitoringConfig struct {
	Enabled                     bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL                  string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	RunFailureRateThreshold     float64 `yaml:"run_failure_rate_threshold" mapstructure:"run_failure_rate_threshold"`
	AttemptFailureRateThreshold float64 `yaml:"attempt_failure_rate_threshold" mapstructure:"attempt_failure_rate_threshold"`
	MinActiveEndpoints          int     `yaml:"min_active_endpoints" mapstructure:"min_active_endpoints"`
	CheckIntervalSecs           int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours         int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ACQUIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("platform.base_url", "")
	v.SetDefault("platform.key", "")
	v.SetDefault("platform.user_agent", "acquisition-cli/1.0")
	v.SetDefault("platform.timeout_secs", 30)
	v.SetDefault("platform.requests_per_second", 0.5)
	v.SetDefault("platform.burst", 1)
	v.SetDefault("platform.max_attempts", 3)
	v.SetDefault("platform.initial_backoff_ms", 2000)
	v.SetDefault("platform.max_backoff_ms", 30000)
	v.SetDefault("platform.circuit_threshold", 5)
	v.SetDefault("platform.circuit_cool_down_secs", 120)
	v.SetDefault("pool.rotate_after_failures", 3)
	v.SetDefault("pool.deactivate_below_rate", 20.0)
	v.SetDefault("pool.min_sample_size", 10)
	v.SetDefault("discovery.targets_file", "")
	v.SetDefault("discovery.target_count", 100)
	v.SetDefault("discovery.min_delay_ms", 3000)
	v.SetDefault("discovery.max_delay_ms", 8000)
	v.SetDefault("discovery.term_delay_ms", 15000)
	v.SetDefault("discovery.tag_daily_quota", 500)
	v.SetDefault("discovery.chain_daily_quota", 300)
	v.SetDefault("discovery.geo_daily_quota", 200)
	v.SetDefault("discovery.external_daily_quota", 1000)
	v.SetDefault("discovery.seed_sample", 10)
	v.SetDefault("discovery.followers_per_seed", 50)
	v.SetDefault("discovery.second_hop_sample", 5)
	v.SetDefault("discovery.match_url_contains", true)
	v.SetDefault("enrichment.batch_size", 50)
	v.SetDefault("enrichment.min_delay_ms", 2000)
	v.SetDefault("enrichment.max_delay_ms", 5000)
	v.SetDefault("enrichment.skip_private", true)
	v.SetDefault("enrichment.only_missing_data", true)
	v.SetDefault("fetcher.user_agent", "acquisition-cli/1.0")
	v.SetDefault("fetcher.timeout_secs", 120)
	v.SetDefault("fetcher.max_retries", 3)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.run_failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.attempt_failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_active_endpoints", 1)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)

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

// Validate checks that the keys a command mode depends on are set and that
// shared tuning values are in range.
func (c *Config) Validate(mode string) error {
	var errs []string
	required := func(ok bool, key string) {
		if !ok {
			errs = append(errs, key+" is required")
		}
	}

	switch mode {
	case "store":
		required(c.Store.DatabaseURL != "", "store.database_url")
	case "discovery":
		required(c.Store.DatabaseURL != "", "store.database_url")
		required(c.Platform.BaseURL != "", "platform.base_url")
	case "serve":
		required(c.Store.DatabaseURL != "", "store.database_url")
		required(c.Platform.BaseURL != "", "platform.base_url")
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "monitoring":
		required(c.Store.DatabaseURL != "", "store.database_url")
		required(c.Monitoring.WebhookURL != "", "monitoring.webhook_url")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Pool.RotateAfterFailures < 1 {
		errs = append(errs, "pool.rotate_after_failures must be >= 1")
	}
	if c.Pool.MinSampleSize < 1 {
		errs = append(errs, "pool.min_sample_size must be >= 1")
	}
	if c.Pool.DeactivateBelowRate < 0 || c.Pool.DeactivateBelowRate > 100 {
		errs = append(errs, "pool.deactivate_below_rate must be between 0 and 100")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
