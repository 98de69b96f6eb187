package config

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "RSS_READER_CONFIG"
	databasePathEnv   = "RSS_READER_DB_PATH"
	lockPathEnv       = "RSS_READER_LOCK_PATH"
	fetcherUAEnv      = "RSS_READER_FETCHER_UA"
	metricsUAEnv      = "RSS_READER_METRICS_UA"
	logLevelEnv       = "RSS_READER_LOG_LEVEL"
	schedulerModeEnv  = "RSS_READER_SCHEDULE"
	autoBlockFlagEnv  = "RSS_READER_AUTOBLOCK"
	retentionHoursEnv = "RSS_READER_RETENTION_HOURS"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Fetcher   FetcherConfig   `yaml:"fetcher"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	AutoBlock AutoBlockConfig `yaml:"autoBlock"`
	Retention RetentionConfig `yaml:"retention"`
	Lock      LockConfig      `yaml:"lock"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig describes the SQLite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// FetcherConfig configures the feed HTTP client.
type FetcherConfig struct {
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
	UserAgent      string `yaml:"userAgent"`
}

// MetricsConfig configures the article scraping pass.
type MetricsConfig struct {
	TimeoutSeconds  int    `yaml:"timeoutSeconds"`
	UserAgent       string `yaml:"userAgent"`
	BatchSize       int    `yaml:"batchSize"`
	DelaySeconds    int    `yaml:"delaySeconds"`
	Prefix          string `yaml:"prefix"`
	PaywallSelector string `yaml:"paywallSelector"`
	BodySelector    string `yaml:"bodySelector"`
}

// AutoBlockConfig tunes the low-quality creator heuristic.
type AutoBlockConfig struct {
	Enabled           *bool   `yaml:"enabled"`
	MinCharacterCount int     `yaml:"minCharacterCount"`
	LinksPerParagraph float64 `yaml:"linksPerParagraph"`
}

// RetentionConfig controls the ignored-item sweep.
type RetentionConfig struct {
	IgnoredHours int `yaml:"ignoredHours"`
}

// LockConfig locates the run-lock marker file.
type LockConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig defines whether the pipeline runs once or repeats.
type SchedulerConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"intervalMinutes"`
}

// LoggingConfig sets the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv(lockPathEnv); v != "" {
		c.Lock.Path = v
	}

	if v := os.Getenv(fetcherUAEnv); v != "" {
		c.Fetcher.UserAgent = v
	}

	if v := os.Getenv(metricsUAEnv); v != "" {
		c.Metrics.UserAgent = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(schedulerModeEnv); v != "" {
		c.Scheduler.Enabled = v == "1" || v == "true"
	}

	if v := os.Getenv(autoBlockFlagEnv); v != "" {
		enabled := v == "1" || v == "true"
		c.AutoBlock.Enabled = &enabled
	}

	if v := os.Getenv(retentionHoursEnv); v != "" {
		if hours, err := strconv.Atoi(v); err != nil {
			log.Printf("config: invalid %s=%q, keeping %d", retentionHoursEnv, v, c.Retention.IgnoredHours)
		} else {
			c.Retention.IgnoredHours = hours
		}
	}
}

func mergeConfig(base, override Config) Config {
	if override.Database.Path != "" {
		base.Database = override.Database
	}

	if override.Fetcher.TimeoutSeconds > 0 {
		base.Fetcher.TimeoutSeconds = override.Fetcher.TimeoutSeconds
	}
	if override.Fetcher.UserAgent != "" {
		base.Fetcher.UserAgent = override.Fetcher.UserAgent
	}

	if override.Metrics.TimeoutSeconds > 0 {
		base.Metrics.TimeoutSeconds = override.Metrics.TimeoutSeconds
	}
	if override.Metrics.UserAgent != "" {
		base.Metrics.UserAgent = override.Metrics.UserAgent
	}
	if override.Metrics.BatchSize > 0 {
		base.Metrics.BatchSize = override.Metrics.BatchSize
	}
	if override.Metrics.DelaySeconds > 0 {
		base.Metrics.DelaySeconds = override.Metrics.DelaySeconds
	}
	if override.Metrics.Prefix != "" {
		base.Metrics.Prefix = override.Metrics.Prefix
	}
	if override.Metrics.PaywallSelector != "" {
		base.Metrics.PaywallSelector = override.Metrics.PaywallSelector
	}
	if override.Metrics.BodySelector != "" {
		base.Metrics.BodySelector = override.Metrics.BodySelector
	}

	if override.AutoBlock.Enabled != nil {
		base.AutoBlock.Enabled = override.AutoBlock.Enabled
	}
	if override.AutoBlock.MinCharacterCount > 0 {
		base.AutoBlock.MinCharacterCount = override.AutoBlock.MinCharacterCount
	}
	if override.AutoBlock.LinksPerParagraph > 0 {
		base.AutoBlock.LinksPerParagraph = override.AutoBlock.LinksPerParagraph
	}

	if override.Retention.IgnoredHours > 0 {
		base.Retention.IgnoredHours = override.Retention.IgnoredHours
	}

	if override.Lock.Path != "" {
		base.Lock = override.Lock
	}

	if override.Scheduler.Enabled {
		base.Scheduler.Enabled = true
	}
	if override.Scheduler.IntervalMinutes > 0 {
		base.Scheduler.IntervalMinutes = override.Scheduler.IntervalMinutes
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	return base
}

func defaultConfig() Config {
	enabled := true
	return Config{
		Database: DatabaseConfig{Path: "data/rss_reader.db"},
		Fetcher: FetcherConfig{
			TimeoutSeconds: 30,
			UserAgent:      "rss-reader-fetcher/1.0",
		},
		Metrics: MetricsConfig{
			TimeoutSeconds: 30,
			UserAgent:      "rss-reader-metrics/1.0",
			BatchSize:      10,
			DelaySeconds:   5,
		},
		AutoBlock: AutoBlockConfig{
			Enabled:           &enabled,
			MinCharacterCount: 800,
			LinksPerParagraph: 0.5,
		},
		Retention: RetentionConfig{IgnoredHours: 24},
		Lock:      LockConfig{Path: "data/fetch.lock"},
		Scheduler: SchedulerConfig{Enabled: false, IntervalMinutes: 120},
		Logging:   LoggingConfig{Level: "info"},
	}
}
