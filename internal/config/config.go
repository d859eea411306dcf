// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/sitelens/internal/scrape"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Scraper    ScraperConfig    `mapstructure:"scraper"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Budget     BudgetConfig     `mapstructure:"budget"`
	Downloader DownloaderConfig `mapstructure:"downloader"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Progress   ProgressConfig   `mapstructure:"progress"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScraperConfig governs acquisition strategy selection and the static fetch.
type ScraperConfig struct {
	DefaultMode    string        `mapstructure:"default_mode"`
	UserAgent      string        `mapstructure:"user_agent"`
	FastTimeout    time.Duration `mapstructure:"fast_timeout"`
	MaxMarkupBytes int           `mapstructure:"max_markup_bytes"`
	ImpersonateTLS bool          `mapstructure:"impersonate_tls"`
	MinDeepBudget  time.Duration `mapstructure:"min_deep_budget"`
	DeepGrace      time.Duration `mapstructure:"deep_grace"`
	PromoteBelow   int           `mapstructure:"promote_body_below"`
	MinVisibleText int           `mapstructure:"min_visible_text"`
}

// BrowserConfig configures the headless browser source and the Deep pass.
type BrowserConfig struct {
	Source            string        `mapstructure:"source"`
	WSEndpoint        string        `mapstructure:"ws_endpoint"`
	ExecPath          string        `mapstructure:"exec_path"`
	DownloadDir       string        `mapstructure:"download_dir"`
	MaxParallel       int           `mapstructure:"max_parallel"`
	LaunchTimeout     time.Duration `mapstructure:"launch_timeout"`
	NoSandbox         bool          `mapstructure:"no_sandbox"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	ScrollStep        int           `mapstructure:"scroll_step"`
	ScrollInterval    time.Duration `mapstructure:"scroll_interval"`
	MaxScroll         int           `mapstructure:"max_scroll"`
	Settle            time.Duration `mapstructure:"settle"`
	SampleLimit       int           `mapstructure:"sample_limit"`
	Stealth           bool          `mapstructure:"stealth"`
}

// BudgetConfig sets the wall-clock governor thresholds.
type BudgetConfig struct {
	Ceiling             time.Duration `mapstructure:"ceiling"`
	DownloadReduceBelow time.Duration `mapstructure:"download_reduce_below"`
	DownloadSkipBelow   time.Duration `mapstructure:"download_skip_below"`
	ReducedCap          int           `mapstructure:"reduced_cap"`
}

// DownloaderConfig tunes asset materialization.
type DownloaderConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxCandidates int           `mapstructure:"max_candidates"`
	MaxBytes      int64         `mapstructure:"max_bytes"`
}

// StorageConfig selects the object store.
type StorageConfig struct {
	Provider      string `mapstructure:"provider"`
	Bucket        string `mapstructure:"bucket"`
	BaseDir       string `mapstructure:"base_dir"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	Prefix        string `mapstructure:"prefix"`
}

// DatabaseConfig selects the job and log stores.
type DatabaseConfig struct {
	Provider        string        `mapstructure:"provider"`
	DSN             string        `mapstructure:"dsn"`
	PrivilegedDSN   string        `mapstructure:"privileged_dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// QueueConfig sizes the in-process job queue and worker pool.
type QueueConfig struct {
	Depth   int `mapstructure:"depth"`
	Workers int `mapstructure:"workers"`
}

// ProgressConfig sizes the progress hub.
type ProgressConfig struct {
	BufferSize int           `mapstructure:"buffer_size"`
	BatchSize  int           `mapstructure:"batch_size"`
	BatchWait  time.Duration `mapstructure:"batch_wait"`
}

// MetricsConfig toggles the Prometheus endpoint and sink.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig selects the zap encoder and minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITELENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "90s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("scraper.default_mode", string(scrape.ModeFast))
	v.SetDefault("scraper.user_agent", "")
	v.SetDefault("scraper.fast_timeout", "8s")
	v.SetDefault("scraper.max_markup_bytes", 5<<20)
	v.SetDefault("scraper.impersonate_tls", false)
	v.SetDefault("scraper.min_deep_budget", "10s")
	v.SetDefault("scraper.deep_grace", "3s")
	v.SetDefault("scraper.promote_body_below", 0)
	v.SetDefault("scraper.min_visible_text", 0)
	v.SetDefault("browser.source", "none")
	v.SetDefault("browser.max_parallel", 2)
	v.SetDefault("browser.launch_timeout", "20s")
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.navigation_timeout", "45s")
	v.SetDefault("browser.scroll_step", 400)
	v.SetDefault("browser.scroll_interval", "100ms")
	v.SetDefault("browser.max_scroll", 15000)
	v.SetDefault("browser.settle", "2s")
	v.SetDefault("browser.sample_limit", 2000)
	v.SetDefault("browser.stealth", true)
	v.SetDefault("budget.ceiling", "55s")
	v.SetDefault("budget.download_reduce_below", "20s")
	v.SetDefault("budget.download_skip_below", "6s")
	v.SetDefault("budget.reduced_cap", 20)
	v.SetDefault("downloader.batch_size", 10)
	v.SetDefault("downloader.timeout", "8s")
	v.SetDefault("downloader.max_candidates", 100)
	v.SetDefault("downloader.max_bytes", 10<<20)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("database.provider", "memory")
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.topic", "sitelens-scrapes")
	v.SetDefault("queue.depth", 64)
	v.SetDefault("queue.workers", 2)
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.batch_size", 256)
	v.SetDefault("progress.batch_wait", "250ms")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if !scrape.Mode(c.Scraper.DefaultMode).Valid() {
		return fmt.Errorf("scraper.default_mode must be one of fast, deep, auto (got %q)", c.Scraper.DefaultMode)
	}
	if c.Scraper.FastTimeout <= 0 {
		return fmt.Errorf("scraper.fast_timeout must be > 0")
	}
	switch c.Browser.Source {
	case "none", "":
	case "remote":
		if c.Browser.WSEndpoint == "" {
			return fmt.Errorf("browser.ws_endpoint is required for the remote source")
		}
	case "managed", "local":
		if c.Browser.MaxParallel <= 0 {
			return fmt.Errorf("browser.max_parallel must be > 0")
		}
	default:
		return fmt.Errorf("browser.source must be one of none, remote, managed, local (got %q)", c.Browser.Source)
	}
	if c.Budget.Ceiling <= 0 {
		return fmt.Errorf("budget.ceiling must be > 0")
	}
	if c.Budget.DownloadSkipBelow > c.Budget.DownloadReduceBelow {
		return fmt.Errorf("budget.download_skip_below must not exceed budget.download_reduce_below")
	}
	if c.Downloader.BatchSize <= 0 {
		return fmt.Errorf("downloader.batch_size must be > 0")
	}
	if c.Downloader.MaxCandidates <= 0 {
		return fmt.Errorf("downloader.max_candidates must be > 0")
	}
	switch c.Storage.Provider {
	case "memory":
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for the local provider")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("storage.provider must be one of memory, local, gcs (got %q)", c.Storage.Provider)
	}
	switch c.Database.Provider {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" && c.Database.PrivilegedDSN == "" {
			return fmt.Errorf("database.dsn or database.privileged_dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.provider must be one of memory, postgres (got %q)", c.Database.Provider)
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic are required when pubsub is enabled")
	}
	if c.Queue.Depth <= 0 || c.Queue.Workers <= 0 {
		return fmt.Errorf("queue.depth and queue.workers must be > 0")
	}
	return nil
}

// Mode returns the configured default acquisition mode.
func (c Config) Mode() scrape.Mode {
	return scrape.Mode(c.Scraper.DefaultMode)
}

// CompletionTopic returns the topic completion events go to, or "" when
// publishing is disabled.
func (c Config) CompletionTopic() string {
	if !c.PubSub.Enabled {
		return ""
	}
	return c.PubSub.Topic
}
