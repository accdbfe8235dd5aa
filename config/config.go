package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App     AppConfig     `yaml:"app"`
	Logging LoggingConfig `yaml:"logging"`
	Server  ServerConfig  `yaml:"server"`
	Feed    FeedConfig    `yaml:"feed"`
	Scrape  ScrapeConfig  `yaml:"scrape"`
	Catalog CatalogConfig `yaml:"catalog"`
	Signup  SignupConfig  `yaml:"signup"`
	Redis   RedisConfig   `yaml:"redis"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type ServerConfig struct {
	Address        string        `yaml:"address"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	LogHistory     int           `yaml:"log_history"`
	MetricsHistory int           `yaml:"metrics_history"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
	DisableDebug   bool          `yaml:"disable_debug"`
}

// FeedConfig drives the live feed session: upstream endpoints, timers and
// the fallback chain.
type FeedConfig struct {
	RestURL            string        `yaml:"rest_url"`
	StreamURL          string        `yaml:"stream_url"`
	StreamEnabled      bool          `yaml:"stream_enabled"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	ReconnectDelay     time.Duration `yaml:"reconnect_delay"`
	KeepAlive          time.Duration `yaml:"keep_alive"`
	PullTimeout        time.Duration `yaml:"pull_timeout"`
	QuickTimeout       time.Duration `yaml:"quick_timeout"`
	SeriesPoints       int           `yaml:"series_points"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	ScrapeFallback     bool          `yaml:"scrape_fallback"`
	KlineTimeframe     string        `yaml:"kline_timeframe"`
	KlineLimit         int           `yaml:"kline_limit"`
}

type ScrapeConfig struct {
	BaseURL         string        `yaml:"base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	AllowedPrefixes []string      `yaml:"allowed_prefixes"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
}

type SignupConfig struct {
	RelayURL string        `yaml:"relay_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MetricsConfig struct {
	Prometheus bool             `yaml:"prometheus"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

// Default returns a configuration usable without any file.
func Default() Config {
	return Config{
		App: AppConfig{Name: "upwrdfin", Version: "dev"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Server: ServerConfig{
			Address:        "0.0.0.0:8080",
			AllowedOrigins: []string{"*"},
			LogHistory:     200,
			MetricsHistory: 200,
			ShutdownGrace:  5 * time.Second,
		},
		Feed: FeedConfig{
			RestURL:            "https://psxterminal.com/api",
			StreamURL:          "wss://psxterminal.com/",
			StreamEnabled:      true,
			PollInterval:       30 * time.Second,
			ReconnectDelay:     5 * time.Second,
			KeepAlive:          20 * time.Second,
			PullTimeout:        10 * time.Second,
			QuickTimeout:       8 * time.Second,
			SeriesPoints:       11,
			RateLimitPerMinute: 100,
			ScrapeFallback:     true,
			KlineTimeframe:     "1d",
			KlineLimit:         30,
		},
		Scrape: ScrapeConfig{
			BaseURL:         "https://dps.psx.com.pk",
			Timeout:         10 * time.Second,
			AllowedPrefixes: []string{"market-watch", "timeseries/int/", "timeseries/eod/"},
			CacheTTL:        15 * time.Second,
		},
		Signup: SignupConfig{Timeout: 10 * time.Second},
		Redis:  RedisConfig{Addr: "localhost:6379"},
		Metrics: MetricsConfig{
			Prometheus: true,
			CloudWatch: CloudWatchConfig{Namespace: "UpwrdFin"},
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PSX_REST_URL"); v != "" {
		cfg.Feed.RestURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("PSX_WS_URL"); v != "" {
		cfg.Feed.StreamURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = strings.TrimSpace(v)
	}
	if v := os.Getenv("SIGNUP_RELAY_URL"); v != "" {
		cfg.Signup.RelayURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = strings.TrimSpace(v)
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" && cfg.Metrics.CloudWatch.Region == "" {
		cfg.Metrics.CloudWatch.Region = strings.TrimSpace(v)
	}
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	if err := validateURL("feed.rest_url", cfg.Feed.RestURL, "http", "https"); err != nil {
		return err
	}
	if cfg.Feed.StreamEnabled {
		if err := validateURL("feed.stream_url", cfg.Feed.StreamURL, "ws", "wss"); err != nil {
			return err
		}
	}
	if cfg.Feed.PollInterval <= 0 {
		return fmt.Errorf("feed.poll_interval must be greater than 0")
	}
	if cfg.Feed.ReconnectDelay <= 0 {
		return fmt.Errorf("feed.reconnect_delay must be greater than 0")
	}
	if cfg.Feed.PullTimeout <= 0 || cfg.Feed.QuickTimeout <= 0 {
		return fmt.Errorf("feed.pull_timeout and feed.quick_timeout must be greater than 0")
	}
	if cfg.Feed.SeriesPoints < 2 {
		return fmt.Errorf("feed.series_points must be at least 2")
	}
	if cfg.Feed.RateLimitPerMinute <= 0 {
		return fmt.Errorf("feed.rate_limit_per_minute must be greater than 0")
	}

	if err := validateURL("scrape.base_url", cfg.Scrape.BaseURL, "http", "https"); err != nil {
		return err
	}
	if len(cfg.Scrape.AllowedPrefixes) == 0 {
		return fmt.Errorf("scrape.allowed_prefixes must not be empty")
	}

	if cfg.Signup.RelayURL != "" {
		if err := validateURL("signup.relay_url", cfg.Signup.RelayURL, "http", "https"); err != nil {
			return err
		}
	}

	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s '%s' is invalid", field, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s must use one of %v", field, schemes)
}
