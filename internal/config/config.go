package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"ozon-price-tracker/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Ozon      OzonConfig      `mapstructure:"ozon"`
	Render    RenderConfig    `mapstructure:"render"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs check cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// OzonConfig covers marketplace endpoints and request shaping.
type OzonConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	GraphQLURL     string        `mapstructure:"graphql_url"`
	ComposerURL    string        `mapstructure:"composer_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	AcceptLanguage string        `mapstructure:"accept_language"`
}

// RenderConfig tunes the browser-backed extraction strategy.
type RenderConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Headless    bool          `mapstructure:"headless"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	UserAgent   string        `mapstructure:"user_agent"`
}

// TrackerConfig defines price-change detection behaviour.
type TrackerConfig struct {
	ThresholdPct float64       `mapstructure:"threshold_pct"`
	FetchDelay   time.Duration `mapstructure:"fetch_delay"`
}

// TelegramConfig describes the notification channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OZONTRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ozontracker")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x6f7a6f6e))

	v.SetDefault("ozon.base_url", "https://www.ozon.ru")
	v.SetDefault("ozon.graphql_url", "https://www.ozon.ru/api/entrypoint-api.bx/graphql")
	v.SetDefault("ozon.composer_url", "https://api.ozon.ru/composer-api.bx/_action/productDetailV2")
	v.SetDefault("ozon.request_timeout", "15s")
	v.SetDefault("ozon.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("ozon.accept_language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")

	v.SetDefault("render.enabled", false)
	v.SetDefault("render.headless", true)
	v.SetDefault("render.wait_timeout", "20s")
	v.SetDefault("render.settle_delay", "3s")

	v.SetDefault("tracker.threshold_pct", 5.0)
	v.SetDefault("tracker.fetch_delay", "2s")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Tracker.ThresholdPct < 0 {
		return fmt.Errorf("tracker.threshold_pct cannot be negative")
	}
	if c.Tracker.FetchDelay < 0 {
		return fmt.Errorf("tracker.fetch_delay cannot be negative")
	}
	if c.Ozon.RequestTimeout <= 0 {
		return fmt.Errorf("ozon.request_timeout must be greater than zero")
	}
	if c.Render.Enabled && c.Render.WaitTimeout <= 0 {
		return fmt.Errorf("render.wait_timeout must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
