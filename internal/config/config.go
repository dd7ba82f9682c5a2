package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"alertwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Rules     []RuleConfig    `mapstructure:"rules"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. Leaving the DSN
// empty runs the engine without persistence.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs evaluation cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// EngineConfig tunes the evaluation engine.
type EngineConfig struct {
	FetchWorkers int           `mapstructure:"fetch_workers"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// SourcesConfig holds per-adapter connectivity settings.
type SourcesConfig struct {
	Binance   BinanceConfig   `mapstructure:"binance"`
	Chainlink ChainlinkConfig `mapstructure:"chainlink"`
	Taapi     TaapiConfig     `mapstructure:"taapi"`
	Yahoo     YahooConfig     `mapstructure:"yahoo"`
	Tase      TaseConfig      `mapstructure:"tase"`
}

// BinanceConfig covers the Binance REST ticker endpoint.
type BinanceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Window         string        `mapstructure:"window"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// ChainlinkConfig covers on-chain price feed access.
type ChainlinkConfig struct {
	RPCURL         string            `mapstructure:"rpc_url"`
	Feeds          map[string]string `mapstructure:"feeds"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
}

// TaapiConfig covers the taapi.io indicator API.
type TaapiConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// YahooConfig covers the Yahoo Finance chart API.
type YahooConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Range          string        `mapstructure:"range"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// TaseConfig covers the Tel Aviv exchange quote pages.
type TaseConfig struct {
	BaseURL        string            `mapstructure:"base_url"`
	Codes          map[string]string `mapstructure:"codes"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
	UserAgent      string            `mapstructure:"user_agent"`
}

// AlertingConfig defines delivery routing.
type AlertingConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	Telegram TelegramConfig    `mapstructure:"telegram"`
	Chats    map[string]string `mapstructure:"chats"`
}

// TelegramConfig describes the Telegram delivery channel.
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RuleConfig declares one alert rule submitted at startup.
type RuleConfig struct {
	Owner      string            `mapstructure:"owner"`
	Symbol     string            `mapstructure:"symbol"`
	Metric     string            `mapstructure:"metric"`
	Timeframe  string            `mapstructure:"timeframe"`
	Params     map[string]string `mapstructure:"params"`
	Field      string            `mapstructure:"field"`
	Comparator string            `mapstructure:"comparator"`
	Threshold  float64           `mapstructure:"threshold"`
	Baseline   float64           `mapstructure:"baseline"`
	Cooldown   string            `mapstructure:"cooldown"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ALERTWATCH")
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
	v.SetDefault("app.name", "alertwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "10s")
	v.SetDefault("scheduler.align_to_interval", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x616c7274))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("engine.fetch_workers", 4)
	v.SetDefault("engine.cache_ttl", "2m")
	v.SetDefault("engine.fetch_timeout", "45s")

	v.SetDefault("sources.binance.base_url", "https://api.binance.com")
	v.SetDefault("sources.binance.window", "1d")
	v.SetDefault("sources.binance.request_timeout", "10s")
	v.SetDefault("sources.binance.user_agent", "alertwatch/1.0")

	v.SetDefault("sources.chainlink.request_timeout", "10s")

	v.SetDefault("sources.taapi.base_url", "https://api.taapi.io")
	v.SetDefault("sources.taapi.request_timeout", "15s")

	v.SetDefault("sources.yahoo.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("sources.yahoo.range", "5d")
	v.SetDefault("sources.yahoo.request_timeout", "10s")
	v.SetDefault("sources.yahoo.user_agent", "Mozilla/5.0")

	v.SetDefault("sources.tase.base_url", "https://market.tase.co.il")
	v.SetDefault("sources.tase.request_timeout", "15s")
	v.SetDefault("sources.tase.user_agent", "Mozilla/5.0")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.request_timeout", "10s")

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
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Engine.FetchWorkers <= 0 {
		return fmt.Errorf("engine.fetch_workers must be greater than zero")
	}
	if c.Engine.CacheTTL <= 0 {
		return fmt.Errorf("engine.cache_ttl must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" && len(c.Alerting.Chats) == 0 {
			return fmt.Errorf("alerting.telegram.chat_id or alerting.chats is required")
		}
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
