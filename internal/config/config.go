// Package config provides configuration management for the straddle trader.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"straddle-trader/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Trading       TradingConfig      `mapstructure:"trading"`
	Strategy      StrategyConfig     `mapstructure:"strategy"`
	Redis         RedisConfig        `mapstructure:"redis"`
	Server        ServerConfig       `mapstructure:"server"`
	Schedule      ScheduleConfig     `mapstructure:"schedule"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Credentials   Credentials        `mapstructure:"-"` // Loaded separately
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	Mode     string `mapstructure:"mode"` // "live", "paper"
	Exchange string `mapstructure:"exchange"`
	Product  string `mapstructure:"product"`
}

// StrategyConfig holds the straddle strategy parameters.
type StrategyConfig struct {
	Index string `mapstructure:"index"`
	// IndexToken is the broker instrument token of the underlying index.
	IndexToken        uint32               `mapstructure:"index_token"`
	StrikeStep        int                  `mapstructure:"strike_step"`
	QuantityPerLot    int                  `mapstructure:"quantity_per_lot"`
	LoopInterval      time.Duration        `mapstructure:"loop_interval"`
	MonitorInterval   time.Duration        `mapstructure:"monitor_interval"`
	SecondShiftCutoff string               `mapstructure:"second_shift_cutoff"`
	TrancheDelay      time.Duration        `mapstructure:"tranche_delay"`
	StaleAfter        time.Duration        `mapstructure:"stale_after"`
	HedgeScanDepth    int                  `mapstructure:"hedge_scan_depth"`
	Expiry            string               `mapstructure:"expiry"` // optional, 2006-01-02
	ExpiryWeekday     string               `mapstructure:"expiry_weekday"`
	DryRun            DryRunConfig         `mapstructure:"dry_run"`
	Orders            OrderConfig          `mapstructure:"orders"`
	Feed              FeedConfig           `mapstructure:"feed"`
	Days              map[string]DayConfig `mapstructure:"days"`
}

// DryRunConfig overrides broker-sourced capital and margin in paper mode.
type DryRunConfig struct {
	InitialCapital float64 `mapstructure:"initial_capital"`
	MarginPerLot   float64 `mapstructure:"margin_per_lot"`
}

// OrderConfig controls order retry behaviour.
type OrderConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// FeedConfig controls how many strikes the market feed subscribes.
type FeedConfig struct {
	OTMStrikes int `mapstructure:"otm_strikes"`
	ITMStrikes int `mapstructure:"itm_strikes"`
}

// DayConfig holds the raw per-weekday settings.
type DayConfig struct {
	Run                   bool              `mapstructure:"run"`
	EntryTime             string            `mapstructure:"entry_time"`
	ExitTime              string            `mapstructure:"exit_time"`
	StopLossPercent       float64           `mapstructure:"stop_loss_percent"`
	TargetPercent         float64           `mapstructure:"target_percent"`
	CapitalToTradePercent float64           `mapstructure:"capital_to_trade_percent"`
	ExpectedMarginPerLot  float64           `mapstructure:"expected_margin_per_lot"`
	CEHedgePremium        float64           `mapstructure:"ce_hedge_premium"`
	PEHedgePremium        float64           `mapstructure:"pe_hedge_premium"`
	HedgeShifting         bool              `mapstructure:"hedge_shifting"`
	PriceCheck            *PriceCheckConfig `mapstructure:"price_check"`
}

// PriceCheckConfig delays entry once when the ATM straddle premium is
// outside [Min, Max].
type PriceCheckConfig struct {
	Min        float64       `mapstructure:"min"`
	Max        float64       `mapstructure:"max"`
	EntryDelay time.Duration `mapstructure:"entry_delay"`
}

// RedisConfig holds price cache connection settings.
type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ManualExitKey string `mapstructure:"manual_exit_key"`
}

// ServerConfig holds the status/control HTTP server settings.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ScheduleConfig holds the daemon schedule settings.
type ScheduleConfig struct {
	Cron         string `mapstructure:"cron"`
	DatabasePath string `mapstructure:"database_path"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Level    string         `mapstructure:"level"` // all, trades_only, errors_only
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// LoggingConfig mirrors logging.LogConfig in TOML form.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// Credentials holds API credentials.
type Credentials struct {
	Zerodha ZerodhaCredentials `mapstructure:"zerodha"`
}

// ZerodhaCredentials holds Zerodha API credentials.
type ZerodhaCredentials struct {
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	UserID     string `mapstructure:"user_id"`
	Password   string `mapstructure:"password"`    // For auto-login
	TOTPSecret string `mapstructure:"totp_secret"` // For auto-login with 2FA
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/straddle-trader"
	}
	return filepath.Join(home, ".config", "straddle-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// .env next to the config or in the working directory; both optional.
	_ = godotenv.Load(filepath.Join(configDir, ".env"))
	_ = godotenv.Load()

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.exchange", "NFO")
	v.SetDefault("trading.product", "MIS")

	v.SetDefault("strategy.index", "NIFTY")
	v.SetDefault("strategy.index_token", 256265)
	v.SetDefault("strategy.strike_step", 50)
	v.SetDefault("strategy.quantity_per_lot", 50)
	v.SetDefault("strategy.loop_interval", "2s")
	v.SetDefault("strategy.monitor_interval", "2s")
	v.SetDefault("strategy.second_shift_cutoff", "13:30")
	v.SetDefault("strategy.tranche_delay", "15m")
	v.SetDefault("strategy.stale_after", "1m")
	v.SetDefault("strategy.hedge_scan_depth", 20)
	v.SetDefault("strategy.expiry_weekday", "thursday")
	v.SetDefault("strategy.dry_run.initial_capital", 1000000.0)
	v.SetDefault("strategy.dry_run.margin_per_lot", 50000.0)
	v.SetDefault("strategy.orders.max_attempts", 3)
	v.SetDefault("strategy.orders.retry_delay", "1s")
	v.SetDefault("strategy.feed.otm_strikes", 15)
	v.SetDefault("strategy.feed.itm_strikes", 10)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.manual_exit_key", "MANUAL_EXIT")

	v.SetDefault("server.addr", "127.0.0.1:8090")

	v.SetDefault("schedule.cron", "0 0 9 * * MON-FRI")
	v.SetDefault("schedule.database_path", filepath.Join(DefaultConfigDir(), "dashboard.db"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.path", filepath.Join(DefaultConfigDir(), "logs", "straddle.log"))
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// Config file not found, create template and load it
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ZERODHA_API_KEY"); v != "" {
		cfg.Credentials.Zerodha.APIKey = v
	}
	if v := os.Getenv("ZERODHA_API_SECRET"); v != "" {
		cfg.Credentials.Zerodha.APISecret = v
	}
	if v := os.Getenv("ZERODHA_USER_ID"); v != "" {
		cfg.Credentials.Zerodha.UserID = v
	}
	if v := os.Getenv("ZERODHA_PASSWORD"); v != "" {
		cfg.Credentials.Zerodha.Password = v
	}
	if v := os.Getenv("ZERODHA_TOTP_SECRET"); v != "" {
		cfg.Credentials.Zerodha.TOTPSecret = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Notifications.Telegram.ChatID = id
		}
	}

	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
}

// IsPaperMode returns true if paper trading mode is enabled.
func (c *Config) IsPaperMode() bool {
	return c.Trading.Mode == "paper"
}

// LogConfig converts the logging section for the logging package.
func (c *Config) LogConfig() logging.LogConfig {
	return logging.LogConfig{
		Level:      c.Logging.Level,
		Console:    c.Logging.Console,
		File:       c.Logging.File,
		FilePath:   c.Logging.Path,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
	}
}
