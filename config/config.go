// Package config loads the bot configuration from environment variables
// (optionally seeded from a .env file) into typed structs.
//
// Every strategy has documented defaults so a partially configured bot still
// runs; Validate rejects combinations that could never produce a signal.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Strategy names used for registry lookups and config references.
const (
	GoldenCrossName  = "GoldenCross"
	ThreeEMAName     = "3EmaCrossover"
	TrailingStopName = "TrailingStop"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	App          AppConfig          `envPrefix:"APP_"`
	GoldenCross  GoldenCrossConfig  `envPrefix:"GOLDEN_CROSS_"`
	ThreeEMA     ThreeEMAConfig     `envPrefix:"THREE_EMA_"`
	TrailingStop TrailingStopConfig `envPrefix:"TRAILING_STOP_"`
	Trade        TradeConfig        `envPrefix:"TRADE_"`
	SQLite       SQLiteConfig       `envPrefix:"SQLITE_"`
	Postgres     PostgresConfig     `envPrefix:"POSTGRES_"`
	Redis        RedisConfig        `envPrefix:"REDIS_"`
	Kraken       KrakenConfig       `envPrefix:"KRAKEN_"`
	Telegram     TelegramConfig     `envPrefix:"TELEGRAM_"`
	Webhook      WebhookConfig      `envPrefix:"WEBHOOK_"`
}

// AppConfig represents process-level settings.
type AppConfig struct {
	Name        string `env:"NAME" envDefault:"moneymaker"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
	// TradeStore selects the trade persistence backend: "sqlite" or "postgres".
	TradeStore string `env:"TRADE_STORE" envDefault:"sqlite"`
	// SeedHistory pre-fills each strategy timeframe from the history source.
	SeedHistory bool `env:"SEED_HISTORY" envDefault:"true"`
}

// GoldenCrossConfig configures the two-line moving-average crossover.
type GoldenCrossConfig struct {
	Enabled       bool          `env:"ENABLED" envDefault:"true"`
	PeriodLength  time.Duration `env:"PERIOD_LENGTH" envDefault:"1s"`
	ShortPeriod   int           `env:"SHORT_PERIOD" envDefault:"50"`
	LongPeriod    int           `env:"LONG_PERIOD" envDefault:"100"`
	Average       string        `env:"AVERAGE" envDefault:"SMA"` // SMA, EMA or SMMA
	TimeframeSize int           `env:"TIMEFRAME_SIZE" envDefault:"250"`
	ExitStrategy  string        `env:"EXIT_STRATEGY" envDefault:"TrailingStop"`
	// RSIPeriod enables the overbought/oversold filter when > 0.
	RSIPeriod int `env:"RSI_PERIOD" envDefault:"0"`
}

// ThreeEMAConfig configures the short/medium/long EMA crossover.
type ThreeEMAConfig struct {
	Enabled       bool          `env:"ENABLED" envDefault:"true"`
	PeriodLength  time.Duration `env:"PERIOD_LENGTH" envDefault:"1h"`
	ShortPeriod   int           `env:"SHORT_PERIOD" envDefault:"20"`
	MediumPeriod  int           `env:"MEDIUM_PERIOD" envDefault:"50"`
	LongPeriod    int           `env:"LONG_PERIOD" envDefault:"200"`
	TimeframeSize int           `env:"TIMEFRAME_SIZE" envDefault:"250"`
	ExitStrategy  string        `env:"EXIT_STRATEGY" envDefault:"TrailingStop"`
	// TriggerShortMedium adds the short/medium crossover to the trigger set.
	TriggerShortMedium bool `env:"TRIGGER_SHORT_MEDIUM" envDefault:"true"`
}

// TrailingStopConfig configures the trailing-stop exit.
type TrailingStopConfig struct {
	// Distance is the fraction of price between price and stop (0.01 = 1%).
	Distance decimal.Decimal `env:"DISTANCE" envDefault:"0.01"`
}

// TradeConfig configures order creation.
type TradeConfig struct {
	AssetCode    string          `env:"ASSET_CODE" envDefault:"XBTGBP"`
	Volume       decimal.Decimal `env:"VOLUME" envDefault:"0.01"`
	PaperTrading bool            `env:"PAPER_TRADING" envDefault:"true"`
	SlippageBps  int64           `env:"SLIPPAGE_BPS" envDefault:"0"`
}

// SQLiteConfig configures the SQLite trade and price stores.
type SQLiteConfig struct {
	Path string `env:"PATH" envDefault:"data/moneymaker.db"`
}

// PostgresConfig configures the Postgres trade store.
type PostgresConfig struct {
	DSN string `env:"DSN"`
}

// RedisConfig configures the signal publisher. An empty Addr disables it.
type RedisConfig struct {
	Addr        string        `env:"ADDR"`
	Password    string        `env:"PASSWORD"`
	DB          int           `env:"DB" envDefault:"0"`
	SnapshotTTL time.Duration `env:"SNAPSHOT_TTL" envDefault:"30m"`
}

// KrakenConfig configures the public market-data feed.
type KrakenConfig struct {
	BaseURL string        `env:"BASE_URL" envDefault:"https://api.kraken.com"`
	WSURL   string        `env:"WS_URL" envDefault:"wss://ws.kraken.com/v2"`
	Pair    string        `env:"PAIR" envDefault:"XBTGBP"`
	Symbol  string        `env:"SYMBOL" envDefault:"BTC/GBP"`
	Stream  bool          `env:"STREAM" envDefault:"false"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// TelegramConfig configures Telegram alerts. An empty Token disables them.
type TelegramConfig struct {
	Token  string `env:"TOKEN"`
	ChatID int64  `env:"CHAT_ID"`
}

// WebhookConfig configures webhook alerts. An empty URL disables them.
type WebhookConfig struct {
	URL string `env:"URL"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration with every default applied and no
// environment overrides.
func Default() *Config {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("config: defaults do not parse: %v", err))
	}
	return cfg
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.GoldenCross.Enabled {
		errs = append(errs, c.GoldenCross.Validate())
	}
	if c.ThreeEMA.Enabled {
		errs = append(errs, c.ThreeEMA.Validate())
	}
	errs = append(errs, c.TrailingStop.Validate())

	switch strings.ToLower(c.App.TradeStore) {
	case "sqlite":
	case "postgres":
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("config: POSTGRES_DSN required when APP_TRADE_STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown trade store %q", c.App.TradeStore))
	}
	if !c.Trade.Volume.IsPositive() {
		errs = append(errs, fmt.Errorf("config: trade volume must be positive, got %s", c.Trade.Volume))
	}
	return errors.Join(errs...)
}

// Validate checks the golden cross settings.
func (g GoldenCrossConfig) Validate() error {
	var errs []error
	if g.ShortPeriod <= 0 || g.LongPeriod <= 0 {
		errs = append(errs, fmt.Errorf("config: %s periods must be positive, got %d/%d", GoldenCrossName, g.ShortPeriod, g.LongPeriod))
	}
	if g.ShortPeriod >= g.LongPeriod {
		errs = append(errs, fmt.Errorf("config: %s short period %d must be below long period %d", GoldenCrossName, g.ShortPeriod, g.LongPeriod))
	}
	switch strings.ToUpper(g.Average) {
	case "SMA", "EMA", "SMMA":
	default:
		errs = append(errs, fmt.Errorf("config: %s average %q must be SMA, EMA or SMMA", GoldenCrossName, g.Average))
	}
	if g.RSIPeriod < 0 {
		errs = append(errs, fmt.Errorf("config: %s RSI period must not be negative", GoldenCrossName))
	}
	errs = append(errs, validateSchedule(GoldenCrossName, g.PeriodLength, g.TimeframeSize))
	return errors.Join(errs...)
}

// Validate checks the three-EMA settings.
func (t ThreeEMAConfig) Validate() error {
	var errs []error
	if t.ShortPeriod <= 0 || t.MediumPeriod <= 0 || t.LongPeriod <= 0 {
		errs = append(errs, fmt.Errorf("config: %s periods must be positive, got %d/%d/%d", ThreeEMAName, t.ShortPeriod, t.MediumPeriod, t.LongPeriod))
	}
	if t.ShortPeriod >= t.MediumPeriod || t.MediumPeriod >= t.LongPeriod {
		errs = append(errs, fmt.Errorf("config: %s periods must satisfy short < medium < long, got %d/%d/%d", ThreeEMAName, t.ShortPeriod, t.MediumPeriod, t.LongPeriod))
	}
	errs = append(errs, validateSchedule(ThreeEMAName, t.PeriodLength, t.TimeframeSize))
	return errors.Join(errs...)
}

// Validate checks the trailing-stop distance.
func (t TrailingStopConfig) Validate() error {
	if !t.Distance.IsPositive() || t.Distance.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("config: %s distance must be in (0, 1), got %s", TrailingStopName, t.Distance)
	}
	return nil
}

func validateSchedule(name string, period time.Duration, size int) error {
	var errs []error
	if period <= 0 {
		errs = append(errs, fmt.Errorf("config: %s period length must be positive, got %s", name, period))
	}
	if size < 2 {
		errs = append(errs, fmt.Errorf("config: %s timeframe size must be at least 2, got %d", name, size))
	}
	return errors.Join(errs...)
}
