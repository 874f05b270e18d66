// Package config loads and validates the YAML settings and watchlist files.
// Any invalid configuration is fatal at load time so the engine never runs
// with undefined policy.
package config

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type RSI struct {
	Enabled    bool    `yaml:"enabled" default:"true"`
	Period     int     `yaml:"period" default:"14" validate:"gte=2"`
	Overbought float64 `yaml:"overbought" default:"70" validate:"gt=0,lte=100"`
	Oversold   float64 `yaml:"oversold" default:"30" validate:"gte=0,lt=100"`
}

type SMACross struct {
	Enabled     bool `yaml:"enabled" default:"true"`
	ShortPeriod int  `yaml:"short_period" default:"20" validate:"gte=2"`
	LongPeriod  int  `yaml:"long_period" default:"50" validate:"gte=2"`
}

type MACD struct {
	Enabled      bool `yaml:"enabled" default:"true"`
	FastPeriod   int  `yaml:"fast_period" default:"12" validate:"gte=2"`
	SlowPeriod   int  `yaml:"slow_period" default:"26" validate:"gte=2"`
	SignalPeriod int  `yaml:"signal_period" default:"9" validate:"gte=2"`
}

type Bollinger struct {
	Enabled bool    `yaml:"enabled" default:"true"`
	Period  int     `yaml:"period" default:"20" validate:"gte=2"`
	StdDev  float64 `yaml:"std_dev" default:"2" validate:"gt=0"`
}

type Indicators struct {
	RSI       RSI       `yaml:"rsi"`
	SMACross  SMACross  `yaml:"sma_crossover"`
	MACD      MACD      `yaml:"macd"`
	Bollinger Bollinger `yaml:"bollinger_bands"`
}

type Signal struct {
	Mode     string `yaml:"mode" default:"majority" validate:"oneof=unanimous majority any"`
	MinAgree int    `yaml:"min_agree" default:"2" validate:"gte=1"`
}

type Execution struct {
	OrderType       string  `yaml:"order_type" default:"market" validate:"oneof=market limit"`
	TimeInForce     string  `yaml:"time_in_force" default:"day" validate:"oneof=day gtc ioc"`
	PositionSizePct float64 `yaml:"position_size_pct" default:"10" validate:"gt=0,lte=100"`
	MaxPositions    int     `yaml:"max_positions" default:"10" validate:"gte=0"`
	AllowShort      bool    `yaml:"allow_short"`
	ExtendedHours   bool    `yaml:"extended_hours"`
}

type Data struct {
	Timeframe    string `yaml:"timeframe" default:"1Day" validate:"oneof=1Min 5Min 15Min 1Hour 1Day"`
	LookbackDays int    `yaml:"lookback_days" default:"30" validate:"gte=1"`
}

type Schedule struct {
	Enabled         bool   `yaml:"enabled"`
	IntervalMinutes int    `yaml:"interval_minutes" validate:"gte=0"`
	Cron            string `yaml:"cron"`
	MarketHoursOnly bool   `yaml:"market_hours_only" default:"true"`
}

// Account names a brokerage credential pair held in the environment. An empty
// accounts list falls back to the default ALPACA_API_KEY / ALPACA_SECRET_KEY
// pair.
type Account struct {
	Name      string   `yaml:"name" validate:"required"`
	KeyEnv    string   `yaml:"key_env" validate:"required"`
	SecretEnv string   `yaml:"secret_env" validate:"required"`
	Paper     bool     `yaml:"paper" default:"true"`
	Watchlist []string `yaml:"watchlist"`
}

type Logging struct {
	Level string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" default:":9109"`
}

type Settings struct {
	Logging               Logging    `yaml:"logging"`
	Metrics               Metrics    `yaml:"metrics"`
	Indicators            Indicators `yaml:"indicators"`
	Signal                Signal     `yaml:"signal"`
	Execution             Execution  `yaml:"execution"`
	Data                  Data       `yaml:"data"`
	Schedule              Schedule   `yaml:"schedule"`
	Accounts              []Account  `yaml:"accounts" validate:"dive"`
	MaxConcurrentAccounts int        `yaml:"max_concurrent_accounts" default:"4" validate:"gte=1"`
	ReportPath            string     `yaml:"report_path" default:"cycles.ndjson"`
}

// Load reads, defaults, and validates the settings file.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := &Settings{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate applies the struct tags plus the cross-field rules the tags cannot
// express. Callers constructing Settings in code go through the same checks.
func Validate(cfg *Settings) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if cfg.Indicators.SMACross.ShortPeriod >= cfg.Indicators.SMACross.LongPeriod {
		return fmt.Errorf("sma_crossover: short_period must be < long_period")
	}
	if cfg.Indicators.MACD.FastPeriod >= cfg.Indicators.MACD.SlowPeriod {
		return fmt.Errorf("macd: fast_period must be < slow_period")
	}
	if cfg.Schedule.Enabled {
		hasInterval := cfg.Schedule.IntervalMinutes > 0
		hasCron := cfg.Schedule.Cron != ""
		if hasInterval == hasCron {
			return fmt.Errorf("schedule: exactly one of interval_minutes or cron must be set")
		}
		if hasCron {
			if _, err := cron.ParseStandard(cfg.Schedule.Cron); err != nil {
				return fmt.Errorf("schedule: malformed cron expression %q: %w", cfg.Schedule.Cron, err)
			}
		}
	}
	return nil
}

type watchlistFile struct {
	Watchlist []struct {
		Symbol string `yaml:"symbol"`
	} `yaml:"watchlist"`
}

// LoadWatchlist reads the watchlist YAML file and returns its symbols.
func LoadWatchlist(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}
	var wl watchlistFile
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, fmt.Errorf("decode watchlist: %w", err)
	}
	symbols := make([]string, 0, len(wl.Watchlist))
	for _, entry := range wl.Watchlist {
		if entry.Symbol != "" {
			symbols = append(symbols, entry.Symbol)
		}
	}
	return symbols, nil
}

// LoadEnv loads a .env file when present. A missing file is not an error;
// credentials may already be in the environment.
func LoadEnv() {
	_ = godotenv.Load()
}

// Credentials resolves an account's API key pair from the environment.
func Credentials(acct Account) (key, secret string, err error) {
	key = os.Getenv(acct.KeyEnv)
	secret = os.Getenv(acct.SecretEnv)
	if key == "" || secret == "" {
		return "", "", fmt.Errorf("account %s: %s and %s must be set", acct.Name, acct.KeyEnv, acct.SecretEnv)
	}
	return key, secret, nil
}

// DefaultAccount is used when the settings file names no accounts.
func DefaultAccount() Account {
	return Account{
		Name:      "default",
		KeyEnv:    "ALPACA_API_KEY",
		SecretEnv: "ALPACA_SECRET_KEY",
		Paper:     true,
	}
}
