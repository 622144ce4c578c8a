package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rustyeddy/pairtrader/confirm"
	"github.com/rustyeddy/pairtrader/engine"
	"github.com/rustyeddy/pairtrader/indicators"
	"github.com/rustyeddy/pairtrader/logging"
	"github.com/rustyeddy/pairtrader/market"
	"github.com/rustyeddy/pairtrader/position"
	"github.com/rustyeddy/pairtrader/reconcile"
	"github.com/rustyeddy/pairtrader/risk"
	"github.com/rustyeddy/pairtrader/strategies"
	"gopkg.in/yaml.v3"
)

// Config is the complete trader configuration
type Config struct {
	Pair         string               `json:"pair" yaml:"pair"`
	Exchange     ExchangeConfig       `json:"exchange" yaml:"exchange"`
	Candles      market.StoreConfig   `json:"candles" yaml:"candles"`
	Indicators   indicators.Params    `json:"indicators" yaml:"indicators"`
	Scoring      strategies.Config    `json:"scoring" yaml:"scoring"`
	Confirmation confirm.Config       `json:"confirmation" yaml:"confirmation"`
	Position     position.Config      `json:"position" yaml:"position"`
	Risk         risk.Policy          `json:"risk" yaml:"risk"`
	Reconcile    reconcile.Config     `json:"reconcile" yaml:"reconcile"`
	Trading      engine.TradingConfig `json:"trading" yaml:"trading"`
	Orders       engine.OrderConfig   `json:"orders" yaml:"orders"`
	Schedule     ScheduleConfig       `json:"schedule" yaml:"schedule"`
	Storage      StorageConfig        `json:"storage" yaml:"storage"`
	Journal      JournalConfig        `json:"journal" yaml:"journal"`
	Logging      LoggingConfig        `json:"logging" yaml:"logging"`
	Server       ServerConfig         `json:"server" yaml:"server"`
	Notify       NotifyConfig         `json:"notify" yaml:"notify"`
}

// Endpoint is one exchange base URL, tried in order
type Endpoint struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// ExchangeConfig selects the live endpoints and the paper wallet
type ExchangeConfig struct {
	Endpoints []Endpoint `json:"endpoints" yaml:"endpoints"`
	// APIKeyEnv names the environment variable holding the API token.
	APIKeyEnv string        `json:"api_key_env" yaml:"api_key_env"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
	Paper     PaperConfig   `json:"paper" yaml:"paper"`
}

// PaperConfig seeds the paper exchange
type PaperConfig struct {
	StartQuote  float64 `json:"start_quote" yaml:"start_quote"`
	StartBase   float64 `json:"start_base" yaml:"start_base"`
	FeeRate     float64 `json:"fee_rate" yaml:"fee_rate"`
	Slippage    float64 `json:"slippage" yaml:"slippage"`
	AllowMargin bool    `json:"allow_margin" yaml:"allow_margin"`
}

type ScheduleConfig struct {
	// Buffer is the wait after a candle closes before the cycle runs.
	Buffer time.Duration `json:"buffer" yaml:"buffer"`
}

// StorageConfig names the state files, relative to Dir
type StorageConfig struct {
	Dir           string `json:"dir" yaml:"dir"`
	Position      string `json:"position" yaml:"position"`
	Candles       string `json:"candles" yaml:"candles"`
	Profit        string `json:"profit" yaml:"profit"`
	Trades        string `json:"trades" yaml:"trades"`
	Notifications string `json:"notifications" yaml:"notifications"`
	PaperWallet   string `json:"paper_wallet" yaml:"paper_wallet"`
}

// Path resolves a state file name against Dir
func (s StorageConfig) Path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.Dir, name)
}

// JournalConfig contains the optional journal mirrors
type JournalConfig struct {
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
}

type LoggingConfig struct {
	File       string `json:"file" yaml:"file"`
	Level      string `json:"level" yaml:"level"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

type ServerConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type NotifyConfig struct {
	Interval   time.Duration `json:"interval" yaml:"interval"`
	PruneAfter time.Duration `json:"prune_after" yaml:"prune_after"`
}

// LoadFromFile loads configuration from a file (YAML or JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Unset fields keep their defaults.
	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := market.ParsePair(c.Pair); err != nil {
		return fmt.Errorf("pair: %w", err)
	}
	for i, ep := range c.Exchange.Endpoints {
		if ep.URL == "" {
			return fmt.Errorf("exchange.endpoints[%d].url is required", i)
		}
	}
	if c.Exchange.Timeout < 0 {
		return fmt.Errorf("exchange.timeout must not be negative")
	}
	if c.Exchange.Paper.StartQuote < 0 || c.Exchange.Paper.StartBase < 0 {
		return fmt.Errorf("exchange.paper balances must not be negative")
	}
	if c.Candles.Granularity <= 0 {
		return fmt.Errorf("candles.granularity must be positive")
	}
	if c.Candles.Capacity < c.Indicators.MinLength() {
		return fmt.Errorf("candles.capacity %d is below the %d candles the indicators need", c.Candles.Capacity, c.Indicators.MinLength())
	}
	if c.Candles.Lookback <= 0 {
		return fmt.Errorf("candles.lookback must be positive")
	}

	for _, v := range []interface{ Validate() error }{
		c.Indicators, c.Scoring, c.Confirmation, c.Position, c.Risk, c.Reconcile, c.Trading,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	if c.Trading.MaxAverageIns > 0 && c.Trading.AverageInDropPct >= c.Position.StopLossPct {
		return fmt.Errorf("trading.average_in_drop_pct %.4f must be below position.stop_loss_pct %.4f", c.Trading.AverageInDropPct, c.Position.StopLossPct)
	}

	if c.Schedule.Buffer < 0 || c.Schedule.Buffer >= c.Candles.Granularity {
		return fmt.Errorf("schedule.buffer must be within [0, candles.granularity)")
	}
	if c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir is required")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr required when the server is enabled")
	}
	if c.Notify.Interval <= 0 {
		return fmt.Errorf("notify.interval must be positive")
	}
	return nil
}

// Engine returns the engine settings.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		Pair:         c.Pair,
		Granularity:  c.Candles.Granularity,
		Indicators:   c.Indicators,
		Scoring:      c.Scoring,
		Confirmation: c.Confirmation,
		Position:     c.Position,
		Risk:         c.Risk,
		Reconcile:    c.Reconcile,
		Trading:      c.Trading,
		Orders:       c.Orders,
	}
}

// LoggingOptions converts the logging section.
func (c *Config) LoggingOptions() (logging.Options, error) {
	lvl, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.Options{}, err
	}
	return logging.Options{
		File:       c.Logging.File,
		Level:      lvl,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}, nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	ec := engine.DefaultConfig()
	return &Config{
		Pair: "BTC-USD",
		Exchange: ExchangeConfig{
			Endpoints: []Endpoint{
				{Name: "primary", URL: "https://api.coinbase.com"},
			},
			APIKeyEnv: "TRADER_API_KEY",
			Timeout:   15 * time.Second,
			Paper: PaperConfig{
				StartQuote: 1000,
				FeeRate:    ec.Risk.FeeRate,
			},
		},
		Candles:      market.DefaultStoreConfig(),
		Indicators:   ec.Indicators,
		Scoring:      ec.Scoring,
		Confirmation: ec.Confirmation,
		Position:     ec.Position,
		Risk:         ec.Risk,
		Reconcile:    ec.Reconcile,
		Trading:      ec.Trading,
		Orders:       ec.Orders,
		Schedule:     ScheduleConfig{Buffer: 5 * time.Second},
		Storage: StorageConfig{
			Dir:           "./data",
			Position:      "position.json",
			Candles:       "candles.json",
			Profit:        "profit.json",
			Trades:        "trades.json",
			Notifications: "notifications.json",
			PaperWallet:   "paper_wallet.json",
		},
		Journal: JournalConfig{
			DBPath: "./data/trader.sqlite",
		},
		Logging: LoggingConfig{
			File:       "./data/trader.log",
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Notify: NotifyConfig{
			Interval:   10 * time.Second,
			PruneAfter: 7 * 24 * time.Hour,
		},
	}
}
