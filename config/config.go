// Package config loads the bot configuration from YAML or JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/gridbot/broker"
	"github.com/rustyeddy/gridbot/broker/binance"
	"github.com/rustyeddy/gridbot/indicators"
	"github.com/rustyeddy/gridbot/internal/logging"
	"github.com/rustyeddy/gridbot/ladder"
	"github.com/rustyeddy/gridbot/strategy"
)

// Config represents the complete bot configuration
type Config struct {
	Symbol     string           `json:"symbol" yaml:"symbol"`
	Long       ladder.Config    `json:"long" yaml:"long"`
	Short      ladder.Config    `json:"short" yaml:"short"`
	TakeProfit TakeProfitConfig `json:"take_profit" yaml:"take_profit"`
	Fees       FeesConfig       `json:"fees" yaml:"fees"`
	Flip       FlipConfig       `json:"flip" yaml:"flip"`
	Risk       RiskConfig       `json:"risk" yaml:"risk"`
	Backtest   BacktestConfig   `json:"backtest" yaml:"backtest"`
	Live       LiveConfig       `json:"live" yaml:"live"`
	Log        logging.Config   `json:"log" yaml:"log"`
}

// TakeProfitConfig selects how the exit price is computed
type TakeProfitConfig struct {
	Policy                 string  `json:"policy" yaml:"policy"` // "fixed" or "net"
	MinProfitUSD           float64 `json:"min_profit_usd" yaml:"min_profit_usd"`
	CloseRequiresNetProfit bool    `json:"close_requires_net_profit" yaml:"close_requires_net_profit"`
	ExitMaker              bool    `json:"exit_maker" yaml:"exit_maker"`
}

// FeesConfig are fractions of notional, e.g. 0.0005 for 5 bps
type FeesConfig struct {
	TakerFee float64 `json:"taker_fee" yaml:"taker_fee"`
	MakerFee float64 `json:"maker_fee" yaml:"maker_fee"`
}

// FlipConfig enables side selection by daily RSI with a cooldown after each close
type FlipConfig struct {
	Enabled         bool    `json:"enabled" yaml:"enabled"`
	CooldownSeconds int     `json:"cooldown_seconds" yaml:"cooldown_seconds"`
	RSIThreshold    float64 `json:"rsi_threshold" yaml:"rsi_threshold"`
	RSIPeriod       int     `json:"rsi_period" yaml:"rsi_period"`
}

// RiskConfig contains gate thresholds shared by both sides
type RiskConfig struct {
	FundingPauseThreshold float64 `json:"funding_pause_threshold" yaml:"funding_pause_threshold"`
	Epsilon               float64 `json:"epsilon" yaml:"epsilon"`
}

// BacktestConfig names the input series and the output artifacts. Empty
// outputs are skipped.
type BacktestConfig struct {
	CSV         string  `json:"csv" yaml:"csv"`
	StartEquity float64 `json:"start_equity" yaml:"start_equity"`
	TradesCSV   string  `json:"trades_csv,omitempty" yaml:"trades_csv,omitempty"`
	EquityCSV   string  `json:"equity_csv,omitempty" yaml:"equity_csv,omitempty"`
	SummaryJSON string  `json:"summary_json,omitempty" yaml:"summary_json,omitempty"`
	ChartHTML   string  `json:"chart_html,omitempty" yaml:"chart_html,omitempty"`
	OrgPath     string  `json:"org_path,omitempty" yaml:"org_path,omitempty"`
	DBPath      string  `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// LiveConfig contains venue and polling parameters
type LiveConfig struct {
	Exchange     string             `json:"exchange" yaml:"exchange"`
	Testnet      bool               `json:"testnet" yaml:"testnet"`
	Leverage     int                `json:"leverage" yaml:"leverage"`
	PollInterval time.Duration      `json:"poll_interval" yaml:"poll_interval"`
	RSIRefresh   time.Duration      `json:"rsi_refresh" yaml:"rsi_refresh"`
	MetricsAddr  string             `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
	DBPath       string             `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	Retry        broker.RetryPolicy `json:"retry" yaml:"retry"`
}

// LoadFromFile loads configuration from a file, YAML first with a JSON fallback
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = &Config{}
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

// SaveToFile saves configuration as YAML for .yaml/.yml paths and JSON otherwise
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	p := strings.ToLower(path)
	return strings.HasSuffix(p, ".yaml") || strings.HasSuffix(p, ".yml")
}

// Validate checks the configuration and reports the first problem found
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Symbol) == "" {
		return fmt.Errorf("symbol is required")
	}
	if err := c.Long.Validate(); err != nil {
		return fmt.Errorf("long.%w", err)
	}
	if c.Flip.Enabled {
		if err := c.Short.Validate(); err != nil {
			return fmt.Errorf("short.%w", err)
		}
		if c.Flip.CooldownSeconds < 0 {
			return fmt.Errorf("flip.cooldown_seconds must not be negative")
		}
		if c.Flip.RSIThreshold <= 0 || c.Flip.RSIThreshold >= 100 {
			return fmt.Errorf("flip.rsi_threshold must be between 0 and 100")
		}
	}
	switch strategy.TakeProfitPolicy(c.TakeProfit.Policy) {
	case strategy.PolicyFixed, strategy.PolicyNet:
	default:
		return fmt.Errorf("take_profit.policy must be 'fixed' or 'net'")
	}
	if c.TakeProfit.MinProfitUSD < 0 {
		return fmt.Errorf("take_profit.min_profit_usd must not be negative")
	}
	if c.Fees.TakerFee < 0 || c.Fees.TakerFee >= 1 {
		return fmt.Errorf("fees.taker_fee must be in [0, 1)")
	}
	if c.Fees.MakerFee < 0 || c.Fees.MakerFee >= 1 {
		return fmt.Errorf("fees.maker_fee must be in [0, 1)")
	}
	if c.Risk.FundingPauseThreshold > 0 {
		return fmt.Errorf("risk.funding_pause_threshold must be zero (off) or negative")
	}
	if c.Risk.Epsilon < 0 {
		return fmt.Errorf("risk.epsilon must not be negative")
	}
	if c.Backtest.StartEquity <= 0 {
		return fmt.Errorf("backtest.start_equity must be positive")
	}
	if c.Live.Exchange != "binance" {
		return fmt.Errorf("live.exchange must be 'binance'")
	}
	if c.Live.Leverage < 1 {
		return fmt.Errorf("live.leverage must be at least 1")
	}
	if c.Live.PollInterval <= 0 {
		return fmt.Errorf("live.poll_interval must be positive")
	}
	if c.Live.RSIRefresh < 0 {
		return fmt.Errorf("live.rsi_refresh must not be negative")
	}
	if c.Live.Retry.MaxAttempts < 1 {
		return fmt.Errorf("live.retry.max_attempts must be at least 1")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format must be 'console' or 'json'")
	}
	return nil
}

// Params converts the strategy sections for the engine
func (c *Config) Params() strategy.Params {
	return strategy.Params{
		Symbol: c.Symbol,
		Long:   c.Long,
		Short:  c.Short,
		TakeProfit: strategy.TakeProfit{
			Policy:                 strategy.TakeProfitPolicy(c.TakeProfit.Policy),
			MinProfitUSD:           c.TakeProfit.MinProfitUSD,
			CloseRequiresNetProfit: c.TakeProfit.CloseRequiresNetProfit,
			ExitMaker:              c.TakeProfit.ExitMaker,
		},
		Fees: strategy.Fees{Taker: c.Fees.TakerFee, Maker: c.Fees.MakerFee},
		Flip: strategy.Flip{
			Enabled:      c.Flip.Enabled,
			Cooldown:     time.Duration(c.Flip.CooldownSeconds) * time.Second,
			RSIThreshold: c.Flip.RSIThreshold,
		},
		FundingPauseThreshold: c.Risk.FundingPauseThreshold,
		Epsilon:               c.Risk.Epsilon,
	}
}

// RunParams is the part of the configuration that determines a backtest's
// outcome, as recorded next to its summary.
type RunParams struct {
	Symbol      string           `json:"symbol"`
	Long        ladder.Config    `json:"long"`
	Short       *ladder.Config   `json:"short,omitempty"`
	TakeProfit  TakeProfitConfig `json:"take_profit"`
	Fees        FeesConfig       `json:"fees"`
	Flip        FlipConfig       `json:"flip"`
	Risk        RiskConfig       `json:"risk"`
	StartEquity float64          `json:"start_equity"`
}

func (c *Config) RunParams() RunParams {
	p := RunParams{
		Symbol:      c.Symbol,
		Long:        c.Long,
		TakeProfit:  c.TakeProfit,
		Fees:        c.Fees,
		Flip:        c.Flip,
		Risk:        c.Risk,
		StartEquity: c.Backtest.StartEquity,
	}
	if c.Flip.Enabled {
		short := c.Short
		p.Short = &short
	}
	return p
}

// Binance builds the venue configuration, reading keys from the environment.
func (c *Config) Binance() binance.Config {
	key, secret := binance.KeysFromEnv()
	env := "live"
	if c.Live.Testnet {
		env = "testnet"
	}
	return binance.Config{
		Symbol:    c.Symbol,
		APIKey:    key,
		APISecret: secret,
		Env:       env,
		Leverage:  c.Live.Leverage,
		TakerFee:  c.Fees.TakerFee,
		RSIPeriod: c.Flip.RSIPeriod,
	}
}

// Default returns the DOGEUSDT ladder the bot was tuned with
func Default() *Config {
	l := ladder.Config{
		BaseNotional:        10,
		StepPct:             0.015,
		VolumeScale:         1.4,
		MaxLevels:           12,
		MaxPositionNotional: 500,
		TakeProfitPct:       0.008,
	}
	return &Config{
		Symbol: "DOGEUSDT",
		Long:   l,
		Short:  l,
		TakeProfit: TakeProfitConfig{
			Policy: string(strategy.PolicyFixed),
		},
		Fees: FeesConfig{
			TakerFee: 0.0005,
			MakerFee: 0.0002,
		},
		Flip: FlipConfig{
			CooldownSeconds: 3600,
			RSIThreshold:    70,
			RSIPeriod:       indicators.DefaultRSIPeriod,
		},
		Risk: RiskConfig{
			Epsilon: ladder.DefaultEpsilon,
		},
		Backtest: BacktestConfig{
			CSV:         "DOGEUSDT_1h.csv",
			StartEquity: 1000,
			TradesCSV:   "doge_grid_trades.csv",
			EquityCSV:   "doge_grid_equity.csv",
			SummaryJSON: "doge_grid_summary.json",
			ChartHTML:   "doge_grid_equity.html",
		},
		Live: LiveConfig{
			Exchange:     "binance",
			Testnet:      true,
			Leverage:     binance.DefaultLeverage,
			PollInterval: 3 * time.Second,
			RSIRefresh:   time.Hour,
			MetricsAddr:  ":9102",
			Retry:        broker.DefaultRetryPolicy(),
		},
		Log: logging.Config{
			Level:  "info",
			Format: "console",
		},
	}
}
