package binance

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	TestnetURL = "https://testnet.binancefuture.com"
	MainnetURL = "https://fapi.binance.com"

	DefaultLeverage    = 3
	DefaultHTTPTimeout = 10 * time.Second
)

type Config struct {
	Symbol    string
	APIKey    string
	APISecret string

	// BaseURL wins over the environment when set.
	Env     string
	BaseURL string

	Leverage    int
	TakerFee    float64
	RSIPeriod   int
	HTTPTimeout time.Duration
}

// BaseURL maps an environment name to the USD-M futures REST root.
func BaseURL(env string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "testnet", "demo":
		return TestnetURL, nil
	case "live", "mainnet":
		return MainnetURL, nil
	default:
		return "", fmt.Errorf("unknown binance env %q (want testnet|live)", env)
	}
}

// KeysFromEnv reads BINANCE_API_KEY and BINANCE_API_SECRET, falling back to
// API_KEY and API_SECRET.
func KeysFromEnv() (key, secret string) {
	key = firstEnv("BINANCE_API_KEY", "API_KEY")
	secret = firstEnv("BINANCE_API_SECRET", "API_SECRET")
	return key, secret
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(os.Getenv(n)); v != "" {
			return v
		}
	}
	return ""
}

func (c Config) withDefaults() (Config, error) {
	if strings.TrimSpace(c.Symbol) == "" {
		return c, fmt.Errorf("binance: symbol is required")
	}
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	if c.BaseURL == "" {
		u, err := BaseURL(c.Env)
		if err != nil {
			return c, err
		}
		c.BaseURL = u
	}
	if c.Leverage <= 0 {
		c.Leverage = DefaultLeverage
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	return c, nil
}
