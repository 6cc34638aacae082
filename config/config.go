package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"orderPairBot/internal/adapters/logger" // Import the logger package for LogLevel
	"orderPairBot/internal/domain"
)

// RegimeConfig holds the trading parameters for one market regime.
type RegimeConfig struct {
	BuyOffset       float64       // Added to the reference price for the buy leg (quote units)
	SellOffset      float64       // Added to the reference price for the sell leg (quote units)
	CapitalFraction float64       // Fraction of available quote balance per pair (0..1)
	PacingInterval  time.Duration // Minimum time between new pairs
	BuyEnabled      bool
	SellEnabled     bool
}

// Config holds all application configuration.
type Config struct {
	// Exchange API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Trading Parameters
	Symbol     string // Exchange symbol, e.g. "BTCUSDC"
	BaseAsset  string // e.g. "BTC"
	QuoteAsset string // e.g. "USDC"

	MinOrderValue    float64 // Minimum order value in quote units
	FillTolerance    float64 // Fraction of requested quantity that counts as filled (e.g. 0.99)
	BalanceTolerance float64 // Rounding tolerance on the base balance check (e.g. 0.001)

	// Per-regime parameters
	Regimes map[domain.MarketRegime]RegimeConfig

	// Fixed regime used when no external classifier is wired in
	StaticRegime domain.MarketRegime

	// Worker pacing
	DisposalInterval       time.Duration // Sell-side scan interval
	ReconciliationInterval time.Duration // Exchange sync interval
	FillLookback           time.Duration // Bounded lookback window for fill history
	RetryCoolDown          time.Duration // Hold-back after a failed sell placement

	// Database
	DBPath string

	// Metrics
	MetricsAddr string // Listen address for the Prometheus endpoint, empty disables it

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	// Exchange API
	cfg.APIKey = getEnv("EXCHANGE_API_KEY", "")
	cfg.SecretKey = getEnv("EXCHANGE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if cfg.APIKey == "" {
		errs = append(errs, "EXCHANGE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "EXCHANGE_API_SECRET must be set")
	}

	// Trading Parameters
	cfg.Symbol = getEnv("SYMBOL", "BTCUSDC")
	cfg.BaseAsset = getEnv("BASE_ASSET", "BTC")
	cfg.QuoteAsset = getEnv("QUOTE_ASSET", "USDC")
	if cfg.Symbol == "" || cfg.BaseAsset == "" || cfg.QuoteAsset == "" {
		errs = append(errs, "SYMBOL, BASE_ASSET and QUOTE_ASSET must be set")
	}

	cfg.MinOrderValue = getEnvAsFloat("MIN_ORDER_VALUE", 10.0)
	if cfg.MinOrderValue < 0 {
		errs = append(errs, "MIN_ORDER_VALUE cannot be negative")
	}

	cfg.FillTolerance = getEnvAsFloat("FILL_TOLERANCE", 0.99)
	if cfg.FillTolerance <= 0 || cfg.FillTolerance > 1 {
		errs = append(errs, "FILL_TOLERANCE must be in (0, 1]")
	}

	cfg.BalanceTolerance = getEnvAsFloat("BALANCE_TOLERANCE", 0.001)
	if cfg.BalanceTolerance < 0 || cfg.BalanceTolerance >= 1 {
		errs = append(errs, "BALANCE_TOLERANCE must be in [0, 1)")
	}

	// Per-regime parameters. Offsets are quote-currency amounts added to the
	// reference price; percent values are converted to fractions.
	cfg.Regimes = map[domain.MarketRegime]RegimeConfig{
		domain.RegimeBull: {
			BuyOffset:       getEnvAsFloat("BULL_BUY_OFFSET", 0),
			SellOffset:      getEnvAsFloat("BULL_SELL_OFFSET", 1000),
			CapitalFraction: getEnvAsFloat("BULL_PERCENT", 3) / 100,
			PacingInterval:  time.Duration(getEnvAsInt("BULL_PACING_MINUTES", 360)) * time.Minute,
			BuyEnabled:      getEnvAsBool("BULL_BUY_ENABLED", true),
			SellEnabled:     getEnvAsBool("BULL_SELL_ENABLED", true),
		},
		domain.RegimeBear: {
			BuyOffset:       getEnvAsFloat("BEAR_BUY_OFFSET", -1000),
			SellOffset:      getEnvAsFloat("BEAR_SELL_OFFSET", 0),
			CapitalFraction: getEnvAsFloat("BEAR_PERCENT", 3) / 100,
			PacingInterval:  time.Duration(getEnvAsInt("BEAR_PACING_MINUTES", 360)) * time.Minute,
			BuyEnabled:      getEnvAsBool("BEAR_BUY_ENABLED", false),
			SellEnabled:     getEnvAsBool("BEAR_SELL_ENABLED", false),
		},
		domain.RegimeRange: {
			BuyOffset:       getEnvAsFloat("RANGE_BUY_OFFSET", -400),
			SellOffset:      getEnvAsFloat("RANGE_SELL_OFFSET", 400),
			CapitalFraction: getEnvAsFloat("RANGE_PERCENT", 5) / 100,
			PacingInterval:  time.Duration(getEnvAsInt("RANGE_PACING_MINUTES", 180)) * time.Minute,
			BuyEnabled:      getEnvAsBool("RANGE_BUY_ENABLED", true),
			SellEnabled:     getEnvAsBool("RANGE_SELL_ENABLED", true),
		},
	}
	for regime, rc := range cfg.Regimes {
		if rc.CapitalFraction <= 0 || rc.CapitalFraction > 1 {
			errs = append(errs, fmt.Sprintf("%s capital percent must be in (0, 100]", regime))
		}
		if rc.PacingInterval <= 0 {
			errs = append(errs, fmt.Sprintf("%s pacing interval must be positive", regime))
		}
	}

	cfg.StaticRegime = domain.MarketRegime(strings.ToUpper(getEnv("MARKET_REGIME", string(domain.RegimeRange))))
	switch cfg.StaticRegime {
	case domain.RegimeBull, domain.RegimeBear, domain.RegimeRange:
	default:
		errs = append(errs, fmt.Sprintf("unknown MARKET_REGIME %q", cfg.StaticRegime))
	}

	// Worker pacing
	cfg.DisposalInterval = time.Duration(getEnvAsInt("DISPOSAL_INTERVAL_SECONDS", 30)) * time.Second
	cfg.ReconciliationInterval = time.Duration(getEnvAsInt("RECONCILIATION_INTERVAL_SECONDS", 300)) * time.Second
	cfg.FillLookback = time.Duration(getEnvAsInt("FILL_LOOKBACK_HOURS", 48)) * time.Hour
	cfg.RetryCoolDown = time.Duration(getEnvAsInt("RETRY_COOLDOWN_SECONDS", 300)) * time.Second
	if cfg.DisposalInterval <= 0 || cfg.ReconciliationInterval <= 0 || cfg.FillLookback <= 0 || cfg.RetryCoolDown <= 0 {
		errs = append(errs, "worker intervals must be positive")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/order_pairs.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Metrics
	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9090")

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr)

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
