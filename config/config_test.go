package config

import (
	"context"
	"testing"
	"time"

	"orderPairBot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("EXCHANGE_API_KEY", "test-key")
	t.Setenv("EXCHANGE_API_SECRET", "test-secret")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDC", cfg.Symbol)
	assert.Equal(t, "BTC", cfg.BaseAsset)
	assert.Equal(t, "USDC", cfg.QuoteAsset)
	assert.True(t, cfg.IsTestnet, "testnet must be the default")
	assert.Equal(t, domain.RegimeRange, cfg.StaticRegime)
	assert.InDelta(t, 0.99, cfg.FillTolerance, 1e-9)
	assert.InDelta(t, 0.001, cfg.BalanceTolerance, 1e-9)
	assert.Equal(t, 5*time.Minute, cfg.RetryCoolDown)

	rc := cfg.Regimes[domain.RegimeRange]
	assert.InDelta(t, 0.05, rc.CapitalFraction, 1e-9)
	assert.Equal(t, 3*time.Hour, rc.PacingInterval)
	assert.True(t, rc.BuyEnabled)

	// Bear regime defaults to sitting out
	assert.False(t, cfg.Regimes[domain.RegimeBear].BuyEnabled)
}

func TestLoadConfig_ValidationErrorsAccumulate(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EXCHANGE_API_KEY", "")
	t.Setenv("FILL_TOLERANCE", "1.5")
	t.Setenv("MARKET_REGIME", "SIDEWAYS")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXCHANGE_API_KEY")
	assert.Contains(t, err.Error(), "FILL_TOLERANCE")
	assert.Contains(t, err.Error(), "MARKET_REGIME")
}

func TestLoadConfig_RegimeOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MARKET_REGIME", "bull")
	t.Setenv("BULL_BUY_OFFSET", "-250")
	t.Setenv("BULL_PERCENT", "10")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, domain.RegimeBull, cfg.StaticRegime)
	rc := cfg.Regimes[domain.RegimeBull]
	assert.InDelta(t, -250.0, rc.BuyOffset, 1e-9)
	assert.InDelta(t, 0.10, rc.CapitalFraction, 1e-9)
}

func TestProvider_ParamsAndRegime(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := LoadConfig()
	require.NoError(t, err)
	p := NewProvider(cfg)

	regime, err := p.CurrentRegime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RegimeRange, regime)

	params := p.Params(domain.RegimeRange)
	assert.InDelta(t, 0.05, params.CapitalFraction, 1e-9)

	// Unknown regimes fall back to ranging parameters
	fallback := p.Params(domain.MarketRegime("UNKNOWN"))
	assert.Equal(t, params, fallback)
}

func TestProvider_Reload(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := LoadConfig()
	require.NoError(t, err)
	p := NewProvider(cfg)

	t.Setenv("RANGE_PERCENT", "8")
	require.NoError(t, p.Reload())
	assert.InDelta(t, 0.08, p.Params(domain.RegimeRange).CapitalFraction, 1e-9)

	// A broken environment keeps the previous parameters
	t.Setenv("FILL_TOLERANCE", "0")
	assert.Error(t, p.Reload())
	assert.InDelta(t, 0.08, p.Params(domain.RegimeRange).CapitalFraction, 1e-9)
}
