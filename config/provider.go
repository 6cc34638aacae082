package config

import (
	"context"
	"sync"

	"orderPairBot/internal/domain"
	"orderPairBot/internal/ports"
)

// Provider serves per-regime trading parameters to the workers and supports
// reloading them from the environment at runtime. Workers read parameters at
// the start of each cycle, so a reload takes effect without a restart.
type Provider struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewProvider creates a Provider backed by the given configuration.
func NewProvider(cfg *Config) *Provider {
	return &Provider{cfg: cfg}
}

// Params returns the trading parameters for the given regime. Unknown regimes
// fall back to the ranging parameters, which are the most conservative.
func (p *Provider) Params(regime domain.MarketRegime) ports.RegimeParams {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rc, ok := p.cfg.Regimes[regime]
	if !ok {
		rc = p.cfg.Regimes[domain.RegimeRange]
	}
	return ports.RegimeParams{
		BuyOffset:       rc.BuyOffset,
		SellOffset:      rc.SellOffset,
		CapitalFraction: rc.CapitalFraction,
		PacingInterval:  rc.PacingInterval,
		BuyEnabled:      rc.BuyEnabled,
		SellEnabled:     rc.SellEnabled,
	}
}

// CurrentRegime returns the configured market regime.
func (p *Provider) CurrentRegime(_ context.Context) (domain.MarketRegime, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.StaticRegime, nil
}

// Reload re-reads the configuration from the environment and swaps it in.
// The previous configuration is kept if loading fails.
func (p *Provider) Reload() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	return nil
}

var _ ports.ParamsProvider = (*Provider)(nil)
var _ ports.RegimeSource = (*Provider)(nil)
