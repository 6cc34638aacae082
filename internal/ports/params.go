package ports

import (
	"context"
	"time"

	"orderPairBot/internal/domain"
)

// RegimeParams is the per-regime parameter bundle the workers consume. It is
// re-read every cycle and therefore hot-reloadable; the core treats the values
// as opaque input.
type RegimeParams struct {
	BuyOffset       float64       // Added to the reference price for the buy leg
	SellOffset      float64       // Added to the reference price for the sell leg
	CapitalFraction float64       // Fraction of available quote balance per pair (0..1)
	PacingInterval  time.Duration // Minimum time between new pairs
	BuyEnabled      bool
	SellEnabled     bool
}

// ParamsProvider supplies the parameter bundle for a market regime.
type ParamsProvider interface {
	Params(regime domain.MarketRegime) RegimeParams
}

// RegimeSource supplies the current market regime. Classification itself
// (moving averages, trend detection) lives outside this core.
type RegimeSource interface {
	CurrentRegime(ctx context.Context) (domain.MarketRegime, error)
}
