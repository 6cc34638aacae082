package domain

import "time"

// OrderPair is the central entity: one buy leg and its matching sell leg,
// tracked as a single lifecycle record from placement through fill to
// completion. Rows are never deleted; completed and failed pairs remain as
// the permanent trade history.
type OrderPair struct {
	ID        int64        // Unique identifier, assigned by the ledger, never reused
	ClientRef string       // UUID assigned at creation, for audit/correlation
	Status    PairStatus   // Current lifecycle stage
	Symbol    string       // Trading symbol (e.g., "BTCUSDC")
	Regime    MarketRegime // Market classification active at creation; immutable

	BuyPrice  float64 // Quote-currency price per unit, set at buy placement
	SellPrice float64 // Quote-currency price per unit, set at sell placement (0 until then)

	// QuantityRequested is computed at buy placement:
	// capital_fraction * available_balance / buy_price.
	QuantityRequested float64

	// QuantityActual is the fee-adjusted, exchange-confirmed quantity summed
	// from the buy fills. Nil until the buy fill is observed; set exactly once
	// on Opening -> AwaitingSell and authoritative for all later operations.
	QuantityActual *float64

	BuyOrderRef  *string // Opaque exchange order identifier, nil until placed
	SellOrderRef *string // Opaque exchange order identifier, nil until placed

	CreatedAt    time.Time  // When the pair was created
	BuyFilledAt  *time.Time // When the buy fill was observed
	SellPlacedAt *time.Time // When the sell order was placed
	CompletedAt  *time.Time // When the sell fill was observed

	RealizedGainQuote   *float64 // Net gain in quote currency; nil until Complete
	RealizedGainPercent *float64 // Net gain as a percentage of buy cost; nil until Complete
}

// BuyCost is the quote-currency cost of the buy leg based on the confirmed
// quantity. Returns 0 until QuantityActual is known.
func (p *OrderPair) BuyCost() float64 {
	if p.QuantityActual == nil {
		return 0
	}
	return *p.QuantityActual * p.BuyPrice
}

// IsActive reports whether the pair still has a resting or pending leg.
func (p *OrderPair) IsActive() bool {
	return !p.Status.IsTerminal()
}

// LedgerStats aggregates the trade history held by the ledger.
type LedgerStats struct {
	TotalPairs        int
	OpeningCount      int
	AwaitingSellCount int
	ClosingCount      int
	CompleteCount     int
	FailedCount       int
	TotalGainQuote    float64
	ProfitableTrades  int
	LosingTrades      int
	WinRatePercent    float64
	AverageGainQuote  float64
}
