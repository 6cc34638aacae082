package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"orderPairBot/internal/domain"
	"orderPairBot/internal/metrics"
)

// quantityPrecision is the number of decimal places quantities are rounded
// down to before order placement.
const quantityPrecision = 8

// acquisitionCycle attempts to open a new pair if the pacing interval for the
// current regime has elapsed. The pacing clock advances on every attempt,
// successful or not, so a failing exchange cannot cause a burst of buys when
// it recovers.
func (s *PairService) acquisitionCycle(ctx context.Context) error {
	regime, err := s.regimes.CurrentRegime(ctx)
	if err != nil {
		return fmt.Errorf("determine market regime: %w", err)
	}
	params := s.params.Params(regime)

	if !params.BuyEnabled {
		s.logger.Debug(ctx, "Buying disabled for current regime", map[string]interface{}{"regime": regime})
		return nil
	}

	now := time.Now()
	if !s.lastBuyAttempt.IsZero() && now.Sub(s.lastBuyAttempt) < params.PacingInterval {
		return nil
	}
	s.lastBuyAttempt = now

	refPrice, err := s.exchange.GetReferencePrice(ctx, s.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("fetch reference price: %w", err)
	}

	buyPrice := refPrice + params.BuyOffset
	if buyPrice <= 0 {
		s.logger.Warn(ctx, "Computed buy price is not positive, skipping", map[string]interface{}{
			"referencePrice": refPrice,
			"buyOffset":      params.BuyOffset,
		})
		return nil
	}

	balance, err := s.exchange.GetAvailableBalance(ctx, s.cfg.QuoteAsset)
	if err != nil {
		return fmt.Errorf("fetch quote balance: %w", err)
	}

	spend := balance * params.CapitalFraction
	if spend < s.cfg.MinOrderValue {
		s.logger.Debug(ctx, "Allocated capital below minimum order value, skipping", map[string]interface{}{
			"balance":       balance,
			"allocated":     spend,
			"minOrderValue": s.cfg.MinOrderValue,
		})
		return nil
	}

	quantity := roundDown(spend/buyPrice, quantityPrecision)
	if quantity <= 0 {
		s.logger.Debug(ctx, "Computed quantity rounds to zero, skipping", map[string]interface{}{
			"allocated": spend,
			"buyPrice":  buyPrice,
		})
		return nil
	}

	orderRef, err := s.exchange.SubmitOrder(ctx, domain.Buy, buyPrice, quantity)
	if err != nil {
		return fmt.Errorf("place buy order: %w", err)
	}

	pair := &domain.OrderPair{
		ClientRef:         uuid.NewString(),
		Status:            domain.StatusOpening,
		Symbol:            s.cfg.Symbol,
		Regime:            regime,
		BuyPrice:          buyPrice,
		QuantityRequested: quantity,
		BuyOrderRef:       &orderRef,
		CreatedAt:         now,
	}
	id, err := s.ledger.CreatePair(ctx, pair)
	if err != nil {
		// The buy is live on the exchange but has no ledger record. It must
		// be resolved by hand, so be loud about it.
		s.logger.Error(ctx, err, "Buy order placed but ledger insert failed, order is untracked", map[string]interface{}{
			"orderRef": orderRef,
			"buyPrice": buyPrice,
			"quantity": quantity,
		})
		return fmt.Errorf("record new pair: %w", err)
	}

	metrics.PairsCreated.WithLabelValues(string(regime)).Inc()
	s.logger.Info(ctx, "Opened new pair", map[string]interface{}{
		"pairID":    id,
		"clientRef": pair.ClientRef,
		"regime":    regime,
		"buyPrice":  buyPrice,
		"quantity":  quantity,
		"orderRef":  orderRef,
	})
	return nil
}

// roundDown truncates v to the given number of decimal places. Truncation
// rather than rounding keeps the order within the available balance.
func roundDown(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Floor(v*factor) / factor
}
