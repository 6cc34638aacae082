package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orderPairBot/internal/domain"
	"orderPairBot/internal/metrics"
	"orderPairBot/internal/ports"
)

// disposalCycle places sell orders for pairs whose buy leg has filled. Errors
// on one pair never block the others; only an invariant violation aborts the
// cycle.
func (s *PairService) disposalCycle(ctx context.Context) error {
	regime, err := s.regimes.CurrentRegime(ctx)
	if err != nil {
		return fmt.Errorf("determine market regime: %w", err)
	}
	params := s.params.Params(regime)

	if !params.SellEnabled {
		s.logger.Debug(ctx, "Selling disabled for current regime", map[string]interface{}{"regime": regime})
		return nil
	}

	pairs, err := s.ledger.ListByStatus(ctx, domain.StatusAwaitingSell)
	if err != nil {
		return fmt.Errorf("list pairs awaiting sell: %w", err)
	}
	if len(pairs) == 0 {
		return nil
	}

	// One balance and one price fetch per cycle; individual placements
	// re-check nothing, the exchange rejects what no longer fits.
	baseBalance, err := s.exchange.GetAvailableBalance(ctx, s.cfg.BaseAsset)
	if err != nil {
		return fmt.Errorf("fetch base balance: %w", err)
	}
	refPrice, err := s.exchange.GetReferencePrice(ctx, s.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("fetch reference price: %w", err)
	}

	for _, pair := range pairs {
		if err := s.placeSell(ctx, pair, params.SellOffset, refPrice, &baseBalance); err != nil {
			if errors.Is(err, ports.ErrInvariantViolation) {
				return err
			}
			metrics.WorkerErrors.WithLabelValues(workerDisposal).Inc()
			s.logger.Warn(ctx, "Sell placement failed for pair", map[string]interface{}{
				"pairID": pair.ID,
				"error":  err.Error(),
			})
		}
	}
	return nil
}

// placeSell handles one pair: eligibility checks, order placement, and the
// compare-and-set to Closing. baseBalance is decremented on success so later
// pairs in the same cycle see the remaining funds.
func (s *PairService) placeSell(ctx context.Context, pair *domain.OrderPair, sellOffset, refPrice float64, baseBalance *float64) error {
	now := time.Now()

	if !s.retry.IsEligible(pair.ID, now, s.cfg.RetryCoolDown) {
		metrics.RetryDeferrals.Inc()
		s.logger.Debug(ctx, "Pair in retry cool-down, deferring", map[string]interface{}{"pairID": pair.ID})
		return nil
	}

	if pair.SellOrderRef != nil {
		// A sell is already tracked for this pair; reconciliation owns it.
		s.logger.Debug(ctx, "Pair already has a sell order, skipping", map[string]interface{}{"pairID": pair.ID})
		return nil
	}

	if pair.QuantityActual == nil {
		// AwaitingSell without a confirmed quantity should be impossible.
		return fmt.Errorf("pair %d awaiting sell has no confirmed quantity: %w", pair.ID, ports.ErrInvariantViolation)
	}
	quantity := *pair.QuantityActual

	// Allow for dust-level rounding between what the fill reported and what
	// the wallet actually holds.
	if *baseBalance < quantity*(1-s.cfg.BalanceTolerance) {
		s.retry.MarkFailed(pair.ID, now)
		s.logger.Warn(ctx, "Base balance insufficient for sell, deferring pair", map[string]interface{}{
			"pairID":   pair.ID,
			"quantity": quantity,
			"balance":  *baseBalance,
		})
		return nil
	}

	sellPrice := refPrice + sellOffset
	if sellPrice <= 0 {
		s.retry.MarkFailed(pair.ID, now)
		s.logger.Warn(ctx, "Computed sell price is not positive, deferring pair", map[string]interface{}{
			"pairID":         pair.ID,
			"referencePrice": refPrice,
			"sellOffset":     sellOffset,
		})
		return nil
	}

	if quantity*sellPrice < s.cfg.MinOrderValue {
		// Dust position. It may become sellable if the price rises, so defer
		// rather than fail the pair outright.
		s.retry.MarkFailed(pair.ID, now)
		s.logger.Warn(ctx, "Sell value below exchange minimum, deferring pair", map[string]interface{}{
			"pairID":        pair.ID,
			"orderValue":    quantity * sellPrice,
			"minOrderValue": s.cfg.MinOrderValue,
		})
		return nil
	}

	orderRef, err := s.exchange.SubmitOrder(ctx, domain.Sell, sellPrice, quantity)
	if err != nil {
		s.retry.MarkFailed(pair.ID, now)
		return fmt.Errorf("place sell order for pair %d: %w", pair.ID, err)
	}

	ok, _, err := s.ledger.Transition(ctx, pair.ID, domain.StatusAwaitingSell, func(p *domain.OrderPair) error {
		p.Status = domain.StatusClosing
		p.SellOrderRef = &orderRef
		p.SellPrice = sellPrice
		p.SellPlacedAt = &now
		return nil
	})
	if err != nil {
		return fmt.Errorf("transition pair %d to Closing: %w", pair.ID, err)
	}
	if !ok {
		// Another worker moved the pair while our order was in flight. The
		// order must not be left resting against a pair we no longer own.
		metrics.TransitionsSkipped.WithLabelValues(workerDisposal).Inc()
		s.logger.Warn(ctx, "Pair moved during sell placement, cancelling order", map[string]interface{}{
			"pairID":   pair.ID,
			"orderRef": orderRef,
		})
		if cancelErr := s.exchange.CancelOrder(ctx, orderRef); cancelErr != nil && !errors.Is(cancelErr, ports.ErrOrderNotFound) {
			s.logger.Error(ctx, cancelErr, "Failed to cancel orphaned sell order, resolve by hand", map[string]interface{}{
				"pairID":   pair.ID,
				"orderRef": orderRef,
			})
		}
		return nil
	}

	*baseBalance -= quantity
	s.retry.Clear(pair.ID)
	metrics.Transitions.WithLabelValues(string(domain.StatusAwaitingSell), string(domain.StatusClosing)).Inc()
	s.logger.Info(ctx, "Placed sell order", map[string]interface{}{
		"pairID":    pair.ID,
		"orderRef":  orderRef,
		"sellPrice": sellPrice,
		"quantity":  quantity,
	})
	return nil
}
