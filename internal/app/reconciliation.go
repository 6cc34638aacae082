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

// reconciliationCycle syncs the ledger with the exchange: it confirms buy
// fills, records sell fills with their realized gain, and fails pairs whose
// resting order disappeared without filling. Fill records are the source of
// truth; the open-order set only decides what to do when fills are absent or
// insufficient. Every decision is applied through a compare-and-set, so
// re-observing the same fills on a later cycle is a no-op.
func (s *PairService) reconciliationCycle(ctx context.Context) error {
	openOrders, err := s.exchange.ListOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("list open orders: %w", err)
	}
	since := time.Now().Add(-s.cfg.FillLookback)

	if err := s.reconcileBuys(ctx, openOrders, since); err != nil {
		return err
	}
	return s.reconcileSells(ctx, openOrders, since)
}

// reconcileBuys drives Opening pairs forward. A buy whose accumulated fills
// reach the tolerance is confirmed even if the exchange still lists the order
// as open; a stale open-order snapshot must not fail a filled pair.
func (s *PairService) reconcileBuys(ctx context.Context, openOrders map[string]struct{}, since time.Time) error {
	pairs, err := s.ledger.ListByStatus(ctx, domain.StatusOpening)
	if err != nil {
		return fmt.Errorf("list opening pairs: %w", err)
	}

	for _, pair := range pairs {
		if err := s.reconcileBuy(ctx, pair, openOrders, since); err != nil {
			if errors.Is(err, ports.ErrInvariantViolation) {
				return err
			}
			metrics.WorkerErrors.WithLabelValues(workerReconciliation).Inc()
			s.logger.Warn(ctx, "Buy reconciliation failed for pair", map[string]interface{}{
				"pairID": pair.ID,
				"error":  err.Error(),
			})
		}
	}
	return nil
}

func (s *PairService) reconcileBuy(ctx context.Context, pair *domain.OrderPair, openOrders map[string]struct{}, since time.Time) error {
	if pair.BuyOrderRef == nil {
		return fmt.Errorf("opening pair %d has no buy order reference: %w", pair.ID, ports.ErrInvariantViolation)
	}
	orderRef := *pair.BuyOrderRef

	fills, err := s.exchange.ListFills(ctx, orderRef, since)
	if err != nil {
		return fmt.Errorf("fetch buy fills for pair %d: %w", pair.ID, err)
	}
	filled := domain.SumFillQuantity(fills)

	if filled >= pair.QuantityRequested*s.cfg.FillTolerance {
		now := time.Now()
		ok, _, err := s.ledger.Transition(ctx, pair.ID, domain.StatusOpening, func(p *domain.OrderPair) error {
			p.Status = domain.StatusAwaitingSell
			p.QuantityActual = &filled
			p.BuyFilledAt = &now
			return nil
		})
		if err != nil {
			return fmt.Errorf("confirm buy fill for pair %d: %w", pair.ID, err)
		}
		if !ok {
			metrics.TransitionsSkipped.WithLabelValues(workerReconciliation).Inc()
			return nil
		}
		metrics.Transitions.WithLabelValues(string(domain.StatusOpening), string(domain.StatusAwaitingSell)).Inc()
		s.logger.Info(ctx, "Buy fill confirmed", map[string]interface{}{
			"pairID":            pair.ID,
			"orderRef":          orderRef,
			"quantityRequested": pair.QuantityRequested,
			"quantityActual":    filled,
		})
		return nil
	}

	if _, stillOpen := openOrders[orderRef]; stillOpen {
		// Order is resting, fill may still come.
		return nil
	}

	// The order is gone and its fills never reached the tolerance: cancelled,
	// expired, or a rejected partial. The pair cannot proceed.
	ok, _, err := s.ledger.Transition(ctx, pair.ID, domain.StatusOpening, func(p *domain.OrderPair) error {
		p.Status = domain.StatusFailed
		return nil
	})
	if err != nil {
		return fmt.Errorf("fail unfilled buy for pair %d: %w", pair.ID, err)
	}
	if !ok {
		metrics.TransitionsSkipped.WithLabelValues(workerReconciliation).Inc()
		return nil
	}
	metrics.Transitions.WithLabelValues(string(domain.StatusOpening), string(domain.StatusFailed)).Inc()
	s.logger.Warn(ctx, "Buy order gone without sufficient fill, pair failed", map[string]interface{}{
		"pairID":            pair.ID,
		"orderRef":          orderRef,
		"quantityRequested": pair.QuantityRequested,
		"quantityFilled":    filled,
	})
	return nil
}

// reconcileSells drives Closing pairs to Complete or Failed.
func (s *PairService) reconcileSells(ctx context.Context, openOrders map[string]struct{}, since time.Time) error {
	pairs, err := s.ledger.ListByStatus(ctx, domain.StatusClosing)
	if err != nil {
		return fmt.Errorf("list closing pairs: %w", err)
	}

	for _, pair := range pairs {
		if err := s.reconcileSell(ctx, pair, openOrders, since); err != nil {
			if errors.Is(err, ports.ErrInvariantViolation) {
				return err
			}
			metrics.WorkerErrors.WithLabelValues(workerReconciliation).Inc()
			s.logger.Warn(ctx, "Sell reconciliation failed for pair", map[string]interface{}{
				"pairID": pair.ID,
				"error":  err.Error(),
			})
		}
	}
	return nil
}

func (s *PairService) reconcileSell(ctx context.Context, pair *domain.OrderPair, openOrders map[string]struct{}, since time.Time) error {
	if pair.SellOrderRef == nil || pair.QuantityActual == nil {
		return fmt.Errorf("closing pair %d is missing sell reference or confirmed quantity: %w", pair.ID, ports.ErrInvariantViolation)
	}
	orderRef := *pair.SellOrderRef
	quantity := *pair.QuantityActual

	fills, err := s.exchange.ListFills(ctx, orderRef, since)
	if err != nil {
		return fmt.Errorf("fetch sell fills for pair %d: %w", pair.ID, err)
	}
	filled := domain.SumFillQuantity(fills)

	if filled >= quantity*s.cfg.FillTolerance {
		gross := domain.GrossQuote(fills)
		fees := domain.SumQuoteFees(fills, s.cfg.QuoteAsset)
		cost := quantity * pair.BuyPrice
		gain := gross - cost - fees
		var gainPct float64
		if cost > 0 {
			gainPct = gain / cost * 100
		}

		now := time.Now()
		ok, _, err := s.ledger.Transition(ctx, pair.ID, domain.StatusClosing, func(p *domain.OrderPair) error {
			p.Status = domain.StatusComplete
			p.RealizedGainQuote = &gain
			p.RealizedGainPercent = &gainPct
			p.CompletedAt = &now
			return nil
		})
		if err != nil {
			return fmt.Errorf("complete pair %d: %w", pair.ID, err)
		}
		if !ok {
			metrics.TransitionsSkipped.WithLabelValues(workerReconciliation).Inc()
			return nil
		}
		metrics.Transitions.WithLabelValues(string(domain.StatusClosing), string(domain.StatusComplete)).Inc()
		metrics.RealizedGain.Add(gain)
		s.logger.Info(ctx, "Pair completed", map[string]interface{}{
			"pairID":      pair.ID,
			"orderRef":    orderRef,
			"gainQuote":   gain,
			"gainPercent": gainPct,
		})
		return nil
	}

	if _, stillOpen := openOrders[orderRef]; stillOpen {
		return nil
	}

	// Sell order gone without filling. The position is still held; the pair
	// is parked in Failed for the operator.
	ok, _, err := s.ledger.Transition(ctx, pair.ID, domain.StatusClosing, func(p *domain.OrderPair) error {
		p.Status = domain.StatusFailed
		return nil
	})
	if err != nil {
		return fmt.Errorf("fail unfilled sell for pair %d: %w", pair.ID, err)
	}
	if !ok {
		metrics.TransitionsSkipped.WithLabelValues(workerReconciliation).Inc()
		return nil
	}
	metrics.Transitions.WithLabelValues(string(domain.StatusClosing), string(domain.StatusFailed)).Inc()
	s.logger.Warn(ctx, "Sell order gone without sufficient fill, pair failed", map[string]interface{}{
		"pairID":         pair.ID,
		"orderRef":       orderRef,
		"quantity":       quantity,
		"quantityFilled": filled,
	})
	return nil
}
