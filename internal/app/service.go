package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"orderPairBot/config"
	"orderPairBot/internal/metrics"
	"orderPairBot/internal/ports"
	"orderPairBot/internal/retrycache"
)

// Worker names used in logs and metrics labels.
const (
	workerAcquisition    = "acquisition"
	workerDisposal       = "disposal"
	workerReconciliation = "reconciliation"
)

// acquisitionTick is how often the acquisition loop wakes to check its pacing
// clock. The per-regime pacing interval, not this tick, controls how often a
// new pair is actually attempted.
const acquisitionTick = time.Minute

// PairService runs the three workers that drive order pairs through their
// lifecycle. The workers share no in-process state besides the retry cache;
// all coordination happens through ledger transitions.
type PairService struct {
	cfg      *config.Config
	logger   ports.Logger
	exchange ports.ExchangeClient
	ledger   ports.Ledger
	params   ports.ParamsProvider
	regimes  ports.RegimeSource
	retry    *retrycache.Cache

	// lastBuyAttempt is only touched by the acquisition loop.
	lastBuyAttempt time.Time
}

// NewPairService creates a new application service instance.
func NewPairService(
	cfg *config.Config,
	logger ports.Logger,
	exchange ports.ExchangeClient,
	ledger ports.Ledger,
	params ports.ParamsProvider,
	regimes ports.RegimeSource,
	retry *retrycache.Cache,
) (*PairService, error) {

	// Validate dependencies
	if cfg == nil || logger == nil || exchange == nil || ledger == nil || params == nil || regimes == nil || retry == nil {
		return nil, fmt.Errorf("missing required dependencies for PairService")
	}

	// Validate config values needed by the workers
	if cfg.FillTolerance <= 0 || cfg.FillTolerance > 1 {
		return nil, fmt.Errorf("configuration FillTolerance must be between 0 and 1")
	}
	if cfg.BalanceTolerance < 0 || cfg.BalanceTolerance >= 1 {
		return nil, fmt.Errorf("configuration BalanceTolerance must be between 0 and 1")
	}
	if cfg.MinOrderValue < 0 {
		return nil, fmt.Errorf("configuration MinOrderValue cannot be negative")
	}
	if cfg.DisposalInterval <= 0 || cfg.ReconciliationInterval <= 0 {
		return nil, fmt.Errorf("configuration worker intervals must be positive")
	}
	if cfg.FillLookback <= 0 {
		return nil, fmt.Errorf("configuration FillLookback must be positive")
	}

	return &PairService{
		cfg:      cfg,
		logger:   logger,
		exchange: exchange,
		ledger:   ledger,
		params:   params,
		regimes:  regimes,
		retry:    retry,
	}, nil
}

// Start runs the workers until the context is cancelled or a shutdown signal
// arrives. An invariant violation from any worker halts the whole service;
// the ledger is in a state that needs operator attention.
func (s *PairService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Pair Service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	// Verify exchange connectivity before starting the loops
	if err := s.exchange.Ping(ctx); err != nil {
		s.logger.Error(ctx, err, "Exchange connectivity check failed")
		return fmt.Errorf("exchange ping failed: %w", err)
	}
	s.logger.Info(ctx, "Exchange connectivity verified")

	// Summarize ledger state so restarts show what carries over
	if stats, err := s.ledger.Statistics(ctx); err != nil {
		s.logger.Warn(ctx, "Failed to read ledger statistics", map[string]interface{}{"error": err.Error()})
	} else {
		s.logger.Info(ctx, "Ledger state at startup", map[string]interface{}{
			"totalPairs":   stats.TotalPairs,
			"opening":      stats.OpeningCount,
			"awaitingSell": stats.AwaitingSellCount,
			"closing":      stats.ClosingCount,
			"complete":     stats.CompleteCount,
			"failed":       stats.FailedCount,
			"totalGain":    stats.TotalGainQuote,
			"winRate":      stats.WinRatePercent,
		})
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	run := func(name string, loop func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s worker: %w", name, err)
				cancel()
			}
		}()
	}

	run(workerAcquisition, s.runAcquisitionLoop)
	run(workerDisposal, s.runDisposalLoop)
	run(workerReconciliation, s.runReconciliationLoop)

	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return err
	}
	s.logger.Info(ctx, "Pair Service stopped")
	return nil
}

// runAcquisitionLoop wakes every tick and attempts a buy placement when the
// regime's pacing interval has elapsed since the last attempt.
func (s *PairService) runAcquisitionLoop(ctx context.Context) error {
	ticker := time.NewTicker(acquisitionTick)
	defer ticker.Stop()

	s.logger.Info(ctx, "Acquisition worker started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Acquisition worker stopping", map[string]interface{}{"reason": ctx.Err().Error()})
			return ctx.Err()
		case <-ticker.C:
			if err := s.acquisitionCycle(ctx); err != nil {
				if errors.Is(err, ports.ErrInvariantViolation) {
					s.logger.Fatal(ctx, err, "Acquisition worker halting on invariant violation")
					return err
				}
				metrics.WorkerErrors.WithLabelValues(workerAcquisition).Inc()
				s.logger.Warn(ctx, "Acquisition cycle failed", map[string]interface{}{"error": err.Error()})
			}
			metrics.WorkerCycles.WithLabelValues(workerAcquisition).Inc()
		}
	}
}

// runDisposalLoop periodically scans for pairs awaiting a sell order.
func (s *PairService) runDisposalLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.DisposalInterval)
	defer ticker.Stop()

	s.logger.Info(ctx, "Disposal worker started", map[string]interface{}{"interval": s.cfg.DisposalInterval.String()})
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Disposal worker stopping", map[string]interface{}{"reason": ctx.Err().Error()})
			return ctx.Err()
		case <-ticker.C:
			if err := s.disposalCycle(ctx); err != nil {
				if errors.Is(err, ports.ErrInvariantViolation) {
					s.logger.Fatal(ctx, err, "Disposal worker halting on invariant violation")
					return err
				}
				metrics.WorkerErrors.WithLabelValues(workerDisposal).Inc()
				s.logger.Warn(ctx, "Disposal cycle failed", map[string]interface{}{"error": err.Error()})
			}
			metrics.WorkerCycles.WithLabelValues(workerDisposal).Inc()
		}
	}
}

// runReconciliationLoop periodically syncs ledger state with the exchange.
// The first cycle runs immediately so restarts pick up fills that happened
// while the process was down.
func (s *PairService) runReconciliationLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ReconciliationInterval)
	defer ticker.Stop()

	s.logger.Info(ctx, "Reconciliation worker started", map[string]interface{}{"interval": s.cfg.ReconciliationInterval.String()})

	cycle := func() error {
		if err := s.reconciliationCycle(ctx); err != nil {
			if errors.Is(err, ports.ErrInvariantViolation) {
				s.logger.Fatal(ctx, err, "Reconciliation worker halting on invariant violation")
				return err
			}
			metrics.WorkerErrors.WithLabelValues(workerReconciliation).Inc()
			s.logger.Warn(ctx, "Reconciliation cycle failed", map[string]interface{}{"error": err.Error()})
		}
		metrics.WorkerCycles.WithLabelValues(workerReconciliation).Inc()
		return nil
	}

	if err := cycle(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Reconciliation worker stopping", map[string]interface{}{"reason": ctx.Err().Error()})
			return ctx.Err()
		case <-ticker.C:
			if err := cycle(); err != nil {
				return err
			}
		}
	}
}
