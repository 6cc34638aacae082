package app

import (
	"context"
	"testing"
	"time"

	"orderPairBot/config"
	"orderPairBot/internal/domain"
	"orderPairBot/internal/ports"
	"orderPairBot/internal/retrycache"
)

// --- Mocks for ports used by the workers ---

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}
func (m *mockLogger) Fatal(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockLedger struct {
	createFn     func(ctx context.Context, pair *domain.OrderPair) (int64, error)
	transitionFn func(ctx context.Context, id int64, expected domain.PairStatus, mutate ports.Mutator) (bool, *domain.OrderPair, error)
	listFn       func(ctx context.Context, status domain.PairStatus) ([]*domain.OrderPair, error)
	findFn       func(ctx context.Context, id int64) (*domain.OrderPair, error)
	statsFn      func(ctx context.Context) (*domain.LedgerStats, error)
}

func (m *mockLedger) CreatePair(ctx context.Context, pair *domain.OrderPair) (int64, error) {
	if m.createFn == nil {
		return 1, nil
	}
	return m.createFn(ctx, pair)
}

func (m *mockLedger) Transition(ctx context.Context, id int64, expected domain.PairStatus, mutate ports.Mutator) (bool, *domain.OrderPair, error) {
	if m.transitionFn == nil {
		return true, nil, nil
	}
	return m.transitionFn(ctx, id, expected, mutate)
}

func (m *mockLedger) ListByStatus(ctx context.Context, status domain.PairStatus) ([]*domain.OrderPair, error) {
	if m.listFn == nil {
		return nil, nil
	}
	return m.listFn(ctx, status)
}

func (m *mockLedger) FindByID(ctx context.Context, id int64) (*domain.OrderPair, error) {
	if m.findFn == nil {
		return nil, nil
	}
	return m.findFn(ctx, id)
}

func (m *mockLedger) Statistics(ctx context.Context) (*domain.LedgerStats, error) {
	if m.statsFn == nil {
		return &domain.LedgerStats{}, nil
	}
	return m.statsFn(ctx)
}

type submittedOrder struct {
	side     domain.OrderSide
	price    float64
	quantity float64
}

type mockExchange struct {
	balances   map[string]float64
	refPrice   float64
	openOrders map[string]struct{}
	fills      map[string][]domain.Fill

	submitFn func(ctx context.Context, side domain.OrderSide, price, quantity float64) (string, error)

	submitted []submittedOrder
	cancelled []string
}

func (m *mockExchange) GetAvailableBalance(ctx context.Context, asset string) (float64, error) {
	return m.balances[asset], nil
}

func (m *mockExchange) SubmitOrder(ctx context.Context, side domain.OrderSide, price, quantity float64) (string, error) {
	m.submitted = append(m.submitted, submittedOrder{side: side, price: price, quantity: quantity})
	if m.submitFn != nil {
		return m.submitFn(ctx, side, price, quantity)
	}
	return "9001", nil
}

func (m *mockExchange) ListOpenOrders(ctx context.Context) (map[string]struct{}, error) {
	if m.openOrders == nil {
		return map[string]struct{}{}, nil
	}
	return m.openOrders, nil
}

func (m *mockExchange) ListFills(ctx context.Context, orderRef string, since time.Time) ([]domain.Fill, error) {
	return m.fills[orderRef], nil
}

func (m *mockExchange) GetReferencePrice(ctx context.Context, symbol string) (float64, error) {
	return m.refPrice, nil
}

func (m *mockExchange) CancelOrder(ctx context.Context, orderRef string) error {
	m.cancelled = append(m.cancelled, orderRef)
	return nil
}

func (m *mockExchange) Ping(ctx context.Context) error { return nil }

// staticParams serves one fixed parameter bundle and regime.
type staticParams struct {
	params ports.RegimeParams
	regime domain.MarketRegime
}

func (s *staticParams) Params(domain.MarketRegime) ports.RegimeParams { return s.params }
func (s *staticParams) CurrentRegime(context.Context) (domain.MarketRegime, error) {
	return s.regime, nil
}

// --- Test fixture ---

func testConfig() *config.Config {
	return &config.Config{
		Symbol:                 "BTCUSDC",
		BaseAsset:              "BTC",
		QuoteAsset:             "USDC",
		MinOrderValue:          10.0,
		FillTolerance:          0.99,
		BalanceTolerance:       0.001,
		DisposalInterval:       30 * time.Second,
		ReconciliationInterval: 300 * time.Second,
		FillLookback:           48 * time.Hour,
		RetryCoolDown:          5 * time.Minute,
	}
}

func testService(t *testing.T, cfg *config.Config, exchange *mockExchange, ledger *mockLedger, params *staticParams) *PairService {
	t.Helper()
	svc, err := NewPairService(cfg, &mockLogger{}, exchange, ledger, params, params, retrycache.New())
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return svc
}
