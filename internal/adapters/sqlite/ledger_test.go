package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"orderPairBot/internal/domain"
	"orderPairBot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}
func (m *mockLogger) Fatal(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestLedger creates a temporary database for testing
func setupTestLedger(t *testing.T) (*Ledger, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "pair-ledger-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	ledger, err := NewLedger(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		ledger.Close()
		os.RemoveAll(tmpDir)
	}

	return ledger, cleanup
}

func newTestPair() *domain.OrderPair {
	ref := "1001"
	return &domain.OrderPair{
		ClientRef:         "11111111-2222-3333-4444-555555555555",
		Status:            domain.StatusOpening,
		Symbol:            "BTCUSDC",
		Regime:            domain.RegimeRange,
		BuyPrice:          100000.0,
		QuantityRequested: 0.001,
		BuyOrderRef:       &ref,
		CreatedAt:         time.Now().UTC(),
	}
}

func TestLedger_CreatePair(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*domain.OrderPair)
		wantErr error
	}{
		{
			name:   "valid pair",
			modify: func(p *domain.OrderPair) {},
		},
		{
			name:   "empty status defaults to Opening",
			modify: func(p *domain.OrderPair) { p.Status = "" },
		},
		{
			name:    "must start in Opening",
			modify:  func(p *domain.OrderPair) { p.Status = domain.StatusAwaitingSell },
			wantErr: ports.ErrInvariantViolation,
		},
		{
			name:    "zero quantity rejected",
			modify:  func(p *domain.OrderPair) { p.QuantityRequested = 0 },
			wantErr: ports.ErrInvariantViolation,
		},
		{
			name:    "negative price rejected",
			modify:  func(p *domain.OrderPair) { p.BuyPrice = -1 },
			wantErr: ports.ErrInvariantViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, cleanup := setupTestLedger(t)
			defer cleanup()

			pair := newTestPair()
			tt.modify(pair)

			id, err := ledger.CreatePair(context.Background(), pair)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Greater(t, id, int64(0))

			found, err := ledger.FindByID(context.Background(), id)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, domain.StatusOpening, found.Status)
			assert.Equal(t, pair.ClientRef, found.ClientRef)
			require.NotNil(t, found.BuyOrderRef)
			assert.Equal(t, "1001", *found.BuyOrderRef)
			assert.Nil(t, found.QuantityActual)
		})
	}
}

func TestLedger_CreatePair_AssignsUniqueIDs(t *testing.T) {
	ledger, cleanup := setupTestLedger(t)
	defer cleanup()

	ctx := context.Background()
	first := newTestPair()
	id1, err := ledger.CreatePair(ctx, first)
	require.NoError(t, err)

	second := newTestPair()
	second.ClientRef = "66666666-7777-8888-9999-000000000000"
	id2, err := ledger.CreatePair(ctx, second)
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}

func TestLedger_Transition_Lifecycle(t *testing.T) {
	ledger, cleanup := setupTestLedger(t)
	defer cleanup()

	ctx := context.Background()
	id, err := ledger.CreatePair(ctx, newTestPair())
	require.NoError(t, err)

	// Opening -> AwaitingSell with the confirmed quantity
	filled := 0.00099996
	now := time.Now().UTC()
	ok, updated, err := ledger.Transition(ctx, id, domain.StatusOpening, func(p *domain.OrderPair) error {
		p.Status = domain.StatusAwaitingSell
		p.QuantityActual = &filled
		p.BuyFilledAt = &now
		return nil
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, updated.QuantityActual)
	assert.Equal(t, filled, *updated.QuantityActual)

	// AwaitingSell -> Closing with the sell order reference
	sellRef := "2002"
	ok, updated, err = ledger.Transition(ctx, id, domain.StatusAwaitingSell, func(p *domain.OrderPair) error {
		p.Status = domain.StatusClosing
		p.SellOrderRef = &sellRef
		p.SellPrice = 101000.0
		p.SellPlacedAt = &now
		return nil
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 101000.0, updated.SellPrice)

	// Closing -> Complete with the realized gain
	gain := 0.9
	gainPct := 0.9
	ok, updated, err = ledger.Transition(ctx, id, domain.StatusClosing, func(p *domain.OrderPair) error {
		p.Status = domain.StatusComplete
		p.RealizedGainQuote = &gain
		p.RealizedGainPercent = &gainPct
		p.CompletedAt = &now
		return nil
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StatusComplete, updated.Status)

	// Verify persistence
	found, err := ledger.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, domain.StatusComplete, found.Status)
	require.NotNil(t, found.RealizedGainQuote)
	assert.InDelta(t, 0.9, *found.RealizedGainQuote, 1e-9)
	require.NotNil(t, found.SellOrderRef)
	assert.Equal(t, "2002", *found.SellOrderRef)
}

// Two workers holding the same snapshot race to move the pair; exactly one
// transition wins, the other observes a stale status with no error.
func TestLedger_Transition_CompareAndSet(t *testing.T) {
	ledger, cleanup := setupTestLedger(t)
	defer cleanup()

	ctx := context.Background()
	id, err := ledger.CreatePair(ctx, newTestPair())
	require.NoError(t, err)

	filled := 0.001
	ok, _, err := ledger.Transition(ctx, id, domain.StatusOpening, func(p *domain.OrderPair) error {
		p.Status = domain.StatusAwaitingSell
		p.QuantityActual = &filled
		return nil
	})
	require.NoError(t, err)
	require.True(t, ok)

	// Second worker still believes the pair is Opening
	ok, updated, err := ledger.Transition(ctx, id, domain.StatusOpening, func(p *domain.OrderPair) error {
		p.Status = domain.StatusFailed
		return nil
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, updated)

	// The winner's state is untouched
	found, err := ledger.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingSell, found.Status)
}

func TestLedger_Transition_InvariantViolations(t *testing.T) {
	qty := 0.001
	sellRef := "2002"

	tests := []struct {
		name     string
		prepare  func(t *testing.T, l *Ledger, id int64) domain.PairStatus // returns expected status for the violating call
		mutate   ports.Mutator
	}{
		{
			name: "status regression",
			prepare: func(t *testing.T, l *Ledger, id int64) domain.PairStatus {
				advance(t, l, id, domain.StatusOpening, func(p *domain.OrderPair) error {
					p.Status = domain.StatusAwaitingSell
					p.QuantityActual = &qty
					return nil
				})
				return domain.StatusAwaitingSell
			},
			mutate: func(p *domain.OrderPair) error {
				p.Status = domain.StatusOpening
				return nil
			},
		},
		{
			name: "skipping a stage",
			prepare: func(t *testing.T, l *Ledger, id int64) domain.PairStatus {
				return domain.StatusOpening
			},
			mutate: func(p *domain.OrderPair) error {
				p.Status = domain.StatusClosing
				return nil
			},
		},
		{
			name: "quantity_actual recomputed",
			prepare: func(t *testing.T, l *Ledger, id int64) domain.PairStatus {
				advance(t, l, id, domain.StatusOpening, func(p *domain.OrderPair) error {
					p.Status = domain.StatusAwaitingSell
					p.QuantityActual = &qty
					return nil
				})
				return domain.StatusAwaitingSell
			},
			mutate: func(p *domain.OrderPair) error {
				other := 0.002
				p.Status = domain.StatusClosing
				p.SellOrderRef = &sellRef
				p.QuantityActual = &other
				return nil
			},
		},
		{
			name: "quantity_actual set outside buy confirmation",
			prepare: func(t *testing.T, l *Ledger, id int64) domain.PairStatus {
				return domain.StatusOpening
			},
			mutate: func(p *domain.OrderPair) error {
				p.Status = domain.StatusFailed
				p.QuantityActual = &qty
				return nil
			},
		},
		{
			name: "immutable buy_price mutated",
			prepare: func(t *testing.T, l *Ledger, id int64) domain.PairStatus {
				return domain.StatusOpening
			},
			mutate: func(p *domain.OrderPair) error {
				p.Status = domain.StatusFailed
				p.BuyPrice = 99.0
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, cleanup := setupTestLedger(t)
			defer cleanup()

			ctx := context.Background()
			id, err := ledger.CreatePair(ctx, newTestPair())
			require.NoError(t, err)

			expected := tt.prepare(t, ledger, id)

			ok, _, err := ledger.Transition(ctx, id, expected, tt.mutate)
			assert.False(t, ok)
			assert.ErrorIs(t, err, ports.ErrInvariantViolation)

			// The violating transition must not have been persisted
			found, ferr := ledger.FindByID(ctx, id)
			require.NoError(t, ferr)
			assert.Equal(t, expected, found.Status)
		})
	}
}

// advance is a test helper that performs a transition and fails the test if it
// does not win.
func advance(t *testing.T, l *Ledger, id int64, expected domain.PairStatus, mutate ports.Mutator) {
	t.Helper()
	ok, _, err := l.Transition(context.Background(), id, expected, mutate)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLedger_Transition_NotFound(t *testing.T) {
	ledger, cleanup := setupTestLedger(t)
	defer cleanup()

	_, _, err := ledger.Transition(context.Background(), 9999, domain.StatusOpening, func(p *domain.OrderPair) error {
		p.Status = domain.StatusFailed
		return nil
	})
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestLedger_FindByID_NotFound(t *testing.T) {
	ledger, cleanup := setupTestLedger(t)
	defer cleanup()

	found, err := ledger.FindByID(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestLedger_ListByStatus(t *testing.T) {
	ledger, cleanup := setupTestLedger(t)
	defer cleanup()

	ctx := context.Background()
	qty := 0.001

	// Three pairs: two stay Opening, one advances
	var ids []int64
	for i, clientRef := range []string{"aaa-1", "aaa-2", "aaa-3"} {
		pair := newTestPair()
		pair.ClientRef = clientRef
		ref := string(rune('a' + i))
		pair.BuyOrderRef = &ref
		id, err := ledger.CreatePair(ctx, pair)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	advance(t, ledger, ids[1], domain.StatusOpening, func(p *domain.OrderPair) error {
		p.Status = domain.StatusAwaitingSell
		p.QuantityActual = &qty
		return nil
	})

	opening, err := ledger.ListByStatus(ctx, domain.StatusOpening)
	require.NoError(t, err)
	require.Len(t, opening, 2)
	// Ordered by id
	assert.Equal(t, ids[0], opening[0].ID)
	assert.Equal(t, ids[2], opening[1].ID)

	awaiting, err := ledger.ListByStatus(ctx, domain.StatusAwaitingSell)
	require.NoError(t, err)
	require.Len(t, awaiting, 1)
	assert.Equal(t, ids[1], awaiting[0].ID)

	closing, err := ledger.ListByStatus(ctx, domain.StatusClosing)
	require.NoError(t, err)
	assert.Empty(t, closing)
}

func TestLedger_Statistics(t *testing.T) {
	ledger, cleanup := setupTestLedger(t)
	defer cleanup()

	ctx := context.Background()
	qty := 0.001
	sellRef := "777"

	complete := func(clientRef string, gain float64) {
		pair := newTestPair()
		pair.ClientRef = clientRef
		id, err := ledger.CreatePair(ctx, pair)
		require.NoError(t, err)
		advance(t, ledger, id, domain.StatusOpening, func(p *domain.OrderPair) error {
			p.Status = domain.StatusAwaitingSell
			p.QuantityActual = &qty
			return nil
		})
		advance(t, ledger, id, domain.StatusAwaitingSell, func(p *domain.OrderPair) error {
			p.Status = domain.StatusClosing
			p.SellOrderRef = &sellRef
			p.SellPrice = 101000.0
			return nil
		})
		g := gain
		advance(t, ledger, id, domain.StatusClosing, func(p *domain.OrderPair) error {
			p.Status = domain.StatusComplete
			p.RealizedGainQuote = &g
			return nil
		})
	}

	complete("s-1", 2.0)
	complete("s-2", -0.5)

	// One pair failed in Opening
	pair := newTestPair()
	pair.ClientRef = "s-3"
	id, err := ledger.CreatePair(ctx, pair)
	require.NoError(t, err)
	advance(t, ledger, id, domain.StatusOpening, func(p *domain.OrderPair) error {
		p.Status = domain.StatusFailed
		return nil
	})

	// One pair still Opening
	pair = newTestPair()
	pair.ClientRef = "s-4"
	_, err = ledger.CreatePair(ctx, pair)
	require.NoError(t, err)

	stats, err := ledger.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalPairs)
	assert.Equal(t, 2, stats.CompleteCount)
	assert.Equal(t, 1, stats.FailedCount)
	assert.Equal(t, 1, stats.OpeningCount)
	assert.Equal(t, 1, stats.ProfitableTrades)
	assert.Equal(t, 1, stats.LosingTrades)
	assert.InDelta(t, 1.5, stats.TotalGainQuote, 1e-9)
	assert.InDelta(t, 50.0, stats.WinRatePercent, 1e-9)
	assert.InDelta(t, 0.75, stats.AverageGainQuote, 1e-9)
}
