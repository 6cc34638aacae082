package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"orderPairBot/internal/domain"
	"orderPairBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Ledger implements ports.Ledger using SQLite. It is the single serialization
// point between the workers: every status change goes through Transition,
// which is a compare-and-set on (id, status).
type Ledger struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite ledger.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewLedger creates a new SQLite ledger instance.
func NewLedger(cfg Config) (*Ledger, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite ledger")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/order_pairs.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite ledger initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, ports.ErrDBConnection)
		cfg.Logger.Error(context.Background(), err, "SQLite ledger initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite ledger initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	ledger := &Ledger{db: db, logger: cfg.Logger}

	if err := ledger.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite ledger initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Ledger schema initialized/verified")

	return ledger, nil
}

// initializeSchema creates tables if they don't exist.
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (l *Ledger) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS order_pairs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_ref TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		symbol TEXT NOT NULL,
		regime TEXT NOT NULL,
		buy_price REAL NOT NULL,
		sell_price REAL NOT NULL DEFAULT 0,
		quantity_requested REAL NOT NULL,
		quantity_actual REAL DEFAULT NULL,
		buy_order_ref TEXT DEFAULT NULL,
		sell_order_ref TEXT DEFAULT NULL,
		created_at TIMESTAMP NOT NULL,
		buy_filled_at TIMESTAMP DEFAULT NULL,
		sell_placed_at TIMESTAMP DEFAULT NULL,
		completed_at TIMESTAMP DEFAULT NULL,
		realized_gain_quote REAL DEFAULT NULL,
		realized_gain_percent REAL DEFAULT NULL
	);
	-- Add indexes for the status scans the workers run every cycle
	CREATE INDEX IF NOT EXISTS idx_order_pairs_status ON order_pairs (status);
	CREATE INDEX IF NOT EXISTS idx_order_pairs_created_at ON order_pairs (created_at);
	`
	_, err := l.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w: %w", ports.ErrQueryFailed, err)
	}
	return nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	if l.db != nil {
		l.logger.Info(context.Background(), "Closing SQLite database connection")
		return l.db.Close()
	}
	return nil
}

const pairColumns = `id, client_ref, status, symbol, regime, buy_price, sell_price,
       quantity_requested, quantity_actual, buy_order_ref, sell_order_ref,
       created_at, buy_filled_at, sell_placed_at, completed_at,
       realized_gain_quote, realized_gain_percent`

// CreatePair inserts a new pair in Opening, assigning a fresh unique id.
func (l *Ledger) CreatePair(ctx context.Context, pair *domain.OrderPair) (int64, error) {
	if pair.Status == "" {
		pair.Status = domain.StatusOpening
	}
	if pair.Status != domain.StatusOpening {
		return 0, fmt.Errorf("new pair must start in %s, got %s: %w", domain.StatusOpening, pair.Status, ports.ErrInvariantViolation)
	}
	if pair.QuantityRequested <= 0 || pair.BuyPrice <= 0 {
		return 0, fmt.Errorf("pair requires positive quantity and price (qty=%v price=%v): %w",
			pair.QuantityRequested, pair.BuyPrice, ports.ErrInvariantViolation)
	}
	if pair.CreatedAt.IsZero() {
		pair.CreatedAt = time.Now().UTC()
	}

	const query = `
	INSERT INTO order_pairs (client_ref, status, symbol, regime, buy_price, sell_price,
	                         quantity_requested, buy_order_ref, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := l.db.ExecContext(ctx, query,
		pair.ClientRef, pair.Status, pair.Symbol, pair.Regime, pair.BuyPrice, pair.SellPrice,
		pair.QuantityRequested, nullString(pair.BuyOrderRef), pair.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert pair for symbol %s: %w: %w", pair.Symbol, ports.ErrQueryFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for pair %s: %w", pair.Symbol, err)
	}
	pair.ID = id
	l.logger.Debug(ctx, "Order pair created", map[string]interface{}{"pairID": id, "symbol": pair.Symbol, "status": pair.Status})
	return id, nil
}

// Transition atomically verifies the current status equals expected, applies
// the mutator to a copy and persists it. A stale expected status returns
// (false, nil, nil); an invariant breach returns ErrInvariantViolation.
func (l *Ledger) Transition(ctx context.Context, id int64, expected domain.PairStatus, mutate ports.Mutator) (bool, *domain.OrderPair, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, nil, fmt.Errorf("failed to begin transition for pair %d: %w: %w", id, ports.ErrDBConnection, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+pairColumns+` FROM order_pairs WHERE id = ?`, id)
	current, err := scanPair(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil, fmt.Errorf("pair %d not found for transition: %w", id, ports.ErrNotFound)
		}
		return false, nil, fmt.Errorf("failed to load pair %d for transition: %w: %w", id, ports.ErrQueryFailed, err)
	}

	if current.Status != expected {
		// Another worker already moved the pair. Not an error: the caller
		// re-evaluates from fresh state next cycle.
		l.logger.Debug(ctx, "Transition skipped on stale status", map[string]interface{}{
			"pairID": id, "expected": expected, "actual": current.Status})
		return false, nil, nil
	}

	updated := *current
	if err := mutate(&updated); err != nil {
		return false, nil, fmt.Errorf("mutator failed for pair %d: %w", id, err)
	}

	if err := validateTransition(current, &updated); err != nil {
		return false, nil, err
	}

	const query = `
	UPDATE order_pairs
	SET status = ?, sell_price = ?, quantity_actual = ?, buy_order_ref = ?, sell_order_ref = ?,
	    buy_filled_at = ?, sell_placed_at = ?, completed_at = ?,
	    realized_gain_quote = ?, realized_gain_percent = ?
	WHERE id = ? AND status = ?`

	result, err := tx.ExecContext(ctx, query,
		updated.Status, updated.SellPrice, nullFloat(updated.QuantityActual),
		nullString(updated.BuyOrderRef), nullString(updated.SellOrderRef),
		nullTime(updated.BuyFilledAt), nullTime(updated.SellPlacedAt), nullTime(updated.CompletedAt),
		nullFloat(updated.RealizedGainQuote), nullFloat(updated.RealizedGainPercent),
		id, expected)
	if err != nil {
		return false, nil, fmt.Errorf("failed to persist transition for pair %d: %w: %w", id, ports.ErrUpdateFailed, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("failed to get rows affected for pair %d: %w", id, err)
	}
	if affected == 0 {
		// Lost the compare-and-set race.
		return false, nil, nil
	}

	if err := tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("failed to commit transition for pair %d: %w: %w", id, ports.ErrUpdateFailed, err)
	}

	l.logger.Debug(ctx, "Pair transitioned", map[string]interface{}{
		"pairID": id, "from": expected, "to": updated.Status})
	return true, &updated, nil
}

// validateTransition enforces the per-pair invariants before anything is
// persisted. Breaches are ErrInvariantViolation: fatal, never silent.
func validateTransition(old, updated *domain.OrderPair) error {
	if updated.ID != old.ID || updated.ClientRef != old.ClientRef || updated.Symbol != old.Symbol ||
		updated.Regime != old.Regime || updated.QuantityRequested != old.QuantityRequested ||
		updated.BuyPrice != old.BuyPrice || !updated.CreatedAt.Equal(old.CreatedAt) {
		return fmt.Errorf("pair %d: immutable field mutated: %w", old.ID, ports.ErrInvariantViolation)
	}

	if updated.Status != old.Status && !old.Status.CanTransitionTo(updated.Status) {
		return fmt.Errorf("pair %d: illegal status transition %s -> %s: %w",
			old.ID, old.Status, updated.Status, ports.ErrInvariantViolation)
	}

	// quantity_actual is set exactly once, on Opening -> AwaitingSell.
	if old.QuantityActual != nil {
		if updated.QuantityActual == nil || *updated.QuantityActual != *old.QuantityActual {
			return fmt.Errorf("pair %d: quantity_actual may not be recomputed: %w", old.ID, ports.ErrInvariantViolation)
		}
	} else if updated.QuantityActual != nil {
		if old.Status != domain.StatusOpening || updated.Status != domain.StatusAwaitingSell {
			return fmt.Errorf("pair %d: quantity_actual may only be set on %s -> %s: %w",
				old.ID, domain.StatusOpening, domain.StatusAwaitingSell, ports.ErrInvariantViolation)
		}
	}

	// sell_order_ref is set exactly once, from AwaitingSell.
	if old.SellOrderRef != nil {
		if updated.SellOrderRef == nil || *updated.SellOrderRef != *old.SellOrderRef {
			return fmt.Errorf("pair %d: sell_order_ref may not be changed: %w", old.ID, ports.ErrInvariantViolation)
		}
	} else if updated.SellOrderRef != nil && old.Status != domain.StatusAwaitingSell {
		return fmt.Errorf("pair %d: sell_order_ref may only be set from %s: %w",
			old.ID, domain.StatusAwaitingSell, ports.ErrInvariantViolation)
	}

	return nil
}

// ListByStatus returns a snapshot of pairs in the given status, ordered by id.
func (l *Ledger) ListByStatus(ctx context.Context, status domain.PairStatus) ([]*domain.OrderPair, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+pairColumns+` FROM order_pairs WHERE status = ? ORDER BY id`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query pairs by status %s: %w: %w", status, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	pairs := make([]*domain.OrderPair, 0)
	for rows.Next() {
		pair, err := scanPair(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pair during ListByStatus: %w", err)
		}
		pairs = append(pairs, pair)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pair rows: %w", err)
	}
	return pairs, nil
}

// FindByID retrieves a pair by its unique ID.
func (l *Ledger) FindByID(ctx context.Context, id int64) (*domain.OrderPair, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+pairColumns+` FROM order_pairs WHERE id = ?`, id)
	pair, err := scanPair(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			l.logger.Debug(ctx, "Pair not found by ID", map[string]interface{}{"pairID": id})
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query pair by ID %d: %w: %w", id, ports.ErrQueryFailed, err)
	}
	return pair, nil
}

// Statistics aggregates the trade history.
func (l *Ledger) Statistics(ctx context.Context) (*domain.LedgerStats, error) {
	stats := &domain.LedgerStats{}

	rows, err := l.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM order_pairs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count pairs by status: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.TotalPairs += count
		switch domain.PairStatus(status) {
		case domain.StatusOpening:
			stats.OpeningCount = count
		case domain.StatusAwaitingSell:
			stats.AwaitingSellCount = count
		case domain.StatusClosing:
			stats.ClosingCount = count
		case domain.StatusComplete:
			stats.CompleteCount = count
		case domain.StatusFailed:
			stats.FailedCount = count
		}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	const gainsQuery = `
	SELECT COALESCE(SUM(realized_gain_quote), 0),
	       COALESCE(SUM(CASE WHEN realized_gain_quote > 0 THEN 1 ELSE 0 END), 0)
	FROM order_pairs WHERE status = ?`
	err = l.db.QueryRowContext(ctx, gainsQuery, domain.StatusComplete).
		Scan(&stats.TotalGainQuote, &stats.ProfitableTrades)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate realized gains: %w: %w", ports.ErrQueryFailed, err)
	}
	stats.LosingTrades = stats.CompleteCount - stats.ProfitableTrades
	if stats.CompleteCount > 0 {
		stats.WinRatePercent = float64(stats.ProfitableTrades) / float64(stats.CompleteCount) * 100
		stats.AverageGainQuote = stats.TotalGainQuote / float64(stats.CompleteCount)
	}
	return stats, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanPair scans a row into a domain.OrderPair struct.
func scanPair(s scanner) (*domain.OrderPair, error) {
	p := &domain.OrderPair{}
	var status, regime string
	var quantityActual, gainQuote, gainPercent sql.NullFloat64
	var buyRef, sellRef sql.NullString
	var buyFilledAt, sellPlacedAt, completedAt sql.NullTime
	err := s.Scan(
		&p.ID, &p.ClientRef, &status, &p.Symbol, &regime, &p.BuyPrice, &p.SellPrice,
		&p.QuantityRequested, &quantityActual, &buyRef, &sellRef,
		&p.CreatedAt, &buyFilledAt, &sellPlacedAt, &completedAt,
		&gainQuote, &gainPercent)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	p.Status = domain.PairStatus(status)
	p.Regime = domain.MarketRegime(regime)
	if quantityActual.Valid {
		v := quantityActual.Float64
		p.QuantityActual = &v
	}
	if buyRef.Valid {
		v := buyRef.String
		p.BuyOrderRef = &v
	}
	if sellRef.Valid {
		v := sellRef.String
		p.SellOrderRef = &v
	}
	if buyFilledAt.Valid {
		t := buyFilledAt.Time
		p.BuyFilledAt = &t
	}
	if sellPlacedAt.Valid {
		t := sellPlacedAt.Time
		p.SellPlacedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		p.CompletedAt = &t
	}
	if gainQuote.Valid {
		v := gainQuote.Float64
		p.RealizedGainQuote = &v
	}
	if gainPercent.Valid {
		v := gainPercent.Float64
		p.RealizedGainPercent = &v
	}
	return p, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
