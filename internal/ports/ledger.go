package ports

import (
	"context"

	"orderPairBot/internal/domain"
)

// Mutator produces the new field values for a pair during a transition. It is
// applied to a copy of the stored pair; returning an error aborts the
// transition without mutation.
type Mutator func(pair *domain.OrderPair) error

// Ledger is the durable store of order-pair records and the single
// serialization point between workers. All cross-worker coordination is
// expressed as compare-and-set on (id, status) via Transition.
type Ledger interface {
	// CreatePair inserts a new pair in Opening and returns its assigned ID.
	// On storage failure the caller must not assume the pair was not created.
	CreatePair(ctx context.Context, pair *domain.OrderPair) (int64, error)

	// Transition atomically verifies the pair's current status equals
	// expected; if so it applies mutate and persists the result, returning
	// (true, updated pair). A stale expected status is a no-op: (false, nil)
	// with a nil error. A mutation that would violate a pair invariant
	// returns ErrInvariantViolation.
	Transition(ctx context.Context, id int64, expected domain.PairStatus, mutate Mutator) (bool, *domain.OrderPair, error)

	// ListByStatus returns a snapshot of pairs in the given status, ordered
	// by id. Callers must tolerate pairs being concurrently transitioned by
	// another worker after the snapshot is taken.
	ListByStatus(ctx context.Context, status domain.PairStatus) ([]*domain.OrderPair, error)

	// FindByID retrieves a pair by its unique ID. Returns nil, nil if not found.
	FindByID(ctx context.Context, id int64) (*domain.OrderPair, error)

	// Statistics aggregates the trade history.
	Statistics(ctx context.Context) (*domain.LedgerStats, error)
}
