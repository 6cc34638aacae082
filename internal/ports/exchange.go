package ports

import (
	"context"
	"time"

	"orderPairBot/internal/domain"
)

// ExchangeClient is the narrow contract the core needs from the exchange
// wrapper. Implementations are expected to apply their own request timeouts;
// none of these calls may block indefinitely.
type ExchangeClient interface {
	// GetAvailableBalance retrieves the balance of an asset that is free for
	// new orders (total minus amount held by resting orders).
	GetAvailableBalance(ctx context.Context, asset string) (float64, error)

	// SubmitOrder places a limit order and returns the exchange-assigned
	// order reference.
	SubmitOrder(ctx context.Context, side domain.OrderSide, price, quantity float64) (string, error)

	// ListOpenOrders returns the set of order references currently resting
	// on the book.
	ListOpenOrders(ctx context.Context) (map[string]struct{}, error)

	// ListFills retrieves the fill records for an order reference since the
	// given time. Multiple records accumulate partial fills.
	ListFills(ctx context.Context, orderRef string, since time.Time) ([]domain.Fill, error)

	// GetReferencePrice retrieves the current reference price for a symbol.
	GetReferencePrice(ctx context.Context, symbol string) (float64, error)

	// CancelOrder cancels a resting order by its reference.
	CancelOrder(ctx context.Context, orderRef string) error

	// Ping checks connectivity to the exchange API.
	Ping(ctx context.Context) error
}
