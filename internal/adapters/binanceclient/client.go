package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"orderPairBot/internal/domain"
	"orderPairBot/internal/ports"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"
)

// Client implements the ports.ExchangeClient interface using the go-binance
// spot API. All order placement is limit-only; the trading loop never crosses
// the spread.
type Client struct {
	spotClient     *binance.Client
	logger         ports.Logger
	symbol         string
	requestTimeout time.Duration
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey         string
	SecretKey      string
	UseTestnet     bool
	Symbol         string // e.g. "BTCUSDC"
	Logger         ports.Logger
	RequestTimeout time.Duration // Per-call timeout (e.g., 10 * time.Second)
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("symbol is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using the global binance.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		spotClient:     client,
		logger:         cfg.Logger,
		symbol:         cfg.Symbol,
		requestTimeout: timeout,
	}, nil
}

// withTimeout bounds a single API call so a stalled request cannot hang a
// worker cycle.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.requestTimeout)
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		// Map specific Binance error codes to custom errors
		var mappedErr error
		switch apiErr.Code {
		case -1000, -1001: // Internal error; unable to process request
			mappedErr = ports.ErrExchangeUnavailable
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1013: // Filter failure (LOT_SIZE, PRICE_FILTER, MIN_NOTIONAL)
			mappedErr = ports.ErrInvalidRequest
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1112, -1121, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -2011: // Cancel order rejected
			mappedErr = ports.ErrOrderCancelFailed
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2014, -2015: // API-key format invalid; invalid key, IP, or permissions
			mappedErr = ports.ErrAuthenticationFailed
		case -3041: // Balance is not enough
			mappedErr = ports.ErrInsufficientFunds
		default:
			// General classification for unmapped API errors
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		// Default for other errors (e.g., parsing errors within the adapter)
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.spotClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetAvailableBalance retrieves the free balance for a specific asset (e.g., "USDC").
func (c *Client) GetAvailableBalance(ctx context.Context, asset string) (float64, error) {
	op := "GetAvailableBalance"
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	account, err := c.spotClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}

	for _, bal := range account.Balances {
		if bal.Asset == asset {
			// Free excludes amounts held by resting orders
			balance, err := strconv.ParseFloat(bal.Free, 64)
			if err != nil {
				parseErr := fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.Free, asset, err)
				return 0, c.handleError(ctx, parseErr, op)
			}
			return balance, nil
		}
	}

	// Asset not listed means a zero balance, not an error
	c.logger.Debug(ctx, op+": asset not present in account, treating as zero", map[string]interface{}{"asset": asset})
	return 0, nil
}

// GetReferencePrice retrieves the last traded price for a given symbol.
func (c *Client) GetReferencePrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetReferencePrice"
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	prices, err := c.spotClient.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(prices) == 0 {
		err := fmt.Errorf("no price data returned for symbol %s", symbol)
		return 0, c.handleError(ctx, err, op)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", prices[0].Price, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	return price, nil
}

// SubmitOrder places a limit order and returns the exchange order ID as the
// order reference.
func (c *Client) SubmitOrder(ctx context.Context, side domain.OrderSide, price, quantity float64) (string, error) {
	op := "SubmitOrder"
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	binanceSide := binance.SideType(side) // Direct conversion, values match

	order, err := c.spotClient.NewCreateOrderService().
		Symbol(c.symbol).
		Side(binanceSide).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Price(strconv.FormatFloat(price, 'f', 2, 64)).
		Quantity(strconv.FormatFloat(quantity, 'f', 8, 64)).
		Do(ctx)
	if err != nil {
		return "", c.handleError(ctx, err, op)
	}

	orderRef := strconv.FormatInt(order.OrderID, 10)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol":   c.symbol,
		"side":     side,
		"price":    price,
		"quantity": quantity,
		"orderRef": orderRef,
		"status":   string(order.Status),
	})
	return orderRef, nil
}

// ListOpenOrders returns the references of all orders currently resting on the
// book for the configured symbol.
func (c *Client) ListOpenOrders(ctx context.Context) (map[string]struct{}, error) {
	op := "ListOpenOrders"
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	orders, err := c.spotClient.NewListOpenOrdersService().Symbol(c.symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	open := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		open[strconv.FormatInt(o.OrderID, 10)] = struct{}{}
	}
	return open, nil
}

// ListFills retrieves the account trades executed against the given order
// since the given time. Partial executions produce one record each.
func (c *Client) ListFills(ctx context.Context, orderRef string, since time.Time) ([]domain.Fill, error) {
	op := "ListFills"
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	orderID, err := strconv.ParseInt(orderRef, 10, 64)
	if err != nil {
		parseErr := fmt.Errorf("invalid order reference '%s': %w", orderRef, err)
		return nil, c.handleError(ctx, parseErr, op)
	}

	trades, err := c.spotClient.NewListTradesService().
		Symbol(c.symbol).
		OrderId(orderID).
		StartTime(since.UnixMilli()).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	fills := make([]domain.Fill, 0, len(trades))
	for _, t := range trades {
		fill, err := translateTrade(t, orderRef)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate trade %d: %w", t.ID, err), op)
		}
		fills = append(fills, fill)
	}
	return fills, nil
}

// CancelOrder cancels a resting order by its reference.
func (c *Client) CancelOrder(ctx context.Context, orderRef string) error {
	op := "CancelOrder"
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	orderID, err := strconv.ParseInt(orderRef, 10, 64)
	if err != nil {
		parseErr := fmt.Errorf("invalid order reference '%s': %w", orderRef, err)
		return c.handleError(ctx, parseErr, op)
	}

	_, err = c.spotClient.NewCancelOrderService().
		Symbol(c.symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		// handleError maps -2013 to ErrOrderNotFound; callers may treat an
		// already-gone order as cancelled.
		return c.handleError(ctx, err, op)
	}

	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": c.symbol, "orderRef": orderRef})
	return nil
}

// --- Translation Helpers ---

func translateTrade(t *binance.TradeV3, orderRef string) (domain.Fill, error) {
	if t == nil {
		return domain.Fill{}, errors.New("received nil trade")
	}
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("parsing price '%s': %w", t.Price, err)
	}
	qty, err := strconv.ParseFloat(t.Quantity, 64)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("parsing quantity '%s': %w", t.Quantity, err)
	}
	fee, err := strconv.ParseFloat(t.Commission, 64)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("parsing commission '%s': %w", t.Commission, err)
	}

	return domain.Fill{
		OrderRef:  orderRef,
		Price:     price,
		Quantity:  qty,
		FeeAmount: fee,
		FeeAsset:  t.CommissionAsset,
		Time:      time.UnixMilli(t.Time),
	}, nil
}
