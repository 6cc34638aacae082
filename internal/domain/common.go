package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// PairStatus represents the lifecycle stage of an order pair.
// Transitions are strictly forward: Opening -> AwaitingSell -> Closing -> Complete.
// Failed is terminal and reachable from any non-terminal stage.
type PairStatus string

const (
	StatusOpening      PairStatus = "Opening"      // buy order placed, fill not yet confirmed
	StatusAwaitingSell PairStatus = "AwaitingSell" // buy filled, sell order not yet placed
	StatusClosing      PairStatus = "Closing"      // sell order placed, fill not yet confirmed
	StatusComplete     PairStatus = "Complete"     // sell filled, realized gain recorded
	StatusFailed       PairStatus = "Failed"       // a leg cancelled/unfilled or retries exhausted; operator action required
)

// rank orders the forward statuses. Failed is terminal and handled separately.
func (s PairStatus) rank() int {
	switch s {
	case StatusOpening:
		return 0
	case StatusAwaitingSell:
		return 1
	case StatusClosing:
		return 2
	case StatusComplete:
		return 3
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next respects the state machine.
func (s PairStatus) CanTransitionTo(next PairStatus) bool {
	if s == StatusFailed || s == StatusComplete {
		return false
	}
	if next == StatusFailed {
		// Either leg can be cancelled/unfilled while waiting on the
		// exchange; a deferred sell can also exhaust its retries.
		return s == StatusOpening || s == StatusAwaitingSell || s == StatusClosing
	}
	return next.rank() == s.rank()+1
}

// IsTerminal reports whether no further transitions are possible from s.
func (s PairStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// MarketRegime is the externally supplied market classification active when a
// pair is created. It parameterizes offsets and sizing; this core treats it as
// an opaque, informational label.
type MarketRegime string

const (
	RegimeBull  MarketRegime = "BULL"
	RegimeBear  MarketRegime = "BEAR"
	RegimeRange MarketRegime = "RANGE"
)
