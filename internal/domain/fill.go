package domain

import "time"

// Fill is an exchange-confirmed partial or full execution of an order.
// Multiple fills may exist for one order reference; summing their quantities
// accumulates partial fills across ticks. Fill data is authoritative: the
// reported quantity is already net of any base-asset fee deduction.
type Fill struct {
	OrderRef  string    // Exchange order identifier the fill belongs to
	Price     float64   // Executed price in quote currency
	Quantity  float64   // Executed quantity in base asset
	FeeAmount float64   // Fee charged for this fill
	FeeAsset  string    // Asset the fee was charged in
	Time      time.Time // Execution time reported by the exchange
}

// SumFillQuantity accumulates the executed base quantity across fills.
func SumFillQuantity(fills []Fill) float64 {
	var total float64
	for _, f := range fills {
		total += f.Quantity
	}
	return total
}

// GrossQuote is the total quote-currency proceeds across fills.
func GrossQuote(fills []Fill) float64 {
	var total float64
	for _, f := range fills {
		total += f.Price * f.Quantity
	}
	return total
}

// SumQuoteFees accumulates fees charged in the given quote asset. Fees charged
// in other assets are ignored here; base-asset fees are already reflected in
// the reported fill quantities.
func SumQuoteFees(fills []Fill, quoteAsset string) float64 {
	var total float64
	for _, f := range fills {
		if f.FeeAsset == quoteAsset {
			total += f.FeeAmount
		}
	}
	return total
}
