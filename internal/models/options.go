package models

import "time"

// DefaultOptionQuantity is the number of contracts bought when none is given.
const DefaultOptionQuantity = 1

// Option is a put contract valued at intrinsic value only.
// Quantity sign gives direction; positive is long.
type Option struct {
	Strike   float64   `json:"strike"`
	Premium  float64   `json:"premium"`
	Expiry   time.Time `json:"expiry"`
	Quantity int       `json:"quantity"`
}

// Payoff returns max(strike - price, 0) * quantity.
func (o Option) Payoff(price float64) float64 {
	intrinsic := o.Strike - price
	if intrinsic < 0 {
		intrinsic = 0
	}
	return intrinsic * float64(o.Quantity)
}

// Value returns the payoff before expiry and zero on or after it.
func (o Option) Value(price float64, asOf time.Time) float64 {
	if o.Expired(asOf) {
		return 0
	}
	return o.Payoff(price)
}

// Expired reports whether asOf has reached the expiry date.
func (o Option) Expired(asOf time.Time) bool {
	return !Day(asOf).Before(Day(o.Expiry))
}

// TotalCost returns premium * quantity, before transaction costs.
func (o Option) TotalCost() float64 {
	return o.Premium * float64(o.Quantity)
}

// PutCandidate is a put offered to the ladder solver.
type PutCandidate struct {
	Strike      float64 `json:"strike"`
	Premium     float64 `json:"premium"`
	ExpiryYears float64 `json:"expiry_years"`
}

// OTM returns how far out of the money the put is relative to spot,
// as (spot - strike) / spot.
func (p PutCandidate) OTM(spot float64) float64 {
	return (spot - p.Strike) / spot
}

// OptionQuote is a historical option quote used for quote-matched pricing.
type OptionQuote struct {
	Date    time.Time
	Expiry  time.Time
	Strike  float64
	CallPut string // "P" or "C"
	BestBid float64
	BestAsk float64
}

// Mid returns the bid/ask midpoint.
func (q OptionQuote) Mid() float64 {
	return (q.BestBid + q.BestAsk) / 2
}
