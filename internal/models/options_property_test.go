package models

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: payoff is max(strike-S,0)*quantity; value equals payoff strictly
// before expiry and is zero on or after it.
func TestProperty_OptionPayoffValueInvariant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	expiry := time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC)

	properties.Property("payoff and value follow intrinsic definition", prop.ForAll(
		func(strike, price float64, qty int, offsetDays int) bool {
			opt := Option{Strike: strike, Premium: 1, Expiry: expiry, Quantity: qty}
			want := math.Max(strike-price, 0) * float64(qty)
			if math.Abs(opt.Payoff(price)-want) > 1e-9 {
				return false
			}

			asOf := expiry.AddDate(0, 0, offsetDays)
			v := opt.Value(price, asOf)
			if offsetDays >= 0 {
				return v == 0
			}
			return math.Abs(v-want) < 1e-9
		},
		gen.Float64Range(1, 10000),
		gen.Float64Range(1, 10000),
		gen.IntRange(0, 50),
		gen.IntRange(-200, 200),
	))

	properties.TestingRun(t)
}

func TestOptionTotalCost(t *testing.T) {
	opt := Option{Strike: 90, Premium: 2.5, Expiry: time.Now(), Quantity: 4}
	if got := opt.TotalCost(); got != 10 {
		t.Fatalf("TotalCost() = %v, want 10", got)
	}
}

func TestOptionExpiredIgnoresTimeOfDay(t *testing.T) {
	opt := Option{Strike: 100, Expiry: time.Date(2024, 1, 5, 16, 0, 0, 0, time.UTC), Quantity: 1}
	morning := time.Date(2024, 1, 5, 9, 30, 0, 0, time.UTC)
	if !opt.Expired(morning) {
		t.Fatal("option should be expired on its expiry date regardless of time of day")
	}
	if opt.Expired(morning.AddDate(0, 0, -1)) {
		t.Fatal("option should be live the day before expiry")
	}
}
