package pricing

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"options-hedge/internal/models"
)

func TestEstimatePutPremiumOTM(t *testing.T) {
	// 15% OTM, 90 days, VIX 20
	got := EstimatePutPremium(3400, 4000, 90, 20)
	want := 0.15 * 0.20 * math.Sqrt(90.0/365.0) * 0.4
	assert.InDelta(t, want, got, 1e-12)
}

func TestEstimatePutPremiumITM(t *testing.T) {
	got := EstimatePutPremium(4400, 4000, 90, 20)
	want := 0.1 + 0.20*math.Sqrt(90.0/365.0)*0.1
	assert.InDelta(t, want, got, 1e-12)
}

func TestEstimatePutPremiumFloor(t *testing.T) {
	assert.Equal(t, MinPremiumFraction, EstimatePutPremium(3990, 4000, 1, 10))
}

// Property: premium is positive, non-decreasing in VIX, and non-decreasing in
// strike once the put is at or in the money.
func TestProperty_PremiumMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("premium increases in the money and with vol", prop.ForAll(
		func(ratio, bump, vix, vixBump float64, days int) bool {
			spot := 4000.0
			k := spot * ratio
			base := EstimatePutPremium(k, spot, days, vix)
			if base <= 0 {
				return false
			}
			if ratio >= 1 && EstimatePutPremium(k*(1+bump), spot, days, vix) < base-1e-12 {
				return false
			}
			return EstimatePutPremium(k, spot, days, vix+vixBump) >= base-1e-12
		},
		gen.Float64Range(0.3, 1.3),
		gen.Float64Range(0, 0.2),
		gen.Float64Range(9, 80),
		gen.Float64Range(0, 40),
		gen.IntRange(1, 365),
	))

	properties.TestingRun(t)
}

func TestSyntheticPricerUsesCalendarDays(t *testing.T) {
	var gotDays int
	p := &SyntheticPricer{Func: func(strike, spot float64, days int, vol float64) float64 {
		gotDays = days
		return 0.01
	}}
	d := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0.01, p.PutPremium(d, 90, 100, d.AddDate(0, 0, 90), 20))
	assert.Equal(t, 90, gotDays)
}

type fakeQuotes struct {
	quotes []models.OptionQuote
	err    error
}

func (f fakeQuotes) QuotesOn(_ context.Context, date time.Time, cp string) ([]models.OptionQuote, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.OptionQuote
	for _, q := range f.quotes {
		if models.Day(q.Date).Equal(models.Day(date)) && q.CallPut == cp {
			out = append(out, q)
		}
	}
	return out, nil
}

func TestQuotePricerMatchesClosestStrike(t *testing.T) {
	d := time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC)
	exp := d.AddDate(0, 3, 0)
	src := fakeQuotes{quotes: []models.OptionQuote{
		{Date: d, Expiry: exp.AddDate(0, 0, 3), Strike: 3450, CallPut: "P", BestBid: 60, BestAsk: 64},
		{Date: d, Expiry: exp.AddDate(0, 0, 3), Strike: 3520, CallPut: "P", BestBid: 80, BestAsk: 84},
		{Date: d, Expiry: exp.AddDate(0, 0, 20), Strike: 3500, CallPut: "P", BestBid: 1, BestAsk: 1},
		{Date: d, Expiry: exp, Strike: 3500, CallPut: "C", BestBid: 1, BestAsk: 1},
	}}
	p := NewQuotePricer(src)

	q, ok := p.Match(d, 3500, exp)
	assert.True(t, ok)
	assert.Equal(t, 3520.0, q.Strike)
	assert.InDelta(t, 82.0/4000, p.PutPremium(d, 3500, 4000, exp, 30), 1e-12)
}

func TestQuotePricerFallsBack(t *testing.T) {
	d := time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC)
	exp := d.AddDate(0, 0, 90)

	p := NewQuotePricer(fakeQuotes{err: errors.New("db down")})
	assert.Equal(t, EstimatePutPremium(3500, 4000, 90, 30), p.PutPremium(d, 3500, 4000, exp, 30))

	far := fakeQuotes{quotes: []models.OptionQuote{{Date: d, Expiry: exp, Strike: 3000, CallPut: "P", BestBid: 1, BestAsk: 2}}}
	p = NewQuotePricer(far, WithFallback(func(float64, float64, int, float64) float64 { return 0.5 }))
	assert.Equal(t, 0.5, p.PutPremium(d, 3500, 4000, exp, 30))
}

func TestAvailableStrikes(t *testing.T) {
	d := time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC)
	exp := d.AddDate(0, 0, 90)

	p := NewQuotePricer(fakeQuotes{})
	assert.Equal(t, SyntheticStrikeRatios, p.AvailableStrikes(d, 4000, exp))

	src := fakeQuotes{quotes: []models.OptionQuote{
		{Date: d, Expiry: exp, Strike: 3600, CallPut: "P"},
		{Date: d, Expiry: exp, Strike: 3200, CallPut: "P"},
		{Date: d, Expiry: exp.AddDate(0, 0, 2), Strike: 3600, CallPut: "P"},
	}}
	p = NewQuotePricer(src)
	assert.Equal(t, []float64{0.8, 0.9}, p.AvailableStrikes(d, 4000, exp))
}
