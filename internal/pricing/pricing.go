// Package pricing estimates put premiums, either from a synthetic VIX-based
// heuristic or from matched historical quotes.
package pricing

import (
	"math"
	"time"

	"options-hedge/internal/models"
)

// DefaultVIX is the long-run average VIX used when no VIX reading is available.
const DefaultVIX = 20.0

// MinPremiumFraction floors every synthetic estimate.
const MinPremiumFraction = 0.001

// PremiumFunc maps (strike, spot, days to expiry, vol proxy) to a premium
// expressed as a fraction of spot. Implementations must be positive and
// increase with moneyness toward ITM and with the vol proxy.
type PremiumFunc func(strike, spot float64, daysToExpiry int, volProxy float64) float64

// EstimatePutPremium is the synthetic heuristic. volProxy is a VIX level in
// percentage points. Time value is approximated from sqrt(days/365); it is
// used only to size premiums, never to value held options.
//
//	OTM: (1 - K/S) * vix/100 * sqrt(t) * 0.4
//	ITM: (K - S)/S + vix/100 * sqrt(t) * 0.1
func EstimatePutPremium(strike, spot float64, daysToExpiry int, volProxy float64) float64 {
	moneyness := strike / spot
	impliedVol := volProxy / 100.0
	timeFactor := math.Sqrt(float64(daysToExpiry) / 365.0)

	var premium float64
	if moneyness < 1.0 {
		premium = (1.0 - moneyness) * impliedVol * timeFactor * 0.4
	} else {
		intrinsic := (strike - spot) / spot
		premium = intrinsic + impliedVol*timeFactor*0.1
	}
	return math.Max(premium, MinPremiumFraction)
}

// Pricer returns a put premium as a fraction of spot for a purchase made on
// date expiring on expiry.
type Pricer interface {
	PutPremium(date time.Time, strike, spot float64, expiry time.Time, vix float64) float64
}

// SyntheticPricer prices every put with a PremiumFunc.
type SyntheticPricer struct {
	Func PremiumFunc
}

// NewSyntheticPricer returns a pricer using EstimatePutPremium.
func NewSyntheticPricer() *SyntheticPricer {
	return &SyntheticPricer{Func: EstimatePutPremium}
}

func (p *SyntheticPricer) PutPremium(date time.Time, strike, spot float64, expiry time.Time, vix float64) float64 {
	fn := p.Func
	if fn == nil {
		fn = EstimatePutPremium
	}
	return fn(strike, spot, models.DaysBetween(date, expiry), vix)
}
