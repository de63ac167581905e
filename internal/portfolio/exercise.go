package portfolio

import (
	"math"
	"time"

	"options-hedge/internal/models"
)

// ExerciseRule decides whether a put should be exercised on a given day.
// Each rule carries only the parameters it needs.
//
// The portfolio is European-only: CheckEarlyExercise never consults these
// rules. They remain evaluable for analysis of what an American holder would
// have done.
type ExerciseRule interface {
	Name() string
	isExerciseRule()
}

// Never exercises early.
type Never struct{}

// AtExpiryOnly exercises on or after expiry when in the money.
type AtExpiryOnly struct{}

// Threshold exercises when remaining time value falls below a fraction of
// intrinsic value.
type Threshold struct {
	TimeValueThreshold float64 // default 0.02
}

// VixRegime exercises deep in-the-money puts once VIX falls sharply.
type VixRegime struct {
	CurrentVIX         float64
	PrevVIX            float64
	DeclineThreshold   float64 // default 0.15
	MoneynessThreshold float64 // default 0.90
}

// OptimalBoundary exercises near expiry once moneyness crosses an
// approximate optimal stopping boundary.
type OptimalBoundary struct {
	Volatility      float64
	RiskFreeRate    float64 // default 0.045
	MinDaysToExpiry int     // default 30
}

// Hybrid exercises when either the VIX regime or the boundary rule fires.
type Hybrid struct {
	Regime   VixRegime
	Boundary OptimalBoundary
}

func (Never) Name() string           { return "never" }
func (AtExpiryOnly) Name() string    { return "at_expiry_only" }
func (Threshold) Name() string       { return "threshold" }
func (VixRegime) Name() string       { return "vix_regime" }
func (OptimalBoundary) Name() string { return "optimal_boundary" }
func (Hybrid) Name() string          { return "hybrid" }

func (Never) isExerciseRule()           {}
func (AtExpiryOnly) isExerciseRule()    {}
func (Threshold) isExerciseRule()       {}
func (VixRegime) isExerciseRule()       {}
func (OptimalBoundary) isExerciseRule() {}
func (Hybrid) isExerciseRule()          {}

// DefaultThreshold returns the threshold rule with default parameters.
func DefaultThreshold() Threshold {
	return Threshold{TimeValueThreshold: 0.02}
}

// DefaultVixRegime returns the VIX regime rule for the given VIX readings.
func DefaultVixRegime(currentVIX, prevVIX float64) VixRegime {
	return VixRegime{
		CurrentVIX:         currentVIX,
		PrevVIX:            prevVIX,
		DeclineThreshold:   0.15,
		MoneynessThreshold: 0.90,
	}
}

// DefaultOptimalBoundary returns the boundary rule for the given volatility.
func DefaultOptimalBoundary(volatility float64) OptimalBoundary {
	return OptimalBoundary{
		Volatility:      volatility,
		RiskFreeRate:    0.045,
		MinDaysToExpiry: 30,
	}
}

// ShouldExercise evaluates rule for opt at price on date.
func ShouldExercise(rule ExerciseRule, opt models.Option, price float64, date time.Time) bool {
	intrinsic := math.Max(opt.Strike-price, 0)

	switch r := rule.(type) {
	case Never:
		return false

	case AtExpiryOnly:
		return opt.Expired(date) && intrinsic > 0

	case Threshold:
		if intrinsic == 0 {
			return false
		}
		// Options carry no time value here, so value - intrinsic is zero
		// before expiry and negative after it.
		perUnit := opt.Value(price, date)
		if opt.Quantity != 0 {
			perUnit /= float64(opt.Quantity)
		}
		timeValue := perUnit - intrinsic
		return timeValue < r.TimeValueThreshold*intrinsic

	case VixRegime:
		if intrinsic == 0 || r.PrevVIX <= 0 {
			return false
		}
		deepITM := price/opt.Strike < r.MoneynessThreshold
		change := (r.CurrentVIX - r.PrevVIX) / r.PrevVIX
		return deepITM && change < -r.DeclineThreshold

	case OptimalBoundary:
		if intrinsic == 0 {
			return false
		}
		days := models.DaysBetween(date, opt.Expiry)
		if days > r.MinDaysToExpiry {
			return false
		}
		years := float64(days) / 365.0
		if years < 0 {
			years = 0
		}
		critical := 0.85 - 0.10*r.RiskFreeRate + 0.15*math.Sqrt(years)*r.Volatility
		return price/opt.Strike < critical

	case Hybrid:
		return ShouldExercise(r.Regime, opt, price, date) ||
			ShouldExercise(r.Boundary, opt, price, date)
	}

	return false
}
