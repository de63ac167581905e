package market

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"options-hedge/internal/models"
)

// TradingDaysPerYear is used to annualize daily statistics.
const TradingDaysPerYear = 252

// Returns extracts the daily returns of bars.
func Returns(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Return
	}
	return out
}

// RealizedVol returns the sample standard deviation of daily returns.
// Fewer than two observations yield 0.
func RealizedVol(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	return stat.StdDev(returns, nil)
}

// AnnualizedVol returns RealizedVol scaled by sqrt(252).
func AnnualizedVol(returns []float64) float64 {
	return RealizedVol(returns) * math.Sqrt(TradingDaysPerYear)
}

// PeriodReturn returns last/first - 1 over the closes of bars.
func PeriodReturn(bars []models.Bar) float64 {
	if len(bars) == 0 || bars[0].Close == 0 {
		return 0
	}
	return bars[len(bars)-1].Close/bars[0].Close - 1
}
