// Package market provides the daily market series consumed by strategies and
// the simulation loop: closes, daily returns and optional VIX and risk-free
// rate series with forward-fill lookup.
package market

import (
	"fmt"
	"sort"
	"time"

	apperrors "options-hedge/internal/errors"
	"options-hedge/internal/models"
)

// Data is what the hedging core needs from a market data provider.
type Data interface {
	// Bars returns the series in ascending date order.
	Bars() []models.Bar
	// Close returns the closing price on date. Fails with ErrDateNotFound.
	Close(date time.Time) (float64, error)
	// DailyReturn returns the close-to-close return on date; 0 on the first day.
	DailyReturn(date time.Time) (float64, error)
	// VIX returns the VIX level on date or the latest prior observation.
	// Fails with ErrCapabilityUnavailable when no VIX series is attached.
	VIX(date time.Time) (float64, error)
	// RiskFreeRate returns the annualized rate on date or the latest prior
	// observation. Fails with ErrCapabilityUnavailable when absent.
	RiskFreeRate(date time.Time) (float64, error)
	// Window returns up to n bars ending on or before date.
	Window(date time.Time, n int) []models.Bar
}

// Series is an in-memory Data implementation.
type Series struct {
	symbol string
	bars   []models.Bar
	index  map[time.Time]int
	vix    []models.RatePoint
	rates  []models.RatePoint
}

// NewSeries builds a series from parallel date/close slices. Dates are
// truncated to calendar days and sorted; returns are computed as
// close[t]/close[t-1] - 1 with the first day set to 0.
func NewSeries(symbol string, dates []time.Time, closes []float64) (*Series, error) {
	if len(dates) != len(closes) {
		return nil, apperrors.NewValidationError("closes", len(closes), fmt.Sprintf("expected %d values to match dates", len(dates)))
	}

	bars := make([]models.Bar, len(dates))
	for i := range dates {
		if closes[i] <= 0 {
			return nil, apperrors.NewValidationError("close", closes[i], "must be positive")
		}
		bars[i] = models.Bar{Date: models.Day(dates[i]), Close: closes[i]}
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	s := &Series{
		symbol: symbol,
		bars:   bars,
		index:  make(map[time.Time]int, len(bars)),
	}
	for i := range s.bars {
		if _, dup := s.index[s.bars[i].Date]; dup {
			return nil, apperrors.NewValidationError("date", s.bars[i].Date.Format(models.DateLayout), "duplicate date")
		}
		s.index[s.bars[i].Date] = i
		if i > 0 {
			s.bars[i].Return = s.bars[i].Close/s.bars[i-1].Close - 1
		}
	}
	return s, nil
}

// WithVIX attaches a VIX series. Points are sorted by date.
func (s *Series) WithVIX(points []models.RatePoint) *Series {
	s.vix = sortedPoints(points)
	return s
}

// WithRiskFreeRate attaches an annualized risk-free rate series.
func (s *Series) WithRiskFreeRate(points []models.RatePoint) *Series {
	s.rates = sortedPoints(points)
	return s
}

// Between returns the bars dated within [start, end], recomputing returns
// from the first kept bar. A zero bound is open. Attached VIX and rate
// series are kept whole so prior-date lookups still resolve.
func (s *Series) Between(start, end time.Time) (*Series, error) {
	var (
		dates  []time.Time
		closes []float64
	)
	for _, b := range s.bars {
		if !start.IsZero() && b.Date.Before(models.Day(start)) {
			continue
		}
		if !end.IsZero() && b.Date.After(models.Day(end)) {
			continue
		}
		dates = append(dates, b.Date)
		closes = append(closes, b.Close)
	}
	if len(dates) == 0 {
		return nil, apperrors.Wrapf(apperrors.ErrDataNotFound, "%s has no bars in range", s.symbol)
	}

	out, err := NewSeries(s.symbol, dates, closes)
	if err != nil {
		return nil, err
	}
	out.vix = s.vix
	out.rates = s.rates
	return out, nil
}

// Symbol returns the series identifier.
func (s *Series) Symbol() string { return s.symbol }

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.bars) }

// HasVIX reports whether a VIX series is attached.
func (s *Series) HasVIX() bool { return s.vix != nil }

// VIXPoints returns the attached VIX series.
func (s *Series) VIXPoints() []models.RatePoint { return s.vix }

// RatePoints returns the attached risk-free rate series.
func (s *Series) RatePoints() []models.RatePoint { return s.rates }

// Bars returns the bars in date order.
func (s *Series) Bars() []models.Bar {
	return s.bars
}

func (s *Series) Close(date time.Time) (float64, error) {
	i, ok := s.index[models.Day(date)]
	if !ok {
		return 0, apperrors.NewMarketDataError(s.symbol+":close", date, apperrors.ErrDateNotFound)
	}
	return s.bars[i].Close, nil
}

func (s *Series) DailyReturn(date time.Time) (float64, error) {
	i, ok := s.index[models.Day(date)]
	if !ok {
		return 0, apperrors.NewMarketDataError(s.symbol+":return", date, apperrors.ErrDateNotFound)
	}
	return s.bars[i].Return, nil
}

func (s *Series) VIX(date time.Time) (float64, error) {
	if s.vix == nil {
		return 0, apperrors.NewMarketDataError("vix", date, apperrors.ErrCapabilityUnavailable)
	}
	return lookupPrior("vix", s.vix, date)
}

func (s *Series) RiskFreeRate(date time.Time) (float64, error) {
	if s.rates == nil {
		return 0, apperrors.NewMarketDataError("risk_free_rate", date, apperrors.ErrCapabilityUnavailable)
	}
	return lookupPrior("risk_free_rate", s.rates, date)
}

func (s *Series) Window(date time.Time, n int) []models.Bar {
	if n <= 0 {
		return nil
	}
	d := models.Day(date)
	// end is the index of the first bar after date
	end := sort.Search(len(s.bars), func(i int) bool { return s.bars[i].Date.After(d) })
	start := end - n
	if start < 0 {
		start = 0
	}
	return s.bars[start:end]
}

// lookupPrior returns the value on date or the most recent earlier value.
func lookupPrior(name string, points []models.RatePoint, date time.Time) (float64, error) {
	d := models.Day(date)
	i := sort.Search(len(points), func(i int) bool { return points[i].Date.After(d) })
	if i == 0 {
		return 0, apperrors.NewMarketDataError(name, date, apperrors.ErrDateNotFound)
	}
	return points[i-1].Value, nil
}

func sortedPoints(points []models.RatePoint) []models.RatePoint {
	out := make([]models.RatePoint, len(points))
	for i, p := range points {
		out[i] = models.RatePoint{Date: models.Day(p.Date), Value: p.Value}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
