package pricing

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"options-hedge/internal/models"
)

// Quote matching tolerances.
const (
	DefaultStrikeTolerance     = 0.05 // relative
	DefaultExpiryToleranceDays = 7
)

// SyntheticStrikeRatios are offered when no quotes exist for a date.
var SyntheticStrikeRatios = []float64{0.50, 0.60, 0.70, 0.80, 0.90, 0.95, 1.00}

// QuoteSource returns the historical quotes recorded on a date.
type QuoteSource interface {
	QuotesOn(ctx context.Context, date time.Time, callPut string) ([]models.OptionQuote, error)
}

// QuotePricer prices puts from matched historical quotes and falls back to a
// synthetic PremiumFunc when no quote matches.
type QuotePricer struct {
	source              QuoteSource
	fallback            PremiumFunc
	strikeTolerance     float64
	expiryToleranceDays int
	logger              zerolog.Logger
}

// QuotePricerOption configures a QuotePricer.
type QuotePricerOption func(*QuotePricer)

// WithStrikeTolerance sets the relative strike tolerance.
func WithStrikeTolerance(tol float64) QuotePricerOption {
	return func(p *QuotePricer) { p.strikeTolerance = tol }
}

// WithExpiryTolerance sets the expiry tolerance in days.
func WithExpiryTolerance(days int) QuotePricerOption {
	return func(p *QuotePricer) { p.expiryToleranceDays = days }
}

// WithFallback sets the synthetic function used when no quote matches.
func WithFallback(fn PremiumFunc) QuotePricerOption {
	return func(p *QuotePricer) { p.fallback = fn }
}

// WithLogger attaches a logger for lookup failures.
func WithLogger(logger zerolog.Logger) QuotePricerOption {
	return func(p *QuotePricer) { p.logger = logger }
}

// NewQuotePricer creates a quote-matching pricer over source.
func NewQuotePricer(source QuoteSource, opts ...QuotePricerOption) *QuotePricer {
	p := &QuotePricer{
		source:              source,
		fallback:            EstimatePutPremium,
		strikeTolerance:     DefaultStrikeTolerance,
		expiryToleranceDays: DefaultExpiryToleranceDays,
		logger:              zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *QuotePricer) PutPremium(date time.Time, strike, spot float64, expiry time.Time, vix float64) float64 {
	if q, ok := p.Match(date, strike, expiry); ok {
		return q.Mid() / spot
	}
	return p.fallback(strike, spot, models.DaysBetween(date, expiry), vix)
}

// Match finds the quote on date whose expiry lies within the expiry
// tolerance and whose strike is closest to strike within the strike
// tolerance.
func (p *QuotePricer) Match(date time.Time, strike float64, expiry time.Time) (models.OptionQuote, bool) {
	quotes, err := p.source.QuotesOn(context.Background(), date, "P")
	if err != nil {
		p.logger.Debug().Err(err).Time("date", date).Msg("Quote lookup failed, using synthetic premium")
		return models.OptionQuote{}, false
	}

	minExpiry := models.Day(expiry).AddDate(0, 0, -p.expiryToleranceDays)
	maxExpiry := models.Day(expiry).AddDate(0, 0, p.expiryToleranceDays)
	minStrike := strike * (1 - p.strikeTolerance)
	maxStrike := strike * (1 + p.strikeTolerance)

	var best models.OptionQuote
	bestDiff := math.Inf(1)
	for _, q := range quotes {
		exp := models.Day(q.Expiry)
		if exp.Before(minExpiry) || exp.After(maxExpiry) {
			continue
		}
		if q.Strike < minStrike || q.Strike > maxStrike {
			continue
		}
		if diff := math.Abs(q.Strike - strike); diff < bestDiff {
			best, bestDiff = q, diff
		}
	}
	return best, !math.IsInf(bestDiff, 1)
}

// AvailableStrikes returns the distinct quoted put strikes on date for the
// given expiry as ratios of spot, ascending. Without quotes it returns
// SyntheticStrikeRatios.
func (p *QuotePricer) AvailableStrikes(date time.Time, spot float64, expiry time.Time) []float64 {
	quotes, err := p.source.QuotesOn(context.Background(), date, "P")
	if err != nil || len(quotes) == 0 {
		return append([]float64(nil), SyntheticStrikeRatios...)
	}

	minExpiry := models.Day(expiry).AddDate(0, 0, -p.expiryToleranceDays)
	maxExpiry := models.Day(expiry).AddDate(0, 0, p.expiryToleranceDays)

	seen := make(map[float64]bool)
	var ratios []float64
	for _, q := range quotes {
		exp := models.Day(q.Expiry)
		if exp.Before(minExpiry) || exp.After(maxExpiry) {
			continue
		}
		r := q.Strike / spot
		if !seen[r] {
			seen[r] = true
			ratios = append(ratios, r)
		}
	}
	if len(ratios) == 0 {
		return append([]float64(nil), SyntheticStrikeRatios...)
	}
	sort.Float64s(ratios)
	return ratios
}
