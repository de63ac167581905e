package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "options-hedge/internal/errors"
	"options-hedge/internal/models"
	"options-hedge/internal/pricing"
)

var day0 = time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "hedger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// generateTestBars creates count daily bars with positive closes.
func generateTestBars(count int, basePrice float64) []models.Bar {
	bars := make([]models.Bar, count)
	for i := range bars {
		variation := float64(i%10) * 0.01 * basePrice
		bars[i] = models.Bar{
			Date:  day0.AddDate(0, 0, i),
			Close: math.Round((basePrice+variation)*100) / 100,
		}
	}
	return bars
}

// Property: for any valid bar data, saving then loading yields the same
// dates and closes, with returns derived from consecutive closes.
func TestProperty_BarRoundTripConsistency(t *testing.T) {
	store := newTestStore(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Bar round-trip: save then load produces equivalent data", prop.ForAll(
		func(count int, basePrice float64) bool {
			ctx := context.Background()
			symbol := fmt.Sprintf("SPX_%d", time.Now().UnixNano())
			bars := generateTestBars(count, basePrice)

			if err := store.SaveBars(ctx, symbol, bars); err != nil {
				t.Logf("Failed to save bars: %v", err)
				return false
			}
			series, err := store.LoadSeries(ctx, symbol, DateRange{})
			if err != nil {
				t.Logf("Failed to load series: %v", err)
				return false
			}

			got := series.Bars()
			if len(got) != len(bars) {
				t.Logf("Count mismatch: expected %d, got %d", len(bars), len(got))
				return false
			}
			for i, orig := range bars {
				if !got[i].Date.Equal(orig.Date) || math.Abs(got[i].Close-orig.Close) > 1e-9 {
					t.Logf("Bar mismatch at index %d: original=%+v, loaded=%+v", i, orig, got[i])
					return false
				}
				if i > 0 && math.Abs(got[i].Return-(orig.Close/bars[i-1].Close-1)) > 1e-12 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 30),
		gen.Float64Range(100.0, 5000.0),
	))

	properties.Property("Empty bars: saving empty slice should succeed", prop.ForAll(
		func(symbol string) bool {
			return store.SaveBars(context.Background(), symbol, nil) == nil
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestLoadSeriesRangeAndRates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveBars(ctx, "SPX", generateTestBars(10, 4000)))
	require.NoError(t, s.SaveRatePoints(ctx, RateVIX, []models.RatePoint{
		{Date: day0, Value: 18},
		{Date: day0.AddDate(0, 0, 5), Value: 30},
		{Date: day0.AddDate(0, 0, 9), Value: 40},
	}))

	series, err := s.LoadSeries(ctx, "SPX", DateRange{Start: day0.AddDate(0, 0, 2), End: day0.AddDate(0, 0, 6)})
	require.NoError(t, err)
	assert.Equal(t, 5, series.Len())
	assert.True(t, series.HasVIX())

	vix, err := series.VIX(day0.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, 18.0, vix)
	vix, err = series.VIX(day0.AddDate(0, 0, 6))
	require.NoError(t, err)
	assert.Equal(t, 30.0, vix)
	// points after the range end are not attached
	assert.Len(t, series.VIXPoints(), 2)

	_, err = series.RiskFreeRate(day0)
	assert.True(t, apperrors.Is(err, apperrors.ErrCapabilityUnavailable))

	_, err = s.LoadSeries(ctx, "NDX", DateRange{})
	assert.True(t, apperrors.Is(err, apperrors.ErrDataNotFound))
}

func TestListSymbols(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SaveBars(ctx, "SPX", generateTestBars(5, 4000)))
	require.NoError(t, s.SaveBars(ctx, "NDX", generateTestBars(3, 12000)))

	infos, err := s.ListSymbols(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "NDX", infos[0].Symbol)
	assert.Equal(t, 3, infos[0].Bars)
	assert.Equal(t, day0, infos[1].First)
	assert.Equal(t, day0.AddDate(0, 0, 4), infos[1].Last)
}

func TestQuotesBackQuotePricer(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	expiry := day0.AddDate(0, 0, 90)
	require.NoError(t, s.SaveQuotes(ctx, []models.OptionQuote{
		{Date: day0, Expiry: expiry, Strike: 3400, CallPut: "P", BestBid: 38, BestAsk: 42},
		{Date: day0, Expiry: expiry, Strike: 3600, CallPut: "P", BestBid: 60, BestAsk: 64},
		{Date: day0, Expiry: expiry, Strike: 4200, CallPut: "C", BestBid: 50, BestAsk: 55},
		{Date: day0.AddDate(0, 0, 1), Expiry: expiry, Strike: 3400, CallPut: "P", BestBid: 30, BestAsk: 34},
	}))

	puts, err := s.QuotesOn(ctx, day0, "P")
	require.NoError(t, err)
	require.Len(t, puts, 2)
	assert.Equal(t, 3400.0, puts[0].Strike)
	assert.Equal(t, expiry, puts[0].Expiry)

	p := pricing.NewQuotePricer(s)
	assert.InDelta(t, 40.0/4000, p.PutPremium(day0, 3400, 4000, expiry, 20), 1e-12)
}

func TestRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	history := []models.HistoryRow{
		{Date: day0, Value: 1_000_000},
		{Date: day0.AddDate(0, 0, 1), Value: 990_000},
	}
	run := &RunRecord{
		Strategy:     "quarterly",
		Symbol:       "SPX",
		StartDate:    day0,
		EndDate:      day0.AddDate(0, 0, 1),
		Days:         2,
		InitialValue: 1_000_000,
		FinalValue:   990_000,
		TotalCost:    12_500,
		Purchases:    1,
		Params:       `{"strike_ratio":0.85}`,
	}
	require.NoError(t, s.SaveRun(ctx, run, history))
	require.NotEmpty(t, run.ID)

	got, rows, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "quarterly", got.Strategy)
	assert.Equal(t, day0, got.StartDate)
	assert.Equal(t, 12_500.0, got.TotalCost)
	assert.Equal(t, run.Params, got.Params)
	assert.Equal(t, history, rows)

	_, _, err = s.GetRun(ctx, "missing")
	assert.True(t, apperrors.Is(err, apperrors.ErrDataNotFound))

	require.NoError(t, s.SaveRun(ctx, &RunRecord{Strategy: "none", Symbol: "SPX", StartDate: day0, EndDate: day0}, nil))
	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	only, err := s.ListRuns(ctx, RunFilter{Strategy: "quarterly"})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, run.ID, only[0].ID)
}

func TestLastImport(t *testing.T) {
	s := newTestStore(t)
	assert.True(t, s.GetLastImport("spx").IsZero())

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetLastImport("spx", at))
	assert.True(t, at.Equal(s.GetLastImport("spx")))
}
