package analyzer

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "options-hedge/internal/errors"
	"options-hedge/internal/models"
)

// compound turns daily returns into a value path starting at 100.
func compound(returns []float64) []float64 {
	v := make([]float64, len(returns)+1)
	v[0] = 100
	for i, r := range returns {
		v[i+1] = v[i] * (1 + r)
	}
	return v
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out
}

func TestNewValidates(t *testing.T) {
	_, err := New("bench", map[string][]float64{"a": {1, 2}})
	assert.True(t, apperrors.Is(err, apperrors.ErrInputValidation))

	_, err = New("bench", map[string][]float64{"bench": {1}})
	assert.Error(t, err)

	_, err = New("bench", map[string][]float64{"bench": {1, 2, 3}, "a": {1, 2}})
	assert.Error(t, err)

	_, err = New("bench", map[string][]float64{"bench": {1, 2, 3}, "a": {1, 0, 2}})
	assert.Error(t, err)
}

func TestTotalReturnAndBetaOfSelf(t *testing.T) {
	b := linspace(100, 120, 100)
	a, err := New("bench", map[string][]float64{"bench": b, "copy": append([]float64(nil), b...)})
	require.NoError(t, err)

	tr, err := a.TotalReturn("copy")
	require.NoError(t, err)
	assert.InDelta(t, 0.20, tr, 1e-12)

	beta, err := a.Beta("copy")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, beta, 1e-9)

	_, err = a.Beta("missing")
	assert.Error(t, err)
}

func TestBetaOfLeveredReturns(t *testing.T) {
	br := []float64{0.01, -0.02, 0.015, 0.003, -0.007, 0.012, -0.004, 0.009}
	sr := make([]float64, len(br))
	for i, r := range br {
		sr[i] = 1.5 * r
	}
	a, err := New("bench", map[string][]float64{"bench": compound(br), "lev": compound(sr)})
	require.NoError(t, err)

	beta, err := a.Beta("lev")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, beta, 1e-9)
}

func TestCaptureRatios(t *testing.T) {
	br := make([]float64, 100)
	sr := make([]float64, 100)
	for i := range br {
		if i%2 == 0 {
			br[i], sr[i] = 0.01, 0.008
		} else {
			br[i], sr[i] = -0.01, -0.005
		}
	}
	a, err := New("bench", map[string][]float64{"bench": compound(br), "s": compound(sr)})
	require.NoError(t, err)

	up, down, err := a.CaptureRatios("s")
	require.NoError(t, err)
	assert.InDelta(t, 80, up, 1e-6)
	assert.InDelta(t, 50, down, 1e-6)
}

func TestCaptureWithoutDownDays(t *testing.T) {
	a, err := New("bench", map[string][]float64{
		"bench": linspace(100, 150, 50),
		"s":     linspace(100, 140, 50),
	})
	require.NoError(t, err)

	up, down, err := a.CaptureRatios("s")
	require.NoError(t, err)
	assert.Greater(t, up, 0.0)
	assert.True(t, math.IsNaN(down))
}

func TestMaxDrawdownAndCalmar(t *testing.T) {
	a, err := New("bench", map[string][]float64{
		"bench": {100, 120, 90, 110},
		"up":    {100, 101, 102, 103},
	})
	require.NoError(t, err)

	mdd, err := a.MaxDrawdown("bench")
	require.NoError(t, err)
	assert.InDelta(t, -0.25, mdd, 1e-12)

	calmar, err := a.Calmar("bench")
	require.NoError(t, err)
	want := (math.Pow(1.1, 252.0/4) - 1) / 0.25
	assert.InDelta(t, want, calmar, 1e-6*want)

	mdd, err = a.MaxDrawdown("up")
	require.NoError(t, err)
	assert.Zero(t, mdd)
	calmar, err = a.Calmar("up")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(calmar))
}

func TestSortino(t *testing.T) {
	a, err := New("bench", map[string][]float64{
		"bench": compound([]float64{0.02, -0.01, 0.03, -0.03, 0.01}),
		"up":    linspace(100, 110, 6),
	})
	require.NoError(t, err)

	s, err := a.Sortino("bench")
	require.NoError(t, err)
	assert.Greater(t, s, 0.0)

	s, err = a.Sortino("up")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(s))
}

func TestSharpe(t *testing.T) {
	a, err := New("bench", map[string][]float64{
		"bench": compound([]float64{0.01, -0.005, 0.01, -0.005}),
		"flat":  {100, 100, 100, 100, 100},
	})
	require.NoError(t, err)

	s, err := a.Sharpe("bench")
	require.NoError(t, err)
	assert.Greater(t, s, 0.0)

	s, err = a.Sharpe("flat")
	require.NoError(t, err)
	assert.Zero(t, s)

	withRF, err := New("bench", map[string][]float64{
		"bench": compound([]float64{0.01, -0.005, 0.01, -0.005}),
	}, WithRiskFreeRate(0.05))
	require.NoError(t, err)
	lower, err := withRF.Sharpe("bench")
	require.NoError(t, err)
	base, _ := a.Sharpe("bench")
	assert.Less(t, lower, base)
}

func TestSummarySortedByName(t *testing.T) {
	a, err := New("none", map[string][]float64{
		"quarterly": linspace(100, 105, 10),
		"none":      linspace(100, 110, 10),
		"ladder":    linspace(100, 108, 10),
	})
	require.NoError(t, err)

	rows := a.Summary()
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ladder", "none", "quarterly"}, []string{rows[0].Strategy, rows[1].Strategy, rows[2].Strategy})
	assert.InDelta(t, 0.10, rows[1].TotalReturn, 1e-12)
	assert.InDelta(t, 110, rows[1].FinalValue, 1e-12)
	assert.InDelta(t, 1.0, rows[1].Beta, 1e-9)

	best, ok := Best(rows, func(r Row) float64 { return r.TotalReturn })
	require.True(t, ok)
	assert.Equal(t, "none", best.Strategy)

	_, ok = Best(rows, func(Row) float64 { return math.NaN() })
	assert.False(t, ok)
}

func TestFromHistories(t *testing.T) {
	d0 := time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)
	d1 := d0.AddDate(0, 0, 1)
	a, err := FromHistories("none", map[string][]models.HistoryRow{
		"none":      {{Date: d0, Value: 100}, {Date: d1, Value: 110}},
		"quarterly": {{Date: d0, Value: 100}, {Date: d1, Value: 105}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"none", "quarterly"}, a.Names())

	_, err = FromHistories("none", map[string][]models.HistoryRow{
		"none":      {{Date: d0, Value: 100}, {Date: d1, Value: 110}},
		"quarterly": {{Date: d0, Value: 100}, {Date: d1.AddDate(0, 0, 1), Value: 105}},
	})
	assert.Error(t, err)
}

func TestChart(t *testing.T) {
	out := Chart("Portfolio", linspace(100, 200, 50), 20, 5)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 8)
	assert.True(t, strings.HasPrefix(lines[0], "Portfolio"))
	assert.Contains(t, out, "█")

	assert.Equal(t, "No data to display", Chart("x", nil, 20, 5))
}

// Property: drawdown lies in [-1, 0] and beta of the benchmark against itself
// is one.
func TestProperty_DrawdownBoundsAndSelfBeta(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("metrics stay in range", prop.ForAll(
		func(returns []float64) bool {
			v := compound(returns)
			a, err := New("bench", map[string][]float64{"bench": v})
			if err != nil {
				return false
			}
			mdd, _ := a.MaxDrawdown("bench")
			if mdd > 0 || mdd < -1 {
				return false
			}
			beta, _ := a.Beta("bench")
			if math.IsNaN(beta) {
				return true
			}
			return math.Abs(beta-1) < 1e-9
		},
		gen.SliceOfN(20, gen.Float64Range(-0.05, 0.05)),
	))

	properties.TestingRun(t)
}
