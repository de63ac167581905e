// Package analyzer computes risk and return metrics for portfolio value
// series measured against a benchmark series.
package analyzer

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	apperrors "options-hedge/internal/errors"
	"options-hedge/internal/market"
	"options-hedge/internal/models"
)

// DefaultBenchmark is the name conventionally given to the unhedged run.
const DefaultBenchmark = "none"

// Analyzer holds aligned value series keyed by strategy name.
type Analyzer struct {
	benchmark string
	rf        float64
	names     []string
	values    map[string][]float64
	returns   map[string][]float64
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithRiskFreeRate sets the annualized risk-free rate used by Sharpe and
// Sortino. The default is 0.
func WithRiskFreeRate(rf float64) Option {
	return func(a *Analyzer) { a.rf = rf }
}

// New builds an analyzer. Every series must have the benchmark's length,
// at least two points and no zero values.
func New(benchmark string, values map[string][]float64, opts ...Option) (*Analyzer, error) {
	bench, ok := values[benchmark]
	if !ok {
		return nil, apperrors.NewValidationError("benchmark", benchmark, "no series with that name")
	}
	if len(bench) < 2 {
		return nil, apperrors.NewValidationError("benchmark", len(bench), "need at least two values")
	}

	a := &Analyzer{
		benchmark: benchmark,
		values:    make(map[string][]float64, len(values)),
		returns:   make(map[string][]float64, len(values)),
	}
	for _, opt := range opts {
		opt(a)
	}

	for name, v := range values {
		if len(v) != len(bench) {
			return nil, apperrors.NewValidationError(name, len(v), "length differs from benchmark")
		}
		for _, x := range v {
			if x == 0 {
				return nil, apperrors.NewValidationError(name, x, "zero value")
			}
		}
		a.names = append(a.names, name)
		a.values[name] = v
		a.returns[name] = pctChange(v)
	}
	sort.Strings(a.names)
	return a, nil
}

// FromHistories aligns value ledgers by position. The ledgers must cover the
// same dates in the same order.
func FromHistories(benchmark string, histories map[string][]models.HistoryRow, opts ...Option) (*Analyzer, error) {
	ref, ok := histories[benchmark]
	if !ok {
		return nil, apperrors.NewValidationError("benchmark", benchmark, "no history with that name")
	}
	values := make(map[string][]float64, len(histories))
	for name, rows := range histories {
		if len(rows) != len(ref) {
			return nil, apperrors.NewValidationError(name, len(rows), "length differs from benchmark")
		}
		v := make([]float64, len(rows))
		for i, row := range rows {
			if !row.Date.Equal(ref[i].Date) {
				return nil, apperrors.NewValidationError(name, row.Date.Format(models.DateLayout), "dates do not line up with benchmark")
			}
			v[i] = row.Value
		}
		values[name] = v
	}
	return New(benchmark, values, opts...)
}

// Names returns the series names in sorted order.
func (a *Analyzer) Names() []string {
	return append([]string(nil), a.names...)
}

func pctChange(v []float64) []float64 {
	out := make([]float64, len(v)-1)
	for i := 1; i < len(v); i++ {
		out[i-1] = v[i]/v[i-1] - 1
	}
	return out
}

func (a *Analyzer) series(name string) ([]float64, []float64, error) {
	v, ok := a.values[name]
	if !ok {
		return nil, nil, apperrors.NewValidationError("strategy", name, "unknown series")
	}
	return v, a.returns[name], nil
}

// TotalReturn is last/first - 1.
func (a *Analyzer) TotalReturn(name string) (float64, error) {
	v, _, err := a.series(name)
	if err != nil {
		return 0, err
	}
	return v[len(v)-1]/v[0] - 1, nil
}

// CAGR annualizes the total return over len(values)/252 years.
func (a *Analyzer) CAGR(name string) (float64, error) {
	v, _, err := a.series(name)
	if err != nil {
		return 0, err
	}
	return cagr(v), nil
}

func cagr(v []float64) float64 {
	years := float64(len(v)) / market.TradingDaysPerYear
	return math.Pow(v[len(v)-1]/v[0], 1/years) - 1
}

// Beta is Cov(strategy, benchmark) / Var(benchmark) over daily returns.
func (a *Analyzer) Beta(name string) (float64, error) {
	_, r, err := a.series(name)
	if err != nil {
		return 0, err
	}
	b := a.returns[a.benchmark]
	if len(b) < 2 {
		return math.NaN(), nil
	}
	return stat.Covariance(r, b, nil) / stat.Variance(b, nil), nil
}

// CaptureRatios returns the upside and downside capture in percent: the mean
// strategy return on benchmark up (down) days over the benchmark's own mean on
// those days. A side with no days, or a zero benchmark mean, is NaN.
func (a *Analyzer) CaptureRatios(name string) (up, down float64, err error) {
	_, r, err := a.series(name)
	if err != nil {
		return 0, 0, err
	}
	b := a.returns[a.benchmark]

	var upS, upB, downS, downB []float64
	for i, br := range b {
		switch {
		case br > 0:
			upS = append(upS, r[i])
			upB = append(upB, br)
		case br < 0:
			downS = append(downS, r[i])
			downB = append(downB, br)
		}
	}
	return capture(upS, upB), capture(downS, downB), nil
}

func capture(s, b []float64) float64 {
	if len(b) == 0 {
		return math.NaN()
	}
	bm := stat.Mean(b, nil)
	if bm == 0 {
		return math.NaN()
	}
	return stat.Mean(s, nil) / bm * 100
}

// Sortino is (CAGR - rf) over the annualized sample deviation of the negative
// daily returns. It is NaN when that deviation is zero or undefined.
func (a *Analyzer) Sortino(name string) (float64, error) {
	v, r, err := a.series(name)
	if err != nil {
		return 0, err
	}
	var neg []float64
	for _, x := range r {
		if x < 0 {
			neg = append(neg, x)
		}
	}
	if len(neg) < 2 {
		return math.NaN(), nil
	}
	dd := stat.StdDev(neg, nil) * math.Sqrt(market.TradingDaysPerYear)
	if dd == 0 {
		return math.NaN(), nil
	}
	return (cagr(v) - a.rf) / dd, nil
}

// MaxDrawdown is the most negative (value - running peak) / running peak.
func (a *Analyzer) MaxDrawdown(name string) (float64, error) {
	v, _, err := a.series(name)
	if err != nil {
		return 0, err
	}
	return maxDrawdown(v), nil
}

func maxDrawdown(v []float64) float64 {
	peak := v[0]
	worst := 0.0
	for _, x := range v {
		if x > peak {
			peak = x
		}
		if dd := (x - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return worst
}

// Calmar is CAGR / |max drawdown|; NaN without a drawdown.
func (a *Analyzer) Calmar(name string) (float64, error) {
	v, _, err := a.series(name)
	if err != nil {
		return 0, err
	}
	mdd := maxDrawdown(v)
	if mdd == 0 {
		return math.NaN(), nil
	}
	return cagr(v) / math.Abs(mdd), nil
}

// Sharpe is the annualized mean daily excess return over the daily sample
// deviation. A flat series scores 0.
func (a *Analyzer) Sharpe(name string) (float64, error) {
	_, r, err := a.series(name)
	if err != nil {
		return 0, err
	}
	if len(r) < 2 {
		return 0, nil
	}
	mean, std := stat.MeanStdDev(r, nil)
	if std == 0 {
		return 0, nil
	}
	daily := a.rf / market.TradingDaysPerYear
	return (mean - daily) / std * math.Sqrt(market.TradingDaysPerYear), nil
}

// Row is one line of the summary table. Returns and drawdowns are fractions,
// captures are percentages.
type Row struct {
	Strategy    string  `json:"strategy"`
	TotalReturn float64 `json:"total_return"`
	Beta        float64 `json:"beta"`
	UpCapture   float64 `json:"up_capture"`
	DownCapture float64 `json:"down_capture"`
	Sortino     float64 `json:"sortino"`
	Calmar      float64 `json:"calmar"`
	MaxDrawdown float64 `json:"max_drawdown"`
	Sharpe      float64 `json:"sharpe"`
	FinalValue  float64 `json:"final_value"`
}

// Summary computes every metric for every series, benchmark included,
// sorted by name.
func (a *Analyzer) Summary() []Row {
	rows := make([]Row, 0, len(a.names))
	for _, name := range a.names {
		v := a.values[name]
		row := Row{Strategy: name, FinalValue: v[len(v)-1]}
		// names are known so the errors below cannot occur
		row.TotalReturn, _ = a.TotalReturn(name)
		row.Beta, _ = a.Beta(name)
		row.UpCapture, row.DownCapture, _ = a.CaptureRatios(name)
		row.Sortino, _ = a.Sortino(name)
		row.Calmar, _ = a.Calmar(name)
		row.MaxDrawdown, _ = a.MaxDrawdown(name)
		row.Sharpe, _ = a.Sharpe(name)
		rows = append(rows, row)
	}
	return rows
}

// Best returns the summary row with the highest value of key, skipping NaN.
func Best(rows []Row, key func(Row) float64) (Row, bool) {
	vals := make([]float64, 0, len(rows))
	idx := make([]int, 0, len(rows))
	for i, r := range rows {
		if k := key(r); !math.IsNaN(k) {
			vals = append(vals, k)
			idx = append(idx, i)
		}
	}
	if len(vals) == 0 {
		return Row{}, false
	}
	return rows[idx[floats.MaxIdx(vals)]], true
}
