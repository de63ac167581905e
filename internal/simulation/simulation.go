// Package simulation runs a strategy over a market series one day at a time
// and records the portfolio value ledger.
package simulation

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	apperrors "options-hedge/internal/errors"
	"options-hedge/internal/logging"
	"options-hedge/internal/market"
	"options-hedge/internal/models"
	"options-hedge/internal/portfolio"
	"options-hedge/internal/strategy"
)

// DayRecord is what happened on one simulated day.
type DayRecord struct {
	Date      time.Time         `json:"date"`
	Price     float64           `json:"price"`
	Value     float64           `json:"value"`
	Exercised float64           `json:"exercised"`
	Decision  strategy.Decision `json:"decision"`
}

// Result is the output of a run.
type Result struct {
	Strategy   string              `json:"strategy"`
	History    []models.HistoryRow `json:"history"`
	Days       []DayRecord         `json:"days"`
	FinalState strategy.State      `json:"final_state"`
	Final      portfolio.Snapshot  `json:"final"`
}

// FinalValue returns the last recorded value, or 0 for an empty run.
func (r *Result) FinalValue() float64 {
	if len(r.History) == 0 {
		return 0
	}
	return r.History[len(r.History)-1].Value
}

// Option configures Run.
type Option func(*runner)

// WithLogger sets the run logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *runner) { r.logger = logger }
}

type runner struct {
	logger zerolog.Logger
}

// Run steps through every bar in date order. Each day it updates equity with
// the day's return, lets the strategy act, exercises expired options and
// records the total value, in that order. A strategy error aborts the run.
// Without WithLogger it logs to the logger carried by ctx, if any.
func Run(ctx context.Context, m market.Data, p *portfolio.Portfolio, s strategy.Strategy, st strategy.State, opts ...Option) (*Result, error) {
	r := runner{logger: logging.FromContext(ctx)}
	for _, opt := range opts {
		opt(&r)
	}
	logger := logging.WithStrategy(r.logger, s.Name())

	bars := m.Bars()
	res := &Result{
		Strategy: s.Name(),
		Days:     make([]DayRecord, 0, len(bars)),
	}

	for _, bar := range bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p.UpdateEquity(bar.Return)

		var (
			dec strategy.Decision
			err error
		)
		st, dec, err = s.Decide(ctx, strategy.Day{Date: bar.Date, Price: bar.Close, Market: m}, p, st)
		if err != nil {
			wrapped := apperrors.Wrapf(err, "%s on %s", s.Name(), bar.Date.Format(models.DateLayout))
			logging.LogRun(logger, s.Name(), len(res.Days), p.TotalValue(bar.Close, bar.Date), wrapped)
			return nil, wrapped
		}

		exercised := p.ExerciseExpiredOptions(bar.Close, bar.Date)
		value := p.TotalValue(bar.Close, bar.Date)
		p.Record(bar.Date, value)

		res.Days = append(res.Days, DayRecord{
			Date:      bar.Date,
			Price:     bar.Close,
			Value:     value,
			Exercised: exercised,
			Decision:  dec,
		})
	}

	res.History = p.History()
	res.FinalState = st
	res.Final = p.Snapshot()
	logging.LogRun(logger, s.Name(), len(res.Days), res.FinalValue(), nil)
	return res, nil
}

// Spec describes one independent run for Compare.
type Spec struct {
	Name      string
	Strategy  strategy.Strategy
	Portfolio portfolio.Config
}

// Compare executes each Spec against the same market concurrently. Each run
// owns a fresh portfolio, so runs share nothing but the read-only market.
// The first failure cancels the remaining runs.
func Compare(ctx context.Context, m market.Data, specs []Spec, opts ...Option) (map[string]*Result, error) {
	p := pool.NewWithResults[*Result]().
		WithContext(ctx).
		WithCancelOnError()

	for _, spec := range specs {
		p.Go(func(ctx context.Context) (*Result, error) {
			res, err := Run(ctx, m, portfolio.New(spec.Portfolio), spec.Strategy, strategy.State{}, opts...)
			if err != nil {
				return nil, apperrors.Wrap(err, spec.Name)
			}
			res.Strategy = spec.Name
			return res, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Result, len(results))
	for _, res := range results {
		out[res.Strategy] = res
	}
	return out, nil
}
