package strategy

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	apperrors "options-hedge/internal/errors"
	"options-hedge/internal/logging"
	"options-hedge/internal/models"
	"options-hedge/internal/portfolio"
	"options-hedge/internal/solver"
)

// FloorHedgeConfig parameterizes the single-strike floor hedge.
type FloorHedgeConfig struct {
	FloorRatio       float64 `mapstructure:"floor_ratio" json:"floor_ratio"`
	DownsideScenario float64 `mapstructure:"downside_scenario" json:"downside_scenario"`
	PutCost          float64 `mapstructure:"put_cost" json:"put_cost"` // premium as a fraction of equity
	StrikeRatio      float64 `mapstructure:"strike_ratio" json:"strike_ratio"`
	ExpiryDays       int     `mapstructure:"expiry_days" json:"expiry_days"`
	HedgeInterval    int     `mapstructure:"hedge_interval" json:"hedge_interval"` // 0 rehedges every call
}

// DefaultFloorHedgeConfig keeps 85% of equity through a 15% drop using
// 10% OTM puts.
func DefaultFloorHedgeConfig() FloorHedgeConfig {
	return FloorHedgeConfig{
		FloorRatio:       0.85,
		DownsideScenario: -0.15,
		PutCost:          0.01,
		StrikeRatio:      0.9,
		ExpiryDays:       120,
	}
}

// FloorHedge buys the fewest puts at one strike that lift equity after a
// single downside scenario back to the floor. The LP relaxation is solved
// and rounded up to whole contracts.
type FloorHedge struct {
	cfg     FloorHedgeConfig
	backend solver.Backend
	logger  zerolog.Logger
}

// NewFloorHedge creates the strategy. It needs an LP backend.
func NewFloorHedge(cfg FloorHedgeConfig, deps Deps) (*FloorHedge, error) {
	if deps.Backend == nil {
		return nil, apperrors.Wrap(apperrors.ErrSolverUnavailable, "floor hedge strategy")
	}
	return &FloorHedge{
		cfg:     cfg,
		backend: deps.Backend,
		logger:  logging.WithStrategy(deps.Logger, "floor_hedge"),
	}, nil
}

func (f *FloorHedge) Name() string { return "floor_hedge" }

func (f *FloorHedge) Decide(_ context.Context, day Day, p *portfolio.Portfolio, st State) (State, Decision, error) {
	if f.cfg.HedgeInterval > 0 && !intervalElapsed(st.LastAction, day.Date, f.cfg.HedgeInterval) {
		return st, none(), nil
	}

	strike := day.Price * f.cfg.StrikeRatio
	scenarioPrice := day.Price * (1 + f.cfg.DownsideScenario)
	payoff := math.Max(strike-scenarioPrice, 0)
	if payoff <= 0 {
		return st, none(), nil
	}

	equity := p.EquityValue()
	afterDrop := equity * (1 + f.cfg.DownsideScenario*p.Beta())
	floor := equity * f.cfg.FloorRatio
	premium := equity * f.cfg.PutCost
	if afterDrop >= floor {
		return st, none(), nil
	}

	start := time.Now()
	sol, err := f.backend.Solve(solver.Problem{
		Name:      "floor_hedge",
		Objective: []float64{premium},
		Rows: []solver.Row{{
			Name:   "floor",
			Coeffs: []float64{payoff},
			Sense:  solver.GreaterEq,
			RHS:    floor - afterDrop,
		}},
	})
	if err != nil {
		return st, Decision{}, err
	}
	logging.LogSolve(f.logger, "floor_hedge", string(sol.Status), sol.Objective, time.Since(start))
	if sol.Status != solver.StatusOptimal {
		return st, skipped("LP " + string(sol.Status)), nil
	}

	// Whole contracts; the tolerance keeps an x a hair above an integer from
	// rounding up a full lot.
	lots := int(math.Ceil(sol.X[0] - 1e-6))
	if lots < 1 {
		return st, none(), nil
	}

	expiry := models.Day(day.Date).AddDate(0, 0, f.cfg.ExpiryDays)
	if err := p.BuyPut(strike, premium, expiry, lots, true); err != nil {
		return st, Decision{}, err
	}
	logging.LogHedge(f.logger, day.Date, strike, premium, lots, expiry)

	cost := premium * float64(lots)
	st.LastAction = day.Date
	st.CumulativeCost += cost
	st.Purchases++
	return st, Decision{Action: ActionExecuted, Cost: cost, Purchased: 1}, nil
}
