package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	apperrors "options-hedge/internal/errors"
	"options-hedge/internal/logging"
	"options-hedge/internal/models"
	"options-hedge/internal/portfolio"
	"options-hedge/internal/pricing"
	"options-hedge/internal/solver"
)

// Scenario is a named market return used by the fixed-floor model.
type Scenario struct {
	Name   string  `mapstructure:"name" json:"name"`
	Return float64 `mapstructure:"return" json:"return"`
}

// FixedFloorConfig parameterizes the fixed-floor insurance strategy.
type FixedFloorConfig struct {
	FloorRatio      float64     `mapstructure:"floor_ratio" json:"floor_ratio"` // L, maximum tolerated loss
	Scenarios       []Scenario  `mapstructure:"scenarios" json:"scenarios"`
	StrikeRatios    []float64   `mapstructure:"strike_ratios" json:"strike_ratios"`
	ExpiryDays      int         `mapstructure:"expiry_days" json:"expiry_days"`
	HedgeInterval   int         `mapstructure:"hedge_interval" json:"hedge_interval"`
	ShortfallPolicy string      `mapstructure:"shortfall_policy" json:"shortfall_policy"`
	LotRounding     LotRounding `mapstructure:"lot_rounding" json:"lot_rounding"`
}

// DefaultFixedFloorConfig caps losses at 20% across crash, mild and up
// scenarios with four strikes.
func DefaultFixedFloorConfig() FixedFloorConfig {
	return FixedFloorConfig{
		FloorRatio: 0.20,
		Scenarios: []Scenario{
			{Name: "crash", Return: -0.40},
			{Name: "mild", Return: -0.10},
			{Name: "up", Return: 0.10},
		},
		StrikeRatios:    []float64{0.50, 0.70, 0.90, 1.00},
		ExpiryDays:      90,
		HedgeInterval:   90,
		ShortfallPolicy: string(solver.ShortfallPenalized),
		LotRounding:     RoundTruncate,
	}
}

// StrikeLabel names a strike ratio, e.g. 0.9 -> "K90".
func StrikeLabel(ratio float64) string {
	return fmt.Sprintf("K%d", int(ratio*100))
}

// FixedFloor solves the fixed-floor LP every HedgeInterval days and buys the
// resulting put quantities. Strikes are in index points while the scenario
// values are portfolio dollars; a portfolio much larger than the index level
// therefore sees no scenario payoff and the round is skipped.
type FixedFloor struct {
	cfg     FixedFloorConfig
	policy  solver.ShortfallPolicy
	pricer  pricing.Pricer
	backend solver.Backend
	logger  zerolog.Logger
}

// NewFixedFloor creates the strategy. It needs an LP backend.
func NewFixedFloor(cfg FixedFloorConfig, deps Deps) (*FixedFloor, error) {
	deps = deps.withDefaults()
	if deps.Backend == nil {
		return nil, apperrors.Wrap(apperrors.ErrSolverUnavailable, "fixed floor strategy")
	}
	policy, err := solver.ParseShortfallPolicy(cfg.ShortfallPolicy)
	if err != nil {
		return nil, err
	}
	if err := cfg.LotRounding.Validate(); err != nil {
		return nil, err
	}
	return &FixedFloor{
		cfg:     cfg,
		policy:  policy,
		pricer:  deps.Pricer,
		backend: deps.Backend,
		logger:  logging.WithStrategy(deps.Logger, "fixed_floor"),
	}, nil
}

func (f *FixedFloor) Name() string { return "fixed_floor" }

// Problem builds the LP inputs for a day.
func (f *FixedFloor) Problem(day Day, p *portfolio.Portfolio) (solver.FloorProblem, time.Time) {
	expiry := models.Day(day.Date).AddDate(0, 0, f.cfg.ExpiryDays)
	vix := vixOr(day.Market, day.Date, pricing.DefaultVIX)
	q := p.EquityValue() + p.Cash()

	prob := solver.FloorProblem{
		K: make(map[string]float64, len(f.cfg.StrikeRatios)),
		P: make(map[string]float64, len(f.cfg.StrikeRatios)),
		R: make(map[string]float64, len(f.cfg.Scenarios)),
		Q: q,
		L: f.cfg.FloorRatio,
	}
	for _, ratio := range f.cfg.StrikeRatios {
		label := StrikeLabel(ratio)
		strike := day.Price * ratio
		prob.Strikes = append(prob.Strikes, label)
		prob.K[label] = strike
		prob.P[label] = f.pricer.PutPremium(day.Date, strike, day.Price, expiry, vix) * q
	}
	for _, s := range f.cfg.Scenarios {
		prob.Scenarios = append(prob.Scenarios, s.Name)
		prob.R[s.Name] = s.Return
	}
	return prob, expiry
}

func (f *FixedFloor) Decide(_ context.Context, day Day, p *portfolio.Portfolio, st State) (State, Decision, error) {
	if !intervalElapsed(st.LastFloorAction, day.Date, f.cfg.HedgeInterval) {
		return st, skipped("interval"), nil
	}

	prob, expiry := f.Problem(day, p)
	start := time.Now()
	res := solver.SolveFixedFloor(f.backend, prob, f.policy)
	logging.LogSolve(f.logger, "fixed_floor", string(res.Status), res.TotalCost, time.Since(start))

	if res.Status != solver.StatusOptimal || res.TotalCost == 0 {
		note := "LP " + string(res.Status)
		logging.LogSkip(f.logger, day.Date, note)
		return st, skipped(note), nil
	}

	if _, ok := fundPurchase(p, res.TotalCost); !ok {
		logging.LogSkip(f.logger, day.Date, "insufficient funds")
		return st, skipped("insufficient funds"), nil
	}

	purchased := 0
	for _, label := range prob.Strikes {
		q := res.Quantities[label]
		if q <= 0.01 {
			continue
		}
		lots := f.cfg.LotRounding.Lots(q)
		if lots == 0 {
			continue
		}
		if err := p.BuyPut(prob.K[label], prob.P[label], expiry, lots, true); err != nil {
			return st, Decision{}, err
		}
		logging.LogHedge(f.logger, day.Date, prob.K[label], prob.P[label], lots, expiry)
		purchased++
	}

	st.LastFloorAction = day.Date
	st.CumulativeCost += res.TotalCost
	st.Purchases += purchased
	return st, Decision{
		Action:    ActionExecuted,
		Cost:      res.TotalCost,
		Purchased: purchased,
		FloorMet:  res.FloorMet,
	}, nil
}
