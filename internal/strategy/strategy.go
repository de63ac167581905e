// Package strategy implements the hedging decision policies run once per
// simulated day. Strategies are stateless values; cross-day memory lives in
// State, which the caller threads from one call to the next.
package strategy

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "options-hedge/internal/errors"
	"options-hedge/internal/market"
	"options-hedge/internal/models"
	"options-hedge/internal/portfolio"
	"options-hedge/internal/pricing"
	"options-hedge/internal/solver"
)

// Day is the market context for one decision.
type Day struct {
	Date   time.Time
	Price  float64
	Market market.Data
}

// State is the cross-day memory of a strategy. Zero times mean "never".
type State struct {
	LastAction      time.Time `json:"last_action"`
	LastFloorAction time.Time `json:"last_floor_action"`
	LastLadderHedge time.Time `json:"last_ladder_hedge"`
	CumulativeCost  float64   `json:"cumulative_cost"`
	Purchases       int       `json:"purchases"`
}

// Action describes what a strategy did on a day.
type Action string

const (
	ActionNone     Action = "none"
	ActionExecuted Action = "executed"
	ActionSkipped  Action = "skipped"
)

// Decision is the per-day outcome of a strategy call.
type Decision struct {
	Action    Action  `json:"action"`
	Cost      float64 `json:"cost"`
	Purchased int     `json:"purchased"`
	Note      string  `json:"note,omitempty"`
	FloorMet  bool    `json:"floor_met,omitempty"`
}

func none() Decision { return Decision{Action: ActionNone} }

func skipped(note string) Decision { return Decision{Action: ActionSkipped, Note: note} }

// Strategy decides whether to buy puts on a day. Decide may mutate the
// portfolio and returns the next State.
type Strategy interface {
	Name() string
	Decide(ctx context.Context, day Day, p *portfolio.Portfolio, st State) (State, Decision, error)
}

// LotRounding converts continuous LP quantities into whole contracts.
type LotRounding string

const (
	RoundTruncate LotRounding = "truncate"
	RoundNearest  LotRounding = "nearest"
)

// Lots returns the whole number of contracts for q.
func (r LotRounding) Lots(q float64) int {
	if r == RoundNearest {
		return int(math.Round(q))
	}
	return int(q)
}

// Validate checks that r is a known rounding mode.
func (r LotRounding) Validate() error {
	switch r {
	case RoundTruncate, RoundNearest, "":
		return nil
	default:
		return apperrors.NewValidationError("lot_rounding", string(r), "must be truncate or nearest")
	}
}

// fundingBuffer is added on top of a cash deficit when selling equity.
const fundingBuffer = 1.01

// fundPurchase makes sure cash covers cost, selling equity with a 1% buffer
// if needed. It reports false, leaving the portfolio untouched, when equity
// cannot cover the deficit.
func fundPurchase(p *portfolio.Portfolio, cost float64) (sold float64, ok bool) {
	if p.Cash() >= cost {
		return 0, true
	}
	sell := (cost - p.Cash()) * fundingBuffer
	if err := p.RebalanceToCash(sell); err != nil {
		return 0, false
	}
	return sell, true
}

// vixOr returns the market VIX on date or fallback when it is unavailable.
func vixOr(m market.Data, date time.Time, fallback float64) float64 {
	if m == nil {
		return fallback
	}
	v, err := m.VIX(date)
	if err != nil {
		return fallback
	}
	return v
}

// intervalElapsed reports whether at least days calendar days separate last
// from now, treating a zero last as never.
func intervalElapsed(last, now time.Time, days int) bool {
	if last.IsZero() {
		return true
	}
	return models.DaysBetween(last, now) >= days
}

// Noop never trades. It is the unhedged baseline.
type Noop struct{}

func (Noop) Name() string { return "none" }

func (Noop) Decide(_ context.Context, _ Day, _ *portfolio.Portfolio, st State) (State, Decision, error) {
	return st, none(), nil
}

// Config groups the parameters of every strategy.
type Config struct {
	Quarterly   QuarterlyConfig   `mapstructure:"quarterly" json:"quarterly"`
	Conditional ConditionalConfig `mapstructure:"conditional" json:"conditional"`
	FixedFloor  FixedFloorConfig  `mapstructure:"fixed_floor" json:"fixed_floor"`
	Ladder      LadderConfig      `mapstructure:"ladder" json:"ladder"`
	FloorHedge  FloorHedgeConfig  `mapstructure:"floor_hedge" json:"floor_hedge"`
}

// DefaultConfig returns the documented defaults for every strategy.
func DefaultConfig() Config {
	return Config{
		Quarterly:   DefaultQuarterlyConfig(),
		Conditional: DefaultConditionalConfig(),
		FixedFloor:  DefaultFixedFloorConfig(),
		Ladder:      DefaultLadderConfig(),
		FloorHedge:  DefaultFloorHedgeConfig(),
	}
}

// Deps are the collaborators injected into strategies.
type Deps struct {
	Pricer       pricing.Pricer
	Backend      solver.Backend
	LadderSolver solver.LadderSolver
	Logger       zerolog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Pricer == nil {
		d.Pricer = pricing.NewSyntheticPricer()
	}
	if d.LadderSolver == nil {
		d.LadderSolver = solver.NewLadderSolver(d.Backend)
	}
	return d
}

type factory func(Config, Deps) (Strategy, error)

var registry = map[string]factory{
	"none": func(Config, Deps) (Strategy, error) { return Noop{}, nil },
	"quarterly": func(c Config, d Deps) (Strategy, error) {
		return NewQuarterly(c.Quarterly, d), nil
	},
	"conditional": func(c Config, d Deps) (Strategy, error) {
		return NewConditional(c.Conditional, d), nil
	},
	"fixed_floor": func(c Config, d Deps) (Strategy, error) {
		return NewFixedFloor(c.FixedFloor, d)
	},
	"vix_ladder": func(c Config, d Deps) (Strategy, error) {
		return NewVixLadder(c.Ladder, d)
	},
	"floor_hedge": func(c Config, d Deps) (Strategy, error) {
		return NewFloorHedge(c.FloorHedge, d)
	},
}

// Names lists the registered strategy names in order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the named strategy.
func New(name string, cfg Config, deps Deps) (Strategy, error) {
	f, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, apperrors.NewValidationError("strategy", name,
			fmt.Sprintf("unknown strategy, want one of %s", strings.Join(Names(), ", ")))
	}
	return f(cfg, deps)
}
