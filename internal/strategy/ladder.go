package strategy

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	apperrors "options-hedge/internal/errors"
	"options-hedge/internal/logging"
	"options-hedge/internal/market"
	"options-hedge/internal/models"
	"options-hedge/internal/portfolio"
	"options-hedge/internal/pricing"
	"options-hedge/internal/solver"
)

// LadderConfig parameterizes the VIX-ladder strategy.
type LadderConfig struct {
	VIX           float64     `mapstructure:"vix" json:"vix"` // fixed level; 0 reads the market
	ExpiryDays    int         `mapstructure:"expiry_days" json:"expiry_days"`
	Alpha         float64     `mapstructure:"alpha" json:"alpha"`
	StrikeDensity float64     `mapstructure:"strike_density" json:"strike_density"`
	MinOTM        float64     `mapstructure:"min_otm" json:"min_otm"`
	MaxOTM        float64     `mapstructure:"max_otm" json:"max_otm"`
	TxCostRate    float64     `mapstructure:"transaction_cost_rate" json:"transaction_cost_rate"`
	Allocations   []float64   `mapstructure:"allocations" json:"allocations"`
	LotRounding   LotRounding `mapstructure:"lot_rounding" json:"lot_rounding"`
}

// DefaultLadderConfig spans 5% to 60% OTM in 5% steps.
func DefaultLadderConfig() LadderConfig {
	return LadderConfig{
		ExpiryDays:    90,
		Alpha:         solver.DefaultAlpha,
		StrikeDensity: 0.05,
		MinOTM:        0.05,
		MaxOTM:        0.60,
		TxCostRate:    0.05,
		Allocations:   append([]float64(nil), solver.DefaultAllocations...),
		LotRounding:   RoundTruncate,
	}
}

// OTMLevels returns MinOTM, MinOTM+density, ... up to MaxOTM.
func (c LadderConfig) OTMLevels() []float64 {
	if c.StrikeDensity <= 0 {
		return nil
	}
	var levels []float64
	for otm := c.MinOTM; otm <= c.MaxOTM; otm += c.StrikeDensity {
		levels = append(levels, otm)
	}
	return levels
}

// VixLadder buys a diversified put ladder every call, sized by the
// VIX-ladder LP. It has no interval gate. A missing VIX is an error.
type VixLadder struct {
	cfg    LadderConfig
	pricer pricing.Pricer
	solver solver.LadderSolver
	logger zerolog.Logger
}

// NewVixLadder creates the ladder strategy. Without an LP backend it sizes
// with the greedy allocator.
func NewVixLadder(cfg LadderConfig, deps Deps) (*VixLadder, error) {
	deps = deps.withDefaults()
	if err := cfg.LotRounding.Validate(); err != nil {
		return nil, err
	}
	if cfg.StrikeDensity <= 0 {
		return nil, apperrors.NewValidationError("strike_density", cfg.StrikeDensity, "must be positive")
	}
	return &VixLadder{
		cfg:    cfg,
		pricer: deps.Pricer,
		solver: deps.LadderSolver,
		logger: logging.WithStrategy(deps.Logger, "vix_ladder"),
	}, nil
}

func (v *VixLadder) Name() string { return "vix_ladder" }

func (v *VixLadder) vix(day Day) (float64, error) {
	if v.cfg.VIX > 0 {
		return v.cfg.VIX, nil
	}
	if day.Market == nil {
		return 0, apperrors.ErrCapabilityUnavailable
	}
	return day.Market.VIX(day.Date)
}

// sigma is the annualized volatility of returns observed up to the day.
func sigma(day Day) float64 {
	if day.Market == nil {
		return 0
	}
	bars := day.Market.Window(day.Date, len(day.Market.Bars()))
	if len(bars) < 2 {
		return 0
	}
	// the first bar carries no return
	return market.AnnualizedVol(market.Returns(bars[1:]))
}

// Chain builds the candidate puts and the shared expiry for a day.
func (v *VixLadder) Chain(day Day, v0, vix float64) ([]models.PutCandidate, time.Time) {
	expiry := models.Day(day.Date).AddDate(0, 0, v.cfg.ExpiryDays)
	tYears := float64(v.cfg.ExpiryDays) / 365.25

	levels := v.cfg.OTMLevels()
	chain := make([]models.PutCandidate, 0, len(levels))
	for _, otm := range levels {
		strike := day.Price * (1 - otm)
		chain = append(chain, models.PutCandidate{
			Strike:      strike,
			Premium:     v.pricer.PutPremium(day.Date, strike, day.Price, expiry, vix) * v0,
			ExpiryYears: tYears,
		})
	}
	return chain, expiry
}

func (v *VixLadder) Decide(_ context.Context, day Day, p *portfolio.Portfolio, st State) (State, Decision, error) {
	vix, err := v.vix(day)
	if err != nil {
		return st, Decision{}, apperrors.Wrap(err, "vix ladder needs a VIX level")
	}

	v0 := p.EquityValue() + p.Cash()
	chain, expiry := v.Chain(day, v0, vix)
	if len(chain) == 0 {
		return st, none(), nil
	}

	start := time.Now()
	res := v.solver.SolveLadder(solver.LadderProblem{
		Options:     chain,
		V0:          v0,
		S0:          day.Price,
		Beta:        p.Beta(),
		Sigma:       sigma(day),
		TYears:      float64(v.cfg.ExpiryDays) / 365.25,
		Alpha:       v.cfg.Alpha,
		VIX:         vix,
		Allocations: v.cfg.Allocations,
		TxCostRate:  v.cfg.TxCostRate,
	})
	logging.LogSolve(v.logger, "vix_ladder_"+res.Method, "optimal", res.TotalCost, time.Since(start))

	if res.TotalCost > 0 {
		if _, ok := fundPurchase(p, res.TotalCost); !ok {
			logging.LogSkip(v.logger, day.Date, "insufficient funds")
			return st, skipped("insufficient funds"), nil
		}
	}

	purchased := 0
	for j, q := range res.Quantities {
		if q <= 0 {
			continue
		}
		lots := v.cfg.LotRounding.Lots(q)
		if lots == 0 {
			continue
		}
		if err := p.BuyPut(chain[j].Strike, chain[j].Premium, expiry, lots, true); err != nil {
			return st, Decision{}, err
		}
		logging.LogHedge(v.logger, day.Date, chain[j].Strike, chain[j].Premium, lots, expiry)
		purchased++
	}

	st.CumulativeCost += res.TotalCost
	st.LastLadderHedge = day.Date
	st.Purchases += purchased
	return st, Decision{
		Action:    ActionExecuted,
		Cost:      res.TotalCost,
		Purchased: purchased,
		Note:      res.Method,
	}, nil
}
