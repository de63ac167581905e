package strategy

import (
	"context"

	"github.com/rs/zerolog"

	"options-hedge/internal/logging"
	"options-hedge/internal/market"
	"options-hedge/internal/models"
	"options-hedge/internal/portfolio"
	"options-hedge/internal/pricing"
)

// ConditionalConfig parameterizes the risk-triggered put.
type ConditionalConfig struct {
	LookbackDays   int     `mapstructure:"lookback_days" json:"lookback_days"`
	LongTermDays   int     `mapstructure:"long_term_days" json:"long_term_days"`
	MinHistoryDays int     `mapstructure:"min_history_days" json:"min_history_days"`
	DropThreshold  float64 `mapstructure:"drop_threshold" json:"drop_threshold"`
	VolMultiplier  float64 `mapstructure:"vol_multiplier" json:"vol_multiplier"`
	StrikeRatio    float64 `mapstructure:"strike_ratio" json:"strike_ratio"`
	ExpiryDays     int     `mapstructure:"expiry_days" json:"expiry_days"`
}

// DefaultConditionalConfig triggers on a 5% drop over 20 days or on recent
// volatility above 1.5x the one-year level.
func DefaultConditionalConfig() ConditionalConfig {
	return ConditionalConfig{
		LookbackDays:   20,
		LongTermDays:   market.TradingDaysPerYear,
		MinHistoryDays: 50,
		DropThreshold:  -0.05,
		VolMultiplier:  1.5,
		StrikeRatio:    0.85,
		ExpiryDays:     90,
	}
}

// Conditional buys a single put when a drawdown or volatility trigger fires
// and no put is currently live.
type Conditional struct {
	cfg    ConditionalConfig
	pricer pricing.Pricer
	logger zerolog.Logger
}

// NewConditional creates the risk-triggered strategy.
func NewConditional(cfg ConditionalConfig, deps Deps) *Conditional {
	deps = deps.withDefaults()
	return &Conditional{
		cfg:    cfg,
		pricer: deps.Pricer,
		logger: logging.WithStrategy(deps.Logger, "conditional"),
	}
}

func (c *Conditional) Name() string { return "conditional" }

// Triggered evaluates the drawdown and volatility triggers on the bars up to
// day.Date. ok is false when there is not enough history.
func (c *Conditional) Triggered(day Day) (fired, ok bool) {
	if day.Market == nil {
		return false, false
	}
	past := day.Market.Window(day.Date, c.cfg.LongTermDays)
	recent := day.Market.Window(day.Date, c.cfg.LookbackDays)
	if len(recent) < c.cfg.LookbackDays || len(past) < c.cfg.MinHistoryDays {
		return false, false
	}

	recentReturn := market.PeriodReturn(recent)
	recentVol := market.RealizedVol(market.Returns(recent))
	longTermVol := market.RealizedVol(market.Returns(past))

	return recentReturn <= c.cfg.DropThreshold || recentVol > c.cfg.VolMultiplier*longTermVol, true
}

func (c *Conditional) Decide(_ context.Context, day Day, p *portfolio.Portfolio, st State) (State, Decision, error) {
	fired, ok := c.Triggered(day)
	if !ok || !fired {
		return st, none(), nil
	}
	if len(p.LiveOptions(day.Date)) > 0 {
		return st, none(), nil
	}

	strike := day.Price * c.cfg.StrikeRatio
	expiry := models.Day(day.Date).AddDate(0, 0, c.cfg.ExpiryDays)
	vix := vixOr(day.Market, day.Date, pricing.DefaultVIX)
	premium := p.EquityValue() * c.pricer.PutPremium(day.Date, strike, day.Price, expiry, vix)

	if err := p.BuyPut(strike, premium, expiry, models.DefaultOptionQuantity, true); err != nil {
		return st, Decision{}, err
	}
	logging.LogHedge(c.logger, day.Date, strike, premium, models.DefaultOptionQuantity, expiry)

	st.LastAction = day.Date
	st.CumulativeCost += premium
	st.Purchases++
	return st, Decision{Action: ActionExecuted, Cost: premium, Purchased: 1, Note: "risk trigger"}, nil
}
