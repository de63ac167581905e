package strategy

import (
	"context"

	"github.com/rs/zerolog"

	"options-hedge/internal/logging"
	"options-hedge/internal/models"
	"options-hedge/internal/portfolio"
	"options-hedge/internal/pricing"
)

// QuarterlyConfig parameterizes the scheduled protective put.
type QuarterlyConfig struct {
	HedgeInterval int     `mapstructure:"hedge_interval" json:"hedge_interval"` // days
	StrikeRatio   float64 `mapstructure:"strike_ratio" json:"strike_ratio"`
	ExpiryDays    int     `mapstructure:"expiry_days" json:"expiry_days"`
}

// DefaultQuarterlyConfig buys a 15% OTM 90-day put every 90 days.
func DefaultQuarterlyConfig() QuarterlyConfig {
	return QuarterlyConfig{
		HedgeInterval: 90,
		StrikeRatio:   0.85,
		ExpiryDays:    90,
	}
}

// Quarterly buys one put every HedgeInterval days. The premium is the
// pricer's fraction applied to current equity, priced off market VIX or
// DefaultVIX when the market has none.
type Quarterly struct {
	cfg    QuarterlyConfig
	pricer pricing.Pricer
	logger zerolog.Logger
}

// NewQuarterly creates the scheduled strategy.
func NewQuarterly(cfg QuarterlyConfig, deps Deps) *Quarterly {
	deps = deps.withDefaults()
	return &Quarterly{
		cfg:    cfg,
		pricer: deps.Pricer,
		logger: logging.WithStrategy(deps.Logger, "quarterly"),
	}
}

func (q *Quarterly) Name() string { return "quarterly" }

func (q *Quarterly) Decide(_ context.Context, day Day, p *portfolio.Portfolio, st State) (State, Decision, error) {
	if !intervalElapsed(st.LastAction, day.Date, q.cfg.HedgeInterval) {
		return st, none(), nil
	}

	strike := day.Price * q.cfg.StrikeRatio
	expiry := models.Day(day.Date).AddDate(0, 0, q.cfg.ExpiryDays)
	vix := vixOr(day.Market, day.Date, pricing.DefaultVIX)
	premium := p.EquityValue() * q.pricer.PutPremium(day.Date, strike, day.Price, expiry, vix)

	if err := p.BuyPut(strike, premium, expiry, models.DefaultOptionQuantity, true); err != nil {
		return st, Decision{}, err
	}
	logging.LogHedge(q.logger, day.Date, strike, premium, models.DefaultOptionQuantity, expiry)

	st.LastAction = day.Date
	st.CumulativeCost += premium
	st.Purchases++
	return st, Decision{Action: ActionExecuted, Cost: premium, Purchased: 1}, nil
}
