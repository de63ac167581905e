// Package portfolio tracks equity, cash and put inventory for a hedged
// portfolio and owns the option lifecycle (purchase, valuation, expiry).
package portfolio

import (
	"time"

	apperrors "options-hedge/internal/errors"
	"options-hedge/internal/models"
)

// Default portfolio parameters.
const (
	DefaultInitialValue          = 1_000_000.0
	DefaultBeta                  = 1.0
	DefaultCash                  = 0.0
	DefaultOptionBidAskSpread    = 0.05   // fraction of premium paid on top of mid
	DefaultEquityTransactionCost = 0.0005 // 5 bps of notional
	DefaultMarginRate            = 0.055  // annual, informational only
)

// Config holds the construction parameters of a Portfolio.
type Config struct {
	InitialValue          float64 `mapstructure:"initial_value" json:"initial_value"`
	Beta                  float64 `mapstructure:"beta" json:"beta"`
	Cash                  float64 `mapstructure:"cash" json:"cash"`
	OptionBidAskSpread    float64 `mapstructure:"option_bid_ask_spread" json:"option_bid_ask_spread"`
	EquityTransactionCost float64 `mapstructure:"equity_transaction_cost" json:"equity_transaction_cost"`
	MarginRate            float64 `mapstructure:"margin_rate" json:"margin_rate"`
}

// DefaultConfig returns the default portfolio configuration.
func DefaultConfig() Config {
	return Config{
		InitialValue:          DefaultInitialValue,
		Beta:                  DefaultBeta,
		Cash:                  DefaultCash,
		OptionBidAskSpread:    DefaultOptionBidAskSpread,
		EquityTransactionCost: DefaultEquityTransactionCost,
		MarginRate:            DefaultMarginRate,
	}
}

// Portfolio is the mutable state of one simulation run. It is not safe for
// concurrent use; each run owns its own instance.
//
// Invariant: TotalValue(S, d) = EquityValue + Cash + sum of live option values.
type Portfolio struct {
	initialValue          float64
	beta                  float64
	equityValue           float64
	cash                  float64
	options               []models.Option
	history               []models.HistoryRow
	optionBidAskSpread    float64
	equityTransactionCost float64
	marginRate            float64
	totalTransactionCosts float64
}

// New creates a portfolio with equity equal to the configured initial value.
func New(cfg Config) *Portfolio {
	return &Portfolio{
		initialValue:          cfg.InitialValue,
		beta:                  cfg.Beta,
		equityValue:           cfg.InitialValue,
		cash:                  cfg.Cash,
		optionBidAskSpread:    cfg.OptionBidAskSpread,
		equityTransactionCost: cfg.EquityTransactionCost,
		marginRate:            cfg.MarginRate,
	}
}

// NewDefault creates a portfolio with DefaultConfig.
func NewDefault() *Portfolio {
	return New(DefaultConfig())
}

// BuyPut purchases quantity puts and debits premium*quantity*(1+spread) from
// cash. With allowMargin false and insufficient cash it returns an error
// wrapping ErrInsufficientFunds and leaves the portfolio untouched.
func (p *Portfolio) BuyPut(strike, premium float64, expiry time.Time, quantity int, allowMargin bool) error {
	opt := models.Option{
		Strike:   strike,
		Premium:  premium,
		Expiry:   expiry,
		Quantity: quantity,
	}

	baseCost := opt.TotalCost()
	transactionCost := baseCost * p.optionBidAskSpread
	totalCost := baseCost + transactionCost

	if !allowMargin && p.cash < totalCost {
		return apperrors.NewFundingError("buy put", totalCost, p.cash)
	}

	p.options = append(p.options, opt)
	p.cash -= totalCost
	p.totalTransactionCosts += transactionCost
	return nil
}

// UpdateEquity compounds equity by the beta-scaled daily return. Call it at
// most once per simulated day, before any hedge sizing.
func (p *Portfolio) UpdateEquity(dailyReturn float64) {
	p.equityValue *= 1 + dailyReturn*p.beta
}

// TotalValue returns equity + cash + the value of every live option.
func (p *Portfolio) TotalValue(price float64, asOf time.Time) float64 {
	var optionValue float64
	for _, o := range p.options {
		optionValue += o.Value(price, asOf)
	}
	return p.equityValue + p.cash + optionValue
}

// ExerciseExpiredOptions realizes the payoff of every option whose expiry has
// been reached and removes all of them, in the money or not, in one pass.
// It returns the cash credited.
func (p *Portfolio) ExerciseExpiredOptions(price float64, asOf time.Time) float64 {
	var credited float64
	kept := p.options[:0]
	for _, o := range p.options {
		if o.Expired(asOf) {
			if payoff := o.Payoff(price); payoff > 0 {
				credited += payoff
			}
			continue
		}
		kept = append(kept, o)
	}
	// clear the tail so removed options are not retained by the backing array
	for i := len(kept); i < len(p.options); i++ {
		p.options[i] = models.Option{}
	}
	p.options = kept
	p.cash += credited
	return credited
}

// CheckEarlyExercise evaluates early exercise under rule. Options are
// European: payoffs are realized only at expiry, so this never exercises and
// always returns 0.
func (p *Portfolio) CheckEarlyExercise(price float64, asOf time.Time, rule ExerciseRule) int {
	_ = price
	_ = asOf
	_ = rule
	return 0
}

// RebalanceToCash sells amount of equity into cash.
func (p *Portfolio) RebalanceToCash(amount float64) error {
	if amount > p.equityValue {
		return apperrors.NewFundingError("sell equity", amount, p.equityValue)
	}
	p.equityValue -= amount
	p.cash += amount
	return nil
}

// Record appends a ledger row. No validation is performed.
func (p *Portfolio) Record(date time.Time, totalValue float64) {
	p.history = append(p.history, models.HistoryRow{Date: date, Value: totalValue})
}

// LiveOptions returns options whose expiry is strictly after asOf.
func (p *Portfolio) LiveOptions(asOf time.Time) []models.Option {
	var live []models.Option
	for _, o := range p.options {
		if !o.Expired(asOf) {
			live = append(live, o)
		}
	}
	return live
}

// Options returns a copy of the option inventory in purchase order.
func (p *Portfolio) Options() []models.Option {
	out := make([]models.Option, len(p.options))
	copy(out, p.options)
	return out
}

// History returns a copy of the value ledger.
func (p *Portfolio) History() []models.HistoryRow {
	out := make([]models.HistoryRow, len(p.history))
	copy(out, p.history)
	return out
}

func (p *Portfolio) InitialValue() float64          { return p.initialValue }
func (p *Portfolio) Beta() float64                  { return p.beta }
func (p *Portfolio) EquityValue() float64           { return p.equityValue }
func (p *Portfolio) Cash() float64                  { return p.cash }
func (p *Portfolio) OptionBidAskSpread() float64    { return p.optionBidAskSpread }
func (p *Portfolio) EquityTransactionCost() float64 { return p.equityTransactionCost }
func (p *Portfolio) MarginRate() float64            { return p.marginRate }
func (p *Portfolio) TotalTransactionCosts() float64 { return p.totalTransactionCosts }

// Snapshot is a point-in-time copy of portfolio state.
type Snapshot struct {
	InitialValue          float64         `json:"initial_value"`
	Beta                  float64         `json:"beta"`
	EquityValue           float64         `json:"equity_value"`
	Cash                  float64         `json:"cash"`
	Options               []models.Option `json:"options"`
	TotalTransactionCosts float64         `json:"total_transaction_costs"`
}

// Snapshot returns a copy of the current state.
func (p *Portfolio) Snapshot() Snapshot {
	return Snapshot{
		InitialValue:          p.initialValue,
		Beta:                  p.beta,
		EquityValue:           p.equityValue,
		Cash:                  p.cash,
		Options:               p.Options(),
		TotalTransactionCosts: p.totalTransactionCosts,
	}
}
