// Package config provides configuration management for the backtester.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	apperrors "options-hedge/internal/errors"
	"options-hedge/internal/logging"
	"options-hedge/internal/portfolio"
	"options-hedge/internal/pricing"
	"options-hedge/internal/solver"
	"options-hedge/internal/strategy"
)

// Config holds all application configuration. It is loaded once and passed
// by value; nothing mutates it after Load.
type Config struct {
	Portfolio       portfolio.Config  `mapstructure:"portfolio" json:"portfolio"`
	strategy.Config `mapstructure:",squash"`
	Pricing         PricingConfig     `mapstructure:"pricing" json:"pricing"`
	Solver          SolverConfig      `mapstructure:"solver" json:"solver"`
	Data            DataConfig        `mapstructure:"data" json:"data"`
	Analysis        AnalysisConfig    `mapstructure:"analysis" json:"analysis"`
	Logging         logging.LogConfig `mapstructure:"logging" json:"logging"`
}

// PricingConfig selects the premium source.
type PricingConfig struct {
	Source              string  `mapstructure:"source" json:"source"` // "synthetic" or "quotes"
	StrikeTolerance     float64 `mapstructure:"strike_tolerance" json:"strike_tolerance"`
	ExpiryToleranceDays int     `mapstructure:"expiry_tolerance_days" json:"expiry_tolerance_days"`
}

// SolverConfig selects the LP backend and ladder method.
type SolverConfig struct {
	Backend   string  `mapstructure:"backend" json:"backend"` // "simplex" or "none"
	Ladder    string  `mapstructure:"ladder" json:"ladder"`   // "lp" or "greedy"
	Tolerance float64 `mapstructure:"tolerance" json:"tolerance"`
}

// DataConfig locates market data.
type DataConfig struct {
	DBPath string `mapstructure:"db_path" json:"db_path"`
	Symbol string `mapstructure:"symbol" json:"symbol"`
}

// AnalysisConfig parameterizes the performance report.
type AnalysisConfig struct {
	Benchmark    string  `mapstructure:"benchmark" json:"benchmark"`
	RiskFreeRate float64 `mapstructure:"risk_free_rate" json:"risk_free_rate"`
}

const (
	PricingSynthetic = "synthetic"
	PricingQuotes    = "quotes"

	BackendSimplex = "simplex"
	BackendNone    = "none"

	LadderLP     = "lp"
	LadderGreedy = "greedy"
)

// Default returns the documented defaults.
func Default() Config {
	return Config{
		Portfolio: portfolio.DefaultConfig(),
		Config:    strategy.DefaultConfig(),
		Pricing: PricingConfig{
			Source:              PricingSynthetic,
			StrikeTolerance:     pricing.DefaultStrikeTolerance,
			ExpiryToleranceDays: pricing.DefaultExpiryToleranceDays,
		},
		Solver: SolverConfig{
			Backend:   BackendSimplex,
			Ladder:    LadderLP,
			Tolerance: solver.DefaultSimplexTolerance,
		},
		Data: DataConfig{
			DBPath: filepath.Join(DefaultConfigDir(), "hedger.db"),
			Symbol: "SPX",
		},
		Analysis: AnalysisConfig{Benchmark: "none"},
		Logging:  logging.DefaultLogConfig(),
	}
}

// DefaultConfigDir returns the default configuration directory.
// HEDGE_CONFIG_DIR overrides it.
func DefaultConfigDir() string {
	if dir := os.Getenv("HEDGE_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/options-hedge"
	}
	return filepath.Join(home, ".config", "options-hedge")
}

// Path returns the config file location inside configDir.
func Path(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config file is replaced by a template and the defaults are used.
func Load(configDir string) (Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()
	if err := loadConfigFile(configDir, "config", &cfg); err != nil {
		return Config{}, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			_, err := WriteTemplate(configDir)
			return err
		}
		return err
	}

	// Rung allocations may be bare fractions or (otm_min, otm_max, frac)
	// triples; normalize them to fractions before decoding.
	if raw, ok := v.Get("ladder.allocations").([]interface{}); ok {
		allocs, err := solver.ParseAllocations(raw)
		if err != nil {
			return invalidErr(err)
		}
		v.Set("ladder.allocations", allocs)
	}

	// Lists in the file replace the defaults instead of merging into them.
	return v.Unmarshal(target, func(dc *mapstructure.DecoderConfig) {
		dc.ZeroFields = true
	})
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("HEDGE_DB_PATH"); v != "" {
		cfg.Data.DBPath = v
	}
	if v := os.Getenv("HEDGE_SYMBOL"); v != "" {
		cfg.Data.Symbol = v
	}
	if v := os.Getenv("HEDGE_PRICING_SOURCE"); v != "" {
		cfg.Pricing.Source = strings.ToLower(v)
	}
	if v := os.Getenv("HEDGE_LADDER_SOLVER"); v != "" {
		cfg.Solver.Ladder = strings.ToLower(v)
	}
	if v := os.Getenv("HEDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HEDGE_INITIAL_VALUE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return apperrors.NewValidationError("HEDGE_INITIAL_VALUE", v, "not a number")
		}
		cfg.Portfolio.InitialValue = f
	}
	if v := os.Getenv("HEDGE_BETA"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return apperrors.NewValidationError("HEDGE_BETA", v, "not a number")
		}
		cfg.Portfolio.Beta = f
	}
	return nil
}

// invalidErr marks err as a configuration error while keeping it matchable.
func invalidErr(err error) error {
	return fmt.Errorf("%w: %w", apperrors.ErrConfigInvalid, err)
}

func invalid(field string, value interface{}, msg string) error {
	return invalidErr(apperrors.NewValidationError(field, value, msg))
}

// Validate validates the configuration.
func (c Config) Validate() error {
	p := c.Portfolio
	if p.InitialValue <= 0 {
		return invalid("portfolio.initial_value", p.InitialValue, "must be positive")
	}
	if p.Beta <= 0 {
		return invalid("portfolio.beta", p.Beta, "must be positive")
	}
	if p.Cash < 0 {
		return invalid("portfolio.cash", p.Cash, "must be non-negative")
	}
	if p.OptionBidAskSpread < 0 || p.OptionBidAskSpread >= 1 {
		return invalid("portfolio.option_bid_ask_spread", p.OptionBidAskSpread, "must be in [0, 1)")
	}
	if p.EquityTransactionCost < 0 || p.EquityTransactionCost >= 1 {
		return invalid("portfolio.equity_transaction_cost", p.EquityTransactionCost, "must be in [0, 1)")
	}

	q := c.Quarterly
	if q.HedgeInterval <= 0 || q.ExpiryDays <= 0 {
		return invalid("quarterly", q.HedgeInterval, "hedge_interval and expiry_days must be positive")
	}
	if q.StrikeRatio <= 0 {
		return invalid("quarterly.strike_ratio", q.StrikeRatio, "must be positive")
	}

	cd := c.Conditional
	if cd.LookbackDays < 1 || cd.LongTermDays < 2 || cd.ExpiryDays <= 0 {
		return invalid("conditional", cd.LookbackDays, "lookback, long-term and expiry days must be positive")
	}
	if cd.VolMultiplier <= 0 || cd.StrikeRatio <= 0 {
		return invalid("conditional.vol_multiplier", cd.VolMultiplier, "must be positive")
	}

	ff := c.FixedFloor
	if ff.FloorRatio <= 0 || ff.FloorRatio >= 1 {
		return invalid("fixed_floor.floor_ratio", ff.FloorRatio, "must be in (0, 1)")
	}
	if len(ff.Scenarios) == 0 {
		return invalid("fixed_floor.scenarios", 0, "need at least one scenario")
	}
	for _, s := range ff.Scenarios {
		if s.Name == "" || s.Return <= -1 {
			return invalid("fixed_floor.scenarios", s.Name, "scenarios need a name and a return above -1")
		}
	}
	if len(ff.StrikeRatios) == 0 {
		return invalid("fixed_floor.strike_ratios", 0, "need at least one strike")
	}
	for _, r := range ff.StrikeRatios {
		if r <= 0 {
			return invalid("fixed_floor.strike_ratios", r, "must be positive")
		}
	}
	if _, err := solver.ParseShortfallPolicy(ff.ShortfallPolicy); err != nil {
		return invalidErr(err)
	}
	if err := ff.LotRounding.Validate(); err != nil {
		return invalidErr(err)
	}

	l := c.Ladder
	if l.VIX < 0 || l.Alpha < 0 || l.TxCostRate < 0 {
		return invalid("ladder", l.VIX, "vix, alpha and transaction_cost_rate must be non-negative")
	}
	if l.StrikeDensity <= 0 || l.MinOTM < 0 || l.MaxOTM <= l.MinOTM || l.MaxOTM >= 1 {
		return invalid("ladder.strike_density", l.StrikeDensity, "need density > 0 and 0 <= min_otm < max_otm < 1")
	}
	if n := len(l.Allocations); n != 0 && n != len(solver.DefaultRungs) {
		return invalid("ladder.allocations", n, fmt.Sprintf("need %d rung allocations", len(solver.DefaultRungs)))
	}
	for _, a := range l.Allocations {
		if a < 0 {
			return invalid("ladder.allocations", a, "must be non-negative")
		}
	}
	if err := l.LotRounding.Validate(); err != nil {
		return invalidErr(err)
	}

	fh := c.FloorHedge
	if fh.FloorRatio <= 0 || fh.PutCost <= 0 || fh.StrikeRatio <= 0 || fh.ExpiryDays <= 0 || fh.HedgeInterval < 0 {
		return invalid("floor_hedge", fh.FloorRatio, "ratios, put_cost and expiry_days must be positive")
	}

	switch c.Pricing.Source {
	case PricingSynthetic, PricingQuotes:
	default:
		return invalid("pricing.source", c.Pricing.Source, "must be synthetic or quotes")
	}
	if c.Pricing.StrikeTolerance < 0 || c.Pricing.ExpiryToleranceDays < 0 {
		return invalid("pricing", c.Pricing.StrikeTolerance, "tolerances must be non-negative")
	}

	switch c.Solver.Backend {
	case BackendSimplex, BackendNone:
	default:
		return invalid("solver.backend", c.Solver.Backend, "must be simplex or none")
	}
	switch c.Solver.Ladder {
	case LadderLP, LadderGreedy:
	default:
		return invalid("solver.ladder", c.Solver.Ladder, "must be lp or greedy")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("logging.level", c.Logging.Level, "must be debug, info, warn or error")
	}

	return nil
}
