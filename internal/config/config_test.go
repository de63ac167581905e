package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "options-hedge/internal/errors"
	"options-hedge/internal/strategy"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 90, cfg.Quarterly.HedgeInterval)
	assert.Equal(t, 0.85, cfg.Quarterly.StrikeRatio)
	assert.Equal(t, 20, cfg.Conditional.LookbackDays)
	assert.Equal(t, -0.05, cfg.Conditional.DropThreshold)
	assert.Equal(t, 0.20, cfg.FixedFloor.FloorRatio)
	assert.Len(t, cfg.FixedFloor.Scenarios, 3)
	assert.Equal(t, LadderLP, cfg.Solver.Ladder)
	assert.Equal(t, PricingSynthetic, cfg.Pricing.Source)
}

func TestLoadWritesTemplateOnFirstUse(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.FileExists(t, Path(dir))

	// the template reproduces the defaults apart from paths
	want := Default()
	assert.Equal(t, want.Portfolio, cfg.Portfolio)
	assert.Equal(t, want.Config, cfg.Config)
	assert.Equal(t, want.Solver, cfg.Solver)

	again, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.Config, again.Config)
}

func TestLoadOverridesAndReplacesLists(t *testing.T) {
	dir := t.TempDir()
	body := `
[portfolio]
initial_value = 250000.0
beta = 1.2

[fixed_floor]
floor_ratio = 0.10
strike_ratios = [0.80, 0.90]
lot_rounding = "nearest"

[[fixed_floor.scenarios]]
name = "crash"
return = -0.25

[solver]
ladder = "greedy"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 250_000.0, cfg.Portfolio.InitialValue)
	assert.Equal(t, 1.2, cfg.Portfolio.Beta)
	// untouched keys keep their defaults
	assert.Equal(t, Default().Portfolio.OptionBidAskSpread, cfg.Portfolio.OptionBidAskSpread)
	assert.Equal(t, 90, cfg.Quarterly.HedgeInterval)

	assert.Equal(t, 0.10, cfg.FixedFloor.FloorRatio)
	assert.Equal(t, []float64{0.80, 0.90}, cfg.FixedFloor.StrikeRatios)
	assert.Equal(t, []strategy.Scenario{{Name: "crash", Return: -0.25}}, cfg.FixedFloor.Scenarios)
	assert.Equal(t, strategy.RoundNearest, cfg.FixedFloor.LotRounding)
	assert.Equal(t, LadderGreedy, cfg.Solver.Ladder)
}

func TestLoadAcceptsAllocationTriples(t *testing.T) {
	dir := t.TempDir()
	body := `
[ladder]
allocations = [[0.05, 0.15, 0.10], [0.15, 0.25, 0.20], [0.25, 0.40, 0.30], [0.40, 1.00, 0.40]]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.10, 0.20, 0.30, 0.40}, cfg.Ladder.Allocations)

	body = "[ladder]\nallocations = [0.1, 0.2]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0644))
	_, err = Load(dir)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid))
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HEDGE_INITIAL_VALUE", "500000")
	t.Setenv("HEDGE_LADDER_SOLVER", "GREEDY")
	t.Setenv("HEDGE_DB_PATH", "/tmp/x.db")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 500_000.0, cfg.Portfolio.InitialValue)
	assert.Equal(t, LadderGreedy, cfg.Solver.Ladder)
	assert.Equal(t, "/tmp/x.db", cfg.Data.DBPath)

	t.Setenv("HEDGE_BETA", "steep")
	_, err = Load(dir)
	assert.True(t, apperrors.Is(err, apperrors.ErrInputValidation))
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[solver]\nladder = \"magic\"\n"), 0644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid))
	assert.Contains(t, err.Error(), "solver.ladder")
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"initial value":    func(c *Config) { c.Portfolio.InitialValue = 0 },
		"spread":           func(c *Config) { c.Portfolio.OptionBidAskSpread = 1 },
		"floor ratio":      func(c *Config) { c.FixedFloor.FloorRatio = 1.5 },
		"no scenarios":     func(c *Config) { c.FixedFloor.Scenarios = nil },
		"policy":           func(c *Config) { c.FixedFloor.ShortfallPolicy = "lenient" },
		"rounding":         func(c *Config) { c.Ladder.LotRounding = "ceil" },
		"allocations":      func(c *Config) { c.Ladder.Allocations = []float64{0.5, 0.5} },
		"otm range":        func(c *Config) { c.Ladder.MaxOTM = 0.01 },
		"pricing source":   func(c *Config) { c.Pricing.Source = "broker" },
		"backend":          func(c *Config) { c.Solver.Backend = "cplex" },
		"log level":        func(c *Config) { c.Logging.Level = "loud" },
		"floor hedge cost": func(c *Config) { c.FloorHedge.PutCost = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid))
		})
	}
}

// Property: any positive initial value and beta with a floor ratio in (0, 1)
// validates; the portfolio section never affects the strategy sections.
func TestProperty_PortfolioSectionValidates(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("positive portfolio parameters validate", prop.ForAll(
		func(value, beta, floor float64) bool {
			cfg := Default()
			cfg.Portfolio.InitialValue = value
			cfg.Portfolio.Beta = beta
			cfg.FixedFloor.FloorRatio = floor
			return cfg.Validate() == nil
		},
		gen.Float64Range(1, 1e9),
		gen.Float64Range(0.1, 3),
		gen.Float64Range(0.01, 0.99),
	))

	properties.TestingRun(t)
}
