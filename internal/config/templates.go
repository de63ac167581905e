package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Options Hedge Backtester Configuration

[portfolio]
# Starting equity value in dollars
initial_value = 1000000.0
# Equity beta to the index
beta = 1.0
# Starting cash
cash = 0.0
# Fraction added to every option premium paid
option_bid_ask_spread = 0.05
# Fraction lost when equity is sold to fund premiums
equity_transaction_cost = 0.0005
# Annual rate charged on negative cash
margin_rate = 0.055

[quarterly]
hedge_interval = 90
strike_ratio = 0.85
expiry_days = 90

[conditional]
lookback_days = 20
long_term_days = 252
min_history_days = 50
drop_threshold = -0.05
vol_multiplier = 1.5
strike_ratio = 0.85
expiry_days = 90

[fixed_floor]
# Maximum tolerated loss as a fraction of portfolio value
floor_ratio = 0.20
strike_ratios = [0.50, 0.70, 0.90, 1.00]
expiry_days = 90
hedge_interval = 90
# "penalized" allows a priced shortfall, "strict" requires the floor
shortfall_policy = "penalized"
# "truncate" or "nearest"
lot_rounding = "truncate"

[[fixed_floor.scenarios]]
name = "crash"
return = -0.40

[[fixed_floor.scenarios]]
name = "mild"
return = -0.10

[[fixed_floor.scenarios]]
name = "up"
return = 0.10

[ladder]
# Fixed VIX level; 0 reads the market series
vix = 0.0
expiry_days = 90
alpha = 0.05
strike_density = 0.05
min_otm = 0.05
max_otm = 0.60
transaction_cost_rate = 0.05
# Budget fractions for the four rungs; an empty list uses these defaults
allocations = [0.05, 0.15, 0.30, 0.50]
lot_rounding = "truncate"

[floor_hedge]
floor_ratio = 0.85
downside_scenario = -0.15
put_cost = 0.01
strike_ratio = 0.90
expiry_days = 120
# 0 re-evaluates every day
hedge_interval = 0

[pricing]
# "synthetic" or "quotes"
source = "synthetic"
strike_tolerance = 0.05
expiry_tolerance_days = 7

[solver]
# "simplex" or "none"
backend = "simplex"
# "lp" or "greedy"
ladder = "lp"
tolerance = 1e-10

[data]
# db_path = "~/.config/options-hedge/hedger.db"
symbol = "SPX"

[analysis]
benchmark = "none"
risk_free_rate = 0.0

[logging]
level = "info"
console = true
file = false
max_size = 50
max_backups = 5
max_age = 30
`

// WriteTemplate writes the commented default config into configDir unless a
// config file already exists there. It returns the file path.
func WriteTemplate(configDir string) (string, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return "", fmt.Errorf("writing config template: %w", err)
	}

	return path, nil
}
