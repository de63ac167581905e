package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	apperrors "options-hedge/internal/errors"
	"options-hedge/internal/market"
	"options-hedge/internal/models"
	"options-hedge/internal/portfolio"
	"options-hedge/internal/pricing"
	"options-hedge/internal/solver"
	"options-hedge/internal/strategy"
)

func addSolveCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Size a hedge for a single day without running a backtest",
	}
	cmd.PersistentFlags().Float64("spot", 4000, "index level")
	cmd.PersistentFlags().Float64("vix", pricing.DefaultVIX, "VIX level")
	cmd.PersistentFlags().Float64("value", 0, "portfolio value (default: portfolio.initial_value)")
	cmd.PersistentFlags().String("date", "", "valuation date, YYYY-MM-DD (default: today)")

	cmd.AddCommand(newSolveFloorCmd(app))
	cmd.AddCommand(newSolveLadderCmd(app))
	rootCmd.AddCommand(cmd)
}

// solveInputs is the single-day market and portfolio a solve runs against.
type solveInputs struct {
	day       strategy.Day
	portfolio *portfolio.Portfolio
	vix       float64
}

func (a *App) solveInputs(cmd *cobra.Command) (solveInputs, error) {
	spot, _ := cmd.Flags().GetFloat64("spot")
	vix, _ := cmd.Flags().GetFloat64("vix")
	value, _ := cmd.Flags().GetFloat64("value")

	date, err := parseDateFlag(cmd, "date")
	if err != nil {
		return solveInputs{}, err
	}
	if date.IsZero() {
		date = models.Day(time.Now())
	}
	if spot <= 0 {
		return solveInputs{}, apperrors.NewValidationError("spot", spot, "must be positive")
	}
	if vix < 0 {
		return solveInputs{}, apperrors.NewValidationError("vix", vix, "must be non-negative")
	}

	series, err := market.NewSeries(a.Config.Data.Symbol, []time.Time{date}, []float64{spot})
	if err != nil {
		return solveInputs{}, err
	}
	series.WithVIX([]models.RatePoint{{Date: date, Value: vix}})

	pcfg := a.Config.Portfolio
	if value > 0 {
		pcfg.InitialValue = value
	}
	return solveInputs{
		day:       strategy.Day{Date: models.Day(date), Price: spot, Market: series},
		portfolio: portfolio.New(pcfg),
		vix:       vix,
	}, nil
}

func newSolveFloorCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "floor",
		Short: "Solve the fixed-floor LP",
		Long: `Find the cheapest mix of the configured put strikes that keeps the
portfolio above (1 - fixed_floor.floor_ratio) of its value in every
configured scenario. Strikes are in index points and scenario values in
portfolio dollars, so pass a --value on the index scale to see the floor
bind.`,
		Example: `  hedger solve floor --spot 4000 --value 4000
  hedger solve floor --spot 4000 --value 4000 --vix 35 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			in, err := app.solveInputs(cmd)
			if err != nil {
				return err
			}
			deps, err := app.deps()
			if err != nil {
				return err
			}
			ff, err := strategy.NewFixedFloor(app.Config.FixedFloor, deps)
			if err != nil {
				return err
			}
			policy, err := solver.ParseShortfallPolicy(app.Config.FixedFloor.ShortfallPolicy)
			if err != nil {
				return err
			}

			prob, expiry := ff.Problem(in.day, in.portfolio)
			res := solver.SolveFixedFloor(deps.Backend, prob, policy)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"problem": prob,
					"expiry":  expiry,
					"policy":  policy,
					"result":  res,
				})
			}

			output.Box("Fixed-floor LP", []string{
				"Status:    " + string(res.Status),
				"Policy:    " + string(policy),
				"Floor:     " + FormatCurrency(prob.Floor()),
				"Floor met: " + fmt.Sprintf("%v", res.FloorMet),
				"Cost:      " + FormatCurrency(res.TotalCost),
				"Expiry:    " + FormatDate(expiry),
			})
			output.Println()

			rounding := app.Config.FixedFloor.LotRounding
			table := NewTable(output, "STRIKE", "LEVEL", "PREMIUM", "QUANTITY", "CONTRACTS")
			for _, label := range prob.Strikes {
				q := res.Quantities[label]
				table.AddRow(label,
					fmt.Sprintf("%.2f", prob.K[label]),
					FormatCurrency(prob.P[label]),
					fmt.Sprintf("%.4f", q),
					fmt.Sprintf("%d", rounding.Lots(q)),
				)
			}
			table.Render()
			output.Println()

			scen := NewTable(output, "SCENARIO", "RETURN", "UNHEDGED", "SHORTFALL")
			for _, s := range prob.Scenarios {
				scen.AddRow(s,
					FormatPercent(prob.R[s]),
					FormatCurrency(prob.ScenarioValue(s)),
					FormatCurrency(res.Shortfalls[s]),
				)
			}
			scen.Render()
			return nil
		},
	}
}

func newSolveLadderCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "ladder",
		Short: "Size a VIX-budgeted put ladder",
		Long: `Build the configured OTM put ladder at --spot and split the VIX budget
across the four moneyness rungs with the configured ladder solver.`,
		Example: `  hedger solve ladder --spot 4000 --vix 25
  hedger solve ladder --vix 40 --value 2500000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			in, err := app.solveInputs(cmd)
			if err != nil {
				return err
			}
			deps, err := app.deps()
			if err != nil {
				return err
			}
			ladder, err := strategy.NewVixLadder(app.Config.Ladder, deps)
			if err != nil {
				return err
			}

			v0 := in.portfolio.EquityValue() + in.portfolio.Cash()
			chain, expiry := ladder.Chain(in.day, v0, in.vix)
			cfg := app.Config.Ladder
			res := deps.LadderSolver.SolveLadder(solver.LadderProblem{
				Options:     chain,
				V0:          v0,
				S0:          in.day.Price,
				Beta:        in.portfolio.Beta(),
				TYears:      float64(cfg.ExpiryDays) / 365.25,
				Alpha:       cfg.Alpha,
				VIX:         in.vix,
				Allocations: cfg.Allocations,
				TxCostRate:  cfg.TxCostRate,
			})

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"options": chain,
					"expiry":  expiry,
					"result":  res,
				})
			}

			output.Box("VIX ladder", []string{
				"Method:  " + res.Method,
				"Budget:  " + FormatCurrency(res.Budget),
				"Cost:    " + FormatCurrency(res.TotalCost),
				"Expiry:  " + FormatDate(expiry),
			})
			output.Println()

			table := NewTable(output, "STRIKE", "OTM", "PREMIUM", "QUANTITY", "CONTRACTS")
			for j, c := range chain {
				var q float64
				if j < len(res.Quantities) {
					q = res.Quantities[j]
				}
				table.AddRow(
					fmt.Sprintf("%.2f", c.Strike),
					fmt.Sprintf("%.0f%%", c.OTM(in.day.Price)*100),
					FormatCurrency(c.Premium),
					fmt.Sprintf("%.4f", q),
					fmt.Sprintf("%d", cfg.LotRounding.Lots(q)),
				)
			}
			table.Render()
			return nil
		},
	}
}
