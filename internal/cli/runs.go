package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"options-hedge/internal/analyzer"
	"options-hedge/internal/store"
)

func addRunsCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect saved backtest runs",
	}
	cmd.AddCommand(newRunsListCmd(app))
	cmd.AddCommand(newRunsShowCmd(app))
	rootCmd.AddCommand(cmd)
}

func newRunsListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		Example: `  hedger runs list
  hedger runs list --strategy fixed_floor --limit 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := app.Store()
			if err != nil {
				return err
			}

			filter := store.RunFilter{}
			filter.Strategy, _ = cmd.Flags().GetString("strategy")
			filter.Symbol, _ = cmd.Flags().GetString("symbol")
			filter.Limit, _ = cmd.Flags().GetInt("limit")

			runs, err := st.ListRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(runs)
			}
			if len(runs) == 0 {
				output.Warning("No saved runs. Use --save with backtest or compare.")
				return nil
			}

			table := NewTable(output, "ID", "STRATEGY", "SYMBOL", "PERIOD", "FINAL", "RETURN", "HEDGE COST", "CREATED")
			for _, r := range runs {
				ret := 0.0
				if r.InitialValue != 0 {
					ret = r.FinalValue/r.InitialValue - 1
				}
				table.AddRow(
					TruncateString(r.ID, 8),
					r.Strategy,
					r.Symbol,
					FormatDate(r.StartDate)+" → "+FormatDate(r.EndDate),
					FormatCompact(r.FinalValue),
					output.Percent(ret),
					FormatCompact(r.TotalCost),
					r.CreatedAt.Local().Format("2006-01-02 15:04"),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().String("strategy", "", "only runs of this strategy")
	cmd.Flags().String("symbol", "", "only runs on this symbol")
	cmd.Flags().Int("limit", 20, "maximum runs to list (0 for all)")
	return cmd
}

func newRunsShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved run and its value ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := app.Store()
			if err != nil {
				return err
			}
			run, history, err := st.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"run":     run,
					"history": history,
				})
			}

			lines := []string{
				"Strategy:   " + run.Strategy,
				"Symbol:     " + run.Symbol,
				"Period:     " + FormatDate(run.StartDate) + " to " + FormatDate(run.EndDate),
				fmt.Sprintf("Days:       %d", run.Days),
				"Initial:    " + FormatCurrency(run.InitialValue),
				"Final:      " + FormatCurrency(run.FinalValue),
				"P&L:        " + output.PnL(run.FinalValue-run.InitialValue),
				"Hedge cost: " + FormatCurrency(run.TotalCost),
				fmt.Sprintf("Purchases:  %d", run.Purchases),
			}
			output.Box("Run "+run.ID, lines)

			if run.Params != "" && run.Params != "{}" {
				var params map[string]interface{}
				if err := json.Unmarshal([]byte(run.Params), &params); err == nil {
					output.Println()
					output.Println(output.BoldText("Parameters"))
					pretty, _ := json.MarshalIndent(params, "  ", "  ")
					output.Printf("  %s\n", pretty)
				}
			}

			if len(history) > 1 {
				width, _ := cmd.Flags().GetInt("width")
				output.Println()
				output.Println(analyzer.Chart(run.Strategy, historyValues(history), width, 12))
			}
			return nil
		},
	}
	cmd.Flags().Int("width", 60, "chart width")
	return cmd
}
