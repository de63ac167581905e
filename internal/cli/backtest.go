package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"options-hedge/internal/analyzer"
	"options-hedge/internal/config"
	apperrors "options-hedge/internal/errors"
	"options-hedge/internal/logging"
	"options-hedge/internal/market"
	"options-hedge/internal/models"
	"options-hedge/internal/pricing"
	"options-hedge/internal/simulation"
	"options-hedge/internal/solver"
	"options-hedge/internal/store"
	"options-hedge/internal/strategy"
	"options-hedge/pkg/utils"
)

func addBacktestCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newBacktestCmd(app))
	rootCmd.AddCommand(newCompareCmd(app))
}

// addMarketFlags registers the flags that select the market series.
func addMarketFlags(cmd *cobra.Command) {
	cmd.Flags().String("data", "", "CSV file with Date,Close[,VIX,RiskFree] columns (default: read the store)")
	cmd.Flags().String("symbol", "", "symbol to load (default: data.symbol)")
	cmd.Flags().String("start", "", "first date, YYYY-MM-DD")
	cmd.Flags().String("end", "", "last date, YYYY-MM-DD")
	cmd.Flags().Bool("save", false, "persist the runs to the store")
	cmd.Flags().Bool("chart", false, "draw an ASCII value chart per run")
}

func parseDateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError(name, raw, "want YYYY-MM-DD")
	}
	return t, nil
}

// loadMarket reads the series named by the market flags, from a CSV file
// when --data is set and from the store otherwise.
func (a *App) loadMarket(ctx context.Context, cmd *cobra.Command) (*market.Series, error) {
	symbol, _ := cmd.Flags().GetString("symbol")
	if symbol == "" {
		symbol = a.Config.Data.Symbol
	}
	start, err := parseDateFlag(cmd, "start")
	if err != nil {
		return nil, err
	}
	end, err := parseDateFlag(cmd, "end")
	if err != nil {
		return nil, err
	}

	if path, _ := cmd.Flags().GetString("data"); path != "" {
		series, err := market.LoadCSVFile(path, symbol)
		if err != nil {
			return nil, err
		}
		if start.IsZero() && end.IsZero() {
			return series, nil
		}
		return series.Between(start, end)
	}

	st, err := a.Store()
	if err != nil {
		return nil, err
	}
	return st.LoadSeries(ctx, symbol, store.DateRange{Start: start, End: end})
}

// deps builds the strategy collaborators selected by the configuration.
func (a *App) deps() (strategy.Deps, error) {
	d := strategy.Deps{Logger: a.Logger}

	if a.Config.Solver.Backend == config.BackendSimplex {
		d.Backend = &solver.SimplexBackend{Tolerance: a.Config.Solver.Tolerance}
	}

	switch a.Config.Solver.Ladder {
	case config.LadderGreedy:
		d.LadderSolver = solver.GreedyLadderSolver{}
	default:
		d.LadderSolver = solver.NewLadderSolver(d.Backend)
	}

	switch a.Config.Pricing.Source {
	case config.PricingQuotes:
		st, err := a.Store()
		if err != nil {
			return d, err
		}
		d.Pricer = pricing.NewQuotePricer(st,
			pricing.WithStrikeTolerance(a.Config.Pricing.StrikeTolerance),
			pricing.WithExpiryTolerance(a.Config.Pricing.ExpiryToleranceDays),
			pricing.WithLogger(a.Logger),
		)
	default:
		d.Pricer = pricing.NewSyntheticPricer()
	}
	return d, nil
}

// Report is the outcome of a backtest or comparison.
type Report struct {
	Symbol    string            `json:"symbol"`
	Start     time.Time         `json:"start"`
	End       time.Time         `json:"end"`
	Benchmark string            `json:"benchmark"`
	Rows      []ReportRow       `json:"rows"`
	RunIDs    map[string]string `json:"run_ids,omitempty"`
	Elapsed   time.Duration     `json:"elapsed"`

	results map[string]*simulation.Result
}

// ReportRow joins the analyzer metrics with the hedging totals of a run.
type ReportRow struct {
	analyzer.Row
	TotalCost float64 `json:"total_cost"`
	Purchases int     `json:"purchases"`
}

// MarshalJSON writes undefined metrics as null.
func (r ReportRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"strategy":     r.Strategy,
		"final_value":  r.FinalValue,
		"total_return": finite(r.TotalReturn),
		"beta":         finite(r.Beta),
		"up_capture":   finite(r.UpCapture),
		"down_capture": finite(r.DownCapture),
		"sortino":      finite(r.Sortino),
		"calmar":       finite(r.Calmar),
		"max_drawdown": finite(r.MaxDrawdown),
		"sharpe":       finite(r.Sharpe),
		"total_cost":   r.TotalCost,
		"purchases":    r.Purchases,
	})
}

func finite(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// backtest runs names plus the benchmark over series and analyzes them.
func (a *App) backtest(ctx context.Context, series *market.Series, names []string, save bool) (*Report, error) {
	started := time.Now()
	benchmark := a.Config.Analysis.Benchmark

	deps, err := a.deps()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var specs []simulation.Spec
	for _, name := range append([]string{benchmark}, names...) {
		if seen[name] {
			continue
		}
		seen[name] = true
		s, err := strategy.New(name, a.Config.Config, deps)
		if err != nil {
			return nil, err
		}
		specs = append(specs, simulation.Spec{Name: name, Strategy: s, Portfolio: a.Config.Portfolio})
	}

	results, err := simulation.Compare(ctx, series, specs)
	if err != nil {
		return nil, err
	}

	histories := make(map[string][]models.HistoryRow, len(results))
	for name, res := range results {
		histories[name] = res.History
	}
	an, err := analyzer.FromHistories(benchmark, histories, analyzer.WithRiskFreeRate(a.Config.Analysis.RiskFreeRate))
	if err != nil {
		return nil, err
	}

	bars := series.Bars()
	report := &Report{
		Symbol:    series.Symbol(),
		Start:     bars[0].Date,
		End:       bars[len(bars)-1].Date,
		Benchmark: benchmark,
		results:   results,
	}
	for _, row := range an.Summary() {
		st := results[row.Strategy].FinalState
		report.Rows = append(report.Rows, ReportRow{Row: row, TotalCost: st.CumulativeCost, Purchases: st.Purchases})
	}

	if save {
		if report.RunIDs, err = a.saveRuns(ctx, report); err != nil {
			return nil, err
		}
	}
	report.Elapsed = time.Since(started)
	return report, nil
}

// saveRuns persists every result, retrying on SQLite lock contention.
func (a *App) saveRuns(ctx context.Context, report *Report) (map[string]string, error) {
	st, err := a.Store()
	if err != nil {
		return nil, err
	}

	retry := utils.DefaultRetryConfig()
	retry.RetryIf = store.IsBusy

	ids := make(map[string]string, len(report.results))
	for _, row := range report.Rows {
		res := report.results[row.Strategy]
		run := &store.RunRecord{
			Strategy:     row.Strategy,
			Symbol:       report.Symbol,
			StartDate:    report.Start,
			EndDate:      report.End,
			Days:         len(res.History),
			InitialValue: a.Config.Portfolio.InitialValue,
			FinalValue:   res.FinalValue(),
			TotalCost:    res.FinalState.CumulativeCost,
			Purchases:    res.FinalState.Purchases,
			Params:       strategyParams(a.Config, row.Strategy),
		}
		err := utils.Retry(ctx, retry, func() error {
			return st.SaveRun(ctx, run, res.History)
		})
		if err != nil {
			return nil, apperrors.Wrapf(err, "saving %s run", row.Strategy)
		}
		runLogger := logging.WithRun(a.Logger, run.ID)
		runLogger.Debug().Str("strategy", row.Strategy).Msg("Run saved")
		ids[row.Strategy] = run.ID
	}
	return ids, nil
}

// strategyParams returns the JSON of the config section a strategy reads.
func strategyParams(cfg config.Config, name string) string {
	var section interface{}
	switch name {
	case "quarterly":
		section = cfg.Quarterly
	case "conditional":
		section = cfg.Conditional
	case "fixed_floor":
		section = cfg.FixedFloor
	case "vix_ladder":
		section = cfg.Ladder
	case "floor_hedge":
		section = cfg.FloorHedge
	default:
		return "{}"
	}
	data, err := json.Marshal(section)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func newBacktestCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Backtest one hedging strategy against the benchmark",
		Long: `Replay the market series with one hedging strategy and the benchmark
(analysis.benchmark, the unhedged portfolio by default) and report
return, beta, capture ratios, drawdown and risk-adjusted metrics.`,
		Example: `  hedger backtest --strategy quarterly --data spx.csv
  hedger backtest --strategy vix_ladder --start 2020-01-01 --end 2020-12-31 --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("strategy")
			if name == "" {
				return apperrors.NewValidationError("strategy", name, "required")
			}
			return runReport(cmd, app, []string{name})
		},
	}
	cmd.Flags().String("strategy", "", "strategy name (quarterly, conditional, fixed_floor, vix_ladder, floor_hedge, none)")
	addMarketFlags(cmd)
	return cmd
}

func newCompareCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Backtest several strategies side by side",
		Long: `Run each strategy on its own portfolio over the same market series
concurrently and report their metrics against the benchmark.`,
		Example: `  hedger compare --data spx.csv
  hedger compare --strategies quarterly,fixed_floor --chart`,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, _ := cmd.Flags().GetStringSlice("strategies")
			if len(names) == 0 {
				names = strategy.Names()
			}
			return runReport(cmd, app, names)
		},
	}
	cmd.Flags().StringSlice("strategies", nil, "strategies to compare (default: all)")
	addMarketFlags(cmd)
	return cmd
}

func runReport(cmd *cobra.Command, app *App, names []string) error {
	ctx := cmd.Context()
	output := NewOutput(cmd)

	series, err := app.loadMarket(ctx, cmd)
	if err != nil {
		return err
	}
	save, _ := cmd.Flags().GetBool("save")
	report, err := app.backtest(ctx, series, names, save)
	if err != nil {
		return err
	}

	if output.IsJSON() {
		return output.JSON(report)
	}
	renderReport(output, report)

	if chart, _ := cmd.Flags().GetBool("chart"); chart {
		names := make([]string, 0, len(report.results))
		for name := range report.results {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			output.Println()
			output.Println(analyzer.Chart(name, historyValues(report.results[name].History), 60, 12))
		}
	}
	return nil
}

func historyValues(rows []models.HistoryRow) []float64 {
	values := make([]float64, len(rows))
	for i, r := range rows {
		values[i] = r.Value
	}
	return values
}

func renderReport(output *Output, report *Report) {
	output.Box(fmt.Sprintf("%s %s to %s", report.Symbol, FormatDate(report.Start), FormatDate(report.End)), []string{
		"Benchmark: " + report.Benchmark,
		"Runs:      " + strconv.Itoa(len(report.Rows)),
		"Elapsed:   " + FormatDuration(report.Elapsed),
	})
	output.Println()

	table := NewTable(output, "STRATEGY", "FINAL", "RETURN", "BETA", "UP", "DOWN", "SORTINO", "CALMAR", "MAX DD", "SHARPE", "HEDGE COST", "BUYS")
	for _, r := range report.Rows {
		table.AddRow(
			r.Strategy,
			FormatCompact(r.FinalValue),
			output.Percent(r.TotalReturn),
			FormatRatio(r.Beta),
			FormatRatio(r.UpCapture),
			FormatRatio(r.DownCapture),
			FormatRatio(r.Sortino),
			FormatRatio(r.Calmar),
			FormatPercent(r.MaxDrawdown),
			FormatRatio(r.Sharpe),
			FormatCompact(r.TotalCost),
			strconv.Itoa(r.Purchases),
		)
	}
	table.Render()

	rows := make([]analyzer.Row, len(report.Rows))
	for i, r := range report.Rows {
		rows[i] = r.Row
	}
	if best, ok := analyzer.Best(rows, func(r analyzer.Row) float64 { return r.Sharpe }); ok {
		output.Println()
		output.Info("Best Sharpe: %s (%s)", best.Strategy, FormatRatio(best.Sharpe))
	}
	saved := make([]string, 0, len(report.RunIDs))
	for name := range report.RunIDs {
		saved = append(saved, name)
	}
	sort.Strings(saved)
	for _, name := range saved {
		output.Println(output.DimText(fmt.Sprintf("saved %s as %s", name, report.RunIDs[name])))
	}
}
