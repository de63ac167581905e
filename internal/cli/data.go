package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apperrors "options-hedge/internal/errors"
	"options-hedge/internal/market"
	"options-hedge/internal/store"
)

// Import kinds.
const (
	importBars   = "bars"
	importQuotes = "quotes"
)

func addDataCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Market data management",
		Long:  "Import daily index series and option quotes into the local store.",
	}
	cmd.AddCommand(newDataImportCmd(app))
	cmd.AddCommand(newDataListCmd(app))
	rootCmd.AddCommand(cmd)
}

func newDataImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import a CSV file into the store",
		Long: `Import a CSV file into the local store.

bars:   Date,Close[,VIX,RiskFree] daily index closes. VIX and rate columns
        are stored as separate series shared by every symbol.
quotes: date,exdate,strike_price,cp_flag,best_bid,best_offer option quotes
        used by the quote pricer (pricing.source = "quotes").`,
		Example: `  hedger data import spx.csv --symbol SPX
  hedger data import spx_options.csv --kind quotes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			path := args[0]

			kind, _ := cmd.Flags().GetString("kind")
			symbol, _ := cmd.Flags().GetString("symbol")
			if symbol == "" {
				symbol = app.Config.Data.Symbol
			}
			symbol = strings.ToUpper(symbol)

			st, err := app.Store()
			if err != nil {
				return err
			}

			summary := map[string]interface{}{"file": path, "kind": kind}
			dataset := kind
			switch strings.ToLower(kind) {
			case importBars:
				series, err := market.LoadCSVFile(path, symbol)
				if err != nil {
					return err
				}
				if err := st.SaveBars(ctx, symbol, series.Bars()); err != nil {
					return err
				}
				if series.HasVIX() {
					if err := st.SaveRatePoints(ctx, store.RateVIX, series.VIXPoints()); err != nil {
						return err
					}
				}
				if rates := series.RatePoints(); len(rates) > 0 {
					if err := st.SaveRatePoints(ctx, store.RateRiskFreeRate, rates); err != nil {
						return err
					}
				}
				dataset = importBars + ":" + symbol
				summary["symbol"] = symbol
				summary["bars"] = series.Len()
				summary["vix_points"] = len(series.VIXPoints())
				summary["rate_points"] = len(series.RatePoints())

			case importQuotes:
				quotes, err := market.LoadQuotesCSVFile(path)
				if err != nil {
					return err
				}
				if err := st.SaveQuotes(ctx, quotes); err != nil {
					return err
				}
				summary["quotes"] = len(quotes)

			default:
				return apperrors.NewValidationError("kind", kind, "must be bars or quotes")
			}

			if err := st.SetLastImport(dataset, time.Now()); err != nil {
				app.Logger.Warn().Err(err).Str("dataset", dataset).Msg("Failed to record import time")
			}
			app.Logger.Info().Str("dataset", dataset).Str("file", path).Msg("Import finished")

			if output.IsJSON() {
				return output.JSON(summary)
			}
			for _, key := range []string{"symbol", "bars", "vix_points", "rate_points", "quotes"} {
				if v, ok := summary[key]; ok {
					output.Printf("  %-12s %v\n", key+":", v)
				}
			}
			output.Success("✓ Imported %s", path)
			return nil
		},
	}
	cmd.Flags().String("kind", importBars, "file kind: bars or quotes")
	cmd.Flags().String("symbol", "", "symbol for bar files (default: data.symbol)")
	return cmd
}

func newDataListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored symbols",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := app.Store()
			if err != nil {
				return err
			}
			infos, err := st.ListSymbols(cmd.Context())
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(infos)
			}
			if len(infos) == 0 {
				output.Warning("No market data stored. Run 'hedger data import <file.csv>' first.")
				return nil
			}

			table := NewTable(output, "SYMBOL", "BARS", "FIRST", "LAST", "IMPORTED")
			for _, info := range infos {
				imported := "-"
				if at := st.GetLastImport(importBars + ":" + info.Symbol); !at.IsZero() {
					imported = at.Local().Format("2006-01-02 15:04")
				}
				table.AddRow(info.Symbol, fmt.Sprintf("%d", info.Bars), FormatDate(info.First), FormatDate(info.Last), imported)
			}
			table.Render()
			return nil
		},
	}
}
