// Package cli provides the command-line interface for the backtester.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"options-hedge/internal/config"
	"options-hedge/internal/logging"
	"options-hedge/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies. Config and Logger are set before
// any command runs; the store is opened on first use.
type App struct {
	Config    config.Config
	ConfigDir string
	Logger    zerolog.Logger

	store store.DataStore
}

// Store opens the SQLite store at the configured path on first call.
func (a *App) Store() (store.DataStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := store.NewSQLiteStore(a.Config.Data.DBPath)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("path", a.Config.Data.DBPath).Msg("SQLite store initialized")
	a.store = s
	return s, nil
}

// Close releases the store if it was opened.
func (a *App) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close store")
		}
		a.store = nil
	}
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "hedger",
		Short: "Options hedge backtester",
		Long: `hedger backtests portfolio insurance strategies built from protective puts.

It replays a daily index series, lets a hedging strategy buy puts, exercises
them at expiry and reports the resulting value ledger. Strategies range from
fixed-schedule rolls to LP-sized floors and VIX-budgeted put ladders.

Use 'hedger <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}

			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.Logging.Level = "debug"
			}
			app.Config = cfg
			app.ConfigDir = dir
			app.Logger = logging.NewLoggerWithConfig(cfg.Logging)
			cmd.SetContext(logging.WithLogger(cmd.Context(), app.Logger))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/options-hedge)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addBacktestCommands(rootCmd, app)
	addSolveCommands(rootCmd, app)
	addDataCommands(rootCmd, app)
	addRunsCommands(rootCmd, app)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("hedger v%s\n", Version)
			output.Println(output.DimText("Build date: " + BuildDate))
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := config.Path(app.ConfigDir)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path, "db_path": app.Config.Data.DBPath})
			}
			output.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load already validated; this re-checks after flag overrides.
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg config.Config) {
	output.Println(output.BoldText("Portfolio"))
	output.Printf("  Initial value:    %s\n", FormatCurrency(cfg.Portfolio.InitialValue))
	output.Printf("  Beta:             %.2f\n", cfg.Portfolio.Beta)
	output.Printf("  Cash:             %s\n", FormatCurrency(cfg.Portfolio.Cash))
	output.Printf("  Option spread:    %.2f%%\n", cfg.Portfolio.OptionBidAskSpread*100)
	output.Printf("  Equity tx cost:   %.3f%%\n", cfg.Portfolio.EquityTransactionCost*100)
	output.Printf("  Margin rate:      %.2f%%\n", cfg.Portfolio.MarginRate*100)
	output.Println()

	output.Println(output.BoldText("Strategies"))
	q := cfg.Quarterly
	output.Printf("  quarterly:        every %dd, strike %.2f, expiry %dd\n", q.HedgeInterval, q.StrikeRatio, q.ExpiryDays)
	c := cfg.Conditional
	output.Printf("  conditional:      %dd drop <= %.1f%% or vol > %.1fx, strike %.2f\n",
		c.LookbackDays, c.DropThreshold*100, c.VolMultiplier, c.StrikeRatio)
	f := cfg.FixedFloor
	output.Printf("  fixed_floor:      loss <= %.0f%%, %d strikes, %d scenarios, %s\n",
		f.FloorRatio*100, len(f.StrikeRatios), len(f.Scenarios), f.ShortfallPolicy)
	l := cfg.Ladder
	output.Printf("  vix_ladder:       OTM %.0f%%-%.0f%%, density %.2f, rounding %s\n",
		l.MinOTM*100, l.MaxOTM*100, l.StrikeDensity, l.LotRounding)
	h := cfg.FloorHedge
	output.Printf("  floor_hedge:      floor %.2f at %.0f%% shock, strike %.2f\n",
		h.FloorRatio, h.DownsideScenario*100, h.StrikeRatio)
	output.Println()

	output.Println(output.BoldText("Engine"))
	output.Printf("  Pricing:          %s\n", cfg.Pricing.Source)
	output.Printf("  LP backend:       %s\n", cfg.Solver.Backend)
	output.Printf("  Ladder solver:    %s\n", cfg.Solver.Ladder)
	output.Printf("  Database:         %s\n", cfg.Data.DBPath)
	output.Printf("  Symbol:           %s\n", cfg.Data.Symbol)
	output.Printf("  Benchmark:        %s\n", cfg.Analysis.Benchmark)
	output.Printf("  Log level:        %s\n", cfg.Logging.Level)
}

