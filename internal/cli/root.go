package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"straddle-trader/internal/config"
	"straddle-trader/internal/logging"
	"straddle-trader/internal/metrics"
	"straddle-trader/pkg/utils"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2024-10-21"
)

// App holds the application dependencies. Config and Logger are filled in
// before any command runs.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{
		Logger:  logging.NewLogger(),
		Metrics: metrics.New(),
	}

	rootCmd := &cobra.Command{
		Use:   "straddle",
		Short: "Intraday NIFTY short straddle with hedges",
		Long: `straddle sells the ATM straddle on the index at a configured time,
buys far OTM hedges against it, shifts the straddle as spot moves and exits
on target, stop loss, manual request or session end.

Settings live in ~/.config/straddle-trader/config.toml. Run 'straddle daemon'
to trade every enabled weekday, or 'straddle run' for today only.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			dir, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			app.Config = cfg
			app.Logger = logging.NewLoggerWithConfig(cfg.LogConfig())

			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/straddle-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addAuthCommands(rootCmd, app)
	addTradingCommands(rootCmd, app)
	addDaemonCommands(rootCmd, app)
	addFeedCommands(rootCmd, app)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("straddle v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
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
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsJSON() {
				output.JSON(map[string]string{"path": dir})
			} else {
				output.Println(dir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			var days []string
			for key := range app.Config.Strategy.Days {
				days = append(days, key)
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"valid": true, "days": days})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	s := cfg.Strategy

	output.Bold("Trading")
	output.Printf("  Mode:            %s\n", cfg.Trading.Mode)
	output.Printf("  Product:         %s on %s\n", cfg.Trading.Product, cfg.Trading.Exchange)
	output.Println()

	output.Bold("Strategy")
	output.Printf("  Index:           %s (token %d)\n", s.Index, s.IndexToken)
	output.Printf("  Strike step:     %d\n", s.StrikeStep)
	output.Printf("  Lot size:        %d\n", s.QuantityPerLot)
	output.Printf("  Loop interval:   %s\n", s.LoopInterval)
	output.Printf("  Tighten shifts:  %s\n", s.SecondShiftCutoff)
	output.Printf("  Tranche delay:   %s\n", s.TrancheDelay)
	if cfg.IsPaperMode() {
		output.Printf("  Paper capital:   %s\n", utils.FormatIndianCurrency(s.DryRun.InitialCapital))
		output.Printf("  Paper margin:    %s per lot\n", utils.FormatIndianCurrency(s.DryRun.MarginPerLot))
	}
	output.Println()

	output.Bold("Days")
	for _, d := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		raw, ok := s.Days[d]
		if !ok {
			output.Dim("  %-10s not configured", d)
			continue
		}
		output.Printf("  %-10s %s  %s-%s  SL %.2f%%  TGT %.2f%%  capital %.0f%%  hedges %.1f/%.1f\n",
			d, output.OnOff(raw.Run), raw.EntryTime, raw.ExitTime,
			raw.StopLossPercent, raw.TargetPercent, raw.CapitalToTradePercent,
			raw.CEHedgePremium, raw.PEHedgePremium)
	}
	output.Println()

	output.Bold("Services")
	output.Printf("  Redis:           %s (exit key %s)\n", cfg.Redis.Addr, cfg.Redis.ManualExitKey)
	output.Printf("  HTTP server:     %s %s\n", output.OnOff(cfg.Server.Enabled), cfg.Server.Addr)
	output.Printf("  Schedule:        %s, %s\n", cfg.Schedule.Cron, cfg.Schedule.DatabasePath)
	output.Printf("  Notifications:   %s (level %s, telegram %v, webhook %v)\n",
		output.OnOff(cfg.Notifications.Enabled), cfg.Notifications.Level,
		cfg.Notifications.Telegram.Enabled, cfg.Notifications.Webhook.Enabled)
}

func errNotConfigured(what string) error {
	return fmt.Errorf("%s not configured, check credentials.toml", what)
}
