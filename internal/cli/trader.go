package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"straddle-trader/internal/api"
	"straddle-trader/internal/config"
	"straddle-trader/internal/scheduler"
	"straddle-trader/internal/store"
	"straddle-trader/pkg/utils"
)

// addDaemonCommands adds the scheduled daemon and the schedule table
// commands.
func addDaemonCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newDaemonCmd(app))
	rootCmd.AddCommand(newScheduleCmd(app))
}

func (a *App) openStore() (*store.SQLiteStore, error) {
	path := a.Config.Schedule.DatabasePath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	return store.NewSQLiteStore(path)
}

func newDaemonCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Trade every enabled weekday on a schedule",
		Long: `Start the scheduler. Each weekday at the configured cron time it reads
the dashboard power switch and run table, then trades that day's session if
both allow it. The HTTP server serves /healthz, /status, /exit and /metrics
while the daemon runs.`,
		Example: `  straddle daemon
  straddle daemon --now`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			st, err := app.openStore()
			if err != nil {
				output.Error("Schedule store unavailable: %v", err)
				return err
			}
			defer st.Close()

			cache, err := app.openCache(ctx)
			if err != nil {
				output.Error("Price cache unavailable: %v", err)
				return err
			}
			defer cache.Close()

			notifier := app.notifier(nil)
			factory := func(ctx context.Context, day config.Day) (scheduler.Runner, error) {
				session, _, err := app.newSession(ctx, cache, day, notifier)
				if err != nil {
					return nil, err
				}
				return session, nil
			}

			sched, err := scheduler.New(ctx, app.Config, st, factory, scheduler.Options{
				Spec:   app.Config.Schedule.Cron,
				Logger: app.Logger,
			})
			if err != nil {
				return err
			}
			sched.Start()

			g, gctx := errgroup.WithContext(ctx)
			if app.Config.Server.Enabled {
				health := app.healthChecks(cache)
				health.Register("schedule", api.PingCheck(st.Ping, 0))
				srv := api.NewServer(api.Config{
					Addr:          app.Config.Server.Addr,
					ManualExitKey: app.Config.Redis.ManualExitKey,
				}, api.Deps{
					Sessions: sched,
					Flags:    cache,
					Metrics:  app.Metrics,
					Health:   health,
					Logger:   app.Logger,
				})
				g.Go(func() error { return srv.Run(gctx) })
			}
			if now, _ := cmd.Flags().GetBool("now"); now {
				g.Go(func() error {
					if err := sched.RunDay(gctx); err != nil {
						app.Logger.Error().Err(err).Msg("Session failed")
					}
					return nil
				})
			}

			if !output.IsJSON() {
				output.Success("✓ Daemon started")
				output.Printf("  Next launch: %s\n", sched.Next().In(utils.IndiaLocation).Format("Mon 02 Jan 15:04:05"))
				if app.Config.Server.Enabled {
					output.Printf("  HTTP:        %s\n", app.Config.Server.Addr)
				}
			}

			<-ctx.Done()
			app.Logger.Info().Msg("Shutdown requested, waiting for the running session to flatten")

			// A running job returns once its session has closed every leg.
			select {
			case <-sched.Stop().Done():
			case <-time.After(2 * time.Minute):
				app.Logger.Error().Msg("Timed out waiting for session to stop")
			}
			if err := g.Wait(); err != nil {
				return err
			}
			output.Info("Daemon stopped")
			return nil
		},
	}

	cmd.Flags().Bool("now", false, "also run today's session immediately")

	return cmd
}

func newScheduleCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show or edit the dashboard schedule",
		Long: `The schedule database holds the power switch and one row per weekday.
A weekday runs only when power is on, its row is enabled and config.toml
enables it too. A row's time overrides the configured entry time.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the power switch and run table",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := context.Background()
			st, err := app.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			on, err := st.Power(ctx)
			if err != nil {
				return err
			}
			rows, err := st.RunConfigs(ctx)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				type row struct {
					Day  string `json:"day"`
					Run  bool   `json:"run"`
					Time string `json:"time,omitempty"`
				}
				out := struct {
					Power bool  `json:"power"`
					Days  []row `json:"days"`
				}{Power: on}
				for _, r := range rows {
					rr := row{Day: utils.WeekdayKey(r.Day), Run: r.Run}
					if r.Time != nil {
						rr.Time = r.Time.String()
					}
					out.Days = append(out.Days, rr)
				}
				return output.JSON(out)
			}

			output.Printf("Power: %s\n\n", output.OnOff(on))
			for _, r := range rows {
				entry := "config"
				if r.Time != nil {
					entry = r.Time.String()
				}
				output.Printf("  %-10s %-4s entry %s\n", utils.WeekdayKey(r.Day), output.OnOff(r.Run), entry)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "power <on|off>",
		Short:     "Switch the system on or off",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := app.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			on := args[0] == "on"
			if err := st.SetPower(context.Background(), on); err != nil {
				return err
			}
			output.Success("✓ Power %s", args[0])
			return nil
		},
	})

	setCmd := &cobra.Command{
		Use:   "set <weekday>",
		Short: "Enable or disable a weekday and override its entry time",
		Example: `  straddle schedule set thursday --run
  straddle schedule set friday --run --time 10:15
  straddle schedule set monday --run=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			day, err := utils.ParseWeekday(args[0])
			if err != nil {
				return err
			}
			run, _ := cmd.Flags().GetBool("run")
			ds := store.DaySchedule{Day: day, Run: run}
			if raw, _ := cmd.Flags().GetString("time"); raw != "" {
				t, err := utils.ParseClock(raw)
				if err != nil {
					return err
				}
				ds.Time = &t
			}

			st, err := app.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.UpdateRunConfig(context.Background(), ds); err != nil {
				output.Error("%v", err)
				return err
			}
			output.Success("✓ %s updated", utils.WeekdayKey(day))
			return nil
		},
	}
	setCmd.Flags().Bool("run", true, "run on this weekday")
	setCmd.Flags().String("time", "", "entry time HH:MM (empty clears the override)")
	cmd.AddCommand(setCmd)

	return cmd
}
