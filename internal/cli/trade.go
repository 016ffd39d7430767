package cli

import (
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"straddle-trader/internal/api"
	"straddle-trader/internal/scheduler"
	"straddle-trader/internal/strategy"
	"straddle-trader/pkg/utils"
)

// addTradingCommands adds the single-session and manual exit commands.
func addTradingCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newExitCmd(app))
}

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Trade one session now",
		Long: `Run today's straddle session in the foreground.

The session waits for the weekday's entry time, trades until target, stop
loss, manual exit or the exit time, then flattens every open leg. Ctrl+C
flattens and stops.

The market feed ('straddle feed') must be writing prices to Redis.`,
		Example: `  straddle run
  straddle run --dry-run
  straddle run --dry-run --weekday thursday`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
				app.Config.Trading.Mode = "paper"
			}

			weekday := utils.NowIST().Weekday()
			if raw, _ := cmd.Flags().GetString("weekday"); raw != "" {
				d, err := utils.ParseWeekday(raw)
				if err != nil {
					return err
				}
				weekday = d
			}
			day, err := app.Config.Day(weekday)
			if err != nil {
				output.Error("No settings for %s: %v", utils.WeekdayKey(weekday), err)
				return err
			}
			if !day.Run {
				output.Warning("%s is not enabled in config.toml", utils.WeekdayKey(weekday))
				return nil
			}

			cache, err := app.openCache(ctx)
			if err != nil {
				output.Error("Price cache unavailable: %v", err)
				return err
			}
			defer cache.Close()

			console := cmd.OutOrStdout()
			if output.IsJSON() {
				console = nil
			}
			session, env, err := app.newSession(ctx, cache, day, app.notifier(console))
			if err != nil {
				output.Error("Could not prepare session: %v", err)
				return err
			}

			if !output.IsJSON() {
				output.Bold("Session %s", session.ID())
				output.Printf("  Mode:    %s\n", env.mode)
				output.Printf("  Expiry:  %s\n", env.expiry.Format("02 Jan 2006"))
				output.Printf("  Window:  %s - %s\n", day.Entry, day.Exit)
				output.Println()
			}

			status := &sessionStatus{}
			status.start(session)

			var g errgroup.Group
			stopServer := func() {}
			if app.Config.Server.Enabled {
				health := app.healthChecks(cache)
				srv := api.NewServer(api.Config{
					Addr:          app.Config.Server.Addr,
					ManualExitKey: app.Config.Redis.ManualExitKey,
				}, api.Deps{
					Sessions: status,
					Flags:    cache,
					Metrics:  app.Metrics,
					Health:   health,
					Logger:   app.Logger,
				})
				serverCtx, cancelServer := context.WithCancel(context.WithoutCancel(ctx))
				stopServer = cancelServer
				g.Go(func() error {
					if err := srv.Run(serverCtx); err != nil {
						app.Logger.Error().Err(err).Msg("HTTP server failed")
					}
					return nil
				})
			}

			status.finish(session.Run(ctx))
			stopServer()
			_ = g.Wait()

			res, _ := status.Last()
			if env.paper != nil && !output.IsJSON() {
				output.Dim("%d paper fills", len(env.paper.Fills()))
			}
			return printResult(output, res)
		},
	}

	cmd.Flags().Bool("dry-run", false, "fill orders at cached prices instead of sending them to Kite")
	cmd.Flags().String("weekday", "", "use another weekday's settings (default: today)")

	return cmd
}

func newExitCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "exit",
		Short: "Ask the running session to exit",
		Long: `Set the manual exit flag in Redis. The running session closes every
leg on its next loop iteration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cache, err := app.openCache(ctx)
			if err != nil {
				output.Error("Price cache unavailable: %v", err)
				return err
			}
			defer cache.Close()

			key := app.Config.Redis.ManualExitKey
			if err := cache.SetFlag(ctx, key, true); err != nil {
				output.Error("Could not set %s: %v", key, err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"status": "exit requested", "key": key})
			}
			output.Success("✓ Exit requested (%s)", key)
			return nil
		},
	}
}

func printResult(output *Output, res strategy.Result) error {
	snap := res.Snapshot
	if output.IsJSON() {
		payload := map[string]interface{}{
			"session_id": res.SessionID,
			"snapshot":   snap,
		}
		if res.Err != nil {
			payload["error"] = res.Err.Error()
		}
		if err := output.JSON(payload); err != nil {
			return err
		}
		return res.Err
	}

	output.Println()
	output.Bold("Session %s finished", res.SessionID)
	output.Printf("  State:     %s\n", snap.State)
	if snap.ExitReason != "" {
		output.Printf("  Exit:      %s\n", strings.ToLower(string(snap.ExitReason)))
	}
	if snap.Strike > 0 {
		output.Printf("  Strike:    %d, %d lots\n", snap.Strike, snap.Lots)
	}
	output.Printf("  PnL:       %s\n", output.FormatPnL(snap.PnL.Total))
	if res.Err != nil {
		output.Error("  Error:     %v", res.Err)
	}
	return res.Err
}

// sessionStatus exposes a single foreground session to the HTTP server.
type sessionStatus struct {
	mu      sync.RWMutex
	current *strategy.Session
	last    *strategy.Result
}

func (s *sessionStatus) start(session *strategy.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = session
}

func (s *sessionStatus) finish(res strategy.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.last = &res
}

func (s *sessionStatus) Current() scheduler.Runner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	return s.current
}

func (s *sessionStatus) Last() (strategy.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return strategy.Result{}, false
	}
	return *s.last, true
}

func (s *sessionStatus) Skipped() string { return "" }

var _ api.Sessions = (*sessionStatus)(nil)
