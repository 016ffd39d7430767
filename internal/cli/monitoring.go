package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"straddle-trader/internal/broker"
	"straddle-trader/internal/feed"
	"straddle-trader/internal/models"
	"straddle-trader/internal/strategy"
	"straddle-trader/pkg/utils"
)

// addFeedCommands adds the market feed and cache maintenance commands.
func addFeedCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newFeedCmd(app))
	rootCmd.AddCommand(newCleanupCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
}

func newFeedCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Stream index and option prices into Redis",
		Long: `Connect the Kite ticker, wait for the first index tick, then subscribe
the option chain around ATM for the current weekly expiry. Every tick is
written to Redis under its symbol.

Stale keys from earlier days are removed first unless --keep is given.`,
		Example: `  straddle feed
  straddle feed --otm 20 --itm 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			z, err := app.connectKite(ctx)
			if err != nil {
				output.Error("Kite login required: %v", err)
				return err
			}
			resolver, err := broker.LoadInstrumentResolver(ctx, z, app.Config.Strategy.Index, utils.NowIST())
			if err != nil {
				output.Error("Could not load instruments: %v", err)
				return err
			}

			cache, err := app.openCache(ctx)
			if err != nil {
				output.Error("Price cache unavailable: %v", err)
				return err
			}
			defer cache.Close()

			if keep, _ := cmd.Flags().GetBool("keep"); !keep {
				n, err := feed.Cleanup(ctx, cache, app.Config.Strategy.Index)
				if err != nil {
					return err
				}
				app.Logger.Info().Int("keys", n).Msg("Removed stale prices")
			}

			otm, _ := cmd.Flags().GetInt("otm")
			itm, _ := cmd.Flags().GetInt("itm")
			if !cmd.Flags().Changed("otm") {
				otm = app.Config.Strategy.Feed.OTMStrikes
			}
			if !cmd.Flags().Changed("itm") {
				itm = app.Config.Strategy.Feed.ITMStrikes
			}

			ticker := broker.NewZerodhaTicker(broker.ZerodhaTickerConfig{
				APIKey:      z.APIKey(),
				AccessToken: z.AccessToken(),
				Logger:      app.Logger,
			})
			f := feed.New(ticker, cache, resolver, feed.Options{
				Index:      app.Config.Strategy.Index,
				IndexToken: app.Config.Strategy.IndexToken,
				StrikeStep: app.Config.Strategy.StrikeStep,
				OTMStrikes: otm,
				ITMStrikes: itm,
				Logger:     app.Logger,
				Metrics:    app.Metrics,
			})

			if !output.IsJSON() {
				if !utils.IsMarketHours(utils.NowIST()) {
					output.Warning("Market is closed, no ticks until 09:15 IST")
				}
				output.Success("✓ Feed starting")
				output.Printf("  Expiry:  %s (%d contracts)\n", resolver.Expiry().Format("02 Jan 2006"), resolver.Len())
				output.Printf("  Strikes: %d OTM, %d ITM per side\n", otm, itm)
			}
			if err := f.Run(ctx); err != nil && ctx.Err() == nil {
				output.Error("Feed stopped: %v", err)
				return err
			}
			output.Info("Feed stopped")
			return nil
		},
	}

	cmd.Flags().Int("otm", 15, "OTM strikes per side, counting ATM")
	cmd.Flags().Int("itm", 10, "ITM strikes per side")
	cmd.Flags().Bool("keep", false, "keep existing prices in Redis")

	return cmd
}

func newCleanupCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete the index's cached prices from Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			cache, err := app.openCache(ctx)
			if err != nil {
				output.Error("Price cache unavailable: %v", err)
				return err
			}
			defer cache.Close()

			n, err := feed.Cleanup(ctx, cache, app.Config.Strategy.Index)
			if err != nil {
				output.Error("Cleanup failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int{"deleted": n})
			}
			output.Success("✓ Deleted %d %s keys", n, app.Config.Strategy.Index)
			return nil
		},
	}
}

type statusResponse struct {
	Running   bool               `json:"running"`
	SessionID string             `json:"session_id"`
	Session   *strategy.Snapshot `json:"session"`
	Last      *struct {
		SessionID string            `json:"session_id"`
		Snapshot  strategy.Snapshot `json:"snapshot"`
		Error     string            `json:"error"`
	} `json:"last"`
	Skipped string `json:"skipped"`
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running session from the daemon's HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			addr := app.Config.Server.Addr
			if strings.HasPrefix(addr, ":") {
				addr = "127.0.0.1" + addr
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/status", nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				output.Error("Daemon not reachable at %s: %v", addr, err)
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("status: HTTP %d", resp.StatusCode)
			}

			var st statusResponse
			if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
				return fmt.Errorf("decoding status: %w", err)
			}
			if output.IsJSON() {
				return output.JSON(st)
			}

			if st.Running && st.Session != nil {
				s := st.Session
				output.Bold("Session %s", st.SessionID)
				output.Printf("  State:   %s\n", s.State)
				if s.Strike > 0 {
					output.Printf("  Strike:  %d, %d lots (%d pending)\n", s.Strike, s.Lots, s.RemainingLots)
					output.Printf("  Target:  %s  Stop: %s\n", utils.FormatIndianCurrency(s.Target), utils.FormatIndianCurrency(s.StopLoss))
					output.Printf("  PnL:     %s (realized %s)\n", output.FormatPnL(s.PnL.Total), utils.FormatPnL(s.PnL.Realized))
				}
				for _, group := range [][]models.Instrument{s.Straddle, s.Hedge} {
					for i := range group {
						output.Printf("  %s\n", group[i].String())
					}
				}
			} else {
				output.Warning("No session running")
				if st.Skipped != "" {
					output.Dim("  Skipped today: %s", st.Skipped)
				}
			}
			if st.Last != nil {
				output.Println()
				output.Bold("Last session %s", st.Last.SessionID)
				output.Printf("  Exit:    %s\n", st.Last.Snapshot.ExitReason)
				output.Printf("  PnL:     %s\n", output.FormatPnL(st.Last.Snapshot.PnL.Total))
				if st.Last.Error != "" {
					output.Error("  Error:   %s", st.Last.Error)
				}
			}
			return nil
		},
	}
}
