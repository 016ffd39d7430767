package strategy

import (
	"context"
	"fmt"
	"time"

	"straddle-trader/internal/models"
	"straddle-trader/internal/notify"
	"straddle-trader/internal/trading"
)

// exit closes every open leg, straddle first and hedges after, then stops
// the monitor. Closing continues past a failed order so as much as possible
// is flattened; the first failure is returned.
func (c *Controller) exit(ctx context.Context, reason trading.ExitReason) error {
	if c.State() == StateExited {
		return nil
	}
	c.logger.Info().Str("reason", string(reason)).Msg("Exiting session")

	c.mu.RLock()
	legs := append(c.straddle.Legs(), c.hedge.Legs()...)
	legs = append(legs, c.detached...)
	realized := c.realized
	c.mu.RUnlock()

	var firstErr error
	for _, leg := range legs {
		price, perr := c.market.Price(ctx, leg.Symbol())
		if err := c.closeLeg(ctx, leg); err != nil {
			c.logger.Error().Err(err).Str("symbol", leg.Symbol()).Msg("Failed to close leg")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if perr != nil {
			c.logger.Warn().Err(perr).Str("symbol", leg.Symbol()).Msg("No exit price, PnL for leg not realized")
			continue
		}
		realized += trading.LegPnL(leg.EntryPrice, price, leg.Action, leg.LotSize)
	}
	realized = trading.Round2(realized)

	c.monitor.Stop()
	c.monitor.Deregister(c.handle)

	c.mu.Lock()
	c.realized = realized
	c.detached = nil
	c.registered = false
	c.state = StateExited
	c.exitReason = reason
	if firstErr == nil {
		c.pnl = trading.Breakdown{Realized: realized, Total: realized}
	}
	pnl := c.pnl
	c.mu.Unlock()

	c.metrics.Exited(string(reason))
	c.metrics.SetPnL(pnl.Total, pnl.Realized)
	c.logger.Info().
		Str("reason", string(reason)).
		Float64("pnl", pnl.Total).
		Int("lots", c.Lots()).
		Msg("Session exited")
	c.notify(ctx, notify.Exit(string(reason), pnl.Total))
	return firstErr
}

// fail flattens after a fatal error and records it as the session's cause.
func (c *Controller) fail(ctx context.Context, stage string, err error) error {
	err = fmt.Errorf("%s: %w", stage, err)
	c.logger.Error().Err(err).Msg("Fatal strategy error, flattening")

	c.mu.Lock()
	c.cause = err
	c.mu.Unlock()
	c.notify(ctx, notify.Error(err, stage))

	if ferr := c.exit(ctx, trading.ExitReasonError); ferr != nil {
		c.logger.Error().Err(ferr).Msg("Flatten incomplete")
	}
	return err
}

// Snapshot is a point-in-time view of the controller for status reporting.
type Snapshot struct {
	State          State               `json:"state"`
	Strike         int                 `json:"strike"`
	Phase          string              `json:"phase,omitempty"`
	Lots           int                 `json:"lots"`
	RemainingLots  int                 `json:"remaining_lots"`
	TrancheDone    bool                `json:"tranche_done"`
	InitialCapital float64             `json:"initial_capital"`
	Target         float64             `json:"target"`
	StopLoss       float64             `json:"stop_loss"`
	PnL            trading.Breakdown   `json:"pnl"`
	Straddle       []models.Instrument `json:"straddle"`
	Hedge          []models.Instrument `json:"hedge"`
	EntryAt        time.Time           `json:"entry_at,omitempty"`
	ExitReason     trading.ExitReason  `json:"exit_reason,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// Snapshot copies the controller's current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		State:          c.state,
		Strike:         c.straddleStrike,
		Lots:           c.lots,
		RemainingLots:  c.remainingLots,
		TrancheDone:    c.trancheDone,
		InitialCapital: c.initialCapital,
		Target:         c.limits.Target,
		StopLoss:       c.limits.StopLoss,
		PnL:            c.pnl,
		EntryAt:        c.entryAt,
		ExitReason:     c.exitReason,
	}
	if c.registered {
		s.Phase = string(c.phase)
	}
	for _, leg := range c.straddle.Legs() {
		s.Straddle = append(s.Straddle, *leg)
	}
	for _, leg := range c.hedge.Legs() {
		s.Hedge = append(s.Hedge, *leg)
	}
	if c.cause != nil {
		s.Error = c.cause.Error()
	}
	return s
}
