package strategy

import (
	"context"
	"math"
	"time"

	"straddle-trader/internal/logging"
	"straddle-trader/internal/models"
	"straddle-trader/internal/monitor"
	"straddle-trader/internal/notify"
	"straddle-trader/internal/trading"
)

const (
	firstShiftNear   = 40
	firstShiftFar    = 50
	secondShiftEarly = 45
	secondShiftLate  = 35
)

// FirstShiftOffsets returns the first-shift trigger offsets around spot for
// a straddle at strike. The side of the strike spot sits on gets the 50
// point leg, the other side 40.
func FirstShiftOffsets(spot float64, strike int) (up, down float64) {
	diff := spot - float64(strike)
	if spot > float64(strike) {
		up = math.Trunc(math.Abs(diff - firstShiftFar))
		down = math.Trunc(math.Abs(diff + firstShiftNear))
		return up, down
	}
	up = math.Trunc(math.Abs(diff - firstShiftNear))
	down = math.Trunc(math.Abs(diff + firstShiftFar))
	return up, down
}

// registerShift keeps exactly one straddle-shift trigger live. The first
// shift uses asymmetric offsets; later shifts use +-45 before the cutoff and
// +-35 after it.
func (c *Controller) registerShift(now time.Time) error {
	late := !now.Before(c.settings.SecondShiftCutoff.On(now))

	if c.registered && c.firstShiftDone && c.phase == monitor.PhaseSecondEarly && late {
		if !c.monitor.Deregister(c.handle) {
			// Already fired; its firing will re-arm.
			return nil
		}
		c.logger.Info().Msg("Second-shift cutoff passed, tightening trigger")
		c.mu.Lock()
		c.registered = false
		c.mu.Unlock()
	}
	if c.registered {
		return nil
	}

	var (
		phase    monitor.Phase
		up, down float64
	)
	switch {
	case !c.firstShiftDone:
		phase = monitor.PhaseFirst
		up, down = FirstShiftOffsets(c.marketPrice, c.straddleStrike)
	case late:
		phase = monitor.PhaseSecondLate
		up, down = secondShiftLate, secondShiftLate
	default:
		phase = monitor.PhaseSecondEarly
		up, down = secondShiftEarly, secondShiftEarly
	}

	h, err := c.monitor.Register(c.market.Index(), phase, c.marketPrice, up, monitor.ShiftStraddle, down, monitor.ShiftStraddle)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.handle = h
	c.phase = phase
	c.registered = true
	c.mu.Unlock()

	c.logger.Info().
		Str("phase", string(phase)).
		Float64("above", c.marketPrice+up).
		Float64("below", c.marketPrice-down).
		Msg("Next shift armed")
	return nil
}

// shiftStraddle re-centres the straddle on the current ATM strike. An
// unchanged strike only moves the trigger reference to the current spot.
func (c *Controller) shiftStraddle(ctx context.Context) error {
	// Whatever happens the fired trigger is gone, so the next tick re-arms.
	c.mu.Lock()
	c.registered = false
	c.mu.Unlock()

	spot, err := c.market.Spot(ctx)
	if err != nil {
		return err
	}
	atm, err := c.market.ATMStrike(ctx)
	if err != nil {
		return err
	}
	if atm == c.straddleStrike {
		// Re-arming around the old reference would fire again on the next
		// pass while spot holds beyond the band.
		c.mu.Lock()
		c.marketPrice = spot
		c.mu.Unlock()
		c.logger.Info().Int("strike", atm).Float64("spot", spot).Msg("ATM unchanged, shift skipped")
		return nil
	}

	now := c.now()
	old := c.straddle.Legs()
	exitPrices := make([]float64, len(old))
	for i, leg := range old {
		p, err := c.market.Price(ctx, leg.Symbol())
		if err != nil {
			return err
		}
		exitPrices[i] = p
	}

	lots := c.lots
	if c.trancheDue {
		lots += c.remainingLots
	}
	fresh := []*models.Instrument{
		c.newLeg(models.OrderSideSell, atm, models.CE, c.contracts(lots), now),
		c.newLeg(models.OrderSideSell, atm, models.PE, c.contracts(lots), now),
	}
	if err := c.priceLegs(ctx, fresh); err != nil {
		return err
	}

	if c.trancheDue {
		if err := c.addLots(ctx, c.hedge.Legs(), c.remainingLots); err != nil {
			return err
		}
	}

	var pairPnL float64
	for i, leg := range old {
		pairPnL += trading.LegPnL(leg.EntryPrice, exitPrices[i], leg.Action, leg.LotSize)
	}
	pairPnL = trading.Round2(pairPnL)

	from := c.straddleStrike
	for _, leg := range old {
		if err := c.closeLeg(ctx, leg); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.realized = trading.Round2(c.realized + pairPnL)
	c.mu.Unlock()

	if c.trancheDue {
		c.completeTranche(ctx)
	}

	for _, leg := range fresh {
		if err := c.open(ctx, leg); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.straddleStrike = atm
	c.marketPrice = spot
	c.firstShiftDone = true
	c.mu.Unlock()

	c.metrics.Shifted("straddle")
	logging.LogShift(c.logger, "straddle", from, atm, pairPnL)
	c.notify(ctx, notify.Shift("Straddle", from, atm, pairPnL))
	return nil
}
