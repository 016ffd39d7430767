package strategy

import (
	"context"

	"straddle-trader/internal/logging"
	"straddle-trader/internal/models"
	"straddle-trader/internal/notify"
	"straddle-trader/internal/trading"
)

// shiftHedge moves one hedge leg to the strike now nearest its target
// premium. The CE hedge only moves up and the PE hedge only moves down.
func (c *Controller) shiftHedge(ctx context.Context, typ models.OptionType) error {
	current := c.hedge.Leg(typ)
	if current == nil {
		return nil
	}

	target := c.settings.Day.CEHedgePremium
	if typ == models.PE {
		target = c.settings.Day.PEHedgePremium
	}
	strike, err := c.market.StrikeByPremium(ctx, target, typ)
	if err != nil {
		return err
	}
	if typ == models.CE && strike <= current.Strike {
		return nil
	}
	if typ == models.PE && strike >= current.Strike {
		return nil
	}

	now := c.now()
	next := c.newLeg(models.OrderSideBuy, strike, typ, current.LotSize, now)
	if err := c.priceLegs(ctx, []*models.Instrument{next}); err != nil {
		return err
	}
	exitPrice, err := c.market.Price(ctx, current.Symbol())
	if err != nil {
		return err
	}

	id, err := c.place(ctx, next, next.Action, next.LotSize, "hedge")
	if err != nil {
		return err
	}
	next.BrokerOrderID = id
	// Held outside the pair until the old leg is closed, so a failed close
	// still flattens both.
	c.mu.Lock()
	c.detached = append(c.detached, next)
	c.mu.Unlock()

	realized := trading.Round2(trading.LegPnL(current.EntryPrice, exitPrice, current.Action, current.LotSize))
	if err := c.closeLeg(ctx, current); err != nil {
		return err
	}

	c.mu.Lock()
	c.realized = trading.Round2(c.realized + realized)
	c.hedge.SetLeg(typ, next)
	c.detached = c.detached[:0]
	c.mu.Unlock()

	kind := string(typ) + " hedge"
	c.metrics.Shifted("hedge_" + string(typ))
	logging.LogShift(c.logger, kind, current.Strike, strike, realized)
	c.notify(ctx, notify.Shift(kind, current.Strike, strike, realized))
	return nil
}
