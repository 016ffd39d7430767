package strategy

import (
	"context"
	"fmt"
	"time"

	"straddle-trader/internal/errors"
	"straddle-trader/internal/models"
	"straddle-trader/internal/notify"
	"straddle-trader/internal/trading"
)

// tryEntry opens the hedge and the straddle, unless the price check
// postpones entry. Missing prices leave the controller waiting.
func (c *Controller) tryEntry(ctx context.Context, now time.Time) error {
	if pc := c.settings.Day.PriceCheck; pc != nil && !c.entryDelayed {
		atm, err := c.market.ATMStrike(ctx)
		if err != nil {
			return err
		}
		premium, err := c.market.StraddlePremium(ctx, atm)
		if err != nil {
			return err
		}
		if premium < pc.Min || premium > pc.Max {
			c.entryDelayed = true
			c.entryTime = c.entryTime.Add(pc.EntryDelay)
			c.logger.Info().
				Int("strike", atm).
				Float64("premium", premium).
				Float64("min", pc.Min).
				Float64("max", pc.Max).
				Str("entry_time", c.entryTime.String()).
				Msg("Straddle premium outside band, delaying entry")
			return nil
		}
	}

	spot, err := c.market.Spot(ctx)
	if err != nil {
		return err
	}
	atm, err := c.market.ATMStrike(ctx)
	if err != nil {
		return err
	}
	ceHedge, err := c.market.StrikeByPremium(ctx, c.settings.Day.CEHedgePremium, models.CE)
	if err != nil {
		return err
	}
	peHedge, err := c.market.StrikeByPremium(ctx, c.settings.Day.PEHedgePremium, models.PE)
	if err != nil {
		return err
	}

	legs := []*models.Instrument{
		c.newLeg(models.OrderSideBuy, ceHedge, models.CE, 0, now),
		c.newLeg(models.OrderSideBuy, peHedge, models.PE, 0, now),
		c.newLeg(models.OrderSideSell, atm, models.CE, 0, now),
		c.newLeg(models.OrderSideSell, atm, models.PE, 0, now),
	}
	if err := c.priceLegs(ctx, legs); err != nil {
		return err
	}

	funds, err := c.gateway.FundsAndMargin(ctx)
	if err != nil {
		return fmt.Errorf("fetching funds: %w", err)
	}
	capital := funds.Capital()
	lots := trading.InitialLots(capital, c.settings.Day.ExpectedMarginPerLot)
	if lots <= 0 {
		return errors.NewValidationError("expected_margin_per_lot", c.settings.Day.ExpectedMarginPerLot,
			fmt.Sprintf("capital %.2f does not cover two lots", capital))
	}

	c.mu.Lock()
	c.initialCapital = capital
	c.limits = trading.NewRiskLimits(capital, c.settings.Day.TargetPercent, c.settings.Day.StopLossPercent)
	c.lots = lots
	c.marketPrice = spot
	c.straddleStrike = atm
	c.entryAt = now
	c.state = StateEntryTaken
	c.mu.Unlock()
	c.metrics.SetLots(lots)

	c.logger.Info().
		Float64("capital", capital).
		Int("lots", lots).
		Float64("spot", spot).
		Int("strike", atm).
		Int("ce_hedge", ceHedge).
		Int("pe_hedge", peHedge).
		Str("limits", c.limits.String()).
		Msg("Taking entry")

	// Hedges first so the short legs are margined as a spread.
	for _, leg := range legs {
		leg.LotSize = c.contracts(lots)
		if err := c.open(ctx, leg); err != nil {
			return err
		}
	}

	c.notify(ctx, notify.Entry(atm, ceHedge, peHedge, lots, c.straddle.EntryPremium()))
	return nil
}

// deployTranche adds the remaining lots once the tranche delay has passed.
// When the ATM strike has moved, the tranche is folded into the next
// straddle shift instead.
func (c *Controller) deployTranche(ctx context.Context, now time.Time) error {
	if c.trancheDone || c.trancheDue || now.Before(c.entryAt.Add(c.settings.TrancheDelay)) {
		return nil
	}

	if !c.remainingKnown {
		remaining, err := c.computeRemainingLots(ctx)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.remainingLots = remaining
		c.remainingKnown = true
		c.mu.Unlock()
		c.logger.Info().Int("remaining_lots", remaining).Msg("Remaining lots computed")
		if remaining == 0 {
			c.mu.Lock()
			c.trancheDone = true
			c.mu.Unlock()
			return nil
		}
	}

	atm, err := c.market.ATMStrike(ctx)
	if err != nil {
		return err
	}
	// A deferred tranche waits for the next straddle shift even if spot
	// drifts back to the original strike first.
	if atm != c.straddleStrike {
		c.mu.Lock()
		c.trancheDue = true
		c.mu.Unlock()
		c.logger.Info().
			Int("strike", c.straddleStrike).
			Int("atm", atm).
			Msg("Strike moved, deferring tranche to next shift")
		return nil
	}

	legs := append(c.hedge.Legs(), c.straddle.Legs()...)
	if err := c.addLots(ctx, legs, c.remainingLots); err != nil {
		return err
	}
	c.completeTranche(ctx)
	return nil
}

// computeRemainingLots sizes the tranche from margin actually in use.
func (c *Controller) computeRemainingLots(ctx context.Context) (int, error) {
	marginPerLot := c.settings.DryRunMarginPerLot
	if marginPerLot <= 0 {
		funds, err := c.gateway.FundsAndMargin(ctx)
		if err != nil {
			return 0, fmt.Errorf("fetching funds: %w", err)
		}
		marginPerLot = trading.ActualMarginPerLot(funds.UtilisedDebits, c.lots)
	}
	capitalToTrade := trading.CapitalToTrade(c.initialCapital, c.settings.Day.CapitalToTradePercent)
	return trading.RemainingLots(capitalToTrade, marginPerLot, c.lots), nil
}

// addLots increases each leg's quantity at its current strike, averaging
// the entry price.
func (c *Controller) addLots(ctx context.Context, legs []*models.Instrument, lots int) error {
	qty := c.contracts(lots)
	prices := make([]float64, len(legs))
	for i, leg := range legs {
		p, err := c.market.Price(ctx, leg.Symbol())
		if err != nil {
			return err
		}
		prices[i] = p
	}

	for i, leg := range legs {
		if _, err := c.place(ctx, leg, leg.Action, qty, "tranche"); err != nil {
			return err
		}
		c.mu.Lock()
		leg.EntryPrice = trading.WeightedEntry(leg.EntryPrice, leg.LotSize, prices[i], qty)
		leg.LotSize += qty
		c.mu.Unlock()
	}
	return nil
}

func (c *Controller) completeTranche(ctx context.Context) {
	c.mu.Lock()
	added := c.remainingLots
	c.lots += added
	c.remainingLots = 0
	c.trancheDone = true
	c.trancheDue = false
	total := c.lots
	c.mu.Unlock()

	c.metrics.SetLots(total)
	c.logger.Info().Int("added", added).Int("lots", total).Msg("Tranche deployed")
	c.notify(ctx, notify.Tranche(added, total))
}
