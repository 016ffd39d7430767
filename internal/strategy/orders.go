package strategy

import (
	"context"
	"time"

	"straddle-trader/internal/errors"
	"straddle-trader/internal/logging"
	"straddle-trader/internal/models"
)

func (c *Controller) contracts(lots int) int {
	return lots * c.settings.QuantityPerLot
}

func (c *Controller) newLeg(side models.OrderSide, strike int, typ models.OptionType, qty int, now time.Time) *models.Instrument {
	return &models.Instrument{
		Action:         side,
		LotSize:        qty,
		Expiry:         c.market.Expiry(),
		OptionType:     typ,
		Strike:         strike,
		Index:          c.market.Index(),
		EntryTimestamp: now,
	}
}

// priceLegs sets each leg's entry price from the cache. Nothing is ordered
// until every leg has a price.
func (c *Controller) priceLegs(ctx context.Context, legs []*models.Instrument) error {
	for _, leg := range legs {
		p, err := c.market.Price(ctx, leg.Symbol())
		if err != nil {
			return err
		}
		leg.EntryPrice = p
	}
	return nil
}

// place submits one market order for leg.
func (c *Controller) place(ctx context.Context, leg *models.Instrument, side models.OrderSide, qty int, tag string) (string, error) {
	req := models.OrderRequest{
		Symbol:   leg.Symbol(),
		Exchange: c.settings.Exchange,
		Side:     side,
		Type:     models.OrderTypeMarket,
		Product:  c.settings.Product,
		Quantity: qty,
		Tag:      tag,
	}

	id, err := c.gateway.PlaceOrder(ctx, req)
	if err != nil {
		var ope *errors.OrderPlacementError
		if !errors.As(err, &ope) {
			err = errors.NewOrderPlacementError(req.Symbol, string(side), qty, 1, err)
		}
		return "", err
	}

	logging.LogOrder(c.logger, id, req.Symbol, string(side), qty, leg.EntryPrice)
	return id, nil
}

// open places the opening order for leg and records it as held.
func (c *Controller) open(ctx context.Context, leg *models.Instrument) error {
	id, err := c.place(ctx, leg, leg.Action, leg.LotSize, "open")
	if err != nil {
		return err
	}
	leg.BrokerOrderID = id

	c.mu.Lock()
	defer c.mu.Unlock()
	if leg.Action == models.OrderSideSell {
		c.straddle.SetLeg(leg.OptionType, leg)
	} else {
		c.hedge.SetLeg(leg.OptionType, leg)
	}
	return nil
}

// closeLeg places the closing order for leg and drops it from its pair.
func (c *Controller) closeLeg(ctx context.Context, leg *models.Instrument) error {
	if _, err := c.place(ctx, leg, leg.ClosingSide(), leg.LotSize, "close"); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pair := range []*models.PairInstrument{c.straddle, c.hedge} {
		if pair.Leg(leg.OptionType) == leg {
			pair.SetLeg(leg.OptionType, nil)
		}
	}
	return nil
}
