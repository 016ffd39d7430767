package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptionSymbol(t *testing.T) {
	expiry := time.Date(2022, time.August, 25, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "25AUG22", ExpiryCode(expiry))
	assert.Equal(t, "NIFTY25AUG2217000CE", OptionSymbol("NIFTY", expiry, 17000, CE))

	leg := &Instrument{Action: OrderSideSell, Index: "NIFTY", Expiry: expiry, Strike: 17550, OptionType: PE}
	assert.Equal(t, "NIFTY25AUG2217550PE", leg.Symbol())
	assert.Equal(t, OrderSideBuy, leg.ClosingSide())
}

func TestOrderSide(t *testing.T) {
	assert.Equal(t, OrderSideSell, OrderSideBuy.Opposite())
	assert.Equal(t, -1.0, OrderSideSell.Sign())
	assert.Equal(t, 1.0, OrderSideBuy.Sign())
}

func TestPairInstrument(t *testing.T) {
	var nilPair *PairInstrument
	assert.Empty(t, nilPair.Legs())
	assert.False(t, nilPair.Open())

	p := &PairInstrument{CE: &Instrument{OptionType: CE, EntryPrice: 120}}
	assert.False(t, p.Open())
	p.SetLeg(PE, &Instrument{OptionType: PE, EntryPrice: 95.5})
	assert.True(t, p.Open())
	assert.Len(t, p.Legs(), 2)
	assert.InDelta(t, 215.5, p.EntryPremium(), 1e-9)
	assert.Equal(t, PE, p.Leg(PE).OptionType)
}

func TestFundsCapital(t *testing.T) {
	assert.Equal(t, 1000000.0, Funds{AvailableCash: 600000, UtilisedDebits: 400000}.Capital())
}
