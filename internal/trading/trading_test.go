package trading

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"straddle-trader/internal/errors"
	"straddle-trader/internal/models"
)

type priceMap map[string]float64

func (m priceMap) Price(_ context.Context, symbol string) (float64, error) {
	p, ok := m[symbol]
	if !ok {
		return 0, errors.NewPriceUnavailableError(symbol, "not in cache")
	}
	return p, nil
}

var expiry = time.Date(2024, time.October, 24, 0, 0, 0, 0, time.UTC)

func leg(side models.OrderSide, strike int, typ models.OptionType, entry float64, qty int) *models.Instrument {
	return &models.Instrument{
		Action: side, LotSize: qty, Expiry: expiry, OptionType: typ,
		Strike: strike, Index: "NIFTY", EntryPrice: entry,
	}
}

func TestInitialLots(t *testing.T) {
	assert.Equal(t, 10, InitialLots(1000000, 50000))
	assert.Equal(t, 9, InitialLots(999999, 50000)) // floor(19) / 2
	assert.Equal(t, 0, InitialLots(60000, 50000))
	assert.Equal(t, 0, InitialLots(1000000, 0))
}

func TestRemainingLots(t *testing.T) {
	actual := ActualMarginPerLot(480000, 10)
	assert.Equal(t, 48000.0, actual)

	capitalToTrade := CapitalToTrade(1000000, 90)
	assert.Equal(t, 900000.0, capitalToTrade)
	// (900000 - 480000) / 48000 = 8.75
	assert.Equal(t, 8, RemainingLots(capitalToTrade, actual, 10))

	// Margin overran the estimate: nothing left to deploy.
	assert.Equal(t, 0, RemainingLots(400000, 50000, 10))
	assert.Equal(t, 0, RemainingLots(400000, 0, 10))
	assert.Equal(t, 0.0, ActualMarginPerLot(1000, 0))
}

func TestRiskLimits(t *testing.T) {
	r := NewRiskLimits(1000000, 2, 1)
	assert.Equal(t, 20000.0, r.Target)
	assert.Equal(t, -10000.0, r.StopLoss)

	reason, hit := r.Check(20000.01)
	assert.True(t, hit)
	assert.Equal(t, ExitReasonTarget, reason)

	reason, hit = r.Check(-10000.5)
	assert.True(t, hit)
	assert.Equal(t, ExitReasonStopLoss, reason)

	_, hit = r.Check(20000)
	assert.False(t, hit)
}

func TestLegPnL(t *testing.T) {
	assert.Equal(t, 12500.0, LegPnL(120.0, 95.0, models.OrderSideSell, 500))
	assert.Equal(t, -12500.0, LegPnL(120.0, 95.0, models.OrderSideBuy, 500))
	assert.Equal(t, 2.5, LegPnL(0.1, 0.15, models.OrderSideBuy, 50))
}

func TestProperty_SellBuyAntisymmetric(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("SELL pnl is the negative of BUY pnl", prop.ForAll(
		func(entry, current float64, qty int) bool {
			return LegPnL(entry, current, models.OrderSideSell, qty) == -LegPnL(entry, current, models.OrderSideBuy, qty)
		},
		gen.Float64Range(0.05, 1000),
		gen.Float64Range(0.05, 1000),
		gen.IntRange(1, 5000),
	))

	properties.TestingRun(t)
}

func TestAggregate(t *testing.T) {
	straddle := &models.PairInstrument{
		CE: leg(models.OrderSideSell, 24500, models.CE, 120, 500),
		PE: leg(models.OrderSideSell, 24500, models.PE, 100, 500),
	}
	hedge := &models.PairInstrument{
		CE: leg(models.OrderSideBuy, 24800, models.CE, 5, 500),
		PE: leg(models.OrderSideBuy, 24250, models.PE, 5.5, 500),
	}
	prices := priceMap{
		"NIFTY24OCT2424500CE": 95,  // +12500
		"NIFTY24OCT2424500PE": 110, // -5000
		"NIFTY24OCT2424800CE": 4,   // -500
		"NIFTY24OCT2424250PE": 6,   // +250
	}

	b, err := Aggregate(context.Background(), prices, 1500, straddle, hedge)
	require.NoError(t, err)
	assert.Equal(t, 7500.0, b.Straddle)
	assert.Equal(t, -250.0, b.Hedge)
	assert.Equal(t, 8750.0, b.Total)

	delete(prices, "NIFTY24OCT2424250PE")
	_, err = Aggregate(context.Background(), prices, 0, straddle, hedge)
	assert.True(t, errors.IsPriceUnavailable(err))

	flat, err := Aggregate(context.Background(), prices, 300, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 300.0, flat.Total)
}

func TestWeightedEntry(t *testing.T) {
	assert.Equal(t, 110.0, WeightedEntry(120, 500, 100, 500))
	assert.Equal(t, 116.0, WeightedEntry(120, 400, 100, 100))
	assert.Equal(t, 50.0, WeightedEntry(50, 0, 0, 0))
}
