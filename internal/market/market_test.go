package market

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
	"straddle-trader/internal/pricecache"
)

var expiry = time.Date(2024, time.October, 24, 0, 0, 0, 0, time.UTC)

func TestNearestStrike(t *testing.T) {
	assert.Equal(t, 17550, NearestStrike(17532, 50))
	assert.Equal(t, 17500, NearestStrike(17524.99, 50))
	assert.Equal(t, 24500, NearestStrike(24500, 50))
	assert.Equal(t, 17500, NearestStrike(17525, 50)) // tie to even multiple
}

func TestProperty_NearestStrikeIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("nearest strike of a strike is itself", prop.ForAll(
		func(p float64, step int) bool {
			s := NearestStrike(p, step)
			return NearestStrike(float64(s), step) == s && s%step == 0
		},
		gen.Float64Range(5000, 60000),
		gen.OneConstOf(50, 100),
	))

	properties.TestingRun(t)
}

type fixture struct {
	cache  *pricecache.MemoryCache
	prices *Prices
	now    time.Time
}

func newFixture(t *testing.T, spot float64) *fixture {
	t.Helper()
	f := &fixture{cache: pricecache.NewMemoryCache(), now: time.Date(2024, 10, 21, 10, 0, 0, 0, time.UTC)}
	f.prices = New(f.cache, Options{
		Index:      "NIFTY",
		Expiry:     expiry,
		StrikeStep: 50,
		StaleAfter: time.Minute,
		Now:        func() time.Time { return f.now },
	})
	f.set("NIFTY", spot)
	return f
}

func (f *fixture) set(symbol string, ltp float64) {
	_ = f.cache.Set(context.Background(), symbol, pricecache.Quote{LTP: ltp, Timestamp: f.now})
}

func (f *fixture) option(strike int, typ models.OptionType, ltp float64) {
	f.set(f.prices.Symbol(strike, typ), ltp)
}

func TestPriceMissingAndStale(t *testing.T) {
	f := newFixture(t, 24512)
	ctx := context.Background()

	_, err := f.prices.Price(ctx, "NIFTY24OCT2424500CE")
	assert.True(t, errors.IsPriceUnavailable(err))

	atm, err := f.prices.ATMStrike(ctx)
	require.NoError(t, err)
	assert.Equal(t, 24500, atm)

	f.now = f.now.Add(2 * time.Minute)
	_, err = f.prices.Spot(ctx)
	var pe *errors.PriceUnavailableError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "stale", pe.Reason)
}

func TestStraddlePremium(t *testing.T) {
	f := newFixture(t, 24512)
	f.option(24500, models.CE, 120)
	f.option(24500, models.PE, 98.5)

	p, err := f.prices.StraddlePremium(context.Background(), 24500)
	require.NoError(t, err)
	assert.InDelta(t, 218.5, p, 1e-9)
}

func TestStrikeByPremiumOTM(t *testing.T) {
	f := newFixture(t, 24512)
	ce := map[int]float64{24500: 120, 24550: 90, 24600: 64, 24650: 41, 24700: 25, 24750: 13, 24800: 6.2, 24850: 3.1}
	for k, v := range ce {
		f.option(k, models.CE, v)
	}
	pe := map[int]float64{24500: 100, 24450: 78, 24400: 55, 24350: 30, 24300: 15, 24250: 5.4, 24200: 2.5}
	for k, v := range pe {
		f.option(k, models.PE, v)
	}

	strike, err := f.prices.StrikeByPremium(context.Background(), 5, models.CE)
	require.NoError(t, err)
	assert.Equal(t, 24800, strike)

	strike, err = f.prices.StrikeByPremium(context.Background(), 5, models.PE)
	require.NoError(t, err)
	assert.Equal(t, 24250, strike)
}

func TestStrikeByPremiumITM(t *testing.T) {
	f := newFixture(t, 24512)
	f.option(24500, models.CE, 120)
	f.option(24450, models.CE, 150)
	f.option(24400, models.CE, 185)
	f.option(24350, models.CE, 225)

	strike, err := f.prices.StrikeByPremium(context.Background(), 190, models.CE)
	require.NoError(t, err)
	assert.Equal(t, 24400, strike)
}

func TestStrikeByPremiumNeedsATM(t *testing.T) {
	f := newFixture(t, 24512)
	_, err := f.prices.StrikeByPremium(context.Background(), 5, models.CE)
	assert.True(t, errors.IsPriceUnavailable(err))
}
