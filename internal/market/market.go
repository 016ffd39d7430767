// Package market provides strategy-facing price views over the price cache.
package market

import (
	"context"
	"math"
	"time"

	"straddle-trader/internal/errors"
	"straddle-trader/internal/models"
	"straddle-trader/internal/pricecache"
)

// NearestStrike rounds price to the nearest multiple of step. Ties go to the
// even multiple.
func NearestStrike(price float64, step int) int {
	return int(math.RoundToEven(price/float64(step))) * step
}

// Options configures a Prices view.
type Options struct {
	Index      string
	Expiry     time.Time
	StrikeStep int
	// StaleAfter rejects quotes older than this; zero disables the check.
	StaleAfter time.Duration
	// ScanDepth bounds StrikeByPremium; zero means 40 strikes.
	ScanDepth int
	Now       func() time.Time
}

// Prices reads index and option prices for one index and expiry.
type Prices struct {
	cache pricecache.Cache
	opts  Options
}

// New creates a Prices view.
func New(cache pricecache.Cache, opts Options) *Prices {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StrikeStep <= 0 {
		opts.StrikeStep = 50
	}
	if opts.ScanDepth <= 0 {
		opts.ScanDepth = 40
	}
	return &Prices{cache: cache, opts: opts}
}

// Index returns the underlying's symbol.
func (p *Prices) Index() string { return p.opts.Index }

// Expiry returns the option expiry the view prices.
func (p *Prices) Expiry() time.Time { return p.opts.Expiry }

// StrikeStep returns the strike interval.
func (p *Prices) StrikeStep() int { return p.opts.StrikeStep }

// Symbol returns the cache key for an option at strike.
func (p *Prices) Symbol(strike int, typ models.OptionType) string {
	return models.OptionSymbol(p.opts.Index, p.opts.Expiry, strike, typ)
}

// Price returns the latest price for symbol or a PriceUnavailableError when
// it is missing or stale.
func (p *Prices) Price(ctx context.Context, symbol string) (float64, error) {
	q, ok, err := p.cache.Get(ctx, symbol)
	if err != nil {
		return 0, &errors.PriceUnavailableError{Symbol: symbol, Reason: err.Error()}
	}
	if !ok {
		return 0, errors.NewPriceUnavailableError(symbol, "not in cache")
	}
	if p.opts.StaleAfter > 0 && !q.Timestamp.IsZero() {
		if age := p.opts.Now().Sub(q.Timestamp); age > p.opts.StaleAfter {
			return 0, &errors.PriceUnavailableError{Symbol: symbol, Reason: "stale", Age: age}
		}
	}
	return q.LTP, nil
}

// Spot returns the index's latest value.
func (p *Prices) Spot(ctx context.Context) (float64, error) {
	return p.Price(ctx, p.opts.Index)
}

// ATMStrike returns the strike nearest the current spot.
func (p *Prices) ATMStrike(ctx context.Context) (int, error) {
	spot, err := p.Spot(ctx)
	if err != nil {
		return 0, err
	}
	return NearestStrike(spot, p.opts.StrikeStep), nil
}

// OptionPrice returns the price of the option at strike.
func (p *Prices) OptionPrice(ctx context.Context, strike int, typ models.OptionType) (float64, error) {
	return p.Price(ctx, p.Symbol(strike, typ))
}

// StraddlePremium returns CE + PE premium at strike.
func (p *Prices) StraddlePremium(ctx context.Context, strike int) (float64, error) {
	ce, err := p.OptionPrice(ctx, strike, models.CE)
	if err != nil {
		return 0, err
	}
	pe, err := p.OptionPrice(ctx, strike, models.PE)
	if err != nil {
		return 0, err
	}
	return ce + pe, nil
}

// StrikeByPremium returns the strike whose premium is closest to target.
// The scan starts at ATM and walks out of the money while the target is
// below the ATM premium, into the money otherwise, until a strike has no
// cached price.
func (p *Prices) StrikeByPremium(ctx context.Context, target float64, typ models.OptionType) (int, error) {
	atm, err := p.ATMStrike(ctx)
	if err != nil {
		return 0, err
	}
	atmPrice, err := p.OptionPrice(ctx, atm, typ)
	if err != nil {
		return 0, err
	}

	step := p.opts.StrikeStep
	if typ == models.PE {
		step = -step
	}
	if target > atmPrice {
		step = -step
	}

	selected := atm
	best := math.Abs(target - atmPrice)
	strike := atm
	for i := 0; i < p.opts.ScanDepth; i++ {
		strike += step
		q, ok, err := p.cache.Get(ctx, p.Symbol(strike, typ))
		if err != nil {
			return 0, &errors.PriceUnavailableError{Symbol: p.Symbol(strike, typ), Reason: err.Error()}
		}
		if !ok {
			break
		}
		if d := math.Abs(target - q.LTP); d < best {
			best = d
			selected = strike
		}
	}
	return selected, nil
}
