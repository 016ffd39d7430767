package trading

import (
	"context"

	"github.com/shopspring/decimal"

	"straddle-trader/internal/models"
)

// PriceSource resolves a symbol to its latest price.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// Round2 rounds to paise.
func Round2(x float64) float64 {
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}

// LegPnL is (current - entry) * side * quantity, with SELL legs negated.
func LegPnL(entry, current float64, side models.OrderSide, quantity int) float64 {
	d := decimal.NewFromFloat(current).
		Sub(decimal.NewFromFloat(entry)).
		Mul(decimal.NewFromFloat(side.Sign())).
		Mul(decimal.NewFromInt(int64(quantity)))
	return d.Round(2).InexactFloat64()
}

// InstrumentPnL prices one open leg.
func InstrumentPnL(ctx context.Context, src PriceSource, leg *models.Instrument) (float64, error) {
	current, err := src.Price(ctx, leg.Symbol())
	if err != nil {
		return 0, err
	}
	return LegPnL(leg.EntryPrice, current, leg.Action, leg.LotSize), nil
}

// PairPnL sums the PnL of the pair's open legs. A nil pair is flat.
func PairPnL(ctx context.Context, src PriceSource, pair *models.PairInstrument) (float64, error) {
	var total float64
	for _, leg := range pair.Legs() {
		p, err := InstrumentPnL(ctx, src, leg)
		if err != nil {
			return 0, err
		}
		total += p
	}
	return Round2(total), nil
}

// Breakdown is the session PnL split by source.
type Breakdown struct {
	Realized float64 `json:"realized"`
	Straddle float64 `json:"straddle"`
	Hedge    float64 `json:"hedge"`
	Total    float64 `json:"total"`
}

// Aggregate is realized PnL plus the open straddle and hedge marked to market.
func Aggregate(ctx context.Context, src PriceSource, realized float64, straddle, hedge *models.PairInstrument) (Breakdown, error) {
	s, err := PairPnL(ctx, src, straddle)
	if err != nil {
		return Breakdown{}, err
	}
	h, err := PairPnL(ctx, src, hedge)
	if err != nil {
		return Breakdown{}, err
	}
	return Breakdown{
		Realized: realized,
		Straddle: s,
		Hedge:    h,
		Total:    Round2(realized + s + h),
	}, nil
}

// WeightedEntry merges an added quantity into a leg's average entry price.
func WeightedEntry(entry float64, qty int, addEntry float64, addQty int) float64 {
	if qty+addQty == 0 {
		return entry
	}
	num := decimal.NewFromFloat(entry).Mul(decimal.NewFromInt(int64(qty))).
		Add(decimal.NewFromFloat(addEntry).Mul(decimal.NewFromInt(int64(addQty))))
	return num.Div(decimal.NewFromInt(int64(qty + addQty))).Round(2).InexactFloat64()
}
