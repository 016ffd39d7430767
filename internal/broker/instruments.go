package broker

import (
	"context"
	"fmt"
	"time"

	"straddle-trader/internal/errors"
	"straddle-trader/internal/models"
	"straddle-trader/pkg/utils"
)

// InstrumentResolver maps price cache symbols of one index's current weekly
// expiry to broker contracts.
type InstrumentResolver struct {
	index    string
	expiry   time.Time
	bySymbol map[string]models.Contract
}

// NewInstrumentResolver picks the first option expiry on or after today and
// indexes its contracts by cache symbol.
func NewInstrumentResolver(index string, contracts []models.Contract, today time.Time) (*InstrumentResolver, error) {
	day := dateOf(today)

	var expiry time.Time
	for _, c := range contracts {
		if !isIndexOption(c, index) {
			continue
		}
		exp := dateOf(c.Expiry)
		if exp.Before(day) {
			continue
		}
		if expiry.IsZero() || exp.Before(expiry) {
			expiry = exp
		}
	}
	if expiry.IsZero() {
		return nil, fmt.Errorf("%w: no %s option expiry on or after %s", errors.ErrSymbolNotFound, index, day.Format("2006-01-02"))
	}

	r := &InstrumentResolver{
		index:    index,
		expiry:   expiry,
		bySymbol: make(map[string]models.Contract),
	}
	for _, c := range contracts {
		if !isIndexOption(c, index) || !dateOf(c.Expiry).Equal(expiry) {
			continue
		}
		sym := models.OptionSymbol(index, expiry, int(c.Strike), models.OptionType(c.InstrType))
		r.bySymbol[sym] = c
	}
	return r, nil
}

// LoadInstrumentResolver fetches the instrument master and builds a resolver.
func LoadInstrumentResolver(ctx context.Context, src ContractSource, index string, today time.Time) (*InstrumentResolver, error) {
	// The instrument dump is a large CSV download and fails transiently.
	contracts, err := utils.RetryWithResult(ctx, utils.DefaultRetryConfig(), func() ([]models.Contract, error) {
		return src.Contracts(ctx)
	})
	if err != nil {
		return nil, err
	}
	return NewInstrumentResolver(index, contracts, today)
}

// Expiry is the resolved weekly expiry.
func (r *InstrumentResolver) Expiry() time.Time {
	return r.expiry
}

// Lookup returns the contract for a cache symbol.
func (r *InstrumentResolver) Lookup(symbol string) (models.Contract, bool) {
	c, ok := r.bySymbol[symbol]
	return c, ok
}

// Tokens maps each known symbol to its instrument token. Unknown symbols are
// skipped.
func (r *InstrumentResolver) Tokens(symbols []string) map[string]uint32 {
	out := make(map[string]uint32, len(symbols))
	for _, s := range symbols {
		if c, ok := r.bySymbol[s]; ok {
			out[s] = c.Token
		}
	}
	return out
}

// Len returns the number of resolvable contracts.
func (r *InstrumentResolver) Len() int {
	return len(r.bySymbol)
}

func isIndexOption(c models.Contract, index string) bool {
	if c.Name != index || c.Exchange != models.NFO {
		return false
	}
	return c.InstrType == string(models.CE) || c.InstrType == string(models.PE)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
