// Package feed writes live ticks for the index and the option chain around
// it into the price cache.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"straddle-trader/internal/broker"
	"straddle-trader/internal/logging"
	"straddle-trader/internal/market"
	"straddle-trader/internal/metrics"
	"straddle-trader/internal/models"
	"straddle-trader/internal/pricecache"
)

// Options configures a Feed.
type Options struct {
	Index      string
	IndexToken uint32
	StrikeStep int
	// OTMStrikes counts the ATM strike; ITMStrikes does not.
	OTMStrikes int
	ITMStrikes int
	Mode       broker.TickMode
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

// Feed subscribes the ticker and mirrors every tick into the cache.
type Feed struct {
	ticker   broker.Ticker
	cache    pricecache.Cache
	resolver *broker.InstrumentResolver
	opts     Options
	logger   zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	spot    chan float64
	gotSpot bool
}

// New creates a Feed.
func New(ticker broker.Ticker, cache pricecache.Cache, resolver *broker.InstrumentResolver, opts Options) *Feed {
	if opts.StrikeStep <= 0 {
		opts.StrikeStep = 50
	}
	if opts.OTMStrikes <= 0 {
		opts.OTMStrikes = 15
	}
	if opts.ITMStrikes < 0 {
		opts.ITMStrikes = 0
	}
	if opts.Mode == "" {
		opts.Mode = broker.TickModeLTP
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Feed{
		ticker:   ticker,
		cache:    cache,
		resolver: resolver,
		opts:     opts,
		logger:   logging.WithComponent(opts.Logger, "feed"),
		spot:     make(chan float64, 1),
	}
}

// Symbols returns the option symbols to stream for a given spot: per side,
// OTMStrikes strikes out of the money starting at ATM and ITMStrikes in the
// money.
func (f *Feed) Symbols(spot float64) []string {
	step := f.opts.StrikeStep
	atm := market.NearestStrike(spot, step)
	expiry := f.resolver.Expiry()

	var out []string
	add := func(strike int, typ models.OptionType) {
		out = append(out, models.OptionSymbol(f.opts.Index, expiry, strike, typ))
	}
	for i := 0; i < f.opts.OTMStrikes; i++ {
		add(atm+i*step, models.CE)
		add(atm-i*step, models.PE)
	}
	for i := 1; i <= f.opts.ITMStrikes; i++ {
		add(atm-i*step, models.CE)
		add(atm+i*step, models.PE)
	}
	return out
}

// Run streams until ctx is done. The index is subscribed first; the option
// chain follows once the first index tick fixes the ATM strike.
func (f *Feed) Run(ctx context.Context) error {
	f.mu.Lock()
	f.ctx = ctx
	f.mu.Unlock()

	f.ticker.RegisterSymbols(map[string]uint32{f.opts.Index: f.opts.IndexToken})
	f.ticker.OnTick(f.HandleTick)
	f.ticker.OnError(func(err error) {
		f.logger.Error().Err(err).Msg("Ticker error")
	})
	f.ticker.OnConnect(func() {
		if err := f.ticker.Subscribe([]string{f.opts.Index}, f.opts.Mode); err != nil {
			f.logger.Error().Err(err).Msg("Index subscription failed")
		}
	})
	f.ticker.OnDisconnect(func() {
		f.logger.Warn().Msg("Ticker disconnected")
	})

	if err := f.ticker.Connect(ctx); err != nil {
		return fmt.Errorf("connecting ticker: %w", err)
	}
	defer func() {
		if err := f.ticker.Disconnect(); err != nil {
			f.logger.Warn().Err(err).Msg("Ticker disconnect failed")
		}
	}()

	var spot float64
	select {
	case <-ctx.Done():
		return nil
	case spot = <-f.spot:
	}

	tokens := f.resolver.Tokens(f.Symbols(spot))
	if len(tokens) == 0 {
		return fmt.Errorf("no %s option contracts around %.2f", f.opts.Index, spot)
	}
	f.ticker.RegisterSymbols(tokens)
	symbols := make([]string, 0, len(tokens))
	for s := range tokens {
		symbols = append(symbols, s)
	}
	if err := f.ticker.Subscribe(symbols, f.opts.Mode); err != nil {
		return fmt.Errorf("subscribing option chain: %w", err)
	}
	f.logger.Info().
		Float64("spot", spot).
		Int("strike", market.NearestStrike(spot, f.opts.StrikeStep)).
		Int("symbols", len(symbols)).
		Msg("Option chain subscribed")

	<-ctx.Done()
	return nil
}

// HandleTick writes one tick into the cache.
func (f *Feed) HandleTick(t models.Tick) {
	if t.Symbol == "" {
		return
	}
	f.mu.Lock()
	ctx := f.ctx
	if t.Symbol == f.opts.Index && !f.gotSpot {
		f.gotSpot = true
		f.spot <- t.LTP
	}
	f.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	ts := t.Timestamp
	if ts.IsZero() {
		ts = f.opts.Now()
	}
	q := pricecache.Quote{Token: t.Token, LTP: t.LTP, Timestamp: ts}
	if err := f.cache.Set(ctx, t.Symbol, q); err != nil {
		f.logger.Warn().Err(err).Str("symbol", t.Symbol).Msg("Cache write failed")
		return
	}
	f.opts.Metrics.FeedTick()
}

// Cleanup removes every cached quote for index and returns the count.
func Cleanup(ctx context.Context, cache pricecache.Cache, index string) (int, error) {
	n, err := cache.DeletePrefix(ctx, index)
	if err != nil {
		return 0, fmt.Errorf("deleting %s quotes: %w", index, err)
	}
	return n, nil
}
