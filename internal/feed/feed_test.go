package feed

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"straddle-trader/internal/broker"
	"straddle-trader/internal/metrics"
	"straddle-trader/internal/models"
	"straddle-trader/internal/pricecache"
)

var expiry = time.Date(2024, time.October, 24, 0, 0, 0, 0, time.UTC)

type fakeTicker struct {
	mu         sync.Mutex
	tokens     map[string]uint32
	subscribed [][]string
	onTick     func(models.Tick)
	onConnect  func()
	closed     bool
}

func (f *fakeTicker) Connect(context.Context) error {
	f.mu.Lock()
	cb := f.onConnect
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

func (f *fakeTicker) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTicker) Subscribe(symbols []string, _ broker.TickMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, append([]string(nil), symbols...))
	return nil
}

func (f *fakeTicker) Unsubscribe([]string) error { return nil }

func (f *fakeTicker) RegisterSymbols(m map[string]uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokens == nil {
		f.tokens = make(map[string]uint32)
	}
	for s, t := range m {
		f.tokens[s] = t
	}
}

func (f *fakeTicker) OnTick(h func(models.Tick)) { f.mu.Lock(); f.onTick = h; f.mu.Unlock() }
func (f *fakeTicker) OnError(func(error))        {}
func (f *fakeTicker) OnConnect(h func())          { f.mu.Lock(); f.onConnect = h; f.mu.Unlock() }
func (f *fakeTicker) OnDisconnect(func())         {}

func (f *fakeTicker) emit(t models.Tick) {
	f.mu.Lock()
	h := f.onTick
	f.mu.Unlock()
	h(t)
}

func (f *fakeTicker) subscriptions() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.subscribed...)
}

func chain(t *testing.T) *broker.InstrumentResolver {
	t.Helper()
	var contracts []models.Contract
	token := uint32(1000)
	for strike := 16000; strike <= 19000; strike += 50 {
		for _, typ := range []string{"CE", "PE"} {
			token++
			contracts = append(contracts, models.Contract{
				Token: token, Name: "NIFTY", Exchange: models.NFO, InstrType: typ,
				Strike: float64(strike), Expiry: expiry, LotSize: 50,
			})
		}
	}
	r, err := broker.NewInstrumentResolver("NIFTY", contracts, expiry)
	require.NoError(t, err)
	return r
}

func TestSymbolsAroundATM(t *testing.T) {
	f := New(&fakeTicker{}, pricecache.NewMemoryCache(), chain(t), Options{Index: "NIFTY", OTMStrikes: 3, ITMStrikes: 2})

	got := f.Symbols(17520)
	want := []string{
		models.OptionSymbol("NIFTY", expiry, 17500, models.CE),
		models.OptionSymbol("NIFTY", expiry, 17500, models.PE),
		models.OptionSymbol("NIFTY", expiry, 17550, models.CE),
		models.OptionSymbol("NIFTY", expiry, 17450, models.PE),
		models.OptionSymbol("NIFTY", expiry, 17600, models.CE),
		models.OptionSymbol("NIFTY", expiry, 17400, models.PE),
		models.OptionSymbol("NIFTY", expiry, 17450, models.CE),
		models.OptionSymbol("NIFTY", expiry, 17550, models.PE),
		models.OptionSymbol("NIFTY", expiry, 17400, models.CE),
		models.OptionSymbol("NIFTY", expiry, 17600, models.PE),
	}
	assert.Equal(t, want, got)

	// Defaults: 15 OTM including ATM and 10 ITM per side.
	f = New(&fakeTicker{}, pricecache.NewMemoryCache(), chain(t), Options{Index: "NIFTY", ITMStrikes: 10})
	assert.Len(t, f.Symbols(17520), 50)
}

func TestRunSubscribesChainAfterFirstIndexTick(t *testing.T) {
	ticker := &fakeTicker{}
	cache := pricecache.NewMemoryCache()
	m := metrics.New()
	f := New(ticker, cache, chain(t), Options{
		Index: "NIFTY", IndexToken: 256265, OTMStrikes: 15, ITMStrikes: 10,
		Logger: zerolog.Nop(), Metrics: m,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	require.Eventually(t, func() bool { return len(ticker.subscriptions()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"NIFTY"}, ticker.subscriptions()[0])

	ts := time.Date(2024, time.October, 24, 9, 20, 0, 0, time.UTC)
	ticker.emit(models.Tick{Token: 256265, Symbol: "NIFTY", LTP: 17520, Timestamp: ts})

	require.Eventually(t, func() bool { return len(ticker.subscriptions()) == 2 }, time.Second, 5*time.Millisecond)
	options := ticker.subscriptions()[1]
	assert.Len(t, options, 50)
	sort.Strings(options)
	assert.Contains(t, options, models.OptionSymbol("NIFTY", expiry, 18200, models.CE))
	assert.Contains(t, options, models.OptionSymbol("NIFTY", expiry, 17000, models.CE))
	assert.NotContains(t, options, models.OptionSymbol("NIFTY", expiry, 16950, models.CE))

	q, ok, err := cache.Get(ctx, "NIFTY")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 17520.0, q.LTP)
	assert.Equal(t, uint32(256265), q.Token)
	assert.True(t, ts.Equal(q.Timestamp))

	sym := models.OptionSymbol("NIFTY", expiry, 17500, models.CE)
	ticker.emit(models.Tick{Token: 1, Symbol: sym, LTP: 120.5})
	q, ok, _ = cache.Get(ctx, sym)
	require.True(t, ok)
	assert.Equal(t, 120.5, q.LTP)
	assert.False(t, q.Timestamp.IsZero())

	// A later index tick does not resubscribe.
	ticker.emit(models.Tick{Token: 256265, Symbol: "NIFTY", LTP: 17600})
	assert.Len(t, ticker.subscriptions(), 2)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("feed did not stop")
	}
	ticker.mu.Lock()
	assert.True(t, ticker.closed)
	ticker.mu.Unlock()
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	cache := pricecache.NewMemoryCache()
	require.NoError(t, cache.Set(ctx, "NIFTY", pricecache.Quote{LTP: 1}))
	require.NoError(t, cache.Set(ctx, "NIFTY24O2417500CE", pricecache.Quote{LTP: 1}))
	require.NoError(t, cache.Set(ctx, "BANKNIFTY", pricecache.Quote{LTP: 1}))

	n, err := Cleanup(ctx, cache, "NIFTY")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok, _ := cache.Get(ctx, "BANKNIFTY")
	assert.True(t, ok)
}
