package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kitemodels "github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"straddle-trader/internal/logging"
	"straddle-trader/internal/models"
)

// ZerodhaTicker streams Kite websocket ticks for registered symbols.
// Reconnects are left to kiteticker; after each reconnect every
// subscription is replayed with its mode.
type ZerodhaTicker struct {
	apiKey      string
	accessToken string
	maxRetries  int
	maxDelay    time.Duration
	logger      zerolog.Logger

	mu        sync.RWMutex
	conn      *kiteticker.Ticker
	connected bool
	announced bool
	tokens    map[string]uint32
	symbols   map[uint32]string
	modes     map[uint32]TickMode

	onTick       func(models.Tick)
	onError      func(error)
	onConnect    func()
	onDisconnect func()

	// kiteticker writes are not safe for concurrent use.
	writeMu sync.Mutex
}

// ZerodhaTickerConfig holds configuration for the ticker.
type ZerodhaTickerConfig struct {
	APIKey      string
	AccessToken string
	// MaxRetries bounds kiteticker's reconnect attempts. Default 50, enough
	// to ride out a few minutes of network loss during a session.
	MaxRetries int
	// MaxDelay caps the reconnect backoff. kiteticker rejects values under 5s.
	MaxDelay time.Duration
	Logger   zerolog.Logger
}

func NewZerodhaTicker(cfg ZerodhaTickerConfig) *ZerodhaTicker {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 50
	}
	if cfg.MaxDelay < 5*time.Second {
		cfg.MaxDelay = 30 * time.Second
	}
	return &ZerodhaTicker{
		apiKey:      cfg.APIKey,
		accessToken: cfg.AccessToken,
		maxRetries:  cfg.MaxRetries,
		maxDelay:    cfg.MaxDelay,
		logger:      logging.WithComponent(cfg.Logger, "ticker"),
		tokens:      make(map[string]uint32),
		symbols:     make(map[uint32]string),
		modes:       make(map[uint32]TickMode),
	}
}

// Connect opens the websocket and blocks until the first connect, ctx ends,
// or 30s pass. The OnConnect handler runs once, on the first connect only.
func (t *ZerodhaTicker) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	conn := kiteticker.New(t.apiKey, t.accessToken)
	conn.SetAutoReconnect(true)
	conn.SetReconnectMaxRetries(t.maxRetries)
	if err := conn.SetReconnectMaxDelay(t.maxDelay); err != nil {
		t.logger.Warn().Err(err).Dur("max_delay", t.maxDelay).Msg("Keeping default reconnect delay")
	}
	t.conn = conn
	t.mu.Unlock()

	up := make(chan struct{}, 1)
	conn.OnConnect(func() { t.handleConnect(up) })
	conn.OnClose(t.handleClose)
	conn.OnError(t.emitError)
	conn.OnReconnect(func(attempt int, delay time.Duration) {
		t.logger.Warn().Int("attempt", attempt).Dur("delay", delay).Msg("Ticker reconnecting")
	})
	conn.OnNoReconnect(func(attempt int) {
		t.emitError(fmt.Errorf("ticker gave up after %d reconnect attempts", attempt))
	})
	conn.OnTick(func(tick kitemodels.Tick) {
		t.mu.RLock()
		h := t.onTick
		t.mu.RUnlock()
		if h != nil {
			h(t.convertTick(tick))
		}
	})

	go conn.ServeWithContext(ctx)

	timeout := time.NewTimer(30 * time.Second)
	defer timeout.Stop()
	select {
	case <-up:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout.C:
		return fmt.Errorf("ticker: no connection after 30s")
	}
}

func (t *ZerodhaTicker) handleConnect(up chan<- struct{}) {
	t.mu.Lock()
	t.connected = true
	first := !t.announced
	t.announced = true
	h := t.onConnect
	t.mu.Unlock()

	select {
	case up <- struct{}{}:
	default:
	}

	if !first {
		t.logger.Info().Msg("Ticker reconnected, replaying subscriptions")
		t.resubscribe()
		return
	}
	if h != nil {
		go h()
	}
}

func (t *ZerodhaTicker) handleClose(code int, reason string) {
	t.mu.Lock()
	was := t.connected
	t.connected = false
	h := t.onDisconnect
	t.mu.Unlock()

	t.logger.Warn().Int("code", code).Str("reason", reason).Msg("Ticker closed")
	if was && h != nil {
		go h()
	}
}

func (t *ZerodhaTicker) emitError(err error) {
	t.mu.RLock()
	h := t.onError
	t.mu.RUnlock()
	if h != nil {
		go h(err)
	}
}

// Disconnect closes the websocket and stops reconnecting.
func (t *ZerodhaTicker) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.connected = false
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	conn.Stop()
	return conn.Close()
}

// Subscribe streams the given registered symbols in mode. Unregistered
// symbols are skipped.
func (t *ZerodhaTicker) Subscribe(symbols []string, mode TickMode) error {
	t.mu.Lock()
	conn, connected := t.conn, t.connected
	if !connected {
		t.mu.Unlock()
		return fmt.Errorf("ticker: subscribe before connect")
	}
	tokens := t.lookupLocked(symbols)
	for _, tok := range tokens {
		t.modes[tok] = mode
	}
	t.mu.Unlock()

	return t.write(conn, mode, tokens)
}

func (t *ZerodhaTicker) Unsubscribe(symbols []string) error {
	t.mu.Lock()
	conn, connected := t.conn, t.connected
	if !connected {
		t.mu.Unlock()
		return fmt.Errorf("ticker: unsubscribe before connect")
	}
	tokens := t.lookupLocked(symbols)
	for _, tok := range tokens {
		delete(t.modes, tok)
	}
	t.mu.Unlock()

	if len(tokens) == 0 {
		return nil
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.Unsubscribe(tokens); err != nil {
		return fmt.Errorf("ticker unsubscribe %d tokens: %w", len(tokens), err)
	}
	return nil
}

func (t *ZerodhaTicker) lookupLocked(symbols []string) []uint32 {
	tokens := make([]uint32, 0, len(symbols))
	for _, s := range symbols {
		if tok, ok := t.tokens[s]; ok {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func (t *ZerodhaTicker) write(conn *kiteticker.Ticker, mode TickMode, tokens []uint32) error {
	if len(tokens) == 0 {
		return nil
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.Subscribe(tokens); err != nil {
		return fmt.Errorf("ticker subscribe %d tokens: %w", len(tokens), err)
	}
	if err := conn.SetMode(kiteMode(mode), tokens); err != nil {
		return fmt.Errorf("ticker mode %s: %w", mode, err)
	}
	return nil
}

func (t *ZerodhaTicker) resubscribe() {
	t.mu.RLock()
	conn := t.conn
	byMode := make(map[TickMode][]uint32)
	for tok, mode := range t.modes {
		byMode[mode] = append(byMode[mode], tok)
	}
	t.mu.RUnlock()
	if conn == nil {
		return
	}
	for mode, tokens := range byMode {
		if err := t.write(conn, mode, tokens); err != nil {
			t.logger.Error().Err(err).Msg("Resubscribe failed")
		}
	}
}

// OnTick sets the tick handler. It runs on the websocket read goroutine.
func (t *ZerodhaTicker) OnTick(h func(models.Tick)) {
	t.mu.Lock()
	t.onTick = h
	t.mu.Unlock()
}

func (t *ZerodhaTicker) OnError(h func(error)) {
	t.mu.Lock()
	t.onError = h
	t.mu.Unlock()
}

func (t *ZerodhaTicker) OnConnect(h func()) {
	t.mu.Lock()
	t.onConnect = h
	t.mu.Unlock()
}

func (t *ZerodhaTicker) OnDisconnect(h func()) {
	t.mu.Lock()
	t.onDisconnect = h
	t.mu.Unlock()
}

// RegisterSymbols maps cache symbols to instrument tokens. Ticks for
// unregistered tokens arrive with an empty Symbol.
func (t *ZerodhaTicker) RegisterSymbols(symbolTokens map[string]uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for s, tok := range symbolTokens {
		t.tokens[s] = tok
		t.symbols[tok] = s
	}
}

func (t *ZerodhaTicker) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

func (t *ZerodhaTicker) convertTick(tick kitemodels.Tick) models.Tick {
	t.mu.RLock()
	symbol := t.symbols[tick.InstrumentToken]
	t.mu.RUnlock()

	// LTP packets carry no exchange timestamp.
	ts := tick.Timestamp.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return models.Tick{
		Token:     tick.InstrumentToken,
		Symbol:    symbol,
		LTP:       tick.LastPrice,
		Timestamp: ts,
	}
}

func kiteMode(mode TickMode) kiteticker.Mode {
	switch mode {
	case TickModeFull:
		return kiteticker.ModeFull
	case TickModeQuote:
		return kiteticker.ModeQuote
	default:
		return kiteticker.ModeLTP
	}
}

var _ Ticker = (*ZerodhaTicker)(nil)
