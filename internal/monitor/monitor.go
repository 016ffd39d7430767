// Package monitor watches registered price thresholds and reports the ones
// that fire.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"straddle-trader/internal/errors"
	"straddle-trader/internal/logging"
)

// Phase is the shifting phase a trigger belongs to.
type Phase string

const (
	PhaseFirst       Phase = "FIRST"
	PhaseSecondEarly Phase = "SECOND_EARLY"
	PhaseSecondLate  Phase = "SECOND_LATE"
)

// Command is the action requested when a trigger fires.
type Command string

const (
	ShiftStraddle Command = "SHIFT_STRADDLE"
	ShiftCEHedge  Command = "SHIFT_CE_HEDGE"
	ShiftPEHedge  Command = "SHIFT_PE_HEDGE"
)

// Direction is the side of the reference price that was crossed.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// PriceSource resolves a symbol to its latest price.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// Trigger fires when the symbol moves more than UpOffset above or
// DownOffset below ReferencePrice.
type Trigger struct {
	ID             uint64
	Symbol         string
	Phase          Phase
	ReferencePrice float64
	UpOffset       float64
	DownOffset     float64
	OnUp           Command
	OnDown         Command
	RegisteredAt   time.Time
}

// Handle identifies a registered trigger.
type Handle struct {
	id uint64
}

// Valid reports whether h was returned by Register.
func (h Handle) Valid() bool { return h.id != 0 }

// ID is the Trigger.ID the handle refers to.
func (h Handle) ID() uint64 { return h.id }

// Firing is delivered once per fired trigger.
type Firing struct {
	Trigger   Trigger
	Direction Direction
	Command   Command
	LivePrice float64
	At        time.Time
}

// Options configures a Monitor.
type Options struct {
	Interval time.Duration
	// Buffer is the firings channel capacity.
	Buffer int
	Logger zerolog.Logger
	Now    func() time.Time
}

// Monitor holds the live triggers for one trading session.
type Monitor struct {
	prices  PriceSource
	opts    Options
	logger  zerolog.Logger
	firings chan Firing
	stopped atomic.Bool

	mu       sync.Mutex
	triggers []*Trigger
	nextID   uint64
}

// New creates a Monitor reading prices from prices.
func New(prices PriceSource, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 8
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		prices:  prices,
		opts:    opts,
		logger:  logging.WithComponent(opts.Logger, "monitor"),
		firings: make(chan Firing, opts.Buffer),
	}
}

// Firings delivers fired triggers. The trigger is already removed from the
// registry when its Firing is sent.
func (m *Monitor) Firings() <-chan Firing {
	return m.firings
}

// Register adds a trigger. It fails with a DuplicateTriggerError while
// another trigger for the same symbol and phase is live.
func (m *Monitor) Register(symbol string, phase Phase, reference, upOffset float64, onUp Command, downOffset float64, onDown Command) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.triggers {
		if t.Symbol == symbol && t.Phase == phase {
			return Handle{}, &errors.DuplicateTriggerError{Symbol: symbol, Phase: string(phase)}
		}
	}

	m.nextID++
	t := &Trigger{
		ID:             m.nextID,
		Symbol:         symbol,
		Phase:          phase,
		ReferencePrice: reference,
		UpOffset:       upOffset,
		DownOffset:     downOffset,
		OnUp:           onUp,
		OnDown:         onDown,
		RegisteredAt:   m.opts.Now(),
	}
	m.triggers = append(m.triggers, t)

	m.logger.Info().
		Str("symbol", symbol).
		Str("phase", string(phase)).
		Float64("reference", reference).
		Float64("above", reference+upOffset).
		Float64("below", reference-downOffset).
		Msg("Trigger registered")

	return Handle{id: t.ID}, nil
}

// Deregister removes the trigger if it is still live.
func (m *Monitor) Deregister(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(map[uint64]bool{h.id: true}) > 0
}

// Live returns a copy of the live triggers.
func (m *Monitor) Live() []Trigger {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Trigger, len(m.triggers))
	for i, t := range m.triggers {
		out[i] = *t
	}
	return out
}

func (m *Monitor) removeLocked(ids map[uint64]bool) int {
	kept := m.triggers[:0]
	removed := 0
	for _, t := range m.triggers {
		if ids[t.ID] {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	// Clear the tail so removed triggers are not retained.
	for i := len(kept); i < len(m.triggers); i++ {
		m.triggers[i] = nil
	}
	m.triggers = kept
	return removed
}

// Evaluate runs one pass over a snapshot of the live triggers. Fired
// triggers are removed in one batch after the scan and then delivered on
// Firings. A missing price ends the scan early with a PriceUnavailableError;
// triggers that fired before it are still removed and delivered.
func (m *Monitor) Evaluate(ctx context.Context) error {
	snapshot := m.Live()

	var (
		fired   []Firing
		scanErr error
	)
	for _, t := range snapshot {
		live, err := m.prices.Price(ctx, t.Symbol)
		if err != nil {
			scanErr = err
			break
		}

		diff := live - t.ReferencePrice
		var dir Direction
		switch {
		case diff > t.UpOffset:
			dir = Up
		case diff < -t.DownOffset:
			dir = Down
		default:
			continue
		}

		cmd := t.OnUp
		if dir == Down {
			cmd = t.OnDown
		}
		fired = append(fired, Firing{Trigger: t, Direction: dir, Command: cmd, LivePrice: live, At: m.opts.Now()})
	}

	if len(fired) > 0 {
		fired = m.retire(fired)
		for _, f := range fired {
			logging.LogTrigger(m.logger, f.Trigger.Symbol, string(f.Trigger.Phase), string(f.Direction), f.Trigger.ReferencePrice, f.LivePrice)
			select {
			case m.firings <- f:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return scanErr
}

// retire removes fired triggers and drops any that were deregistered while
// the pass was reading prices.
func (m *Monitor) retire(fired []Firing) []Firing {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := make(map[uint64]bool, len(m.triggers))
	for _, t := range m.triggers {
		live[t.ID] = true
	}

	ids := make(map[uint64]bool, len(fired))
	out := fired[:0]
	for _, f := range fired {
		if live[f.Trigger.ID] {
			ids[f.Trigger.ID] = true
			out = append(out, f)
		}
	}
	m.removeLocked(ids)
	return out
}

// Run evaluates every interval until Stop is called or ctx is done. The stop
// flag is checked at the top of each iteration, so one in-flight pass may
// complete after Stop.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", m.opts.Interval).Msg("Price monitor started")
	for {
		if m.stopped.Load() {
			m.logger.Info().Msg("Price monitor stopped")
			return nil
		}

		if err := m.Evaluate(ctx); err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.IsPriceUnavailable(err):
				m.logger.Warn().Err(err).Msg("Skipping monitor pass")
			default:
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Stop asks Run to return before its next pass.
func (m *Monitor) Stop() {
	m.stopped.Store(true)
}

// Stopped reports whether Stop was called.
func (m *Monitor) Stopped() bool {
	return m.stopped.Load()
}
