// Package strategy runs the short-straddle state machine for one trading
// session: entry, tranche deployment, straddle and hedge shifting, and
// risk-based exit.
package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"straddle-trader/internal/broker"
	"straddle-trader/internal/config"
	"straddle-trader/internal/errors"
	"straddle-trader/internal/logging"
	"straddle-trader/internal/metrics"
	"straddle-trader/internal/models"
	"straddle-trader/internal/monitor"
	"straddle-trader/internal/notify"
	"straddle-trader/internal/trading"
	"straddle-trader/pkg/utils"
)

// State is the controller's lifecycle stage.
type State string

const (
	StateWaitingEntry State = "WAITING_ENTRY"
	StateEntryTaken   State = "ENTRY_TAKEN"
	StateExited       State = "EXITED"
)

// Market is the price view the controller trades against.
type Market interface {
	Index() string
	Expiry() time.Time
	Price(ctx context.Context, symbol string) (float64, error)
	Spot(ctx context.Context) (float64, error)
	ATMStrike(ctx context.Context) (int, error)
	StraddlePremium(ctx context.Context, strike int) (float64, error)
	StrikeByPremium(ctx context.Context, target float64, typ models.OptionType) (int, error)
}

// Flags reads and writes boolean signal keys in the price cache.
type Flags interface {
	Flag(ctx context.Context, key string) (bool, error)
	SetFlag(ctx context.Context, key string, value bool) error
}

// Settings are the session's fixed parameters.
type Settings struct {
	Day               config.Day
	QuantityPerLot    int
	SecondShiftCutoff utils.ClockTime
	TrancheDelay      time.Duration
	LoopInterval      time.Duration
	ManualExitKey     string
	Exchange          models.Exchange
	Product           models.ProductType
	// DryRunMarginPerLot replaces broker-reported margin usage when set.
	DryRunMarginPerLot float64
}

// Deps are the controller's collaborators.
type Deps struct {
	Market   Market
	Monitor  *monitor.Monitor
	Gateway  broker.Gateway
	Flags    Flags
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Controller is the strategy state machine. Its state is mutated only by
// Tick and HandleFiring, which Run calls from one goroutine.
type Controller struct {
	settings Settings
	market   Market
	monitor  *monitor.Monitor
	gateway  broker.Gateway
	flags    Flags
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time

	mu sync.RWMutex

	state          State
	straddle       *models.PairInstrument
	hedge          *models.PairInstrument
	realized       float64
	lots           int
	remainingLots  int
	remainingKnown bool
	trancheDone    bool
	trancheDue     bool
	initialCapital float64
	limits         trading.RiskLimits

	marketPrice    float64
	straddleStrike int
	firstShiftDone bool
	registered     bool
	phase          monitor.Phase
	handle         monitor.Handle

	entryTime    utils.ClockTime
	entryDelayed bool
	entryAt      time.Time

	pnl        trading.Breakdown
	exitReason trading.ExitReason
	cause      error

	detached []*models.Instrument
}

// NewController creates a controller in WAITING_ENTRY.
func NewController(settings Settings, deps Deps) *Controller {
	if settings.QuantityPerLot <= 0 {
		settings.QuantityPerLot = 50
	}
	if settings.LoopInterval <= 0 {
		settings.LoopInterval = 2 * time.Second
	}
	if settings.SecondShiftCutoff == (utils.ClockTime{}) {
		settings.SecondShiftCutoff = utils.MustParseClock("13:30")
	}
	if settings.Exchange == "" {
		settings.Exchange = models.NFO
	}
	if settings.Product == "" {
		settings.Product = models.ProductMIS
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NoOpNotifier{}
	}
	if deps.Now == nil {
		deps.Now = utils.NowIST
	}
	return &Controller{
		settings:  settings,
		market:    deps.Market,
		monitor:   deps.Monitor,
		gateway:   deps.Gateway,
		flags:     deps.Flags,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    logging.WithComponent(deps.Logger, "strategy"),
		now:       deps.Now,
		state:     StateWaitingEntry,
		straddle:  &models.PairInstrument{},
		hedge:     &models.PairInstrument{},
		entryTime: settings.Day.Entry,
	}
}

// Run drives Tick every loop interval and handles trigger firings until the
// session exits or ctx is done. Cancellation flattens any open position.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.settings.LoopInterval)
	defer ticker.Stop()

	c.logger.Info().
		Str("weekday", c.settings.Day.Weekday.String()).
		Str("entry", c.settings.Day.Entry.String()).
		Str("exit", c.settings.Day.Exit.String()).
		Msg("Strategy started")

	for {
		done, err := c.Tick(ctx)
		if err != nil || done {
			return err
		}

		select {
		case <-ctx.Done():
			return c.shutdown(ctx)
		case f := <-c.monitor.Firings():
			done, err := c.HandleFiring(ctx, f)
			if err != nil || done {
				return err
			}
		case <-ticker.C:
		}
	}
}

// Tick runs one decision-loop iteration. done is true once the session has
// exited. A non-nil error is fatal; open legs have already been flattened.
func (c *Controller) Tick(ctx context.Context) (bool, error) {
	if c.State() == StateExited {
		return true, nil
	}
	now := c.now()

	if c.State() == StateWaitingEntry && !now.Before(c.entryTime.On(now)) && !c.pastExit(now) {
		if err := c.tryEntry(ctx, now); err != nil {
			if done, ferr := c.handleError(ctx, "entry", err); done {
				return true, ferr
			}
		}
	}

	if c.pastExit(now) {
		return true, c.exit(ctx, trading.ExitReasonSessionCutoff)
	}

	if c.manualExitRequested(ctx) {
		return true, c.exit(ctx, trading.ExitReasonManual)
	}

	if c.State() != StateEntryTaken {
		return false, nil
	}

	if err := c.deployTranche(ctx, now); err != nil {
		if done, ferr := c.handleError(ctx, "tranche", err); done {
			return true, ferr
		}
	}

	if err := c.registerShift(now); err != nil {
		return true, c.fail(ctx, "shift registration", err)
	}

	if c.settings.Day.HedgeShifting {
		for _, typ := range []models.OptionType{models.CE, models.PE} {
			if err := c.shiftHedge(ctx, typ); err != nil {
				if done, ferr := c.handleError(ctx, "hedge shift", err); done {
					return true, ferr
				}
			}
		}
	}

	pnl, err := trading.Aggregate(ctx, c.market, c.realized, c.straddle, c.hedge)
	if err != nil {
		if done, ferr := c.handleError(ctx, "pnl", err); done {
			return true, ferr
		}
		return false, nil
	}
	c.setPnL(pnl)

	if reason, hit := c.limits.Check(pnl.Total); hit {
		c.logger.Info().
			Str("reason", string(reason)).
			Float64("pnl", pnl.Total).
			Str("limits", c.limits.String()).
			Msg("Risk limit hit")
		return true, c.exit(ctx, reason)
	}
	return false, nil
}

// HandleFiring dispatches a fired trigger's command.
func (c *Controller) HandleFiring(ctx context.Context, f monitor.Firing) (bool, error) {
	if c.State() != StateEntryTaken {
		return c.State() == StateExited, nil
	}
	c.metrics.TriggerFired(string(f.Trigger.Phase), string(f.Direction))

	var err error
	switch f.Command {
	case monitor.ShiftStraddle:
		if f.Trigger.ID != c.handle.ID() {
			c.logger.Debug().Uint64("trigger", f.Trigger.ID).Msg("Ignoring superseded trigger")
			return false, nil
		}
		err = c.shiftStraddle(ctx)
	case monitor.ShiftCEHedge:
		err = c.shiftHedge(ctx, models.CE)
	case monitor.ShiftPEHedge:
		err = c.shiftHedge(ctx, models.PE)
	default:
		c.logger.Warn().Str("command", string(f.Command)).Msg("Unknown trigger command")
		return false, nil
	}
	if err != nil {
		return c.handleError(ctx, string(f.Command), err)
	}
	return false, nil
}

// handleError logs recoverable errors and turns the rest into a failed
// session.
func (c *Controller) handleError(ctx context.Context, stage string, err error) (bool, error) {
	if errors.IsPriceUnavailable(err) {
		c.metrics.PriceMissed("strategy")
		c.logger.Warn().Err(err).Str("stage", stage).Msg("Price unavailable, retrying next tick")
		return false, nil
	}
	return true, c.fail(ctx, stage, err)
}

func (c *Controller) pastExit(now time.Time) bool {
	return now.After(c.settings.Day.Exit.On(now))
}

func (c *Controller) manualExitRequested(ctx context.Context) bool {
	if c.flags == nil || c.settings.ManualExitKey == "" {
		return false
	}
	on, err := c.flags.Flag(ctx, c.settings.ManualExitKey)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Manual exit flag unreadable")
		return false
	}
	return on
}

// shutdown exits with the parent context cancelled.
func (c *Controller) shutdown(ctx context.Context) error {
	if c.State() == StateExited {
		return nil
	}
	c.logger.Warn().Msg("Session cancelled, flattening")
	if err := c.exit(context.WithoutCancel(ctx), trading.ExitReasonShutdown); err != nil {
		return err
	}
	return ctx.Err()
}

func (c *Controller) setPnL(pnl trading.Breakdown) {
	c.mu.Lock()
	c.pnl = pnl
	c.mu.Unlock()
	c.metrics.SetPnL(pnl.Total, pnl.Realized)
	logging.LogPnL(c.logger, pnl.Realized, pnl.Straddle, pnl.Hedge, pnl.Total)
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State returns the lifecycle stage.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Lots returns the lots deployed so far.
func (c *Controller) Lots() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lots
}

// Realized returns realized PnL from closed pairs and legs.
func (c *Controller) Realized() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.realized
}

// Result returns the exit reason and fatal cause, if any.
func (c *Controller) Result() (trading.ExitReason, trading.Breakdown, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exitReason, c.pnl, c.cause
}

func (c *Controller) notify(ctx context.Context, n notify.Notification) {
	if err := c.notifier.Send(ctx, n); err != nil {
		c.logger.Warn().Err(err).Str("title", n.Title).Msg("Notification failed")
	}
}
