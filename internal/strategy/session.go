package strategy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"straddle-trader/internal/broker"
	"straddle-trader/internal/config"
	"straddle-trader/internal/logging"
	"straddle-trader/internal/market"
	"straddle-trader/internal/metrics"
	"straddle-trader/internal/models"
	"straddle-trader/internal/monitor"
	"straddle-trader/internal/notify"
	"straddle-trader/internal/pricecache"
	"straddle-trader/pkg/utils"
)

// SettingsFromConfig builds controller settings for one weekday.
func SettingsFromConfig(cfg *config.Config, day config.Day) Settings {
	s := Settings{
		Day:               day,
		QuantityPerLot:    cfg.Strategy.QuantityPerLot,
		SecondShiftCutoff: cfg.SecondShiftCutoff(),
		TrancheDelay:      cfg.Strategy.TrancheDelay,
		LoopInterval:      cfg.Strategy.LoopInterval,
		ManualExitKey:     cfg.Redis.ManualExitKey,
		Exchange:          models.Exchange(cfg.Trading.Exchange),
		Product:           models.ProductType(cfg.Trading.Product),
	}
	if cfg.IsPaperMode() {
		s.DryRunMarginPerLot = cfg.Strategy.DryRun.MarginPerLot
	}
	return s
}

// SessionDeps are the long-lived collaborators shared across sessions.
type SessionDeps struct {
	Cache    pricecache.Cache
	Gateway  broker.Gateway
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Result summarises a finished session.
type Result struct {
	SessionID string
	Snapshot  Snapshot
	Err       error
}

// Session is one trading day: a price monitor and the controller that owns
// it.
type Session struct {
	id         string
	cache      pricecache.Cache
	monitor    *monitor.Monitor
	controller *Controller
	logger     zerolog.Logger
	exitKey    string
}

// NewSession wires a session for day against options expiring on expiry.
func NewSession(cfg *config.Config, day config.Day, expiry time.Time, deps SessionDeps) *Session {
	if deps.Now == nil {
		deps.Now = utils.NowIST
	}
	id := uuid.NewString()
	logger := logging.WithSession(deps.Logger, id)

	prices := market.New(deps.Cache, market.Options{
		Index:      cfg.Strategy.Index,
		Expiry:     expiry,
		StrikeStep: cfg.Strategy.StrikeStep,
		StaleAfter: cfg.Strategy.StaleAfter,
		ScanDepth:  cfg.Strategy.HedgeScanDepth,
		Now:        deps.Now,
	})
	mon := monitor.New(prices, monitor.Options{
		Interval: cfg.Strategy.MonitorInterval,
		Logger:   logger,
		Now:      deps.Now,
	})
	ctrl := NewController(SettingsFromConfig(cfg, day), Deps{
		Market:   prices,
		Monitor:  mon,
		Gateway:  deps.Gateway,
		Flags:    deps.Cache,
		Notifier: deps.Notifier,
		Metrics:  deps.Metrics,
		Logger:   logger,
		Now:      deps.Now,
	})

	return &Session{
		id:         id,
		cache:      deps.Cache,
		monitor:    mon,
		controller: ctrl,
		logger:     logging.WithComponent(logger, "session"),
		exitKey:    cfg.Redis.ManualExitKey,
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Controller returns the session's controller.
func (s *Session) Controller() *Controller { return s.controller }

// Snapshot returns the controller's current state.
func (s *Session) Snapshot() Snapshot { return s.controller.Snapshot() }

// Run trades until the controller exits or ctx is cancelled. The monitor is
// stopped when the controller returns.
func (s *Session) Run(ctx context.Context) Result {
	if s.exitKey != "" {
		if err := s.cache.SetFlag(ctx, s.exitKey, false); err != nil {
			s.logger.Warn().Err(err).Msg("Could not clear manual exit flag")
		}
	}

	monCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()

	g, gctx := errgroup.WithContext(monCtx)
	g.Go(func() error {
		return s.monitor.Run(gctx)
	})
	g.Go(func() error {
		defer stopMonitor()
		return s.controller.Run(gctx)
	})

	err := g.Wait()
	if err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("Session ended with error")
	}

	snap := s.controller.Snapshot()
	s.logger.Info().
		Str("state", string(snap.State)).
		Str("reason", string(snap.ExitReason)).
		Float64("pnl", snap.PnL.Total).
		Msg("Session finished")
	return Result{SessionID: s.id, Snapshot: snap, Err: err}
}
