// Package scheduler launches one trading session per weekday on a cron
// schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"straddle-trader/internal/config"
	"straddle-trader/internal/errors"
	"straddle-trader/internal/logging"
	"straddle-trader/internal/store"
	"straddle-trader/internal/strategy"
	"straddle-trader/pkg/utils"
)

// DefaultSpec fires at 09:00:00 IST on weekdays, ahead of the earliest
// configured entry.
const DefaultSpec = "0 0 9 * * MON-FRI"

// Runner is one trading session.
type Runner interface {
	ID() string
	Run(ctx context.Context) strategy.Result
	Snapshot() strategy.Snapshot
}

// Factory builds the session for day.
type Factory func(ctx context.Context, day config.Day) (Runner, error)

// Options configures a Scheduler.
type Options struct {
	Spec   string
	Logger zerolog.Logger
	Now    func() time.Time
}

// Scheduler manages the daily session job.
type Scheduler struct {
	cron    *cron.Cron
	cfg     *config.Config
	store   store.ScheduleStore
	factory Factory
	logger  zerolog.Logger
	now     func() time.Time
	ctx     context.Context

	mu      sync.RWMutex
	current Runner
	last    *strategy.Result
	skipped string
}

// New creates a Scheduler. store may be nil, in which case only the
// per-weekday run flag in cfg gates a session.
func New(ctx context.Context, cfg *config.Config, st store.ScheduleStore, factory Factory, opts Options) (*Scheduler, error) {
	if opts.Spec == "" {
		opts.Spec = DefaultSpec
	}
	if opts.Now == nil {
		opts.Now = utils.NowIST
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(utils.IndiaLocation)),
		cfg:     cfg,
		store:   st,
		factory: factory,
		logger:  logging.WithComponent(opts.Logger, "scheduler"),
		now:     opts.Now,
		ctx:     ctx,
	}
	if _, err := s.cron.AddFunc(opts.Spec, s.job); err != nil {
		return nil, fmt.Errorf("register session job %q: %w", opts.Spec, err)
	}
	return s, nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Msg("Scheduler started")
}

// Stop stops the cron scheduler. The returned context is done once a
// running job has returned.
func (s *Scheduler) Stop() context.Context {
	ctx := s.cron.Stop()
	s.logger.Info().Msg("Scheduler stopped")
	return ctx
}

// Next returns the next scheduled launch.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) job() {
	if err := s.RunDay(s.ctx); err != nil {
		s.logger.Error().Err(err).Msg("Daily session failed")
	}
}

// RunDay runs today's session if the power switch, the run table and the
// weekday config all allow it. It blocks until the session ends.
func (s *Scheduler) RunDay(ctx context.Context) error {
	if ctx.Err() != nil {
		return errors.ErrSessionStopped
	}
	now := s.now()
	weekday := now.Weekday()

	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return errors.ErrSessionRunning
	}
	s.mu.Unlock()

	var override *utils.ClockTime
	if s.store != nil {
		plan, err := store.PlanFor(ctx, s.store, weekday)
		if err != nil {
			return fmt.Errorf("reading schedule: %w", err)
		}
		if !plan.Run {
			s.skip(plan.Reason)
			return nil
		}
		override = plan.Entry
	}

	day, err := s.cfg.Day(weekday)
	if err != nil {
		s.skip(fmt.Sprintf("no settings for %s", utils.WeekdayKey(weekday)))
		return nil
	}
	if !day.Run {
		s.skip(utils.WeekdayKey(weekday) + " not enabled in config")
		return nil
	}
	if override != nil {
		if !override.Before(day.Exit) {
			return errors.NewValidationError("algo_run_config.time", override.String(), "must be before exit_time "+day.Exit.String())
		}
		day.Entry = *override
	}

	runner, err := s.factory(ctx, day)
	if err != nil {
		return fmt.Errorf("building session: %w", err)
	}

	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return errors.ErrSessionRunning
	}
	s.current = runner
	s.skipped = ""
	s.mu.Unlock()

	s.logger.Info().
		Str("session_id", runner.ID()).
		Str("weekday", utils.WeekdayKey(weekday)).
		Str("entry", day.Entry.String()).
		Str("exit", day.Exit.String()).
		Msg("Starting session")

	res := runner.Run(ctx)

	s.mu.Lock()
	s.current = nil
	s.last = &res
	s.mu.Unlock()
	return res.Err
}

func (s *Scheduler) skip(reason string) {
	s.mu.Lock()
	s.skipped = reason
	s.mu.Unlock()
	s.logger.Info().Str("reason", reason).Msg("Skipping today's session")
}

// Current returns the running session, if any.
func (s *Scheduler) Current() Runner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Last returns the most recent finished session's result.
func (s *Scheduler) Last() (strategy.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return strategy.Result{}, false
	}
	return *s.last, true
}

// Skipped returns why the latest launch did not start a session.
func (s *Scheduler) Skipped() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.skipped
}
