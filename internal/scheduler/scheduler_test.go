package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"straddle-trader/internal/config"
	"straddle-trader/internal/errors"
	"straddle-trader/internal/store"
	"straddle-trader/internal/strategy"
	"straddle-trader/internal/trading"
	"straddle-trader/pkg/utils"
)

// 2024-10-24 is a Thursday.
var thursday = time.Date(2024, time.October, 24, 9, 0, 0, 0, utils.IndiaLocation)

type fakeRunner struct {
	id      string
	release chan struct{}
}

func (r *fakeRunner) ID() string { return r.id }

func (r *fakeRunner) Run(ctx context.Context) strategy.Result {
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
		}
	}
	return strategy.Result{SessionID: r.id, Snapshot: strategy.Snapshot{State: strategy.StateExited, ExitReason: trading.ExitReasonTarget}}
}

func (r *fakeRunner) Snapshot() strategy.Snapshot {
	return strategy.Snapshot{State: strategy.StateEntryTaken}
}

type recorder struct {
	mu     sync.Mutex
	days   []config.Day
	runner *fakeRunner
}

func (r *recorder) factory(_ context.Context, day config.Day) (Runner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.days = append(r.days, day)
	if r.runner != nil {
		return r.runner, nil
	}
	return &fakeRunner{id: "s-1"}, nil
}

func (r *recorder) calls() []config.Day {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]config.Day(nil), r.days...)
}

func testConfig(run bool) *config.Config {
	return &config.Config{
		Strategy: config.StrategyConfig{
			Days: map[string]config.DayConfig{
				"thursday": {
					Run: run, EntryTime: "09:20", ExitTime: "15:10",
					StopLossPercent: 1, TargetPercent: 2, CapitalToTradePercent: 90,
					ExpectedMarginPerLot: 50000, CEHedgePremium: 5, PEHedgePremium: 5,
				},
			},
		},
	}
}

func newStore(t *testing.T, power bool) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "schedule.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.SetPower(context.Background(), power))
	require.NoError(t, st.UpdateRunConfig(context.Background(), store.DaySchedule{Day: time.Thursday, Run: true}))
	return st
}

func newScheduler(t *testing.T, cfg *config.Config, st store.ScheduleStore, rec *recorder) *Scheduler {
	t.Helper()
	s, err := New(context.Background(), cfg, st, rec.factory, Options{
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return thursday },
	})
	require.NoError(t, err)
	return s
}

func TestRunDayLaunchesSession(t *testing.T) {
	rec := &recorder{}
	s := newScheduler(t, testConfig(true), newStore(t, true), rec)

	require.NoError(t, s.RunDay(context.Background()))

	calls := rec.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, time.Thursday, calls[0].Weekday)
	assert.Equal(t, "09:20", calls[0].Entry.String())

	res, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, "s-1", res.SessionID)
	assert.Equal(t, trading.ExitReasonTarget, res.Snapshot.ExitReason)
	assert.Nil(t, s.Current())
}

func TestRunDayAppliesEntryOverride(t *testing.T) {
	rec := &recorder{}
	st := newStore(t, true)
	entry := utils.MustParseClock("10:15")
	require.NoError(t, st.UpdateRunConfig(context.Background(), store.DaySchedule{Day: time.Thursday, Run: true, Time: &entry}))
	s := newScheduler(t, testConfig(true), st, rec)

	require.NoError(t, s.RunDay(context.Background()))
	calls := rec.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "10:15", calls[0].Entry.String())
}

func TestRunDayRejectsOverrideAfterExit(t *testing.T) {
	rec := &recorder{}
	st := newStore(t, true)
	entry := utils.MustParseClock("15:30")
	require.NoError(t, st.UpdateRunConfig(context.Background(), store.DaySchedule{Day: time.Thursday, Run: true, Time: &entry}))
	s := newScheduler(t, testConfig(true), st, rec)

	err := s.RunDay(context.Background())
	assert.ErrorIs(t, err, errors.ErrConfigInvalid)
	assert.Empty(t, rec.calls())
}

func TestRunDaySkips(t *testing.T) {
	t.Run("power off", func(t *testing.T) {
		rec := &recorder{}
		s := newScheduler(t, testConfig(true), newStore(t, false), rec)
		require.NoError(t, s.RunDay(context.Background()))
		assert.Empty(t, rec.calls())
		assert.Equal(t, "system powered off", s.Skipped())
	})

	t.Run("weekday disabled in config", func(t *testing.T) {
		rec := &recorder{}
		s := newScheduler(t, testConfig(false), newStore(t, true), rec)
		require.NoError(t, s.RunDay(context.Background()))
		assert.Empty(t, rec.calls())
		assert.Contains(t, s.Skipped(), "thursday")
	})

	t.Run("no settings", func(t *testing.T) {
		rec := &recorder{}
		cfg := testConfig(true)
		cfg.Strategy.Days = nil
		s := newScheduler(t, cfg, nil, rec)
		require.NoError(t, s.RunDay(context.Background()))
		assert.Empty(t, rec.calls())
	})
}

func TestRunDayRefusesSecondSession(t *testing.T) {
	runner := &fakeRunner{id: "s-1", release: make(chan struct{})}
	rec := &recorder{runner: runner}
	s := newScheduler(t, testConfig(true), nil, rec)

	done := make(chan error, 1)
	go func() { done <- s.RunDay(context.Background()) }()
	require.Eventually(t, func() bool { return s.Current() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, strategy.StateEntryTaken, s.Current().Snapshot().State)

	assert.ErrorIs(t, s.RunDay(context.Background()), errors.ErrSessionRunning)

	close(runner.release)
	require.NoError(t, <-done)
	assert.Nil(t, s.Current())
}

func TestRunDayAfterShutdown(t *testing.T) {
	s := newScheduler(t, testConfig(true), nil, &recorder{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.RunDay(ctx), errors.ErrSessionStopped)
}

func TestNextLaunch(t *testing.T) {
	s := newScheduler(t, testConfig(true), nil, &recorder{})
	s.Start()
	defer s.Stop()

	next := s.Next()
	require.False(t, next.IsZero())
	next = next.In(utils.IndiaLocation)
	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.NotEqual(t, time.Saturday, next.Weekday())
	assert.NotEqual(t, time.Sunday, next.Weekday())

	_, err := New(context.Background(), testConfig(true), nil, (&recorder{}).factory, Options{Spec: "not a spec"})
	assert.Error(t, err)
}
