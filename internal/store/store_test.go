package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"straddle-trader/internal/errors"
	"straddle-trader/pkg/utils"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "schedule.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStoreSeedsDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	on, err := s.Power(ctx)
	require.NoError(t, err)
	assert.False(t, on)

	rows, err := s.RunConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, time.Monday, rows[0].Day)
	assert.Equal(t, time.Friday, rows[4].Day)
	for _, r := range rows {
		assert.False(t, r.Run)
		assert.Nil(t, r.Time)
	}
}

func TestReopenKeepsRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "schedule.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SetPower(ctx, true))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	on, err := s.Power(ctx)
	require.NoError(t, err)
	assert.True(t, on)
	rows, err := s.RunConfigs(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestUpdateRunConfig(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	entry := utils.MustParseClock("09:35")
	require.NoError(t, s.UpdateRunConfig(ctx, DaySchedule{Day: time.Thursday, Run: true, Time: &entry}))

	got, err := s.RunConfig(ctx, time.Thursday)
	require.NoError(t, err)
	assert.True(t, got.Run)
	require.NotNil(t, got.Time)
	assert.Equal(t, "09:35", got.Time.String())

	require.NoError(t, s.UpdateRunConfig(ctx, DaySchedule{Day: time.Thursday, Run: true}))
	got, err = s.RunConfig(ctx, time.Thursday)
	require.NoError(t, err)
	assert.Nil(t, got.Time)

	err = s.UpdateRunConfig(ctx, DaySchedule{Day: time.Sunday, Run: true})
	assert.ErrorIs(t, err, errors.ErrConfigInvalid)
}

func TestDashboardTimeWithSeconds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.db.Exec(`UPDATE algo_run_config SET run = 1, time = '09:20:00.000000' WHERE day = 'monday'`)
	require.NoError(t, err)

	got, err := s.RunConfig(ctx, time.Monday)
	require.NoError(t, err)
	require.NotNil(t, got.Time)
	assert.Equal(t, "09:20", got.Time.String())
}

func TestPlanFor(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	entry := utils.MustParseClock("10:00")
	require.NoError(t, s.UpdateRunConfig(ctx, DaySchedule{Day: time.Wednesday, Run: true, Time: &entry}))

	plan, err := PlanFor(ctx, s, time.Wednesday)
	require.NoError(t, err)
	assert.False(t, plan.Run)
	assert.Equal(t, "system powered off", plan.Reason)

	require.NoError(t, s.SetPower(ctx, true))

	plan, err = PlanFor(ctx, s, time.Wednesday)
	require.NoError(t, err)
	assert.True(t, plan.Run)
	require.NotNil(t, plan.Entry)
	assert.Equal(t, "10:00", plan.Entry.String())

	plan, err = PlanFor(ctx, s, time.Tuesday)
	require.NoError(t, err)
	assert.False(t, plan.Run)
	assert.Equal(t, "tuesday disabled", plan.Reason)

	// Weekend days have no row.
	plan, err = PlanFor(ctx, s, time.Saturday)
	require.NoError(t, err)
	assert.False(t, plan.Run)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
}
