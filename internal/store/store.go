// Package store provides the schedule persistence shared with the dashboard.
package store

import (
	"context"
	"time"

	"straddle-trader/pkg/utils"
)

// ScheduleStore reads and edits the system power switch and the per-weekday
// run table.
type ScheduleStore interface {
	// Power
	Power(ctx context.Context) (bool, error)
	SetPower(ctx context.Context, on bool) error

	// Run table
	RunConfig(ctx context.Context, day time.Weekday) (DaySchedule, error)
	RunConfigs(ctx context.Context) ([]DaySchedule, error)
	UpdateRunConfig(ctx context.Context, s DaySchedule) error

	// Lifecycle
	Close() error
}

// DaySchedule is one weekday row of the run table.
type DaySchedule struct {
	Day time.Weekday
	Run bool
	// Time overrides the configured entry time when set.
	Time *utils.ClockTime
}

// Plan is the decision for one trading day.
type Plan struct {
	Run   bool
	Entry *utils.ClockTime
	// Reason explains a skipped day.
	Reason string
}

// PlanFor combines the power switch and the run table for day.
func PlanFor(ctx context.Context, s ScheduleStore, day time.Weekday) (Plan, error) {
	on, err := s.Power(ctx)
	if err != nil {
		return Plan{}, err
	}
	if !on {
		return Plan{Reason: "system powered off"}, nil
	}
	cfg, err := s.RunConfig(ctx, day)
	if err != nil {
		return Plan{}, err
	}
	if !cfg.Run {
		return Plan{Reason: utils.WeekdayKey(day) + " disabled"}, nil
	}
	return Plan{Run: true, Entry: cfg.Time}, nil
}
