package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"straddle-trader/internal/errors"
	"straddle-trader/pkg/utils"
)

var weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// SQLiteStore implements ScheduleStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the schedule database. A new database
// starts powered off with every weekday disabled.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The dashboard writes while the daemon reads.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates both tables and seeds their default rows.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Master switch toggled from the dashboard
	CREATE TABLE IF NOT EXISTS power_algo_system (
		id INTEGER PRIMARY KEY,
		"on" BOOLEAN NOT NULL DEFAULT 0
	);

	-- One row per weekday; time is HH:MM or NULL
	CREATE TABLE IF NOT EXISTS algo_run_config (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		day TEXT NOT NULL UNIQUE,
		run BOOLEAN NOT NULL DEFAULT 1,
		time TEXT
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if _, err := s.db.Exec(`INSERT OR IGNORE INTO power_algo_system (id, "on") VALUES (1, 0)`); err != nil {
		return err
	}
	for _, d := range weekdays {
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO algo_run_config (day, run, time) VALUES (?, 0, NULL)`, utils.WeekdayKey(d)); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database file is still reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Power reports whether the system is switched on.
func (s *SQLiteStore) Power(ctx context.Context) (bool, error) {
	var on bool
	err := s.db.QueryRowContext(ctx, `SELECT "on" FROM power_algo_system ORDER BY id LIMIT 1`).Scan(&on)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read power switch: %w", err)
	}
	return on, nil
}

// SetPower switches the system on or off.
func (s *SQLiteStore) SetPower(ctx context.Context, on bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE power_algo_system SET "on" = ? WHERE id = 1`, on)
	if err != nil {
		return fmt.Errorf("failed to set power switch: %w", err)
	}
	return nil
}

// RunConfig returns the run table row for day.
func (s *SQLiteStore) RunConfig(ctx context.Context, day time.Weekday) (DaySchedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT day, run, time FROM algo_run_config WHERE day = ?`, utils.WeekdayKey(day))
	ds, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return DaySchedule{Day: day}, nil
	}
	if err != nil {
		return DaySchedule{}, fmt.Errorf("failed to read run config: %w", err)
	}
	return ds, nil
}

// RunConfigs returns every row of the run table in table order.
func (s *SQLiteStore) RunConfigs(ctx context.Context) ([]DaySchedule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT day, run, time FROM algo_run_config ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query run config: %w", err)
	}
	defer rows.Close()

	var out []DaySchedule
	for rows.Next() {
		ds, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run config: %w", err)
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

// UpdateRunConfig writes one weekday row.
func (s *SQLiteStore) UpdateRunConfig(ctx context.Context, ds DaySchedule) error {
	var clock sql.NullString
	if ds.Time != nil {
		clock = sql.NullString{String: ds.Time.String(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE algo_run_config SET run = ?, time = ? WHERE day = ?
	`, ds.Run, clock, utils.WeekdayKey(ds.Day))
	if err != nil {
		return fmt.Errorf("failed to update run config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewValidationError("day", utils.WeekdayKey(ds.Day), "not a trading weekday")
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(sc scanner) (DaySchedule, error) {
	var (
		day   string
		run   bool
		clock sql.NullString
	)
	if err := sc.Scan(&day, &run, &clock); err != nil {
		return DaySchedule{}, err
	}
	d, err := utils.ParseWeekday(day)
	if err != nil {
		return DaySchedule{}, err
	}
	ds := DaySchedule{Day: d, Run: run}
	if clock.Valid && clock.String != "" {
		// Rows written by the dashboard may carry seconds.
		raw := clock.String
		if len(raw) > 5 {
			raw = raw[:5]
		}
		t, err := utils.ParseClock(raw)
		if err != nil {
			return DaySchedule{}, fmt.Errorf("run config %s: %w", day, err)
		}
		ds.Time = &t
	}
	return ds, nil
}
