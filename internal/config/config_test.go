package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"straddle-trader/internal/errors"
	"straddle-trader/pkg/utils"
)

func TestLoadCreatesTemplates(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.toml"))
	assert.FileExists(t, filepath.Join(dir, "credentials.toml"))

	assert.True(t, cfg.IsPaperMode())
	assert.Equal(t, "NIFTY", cfg.Strategy.Index)
	assert.Equal(t, 50, cfg.Strategy.StrikeStep)
	assert.Equal(t, 2*time.Second, cfg.Strategy.LoopInterval)
	assert.Equal(t, 3, cfg.Strategy.Orders.MaxAttempts)
	assert.Equal(t, "MANUAL_EXIT", cfg.Redis.ManualExitKey)
	assert.NotEmpty(t, cfg.Schedule.DatabasePath)
	assert.Equal(t, utils.MustParseClock("13:30"), cfg.SecondShiftCutoff())
	assert.Equal(t, time.Thursday, cfg.ExpiryWeekday())

	thu, err := cfg.Day(time.Thursday)
	require.NoError(t, err)
	assert.Equal(t, utils.MustParseClock("09:50"), thu.Entry)
	assert.Equal(t, utils.MustParseClock("15:00"), thu.Exit)
	require.NotNil(t, thu.PriceCheck)
	assert.Equal(t, 15*time.Minute, thu.PriceCheck.EntryDelay)

	mon, err := cfg.Day(time.Monday)
	require.NoError(t, err)
	assert.Nil(t, mon.PriceCheck)
}

func TestDayMissing(t *testing.T) {
	cfg := &Config{}
	_, err := cfg.Day(time.Saturday)
	assert.ErrorIs(t, err, errors.ErrConfigInvalid)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("ZERODHA_API_KEY", "kite-key")
	t.Setenv("TELEGRAM_CHAT_ID", "-100123")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "kite-key", cfg.Credentials.Zerodha.APIKey)
	assert.Equal(t, int64(-100123), cfg.Notifications.Telegram.ChatID)
}

func TestValidateRejectsBadDays(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(string) string
		field string
	}{
		{
			name:  "malformed entry time",
			edit:  func(s string) string { return strings.Replace(s, `entry_time = "09:50"`, `entry_time = "9.50"`, 1) },
			field: "strategy.days.monday.entry_time",
		},
		{
			name:  "exit before entry",
			edit:  func(s string) string { return strings.Replace(s, `exit_time = "15:00"`, `exit_time = "09:00"`, 1) },
			field: "strategy.days.monday.exit_time",
		},
		{
			name: "zero margin",
			edit: func(s string) string {
				return strings.Replace(s, "expected_margin_per_lot = 50000.0", "expected_margin_per_lot = 0.0", 1)
			},
			field: "strategy.days.monday.expected_margin_per_lot",
		},
		{
			name:  "live mode typo",
			edit:  func(s string) string { return strings.Replace(s, `mode = "paper"`, `mode = "real"`, 1) },
			field: "trading.mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(tt.edit(configTemplate)), 0644))

			_, err := Load(dir)
			require.Error(t, err)

			var ve *errors.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
			assert.ErrorIs(t, err, errors.ErrConfigInvalid)
		})
	}
}

func TestLogConfig(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "debug", Path: "/tmp/x.log", MaxSize: 5}}
	lc := cfg.LogConfig()
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "/tmp/x.log", lc.FilePath)
	assert.Equal(t, 5, lc.MaxSize)
}
