package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), FixedRetryConfig(3, time.Millisecond), func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryReturnsLastError(t *testing.T) {
	calls := 0
	var retried []int
	cfg := FixedRetryConfig(3, time.Millisecond)
	cfg.OnRetry = func(attempt int, err error) { retried = append(retried, attempt) }

	err := Retry(context.Background(), cfg, func() error {
		calls++
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetryNonRetryable(t *testing.T) {
	calls := 0
	fatal := errors.New("fatal")
	cfg := FixedRetryConfig(5, time.Millisecond)
	cfg.Retryable = func(err error) bool { return !errors.Is(err, fatal) }

	err := Retry(context.Background(), cfg, func() error {
		calls++
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, FixedRetryConfig(3, time.Second), func() error {
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, CalculateBackoff(0, 100*time.Millisecond, time.Second, 2))
	assert.Equal(t, 400*time.Millisecond, CalculateBackoff(2, 100*time.Millisecond, time.Second, 2))
	assert.Equal(t, time.Second, CalculateBackoff(10, 100*time.Millisecond, time.Second, 2))
	assert.Equal(t, 500*time.Millisecond, CalculateBackoff(4, 500*time.Millisecond, 500*time.Millisecond, 1))
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:50")
	require.NoError(t, err)
	assert.Equal(t, ClockTime{Hour: 9, Minute: 50}, c)
	assert.Equal(t, "09:50", c.String())

	_, err = ParseClock("9.50")
	assert.Error(t, err)

	assert.True(t, MustParseClock("13:29").Before(MustParseClock("13:30")))
	assert.Equal(t, MustParseClock("10:05"), MustParseClock("09:50").Add(15*time.Minute))
}

func TestClockOn(t *testing.T) {
	day := time.Date(2024, 10, 17, 11, 7, 3, 0, IndiaLocation)
	got := MustParseClock("15:00").On(day)
	assert.Equal(t, time.Date(2024, 10, 17, 15, 0, 0, 0, IndiaLocation), got)
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("Thursday")
	require.NoError(t, err)
	assert.Equal(t, time.Thursday, d)
	assert.Equal(t, "thursday", WeekdayKey(d))

	_, err = ParseWeekday("funday")
	assert.Error(t, err)
}

func TestNextWeekday(t *testing.T) {
	mon := time.Date(2024, 10, 14, 10, 0, 0, 0, IndiaLocation)
	assert.Equal(t, 17, NextWeekday(mon, time.Thursday).Day())

	thu := time.Date(2024, 10, 17, 10, 0, 0, 0, IndiaLocation)
	assert.Equal(t, 17, NextWeekday(thu, time.Thursday).Day())
}

func TestIsMarketHours(t *testing.T) {
	assert.True(t, IsMarketHours(time.Date(2024, 10, 17, 9, 15, 0, 0, IndiaLocation)))
	assert.False(t, IsMarketHours(time.Date(2024, 10, 17, 15, 30, 0, 0, IndiaLocation)))
	assert.False(t, IsMarketHours(time.Date(2024, 10, 19, 11, 0, 0, 0, IndiaLocation)))
}

func TestFormatIndianCurrency(t *testing.T) {
	assert.Equal(t, "₹12,34,567.50", FormatIndianCurrency(1234567.5))
	assert.Equal(t, "-₹950.00", FormatIndianCurrency(-950))
	assert.Equal(t, "+₹12,500.00", FormatPnL(12500))
	assert.Equal(t, "-₹10,000.00", FormatPnL(-10000))
	assert.Equal(t, "10.00 L", FormatLakhs(1000000))
}
