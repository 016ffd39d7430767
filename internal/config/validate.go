package config

import (
	"fmt"
	"time"

	"straddle-trader/internal/errors"
	"straddle-trader/pkg/utils"
)

// Day is the parsed, validated settings for one weekday.
type Day struct {
	Weekday               time.Weekday
	Run                   bool
	Entry                 utils.ClockTime
	Exit                  utils.ClockTime
	StopLossPercent       float64
	TargetPercent         float64
	CapitalToTradePercent float64
	ExpectedMarginPerLot  float64
	CEHedgePremium        float64
	PEHedgePremium        float64
	HedgeShifting         bool
	PriceCheck            *PriceCheckConfig
}

// Day returns the settings for weekday d.
func (c *Config) Day(d time.Weekday) (Day, error) {
	key := utils.WeekdayKey(d)
	raw, ok := c.Strategy.Days[key]
	if !ok {
		return Day{}, errors.NewValidationError("strategy.days."+key, nil, "no settings for weekday")
	}
	return parseDay(d, raw)
}

func parseDay(d time.Weekday, raw DayConfig) (Day, error) {
	field := func(name string) string { return "strategy.days." + utils.WeekdayKey(d) + "." + name }

	entry, err := utils.ParseClock(raw.EntryTime)
	if err != nil {
		return Day{}, errors.NewValidationError(field("entry_time"), raw.EntryTime, "want HH:MM")
	}
	exit, err := utils.ParseClock(raw.ExitTime)
	if err != nil {
		return Day{}, errors.NewValidationError(field("exit_time"), raw.ExitTime, "want HH:MM")
	}
	if !entry.Before(exit) {
		return Day{}, errors.NewValidationError(field("exit_time"), raw.ExitTime, "must be after entry_time")
	}

	positive := []struct {
		name  string
		value float64
	}{
		{"stop_loss_percent", raw.StopLossPercent},
		{"target_percent", raw.TargetPercent},
		{"capital_to_trade_percent", raw.CapitalToTradePercent},
		{"expected_margin_per_lot", raw.ExpectedMarginPerLot},
		{"ce_hedge_premium", raw.CEHedgePremium},
		{"pe_hedge_premium", raw.PEHedgePremium},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return Day{}, errors.NewValidationError(field(p.name), p.value, "must be positive")
		}
	}
	if raw.CapitalToTradePercent > 100 {
		return Day{}, errors.NewValidationError(field("capital_to_trade_percent"), raw.CapitalToTradePercent, "must be at most 100")
	}

	if pc := raw.PriceCheck; pc != nil {
		if pc.Min < 0 || pc.Max <= pc.Min {
			return Day{}, errors.NewValidationError(field("price_check"), fmt.Sprintf("[%v, %v]", pc.Min, pc.Max), "max must exceed min")
		}
		if pc.EntryDelay <= 0 {
			return Day{}, errors.NewValidationError(field("price_check.entry_delay"), pc.EntryDelay, "must be positive")
		}
	}

	return Day{
		Weekday:               d,
		Run:                   raw.Run,
		Entry:                 entry,
		Exit:                  exit,
		StopLossPercent:       raw.StopLossPercent,
		TargetPercent:         raw.TargetPercent,
		CapitalToTradePercent: raw.CapitalToTradePercent,
		ExpectedMarginPerLot:  raw.ExpectedMarginPerLot,
		CEHedgePremium:        raw.CEHedgePremium,
		PEHedgePremium:        raw.PEHedgePremium,
		HedgeShifting:         raw.HedgeShifting,
		PriceCheck:            raw.PriceCheck,
	}, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Trading.Mode != "" && c.Trading.Mode != "live" && c.Trading.Mode != "paper" {
		return errors.NewValidationError("trading.mode", c.Trading.Mode, "must be 'live' or 'paper'")
	}

	s := c.Strategy
	if s.Index == "" {
		return errors.NewValidationError("strategy.index", s.Index, "required")
	}
	if s.StrikeStep <= 0 {
		return errors.NewValidationError("strategy.strike_step", s.StrikeStep, "must be positive")
	}
	if s.QuantityPerLot <= 0 {
		return errors.NewValidationError("strategy.quantity_per_lot", s.QuantityPerLot, "must be positive")
	}
	if s.LoopInterval <= 0 || s.MonitorInterval <= 0 {
		return errors.NewValidationError("strategy.loop_interval", s.LoopInterval, "intervals must be positive")
	}
	if _, err := utils.ParseClock(s.SecondShiftCutoff); err != nil {
		return errors.NewValidationError("strategy.second_shift_cutoff", s.SecondShiftCutoff, "want HH:MM")
	}
	if _, err := utils.ParseWeekday(s.ExpiryWeekday); err != nil {
		return errors.NewValidationError("strategy.expiry_weekday", s.ExpiryWeekday, "not a weekday")
	}
	if s.Expiry != "" {
		if _, err := time.Parse("2006-01-02", s.Expiry); err != nil {
			return errors.NewValidationError("strategy.expiry", s.Expiry, "want YYYY-MM-DD")
		}
	}
	if s.Orders.MaxAttempts < 1 {
		return errors.NewValidationError("strategy.orders.max_attempts", s.Orders.MaxAttempts, "must be at least 1")
	}
	if c.IsPaperMode() && (s.DryRun.InitialCapital <= 0 || s.DryRun.MarginPerLot <= 0) {
		return errors.NewValidationError("strategy.dry_run", s.DryRun, "capital and margin must be positive in paper mode")
	}

	for key, raw := range s.Days {
		d, err := utils.ParseWeekday(key)
		if err != nil {
			return errors.NewValidationError("strategy.days."+key, key, "not a weekday")
		}
		if _, err := parseDay(d, raw); err != nil {
			return err
		}
	}

	if c.Notifications.Telegram.Enabled && (c.Notifications.Telegram.BotToken == "" || c.Notifications.Telegram.ChatID == 0) {
		return errors.NewValidationError("notifications.telegram", "", "bot_token and chat_id are required")
	}
	if c.Notifications.Webhook.Enabled && c.Notifications.Webhook.URL == "" {
		return errors.NewValidationError("notifications.webhook.url", "", "required when enabled")
	}

	return nil
}

// SecondShiftCutoff returns the parsed time-of-day at which second-shift
// offsets tighten.
func (c *Config) SecondShiftCutoff() utils.ClockTime {
	cutoff, err := utils.ParseClock(c.Strategy.SecondShiftCutoff)
	if err != nil {
		return utils.MustParseClock("13:30")
	}
	return cutoff
}

// ExpiryWeekday returns the weekly expiry weekday.
func (c *Config) ExpiryWeekday() time.Weekday {
	d, err := utils.ParseWeekday(c.Strategy.ExpiryWeekday)
	if err != nil {
		return time.Thursday
	}
	return d
}
