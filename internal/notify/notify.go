// Package notify sends strategy events to the operator.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"straddle-trader/internal/config"
	"straddle-trader/pkg/utils"
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationTrade NotificationType = "trade"
	NotificationError NotificationType = "error"
	NotificationInfo  NotificationType = "info"
)

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll        NotificationLevel = "all"
	LevelTradesOnly NotificationLevel = "trades_only"
	LevelErrorsOnly NotificationLevel = "errors_only"
)

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []NotificationChannel
	level    NotificationLevel
	mu       sync.RWMutex
}

// NewMultiNotifier creates a MultiNotifier with the channels enabled in cfg.
func NewMultiNotifier(cfg config.NotificationConfig) (*MultiNotifier, error) {
	mn := &MultiNotifier{level: NotificationLevel(cfg.Level)}
	if mn.level == "" {
		mn.level = LevelAll
	}
	if !cfg.Enabled {
		return mn, nil
	}

	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookNotifier(cfg.Webhook))
	}
	if cfg.Telegram.Enabled {
		tg, err := NewTelegramNotifier(cfg.Telegram)
		if err != nil {
			return nil, err
		}
		mn.channels = append(mn.channels, tg)
	}
	return mn, nil
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

func (mn *MultiNotifier) shouldSend(notifType NotificationType) bool {
	switch mn.level {
	case LevelTradesOnly:
		return notifType == NotificationTrade
	case LevelErrorsOnly:
		return notifType == NotificationError
	default:
		return true
	}
}

// Send sends a notification to all enabled channels.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if ch.IsEnabled() {
			if err := ch.Send(ctx, n); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Entry builds the notification for a new straddle and hedge.
func Entry(strike, ceHedge, peHedge, lots int, premium float64) Notification {
	return Notification{
		Type:  NotificationTrade,
		Title: "Straddle entered",
		Message: fmt.Sprintf("Sold %d straddle @ %.2f x %d lots\nHedges: %d CE / %d PE",
			strike, premium, lots, ceHedge, peHedge),
		Data: map[string]interface{}{
			"strike":   strike,
			"ce_hedge": ceHedge,
			"pe_hedge": peHedge,
			"lots":     lots,
			"premium":  premium,
		},
	}
}

// Shift builds the notification for a re-centred leg or straddle.
func Shift(kind string, from, to int, realized float64) Notification {
	return Notification{
		Type:    NotificationTrade,
		Title:   fmt.Sprintf("%s shifted", kind),
		Message: fmt.Sprintf("%d -> %d\nRealized: %s", from, to, utils.FormatPnL(realized)),
		Data: map[string]interface{}{
			"kind":     kind,
			"from":     from,
			"to":       to,
			"realized": realized,
		},
	}
}

// Tranche builds the notification for deployed remaining capital.
func Tranche(added, total int) Notification {
	return Notification{
		Type:    NotificationTrade,
		Title:   "Capital deployed",
		Message: fmt.Sprintf("Added %d lots, now %d", added, total),
		Data:    map[string]interface{}{"added": added, "total": total},
	}
}

// Exit builds the notification for a closed session.
func Exit(reason string, pnl float64) Notification {
	return Notification{
		Type:    NotificationTrade,
		Title:   "Straddle exited",
		Message: fmt.Sprintf("Reason: %s\nPnL: %s", reason, utils.FormatPnL(pnl)),
		Data:    map[string]interface{}{"reason": reason, "pnl": pnl},
	}
}

// Error builds the notification for a failed session.
func Error(err error, errContext string) Notification {
	return Notification{
		Type:    NotificationError,
		Title:   "Error",
		Message: fmt.Sprintf("Context: %s\nError: %v", errContext, err),
		Data: map[string]interface{}{
			"context": errContext,
			"error":   err.Error(),
		},
	}
}

// NoOpNotifier is a notifier that does nothing.
type NoOpNotifier struct{}

// Send does nothing.
func (NoOpNotifier) Send(context.Context, Notification) error {
	return nil
}
