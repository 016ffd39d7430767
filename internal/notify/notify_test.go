package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"straddle-trader/internal/config"
)

type recordingChannel struct {
	name string
	sent []Notification
	err  error
}

func (r *recordingChannel) Name() string    { return r.name }
func (r *recordingChannel) IsEnabled() bool { return true }
func (r *recordingChannel) Send(_ context.Context, n Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

func TestMultiNotifierLevels(t *testing.T) {
	mn, err := NewMultiNotifier(config.NotificationConfig{Level: "errors_only"})
	require.NoError(t, err)
	ch := &recordingChannel{name: "rec"}
	mn.AddChannel(ch)

	require.NoError(t, mn.Send(context.Background(), Exit("target", 20500)))
	require.NoError(t, mn.Send(context.Background(), Error(fmt.Errorf("boom"), "session")))

	require.Len(t, ch.sent, 1)
	assert.Equal(t, NotificationError, ch.sent[0].Type)
	assert.False(t, ch.sent[0].Timestamp.IsZero())
}

func TestMultiNotifierCollectsErrors(t *testing.T) {
	mn, err := NewMultiNotifier(config.NotificationConfig{})
	require.NoError(t, err)
	ok := &recordingChannel{name: "ok"}
	bad := &recordingChannel{name: "bad", err: fmt.Errorf("down")}
	mn.AddChannel(bad)
	mn.AddChannel(ok)

	err = mn.Send(context.Background(), Tranche(8, 18))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.Len(t, ok.sent, 1)
}

func TestWebhookNotifier(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: srv.URL})
	n := Shift("straddle", 24500, 24550, 1250)
	n.Timestamp = time.Date(2024, 10, 21, 10, 30, 0, 0, time.UTC)
	require.NoError(t, w.Send(context.Background(), n))

	assert.Equal(t, "straddle shifted", got["title"])
	assert.Equal(t, "2024-10-21T10:30:00Z", got["timestamp"])
	assert.Equal(t, got["title"].(string)+": "+got["message"].(string), got["text"])
}

func TestWebhookNotifierStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down\n"))
	}))
	defer srv.Close()

	w := NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: srv.URL})
	err := w.Send(context.Background(), Exit("manual", 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502: upstream down")
}

type fakeBot struct {
	msgs []tgbotapi.MessageConfig
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.msgs = append(f.msgs, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func TestTelegramNotifier(t *testing.T) {
	bot := &fakeBot{}
	tg := NewTelegramNotifierWithSender(bot, -100123)
	assert.True(t, tg.IsEnabled())

	require.NoError(t, tg.Send(context.Background(), Entry(24500, 24800, 24250, 10, 218.5)))
	require.Len(t, bot.msgs, 1)
	assert.Equal(t, int64(-100123), bot.msgs[0].ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, bot.msgs[0].ParseMode)
	assert.Contains(t, bot.msgs[0].Text, "<b>Straddle entered</b>")
	assert.Contains(t, bot.msgs[0].Text, "Hedges: 24800 CE / 24250 PE")
}

func TestConsoleNotifier(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleNotifier(&buf)
	require.NoError(t, c.Send(context.Background(), Notification{Type: NotificationInfo, Title: "Session", Message: "waiting"}))
	assert.Contains(t, buf.String(), "waiting")
}

func TestEscapeHTML(t *testing.T) {
	assert.Equal(t, "a &lt;b&gt; &amp; c", escapeHTML("a <b> & c"))
}
