package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.OrderPlaced("paper", "SELL")
	m.OrderPlaced("paper", "SELL")
	m.Exited("target")
	m.SetLots(18)
	m.SetPnL(20500, 1250)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.orders.WithLabelValues("paper", "SELL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exits.WithLabelValues("target")))
	assert.Equal(t, 18.0, testutil.ToFloat64(m.lots))
	assert.Equal(t, 1250.0, testutil.ToFloat64(m.realized))
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.Shifted("straddle")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `straddle_shifts_total{kind="straddle"} 1`)
}

func TestNilSafe(t *testing.T) {
	var m *Metrics
	m.OrderPlaced("live", "BUY")
	m.SetPnL(1, 1)
	m.FeedTick()
	assert.Nil(t, m.Registry())
}
