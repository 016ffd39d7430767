// Package metrics exposes Prometheus collectors for the trader.
//
//   - straddle_orders_total{mode,side}
//   - straddle_order_retries_total
//   - straddle_pnl_rupees / straddle_realized_pnl_rupees
//   - straddle_lots
//   - straddle_shifts_total{kind}
//   - straddle_triggers_fired_total{phase,direction}
//   - straddle_exits_total{reason}
//   - straddle_price_misses_total{component}
//   - straddle_feed_ticks_total
//
// All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests and multiple sessions do not
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	orders        *prometheus.CounterVec
	orderRetries  prometheus.Counter
	pnl           prometheus.Gauge
	realized      prometheus.Gauge
	lots          prometheus.Gauge
	shifts        *prometheus.CounterVec
	triggersFired *prometheus.CounterVec
	exits         *prometheus.CounterVec
	priceMisses   *prometheus.CounterVec
	feedTicks     prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "straddle_orders_total", Help: "Orders placed"},
			[]string{"mode", "side"},
		),
		orderRetries: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "straddle_order_retries_total", Help: "Order placement retries"},
		),
		pnl: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "straddle_pnl_rupees", Help: "Aggregate session PnL"},
		),
		realized: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "straddle_realized_pnl_rupees", Help: "Realized PnL from closed pairs and legs"},
		),
		lots: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "straddle_lots", Help: "Lots deployed"},
		),
		shifts: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "straddle_shifts_total", Help: "Straddle and hedge shifts"},
			[]string{"kind"},
		),
		triggersFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "straddle_triggers_fired_total", Help: "Price triggers fired"},
			[]string{"phase", "direction"},
		),
		exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "straddle_exits_total", Help: "Session exits by reason"},
			[]string{"reason"},
		),
		priceMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "straddle_price_misses_total", Help: "Ticks skipped for missing or stale prices"},
			[]string{"component"},
		),
		feedTicks: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "straddle_feed_ticks_total", Help: "Ticks written to the price cache"},
		),
	}
	m.registry.MustRegister(
		m.orders, m.orderRetries, m.pnl, m.realized, m.lots,
		m.shifts, m.triggersFired, m.exits, m.priceMisses, m.feedTicks,
	)
	return m
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) OrderPlaced(mode, side string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(mode, side).Inc()
}

func (m *Metrics) OrderRetried() {
	if m == nil {
		return
	}
	m.orderRetries.Inc()
}

func (m *Metrics) SetPnL(total, realized float64) {
	if m == nil {
		return
	}
	m.pnl.Set(total)
	m.realized.Set(realized)
}

func (m *Metrics) SetLots(n int) {
	if m == nil {
		return
	}
	m.lots.Set(float64(n))
}

func (m *Metrics) Shifted(kind string) {
	if m == nil {
		return
	}
	m.shifts.WithLabelValues(kind).Inc()
}

func (m *Metrics) TriggerFired(phase, direction string) {
	if m == nil {
		return
	}
	m.triggersFired.WithLabelValues(phase, direction).Inc()
}

func (m *Metrics) Exited(reason string) {
	if m == nil {
		return
	}
	m.exits.WithLabelValues(reason).Inc()
}

func (m *Metrics) PriceMissed(component string) {
	if m == nil {
		return
	}
	m.priceMisses.WithLabelValues(component).Inc()
}

func (m *Metrics) FeedTick() {
	if m == nil {
		return
	}
	m.feedTicks.Inc()
}
