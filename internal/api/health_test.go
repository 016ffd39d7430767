package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthy(context.Context) ComponentHealth { return ComponentHealth{Status: HealthStatusHealthy} }

func TestHealthAggregates(t *testing.T) {
	h := NewHealth(time.Second)
	h.Register("redis", healthy)
	h.Register("feed", func(context.Context) ComponentHealth {
		return ComponentHealth{Status: HealthStatusDegraded, Message: "no price yet"}
	})

	sys := h.Check(context.Background())
	assert.Equal(t, HealthStatusDegraded, sys.Status)
	require.Len(t, sys.Components, 2)
	assert.Equal(t, "feed", sys.Components[0].Name)
	assert.Equal(t, "redis", sys.Components[1].Name)

	h.Register("schedule", PingCheck(func(context.Context) error { return errors.New("disk I/O error") }, 0))
	sys = h.Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, sys.Status)
}

func TestHealthRecoversPanickingCheck(t *testing.T) {
	h := NewHealth(time.Second)
	h.Register("broken", func(context.Context) ComponentHealth { panic("boom") })

	sys := h.Check(context.Background())
	require.Len(t, sys.Components, 1)
	assert.Equal(t, "broken", sys.Components[0].Name)
	assert.Equal(t, HealthStatusUnhealthy, sys.Components[0].Status)
	assert.Contains(t, sys.Components[0].Message, "boom")
}

func TestFreshnessCheck(t *testing.T) {
	now := time.Date(2024, time.October, 24, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	var (
		ts  time.Time
		ok  bool
		err error
	)
	check := FreshnessCheck(func(context.Context) (time.Time, bool, error) { return ts, ok, err }, time.Minute, clock)

	assert.Equal(t, HealthStatusDegraded, check(context.Background()).Status)

	ts, ok = now.Add(-10*time.Second), true
	assert.Equal(t, HealthStatusHealthy, check(context.Background()).Status)

	ts = now.Add(-5 * time.Minute)
	res := check(context.Background())
	assert.Equal(t, HealthStatusDegraded, res.Status)
	assert.Contains(t, res.Message, "5m0s")

	err = errors.New("connection refused")
	assert.Equal(t, HealthStatusUnhealthy, check(context.Background()).Status)
}

func TestHealthEndpointStatusCodes(t *testing.T) {
	h := NewHealth(time.Second)
	h.Register("redis", healthy)
	s := NewServer(Config{}, Deps{Health: h, Logger: zerolog.Nop()})

	rec := do(t, s, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var sys SystemHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sys))
	assert.Equal(t, HealthStatusHealthy, sys.Status)

	h.Register("redis", PingCheck(func(context.Context) error { return errors.New("down") }, 0))
	rec = do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
