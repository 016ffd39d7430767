package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// HealthStatus is the health of one component or of the whole process.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
)

// ComponentHealth is one check's result.
type ComponentHealth struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ns"`
	CheckedAt time.Time     `json:"checked_at"`
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) ComponentHealth

// SystemHealth aggregates every registered check.
type SystemHealth struct {
	Status     HealthStatus      `json:"status"`
	Uptime     string            `json:"uptime"`
	Components []ComponentHealth `json:"components"`
}

// Health runs registered checks on demand.
type Health struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheck
	timeout time.Duration
	start   time.Time
	now     func() time.Time
}

// NewHealth creates an empty checker. Each check gets timeout to answer.
func NewHealth(timeout time.Duration) *Health {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Health{
		checks:  make(map[string]HealthCheck),
		timeout: timeout,
		start:   time.Now(),
		now:     time.Now,
	}
}

// Register adds or replaces the check for name.
func (h *Health) Register(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Check runs every check concurrently. One unhealthy component makes the
// whole process unhealthy; a degraded one makes it degraded.
func (h *Health) Check(ctx context.Context) SystemHealth {
	h.mu.RLock()
	checks := make(map[string]HealthCheck, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make(chan ComponentHealth, len(checks))
	var wg sync.WaitGroup
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check HealthCheck) {
			defer wg.Done()
			results <- h.run(ctx, name, check)
		}(name, check)
	}
	wg.Wait()
	close(results)

	sys := SystemHealth{Status: HealthStatusHealthy, Uptime: time.Since(h.start).Round(time.Second).String()}
	for c := range results {
		sys.Components = append(sys.Components, c)
		switch c.Status {
		case HealthStatusUnhealthy:
			sys.Status = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if sys.Status == HealthStatusHealthy {
				sys.Status = HealthStatusDegraded
			}
		}
	}
	sort.Slice(sys.Components, func(i, j int) bool { return sys.Components[i].Name < sys.Components[j].Name })
	return sys
}

func (h *Health) run(ctx context.Context, name string, check HealthCheck) (res ComponentHealth) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = ComponentHealth{Status: HealthStatusUnhealthy, Message: fmt.Sprintf("check panicked: %v", r)}
		}
		res.Name = name
		res.Latency = time.Since(start)
		res.CheckedAt = h.now()
	}()
	return check(ctx)
}

// PingCheck is unhealthy when ping fails and degraded when it is slower
// than slow.
func PingCheck(ping func(ctx context.Context) error, slow time.Duration) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		start := time.Now()
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: HealthStatusUnhealthy, Message: err.Error()}
		}
		if took := time.Since(start); slow > 0 && took > slow {
			return ComponentHealth{Status: HealthStatusDegraded, Message: fmt.Sprintf("slow: %v", took.Round(time.Millisecond))}
		}
		return ComponentHealth{Status: HealthStatusHealthy}
	}
}

// FreshnessCheck reports how old the latest price is. A missing price is
// degraded since the feed may simply not have started yet.
func FreshnessCheck(latest func(ctx context.Context) (time.Time, bool, error), maxAge time.Duration, now func() time.Time) HealthCheck {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) ComponentHealth {
		ts, ok, err := latest(ctx)
		switch {
		case err != nil:
			return ComponentHealth{Status: HealthStatusUnhealthy, Message: err.Error()}
		case !ok:
			return ComponentHealth{Status: HealthStatusDegraded, Message: "no price yet"}
		}
		age := now().Sub(ts)
		if maxAge > 0 && age > maxAge {
			return ComponentHealth{Status: HealthStatusDegraded, Message: fmt.Sprintf("last price %v old", age.Round(time.Second))}
		}
		return ComponentHealth{Status: HealthStatusHealthy, Message: fmt.Sprintf("last price %v old", age.Round(time.Second))}
	}
}
