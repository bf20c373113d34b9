package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// ComponentStatus grades a component.
type ComponentStatus string

const (
	StatusHealthy   ComponentStatus = "healthy"
	StatusDegraded  ComponentStatus = "degraded"
	StatusUnhealthy ComponentStatus = "unhealthy"
)

// HealthCheck probes one component. Implementations fill Status, Message and
// Details; the monitor stamps Name, LastChecked and LatencyMS.
type HealthCheck func(ctx context.Context) ComponentHealth

// ComponentHealth is the result of one probe.
type ComponentHealth struct {
	Name        string          `json:"name"`
	Status      ComponentStatus `json:"status"`
	Message     string          `json:"message,omitempty"`
	LastChecked time.Time       `json:"last_checked"`
	LatencyMS   float64         `json:"latency_ms"`
	Details     map[string]any  `json:"details,omitempty"`
}

// SystemHealth aggregates every component; Status is the worst of them.
type SystemHealth struct {
	Status     ComponentStatus            `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"ts"`
	UptimeS    float64                    `json:"uptime_s"`
}

// Alert is emitted when a component changes status.
type Alert struct {
	Level     string    `json:"level"` // info, warn or critical
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"ts"`
}

// HealthMonitor runs registered checks on an interval and emits alerts on
// status transitions.
type HealthMonitor struct {
	mu       sync.RWMutex
	checks   map[string]HealthCheck
	results  map[string]ComponentHealth
	started  time.Time
	interval time.Duration
	alertCh  chan Alert
}

// NewHealthMonitor creates a monitor probing at the given interval.
func NewHealthMonitor(interval time.Duration) *HealthMonitor {
	return &HealthMonitor{
		checks:   make(map[string]HealthCheck),
		results:  make(map[string]ComponentHealth),
		started:  time.Now(),
		interval: interval,
		alertCh:  make(chan Alert, 256),
	}
}

// Register adds a named check. Call before Start.
func (m *HealthMonitor) Register(name string, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Start probes immediately, then on every tick, until the context ends.
func (m *HealthMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.runChecks(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runChecks(ctx)
		}
	}
}

// Check probes every component now and returns the aggregate. Safe to call
// from an HTTP handler alongside the periodic loop.
func (m *HealthMonitor) Check(ctx context.Context) SystemHealth {
	m.runChecks(ctx)
	return m.snapshot()
}

// Alerts returns the channel carrying status-transition alerts.
func (m *HealthMonitor) Alerts() <-chan Alert {
	return m.alertCh
}

// ComponentStatus returns the latest result for one component.
func (m *HealthMonitor) ComponentStatus(name string) (ComponentHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.results[name]
	return h, ok
}

// Handler serves the aggregate health as JSON, 503 when any component is
// unhealthy. Mount it on /healthz.
func (m *HealthMonitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := m.Check(r.Context())
		code := http.StatusOK
		if health.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(health)
	})
}

// PingCheck adapts a plain ping function into a HealthCheck.
func PingCheck(ping func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: StatusUnhealthy, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusHealthy}
	}
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

func (m *HealthMonitor) runChecks(ctx context.Context) {
	m.mu.RLock()
	checks := make(map[string]HealthCheck, len(m.checks))
	for name, fn := range m.checks {
		checks[name] = fn
	}
	m.mu.RUnlock()

	fresh := make(map[string]ComponentHealth, len(checks))
	for name, fn := range checks {
		start := time.Now()
		res := fn(ctx)
		res.Name = name
		res.LastChecked = time.Now()
		res.LatencyMS = float64(time.Since(start).Microseconds()) / 1000
		fresh[name] = res
	}

	m.mu.Lock()
	prev := m.results
	m.results = fresh
	m.mu.Unlock()

	for name, cur := range fresh {
		old, existed := prev[name]
		if !existed || old.Status != cur.Status {
			m.emitAlert(name, cur)
		}
	}
}

// emitAlert maps the status to a level and sends without blocking; a full
// channel drops the alert.
func (m *HealthMonitor) emitAlert(name string, h ComponentHealth) {
	level := "info"
	switch h.Status {
	case StatusDegraded:
		level = "warn"
	case StatusUnhealthy:
		level = "critical"
	}

	msg := h.Message
	if msg == "" {
		msg = "status changed to " + string(h.Status)
	}

	select {
	case m.alertCh <- Alert{Level: level, Component: name, Message: msg, Timestamp: time.Now()}:
	default:
	}
}

func (m *HealthMonitor) snapshot() SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	components := make(map[string]ComponentHealth, len(m.results))
	worst := StatusHealthy
	for name, h := range m.results {
		components[name] = h
		if severity(h.Status) > severity(worst) {
			worst = h.Status
		}
	}

	return SystemHealth{
		Status:     worst,
		Components: components,
		Timestamp:  time.Now(),
		UptimeS:    time.Since(m.started).Seconds(),
	}
}

func severity(s ComponentStatus) int {
	switch s {
	case StatusDegraded:
		return 1
	case StatusUnhealthy:
		return 2
	default:
		return 0
	}
}
