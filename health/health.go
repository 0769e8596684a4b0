// Package health tracks per-agent health records from synthetic ping probes.
//
// The controller sweeps every registered agent through its ordinary dispatch
// path, so a tripped breaker correctly surfaces as unhealthy without a
// separate probe channel. This package only keeps the records: a bounded
// rolling window of response times plus error-rate and availability ratios.
package health

import (
	"sync"
	"time"
)

// DefaultWindow is the rolling sample window used when none is configured.
const DefaultWindow = 20

// DefaultPingTimeout bounds a single health probe.
const DefaultPingTimeout = 5 * time.Second

// Status represents an agent's health.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Report is a read-only view of one agent's health record.
type Report struct {
	Status          Status          `json:"status"`
	LastPing        time.Time       `json:"last_ping,omitzero"`
	ResponseTimes   []time.Duration `json:"response_times"`
	AvgResponseTime time.Duration   `json:"avg_response_time"`

	// ErrorRate is the failure ratio over the rolling window.
	ErrorRate float64 `json:"error_rate"`

	// Availability is the lifetime success ratio.
	Availability float64 `json:"availability"`
}

// sample is one probe outcome.
type sample struct {
	rtt time.Duration
	ok  bool
}

// record accumulates probe outcomes for one agent.
type record struct {
	status        Status
	lastPing      time.Time
	samples       []sample // rolling, newest last
	totalPings    int
	totalFailures int
}

// Monitor owns the health records, keyed by agent ID.
// Safe for concurrent use; updated only by the health-check routine.
type Monitor struct {
	mu      sync.RWMutex
	records map[string]*record
	window  int
	now     func() time.Time
}

// Config holds monitor configuration.
type Config struct {
	// Window is the rolling sample window size.
	// Default: 20
	Window int

	// Clock overrides the time source. For testing.
	Clock func() time.Time
}

// NewMonitor creates a health monitor.
func NewMonitor(cfg Config) *Monitor {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		records: make(map[string]*record),
		window:  cfg.Window,
		now:     now,
	}
}

// Track starts a record for an agent. New records are healthy.
func (m *Monitor) Track(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[agentID]; !exists {
		m.records[agentID] = &record{status: StatusHealthy}
	}
}

// Forget drops an agent's record.
func (m *Monitor) Forget(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, agentID)
}

// Observe records the outcome of one probe. A non-nil err marks the agent
// unhealthy; a successful probe marks it healthy again.
func (m *Monitor) Observe(agentID string, rtt time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, exists := m.records[agentID]
	if !exists {
		r = &record{status: StatusHealthy}
		m.records[agentID] = r
	}

	r.lastPing = m.now()
	r.totalPings++
	ok := err == nil
	if !ok {
		r.totalFailures++
		r.status = StatusUnhealthy
	} else {
		r.status = StatusHealthy
	}

	r.samples = append(r.samples, sample{rtt: rtt, ok: ok})
	if len(r.samples) > m.window {
		r.samples = r.samples[len(r.samples)-m.window:]
	}
}

// Report returns the current record for an agent.
func (m *Monitor) Report(agentID string) (Report, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, exists := m.records[agentID]
	if !exists {
		return Report{}, false
	}
	return r.report(), true
}

// Reports returns records for all tracked agents.
func (m *Monitor) Reports() map[string]Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Report, len(m.records))
	for id, r := range m.records {
		out[id] = r.report()
	}
	return out
}

// report builds a Report. Must be called with the lock held.
func (r *record) report() Report {
	rep := Report{
		Status:       r.status,
		LastPing:     r.lastPing,
		Availability: 1.0,
	}

	var windowFailures int
	var sum time.Duration
	for _, s := range r.samples {
		if s.ok {
			rep.ResponseTimes = append(rep.ResponseTimes, s.rtt)
			sum += s.rtt
		} else {
			windowFailures++
		}
	}
	if len(r.samples) > 0 {
		rep.ErrorRate = float64(windowFailures) / float64(len(r.samples))
	}
	if len(rep.ResponseTimes) > 0 {
		rep.AvgResponseTime = sum / time.Duration(len(rep.ResponseTimes))
	}
	if r.totalPings > 0 {
		rep.Availability = float64(r.totalPings-r.totalFailures) / float64(r.totalPings)
	}
	return rep
}
