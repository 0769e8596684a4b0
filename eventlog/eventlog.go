// Package eventlog provides a bounded, append-only record of dispatch
// lifecycle events for audit and replay.
//
// The log is a fixed-capacity ring: appends are O(1) and the oldest entry
// is evicted once the ring is full. It is process-lifetime only; there is
// no persistence.
package eventlog

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is the ring capacity used when none is configured.
const DefaultCapacity = 10000

// Event types appended by the controller.
const (
	TypeMessageReceived   = "message_received"
	TypeMessageDispatched = "message_dispatched"
	TypeDispatchFailed    = "dispatch_failed"
	TypeBroadcast         = "broadcast"
	TypeAgentRegistered   = "agent_registered"
	TypeAgentUnregistered = "agent_unregistered"
	TypeBreakerTripped    = "circuit_breaker_tripped"
	TypeBreakerClosed     = "circuit_breaker_closed"
	TypeBreakerReset      = "circuit_breaker_reset"
	TypePipelineStarted   = "pipeline_started"
	TypePipelineStage     = "pipeline_stage_completed"
	TypePipelineCompleted = "pipeline_completed"
	TypePipelineFailed    = "pipeline_failed"
	TypeHealthCheck       = "health_check"
	TypeEmergencyShutdown = "emergency_shutdown"
)

// Event is one entry in the log. Write-only from the bus's perspective;
// read back for diagnostics and replay.
type Event struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Config holds event log configuration.
type Config struct {
	// Capacity is the fixed ring size.
	// Default: 10000
	Capacity int

	// Clock overrides the time source. For testing.
	Clock func() time.Time
}

// Log is a bounded append-only event ring. Safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []Event
	start   int // index of the oldest entry
	count   int
	now     func() time.Time
}

// New creates an event log with the given configuration.
func New(cfg Config) *Log {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Log{
		entries: make([]Event, cfg.Capacity),
		now:     now,
	}
}

// Append records an event, evicting the oldest entry if the ring is full.
// Returns the stored event.
func (l *Log) Append(eventType string, data map[string]interface{}) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Timestamp: l.now(),
		Type:      eventType,
		Data:      data,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count < len(l.entries) {
		l.entries[(l.start+l.count)%len(l.entries)] = ev
		l.count++
	} else {
		// Full: overwrite the oldest slot.
		l.entries[l.start] = ev
		l.start = (l.start + 1) % len(l.entries)
	}
	return ev
}

// Query returns up to limit of the most recent events, oldest first
// (newest-last). An empty typeFilter matches all types. limit <= 0
// returns all matching events.
func (l *Log) Query(limit int, typeFilter string) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	matched := make([]Event, 0, l.count)
	for i := 0; i < l.count; i++ {
		ev := l.entries[(l.start+i)%len(l.entries)]
		if typeFilter == "" || ev.Type == typeFilter {
			matched = append(matched, ev)
		}
	}

	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

// Len returns the number of stored events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Capacity returns the fixed ring capacity.
func (l *Log) Capacity() int {
	return len(l.entries)
}
