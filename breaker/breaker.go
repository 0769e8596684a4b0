package breaker

import (
	"errors"
	"sync"
	"time"
)

// Common errors.
var (
	// ErrOpen indicates the breaker is open and the dispatch must not proceed.
	ErrOpen = errors.New("circuit breaker is open")
)

// State represents the breaker's position in its state machine.
type State string

const (
	// StateClosed allows dispatches through. Failures accumulate.
	StateClosed State = "closed"

	// StateOpen refuses dispatches until the recovery timeout elapses.
	StateOpen State = "open"

	// StateHalfOpen allows probe dispatches. Successes close the breaker,
	// any failure reopens it.
	StateHalfOpen State = "half_open"
)

// Config holds breaker tuning parameters.
type Config struct {
	// FailureThreshold is the failure count at which the breaker trips.
	// Default: 5
	FailureThreshold int

	// RecoveryTimeout is how long an open breaker refuses dispatches
	// before allowing a half-open probe.
	// Default: 30 seconds
	RecoveryTimeout time.Duration

	// CloseAfter is the number of consecutive half-open successes
	// required to close the breaker.
	// Default: 3
	CloseAfter int

	// Clock overrides the time source. For testing.
	Clock func() time.Time
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		CloseAfter:       3,
	}
}

// Snapshot is a point-in-time view of a breaker's state.
type Snapshot struct {
	State             State     `json:"state"`
	FailureCount      int       `json:"failure_count"`
	LastFailureTime   time.Time `json:"last_failure_time,omitzero"`
	HalfOpenSuccesses int       `json:"half_open_successes"`
}

// Breaker is a per-agent failure-isolation state machine.
//
// A closed breaker accumulates failures and trips open at the threshold.
// Each success while closed decays the failure count by one, floored at
// zero: a single stray failure does not permanently lower the trip margin,
// but full recovery still requires sustained success. An open breaker
// refuses dispatches until the recovery timeout elapses; the open-to-half-open
// transition is evaluated at read time, when the next dispatch is attempted.
type Breaker struct {
	mu                sync.Mutex
	cfg               Config
	state             State
	failureCount      int
	lastFailureTime   time.Time
	halfOpenSuccesses int
	now               func() time.Time
}

// New creates a breaker in the closed state.
func New(cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = def.RecoveryTimeout
	}
	if cfg.CloseAfter <= 0 {
		cfg.CloseAfter = def.CloseAfter
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		cfg:   cfg,
		state: StateClosed,
		now:   now,
	}
}

// Allow reports whether a dispatch may proceed.
//
// Returns ErrOpen when the breaker is open and the recovery timeout has not
// elapsed. When it has, the breaker moves to half-open and the dispatch goes
// through as a probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}

	if b.now().Sub(b.lastFailureTime) > b.cfg.RecoveryTimeout {
		b.state = StateHalfOpen
		b.halfOpenSuccesses = 0
		return nil
	}

	return ErrOpen
}

// RecordSuccess accounts a successful dispatch.
// Returns true when the success closed a half-open breaker.
func (b *Breaker) RecordSuccess() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.CloseAfter {
			b.state = StateClosed
			b.failureCount = 0
			b.halfOpenSuccesses = 0
			return true
		}
	case StateClosed:
		// Slow decay rather than instant reset.
		if b.failureCount > 0 {
			b.failureCount--
		}
	}
	return false
}

// RecordFailure accounts a failed dispatch.
// Returns true when the failure tripped the breaker open.
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureTime = b.now()

	switch b.state {
	case StateHalfOpen:
		// Any half-open failure reopens immediately.
		b.state = StateOpen
		b.halfOpenSuccesses = 0
		return true
	case StateClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = StateOpen
			return true
		}
	}
	return false
}

// State returns the current state, applying the read-time
// open-to-half-open transition first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.lastFailureTime) > b.cfg.RecoveryTimeout {
		b.state = StateHalfOpen
		b.halfOpenSuccesses = 0
	}
	return b.state
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failureCount = 0
	b.halfOpenSuccesses = 0
	b.lastFailureTime = time.Time{}
}

// Snapshot returns a point-in-time view of the breaker.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Snapshot{
		State:             b.state,
		FailureCount:      b.failureCount,
		LastFailureTime:   b.lastFailureTime,
		HalfOpenSuccesses: b.halfOpenSuccesses,
	}
}
