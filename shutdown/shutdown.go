// Package shutdown coordinates orderly process exit for a bus deployment.
//
// This is the polite counterpart to the bus's emergency kill switch:
// components register stop functions in phases (agents first, then the
// controller, then sinks like log writers), and the coordinator runs the
// phases in order on SIGTERM/SIGINT or an explicit call. Handlers within
// a phase run concurrently.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// Common errors.
var (
	// ErrAlreadyStopped indicates Stop was already initiated.
	ErrAlreadyStopped = errors.New("shutdown already initiated")

	// ErrTimeout indicates the stop sequence exceeded its deadline.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrStopperFailed indicates at least one stopper returned an error.
	ErrStopperFailed = errors.New("one or more stoppers failed")
)

// DefaultTimeout bounds the whole stop sequence when none is given.
const DefaultTimeout = 30 * time.Second

// Stopper is implemented by components that need orderly teardown.
// The context is canceled when the stop deadline passes; implementations
// should stop accepting work, flush what they can, and return.
type Stopper interface {
	Stop(ctx context.Context) error
}

// StopFunc adapts a function to the Stopper interface.
type StopFunc func(ctx context.Context) error

// Stop implements Stopper.
func (f StopFunc) Stop(ctx context.Context) error {
	return f(ctx)
}

// Conventional phases. Lower phases stop first.
const (
	PhaseAgents     = 10 // feed loops and agents stop producing work
	PhaseController = 20 // the bus drains and halts
	PhaseSinks      = 30 // log writers, exporters, connections
)

// stopper pairs a registered component with its phase.
type stopper struct {
	name  string
	s     Stopper
	phase int
}

// Coordinator runs registered stoppers phase by phase.
// Safe for concurrent registration; Stop runs at most once.
type Coordinator struct {
	mu       sync.Mutex
	stoppers []stopper

	once    sync.Once
	done    chan struct{}
	err     error
	signals chan os.Signal

	// OnStopped, if set, is called after each stopper finishes.
	OnStopped func(name string, phase int, took time.Duration, err error)
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		done:    make(chan struct{}),
		signals: make(chan os.Signal, 1),
	}
}

// Register adds a stopper at the given phase.
func (c *Coordinator) Register(name string, s Stopper, phase int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stoppers = append(c.stoppers, stopper{name: name, s: s, phase: phase})
}

// RegisterFunc adds a stop function at the given phase.
func (c *Coordinator) RegisterFunc(name string, fn func(ctx context.Context) error, phase int) {
	c.Register(name, StopFunc(fn), phase)
}

// Stop runs every registered stopper, lowest phase first, concurrently
// within a phase. A second call returns ErrAlreadyStopped if the first
// is still running, or the first call's error once it finished.
func (c *Coordinator) Stop(ctx context.Context) error {
	ran := false
	c.once.Do(func() {
		ran = true
		c.err = c.run(ctx)
		close(c.done)
	})
	if ran {
		return c.err
	}

	select {
	case <-c.done:
		return c.err
	default:
		return ErrAlreadyStopped
	}
}

// StopWithTimeout runs Stop bounded by the given timeout.
// A zero timeout uses DefaultTimeout.
func (c *Coordinator) StopWithTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Stop(ctx)
}

// HandleSignals arranges for SIGTERM/SIGINT to trigger Stop with the
// default timeout. Call once, before signals are expected.
func (c *Coordinator) HandleSignals() {
	signal.Notify(c.signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-c.signals
		_ = c.StopWithTimeout(DefaultTimeout)
	}()
}

// Trigger injects a synthetic SIGTERM. For tests and admin tooling.
func (c *Coordinator) Trigger() {
	select {
	case c.signals <- syscall.SIGTERM:
	default:
	}
}

// Done is closed when the stop sequence has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the stop error. Valid only after Done is closed.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) error {
	c.mu.Lock()
	stoppers := make([]stopper, len(c.stoppers))
	copy(stoppers, c.stoppers)
	c.mu.Unlock()

	sort.SliceStable(stoppers, func(i, j int) bool {
		return stoppers[i].phase < stoppers[j].phase
	})

	var failed bool
	for start := 0; start < len(stoppers); {
		select {
		case <-ctx.Done():
			return ErrTimeout
		default:
		}

		// Collect the contiguous run of same-phase stoppers.
		end := start + 1
		for end < len(stoppers) && stoppers[end].phase == stoppers[start].phase {
			end++
		}

		if c.runPhase(ctx, stoppers[start:end]) {
			failed = true
		}
		start = end
	}

	if failed {
		return ErrStopperFailed
	}
	return nil
}

// runPhase stops every member concurrently and reports whether any failed.
func (c *Coordinator) runPhase(ctx context.Context, members []stopper) bool {
	errs := make([]error, len(members))
	var wg sync.WaitGroup

	for i, m := range members {
		wg.Add(1)
		go func(idx int, m stopper) {
			defer wg.Done()

			started := time.Now()
			err := m.s.Stop(ctx)
			errs[idx] = err

			if c.OnStopped != nil {
				c.OnStopped(m.name, m.phase, time.Since(started), err)
			}
		}(i, m)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return true
		}
	}
	return false
}
