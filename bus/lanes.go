package bus

import (
	"errors"
	"sync"
	"time"

	"github.com/swarmlab/agentbus/message"
)

// Common errors.
var (
	// ErrUnknownPriority indicates a priority name outside the four lanes.
	// This is a programmer error: Route returns it instead of an Error message.
	ErrUnknownPriority = errors.New("unknown priority")

	// ErrHalted indicates the controller has been shut down.
	ErrHalted = errors.New("controller halted")
)

// Priority selects one of the four dispatch lanes.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// laneOrder is the strict drain order, highest first.
var laneOrder = []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}

// ParsePriority maps a priority name to a lane. Empty means normal.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return Priority(s), nil
	case "":
		return PriorityNormal, nil
	default:
		return "", ErrUnknownPriority
	}
}

// queued is one pending message with its enqueue time.
type queued struct {
	msg        *message.Message
	priority   Priority
	enqueuedAt time.Time
}

// laneSet holds the four priority-ordered FIFO queues.
//
// Draining is strict priority: the highest non-empty lane always goes
// first, FIFO within a lane. A low message can wait indefinitely under
// sustained critical/high load; that is a deliberate latency trade-off,
// not a bug.
type laneSet struct {
	mu    sync.Mutex
	lanes map[Priority][]queued
}

func newLaneSet() *laneSet {
	return &laneSet{
		lanes: map[Priority][]queued{
			PriorityCritical: nil,
			PriorityHigh:     nil,
			PriorityNormal:   nil,
			PriorityLow:      nil,
		},
	}
}

// push enqueues a message onto the requested lane.
func (ls *laneSet) push(p Priority, msg *message.Message) error {
	if _, err := ParsePriority(string(p)); err != nil {
		return err
	}
	if p == "" {
		p = PriorityNormal
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.lanes[p] = append(ls.lanes[p], queued{
		msg:        msg,
		priority:   p,
		enqueuedAt: time.Now(),
	})
	return nil
}

// pop removes and returns the head of the highest non-empty lane.
func (ls *laneSet) pop() (queued, bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	for _, p := range laneOrder {
		if len(ls.lanes[p]) > 0 {
			q := ls.lanes[p][0]
			ls.lanes[p] = ls.lanes[p][1:]
			return q, true
		}
	}
	return queued{}, false
}

// drain empties every lane without processing and returns the number
// of discarded messages.
func (ls *laneSet) drain() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	dropped := 0
	for p := range ls.lanes {
		dropped += len(ls.lanes[p])
		ls.lanes[p] = nil
	}
	return dropped
}

// depths returns the current queue depth per lane.
func (ls *laneSet) depths() map[Priority]int {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	out := make(map[Priority]int, len(laneOrder))
	for _, p := range laneOrder {
		out[p] = len(ls.lanes[p])
	}
	return out
}

// size returns the total number of pending messages.
func (ls *laneSet) size() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	n := 0
	for _, q := range ls.lanes {
		n += len(q)
	}
	return n
}
