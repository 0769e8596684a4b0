// Package pipeline tracks multi-stage workflow instances that span several
// message exchanges.
//
// The tracker records progress; it does not advance stages itself. External
// orchestration logic drives the stage mutators, and the tracker validates
// only that stage indices advance monotonically. Terminal pipelines move to
// a bounded archive and become immutable.
package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swarmlab/agentbus/eventlog"
)

// Common errors.
var (
	ErrNotFound      = errors.New("pipeline not found")
	ErrDuplicateID   = errors.New("pipeline already running")
	ErrStageMismatch = errors.New("stage index does not match current stage")
	ErrTerminal      = errors.New("pipeline already in a terminal state")
)

// DefaultArchiveSize is the archive bound used when none is configured.
const DefaultArchiveSize = 1000

// Status represents a pipeline's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Pipeline is one tracked workflow instance.
type Pipeline struct {
	ID              string                 `json:"id"`
	Config          map[string]interface{} `json:"config,omitempty"`
	Status          Status                 `json:"status"`
	CurrentStage    int                    `json:"current_stage"`
	StagesCompleted []int                  `json:"stages_completed"`
	Errors          []string               `json:"errors,omitempty"`
	Results         map[string]interface{} `json:"results,omitempty"`
	StartedAt       time.Time              `json:"started_at"`
	FinishedAt      time.Time              `json:"finished_at,omitzero"`
}

// clone returns a deep-enough copy so callers cannot mutate tracker state.
func (p *Pipeline) clone() Pipeline {
	out := *p
	out.StagesCompleted = append([]int(nil), p.StagesCompleted...)
	out.Errors = append([]string(nil), p.Errors...)
	if p.Results != nil {
		out.Results = make(map[string]interface{}, len(p.Results))
		for k, v := range p.Results {
			out.Results[k] = v
		}
	}
	return out
}

// Config holds tracker configuration.
type Config struct {
	// ArchiveSize bounds the completed/failed archive.
	// Default: 1000
	ArchiveSize int

	// Events receives pipeline lifecycle events. Optional.
	Events *eventlog.Log

	// Clock overrides the time source. For testing.
	Clock func() time.Time
}

// Tracker records pipeline instances. Safe for concurrent use.
// Active pipelines are mutable through the tracker only; archived
// pipelines are never mutated, only evicted oldest-first.
type Tracker struct {
	mu          sync.RWMutex
	active      map[string]*Pipeline
	archive     []Pipeline // oldest first
	archiveSize int
	events      *eventlog.Log
	now         func() time.Time
}

// NewTracker creates a pipeline tracker.
func NewTracker(cfg Config) *Tracker {
	if cfg.ArchiveSize <= 0 {
		cfg.ArchiveSize = DefaultArchiveSize
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		active:      make(map[string]*Pipeline),
		archiveSize: cfg.ArchiveSize,
		events:      cfg.Events,
		now:         now,
	}
}

// Start creates a running pipeline and returns its ID.
// An empty id gets a generated one. Returns ErrDuplicateID if a pipeline
// with the same id is still running.
func (t *Tracker) Start(id string, config map[string]interface{}) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.active[id]; exists {
		return "", ErrDuplicateID
	}

	t.active[id] = &Pipeline{
		ID:              id,
		Config:          config,
		Status:          StatusRunning,
		StagesCompleted: make([]int, 0),
		Results:         make(map[string]interface{}),
		StartedAt:       t.now(),
	}

	t.appendEvent(eventlog.TypePipelineStarted, map[string]interface{}{
		"pipeline_id": id,
	})
	return id, nil
}

// CompleteStage records completion of the current stage and advances.
// stageIndex must equal the pipeline's current stage; anything else is
// rejected with ErrStageMismatch (monotonic stage invariant).
func (t *Tracker) CompleteStage(id string, stageIndex int, result interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.active[id]
	if !ok {
		return ErrNotFound
	}
	if stageIndex != p.CurrentStage {
		return fmt.Errorf("%w: got %d, current %d", ErrStageMismatch, stageIndex, p.CurrentStage)
	}

	p.StagesCompleted = append(p.StagesCompleted, stageIndex)
	if result != nil {
		p.Results[fmt.Sprintf("stage_%d", stageIndex)] = result
	}
	p.CurrentStage++

	t.appendEvent(eventlog.TypePipelineStage, map[string]interface{}{
		"pipeline_id": id,
		"stage":       stageIndex,
	})
	return nil
}

// RecordError appends a non-terminal error to the pipeline.
// The pipeline keeps running; use Fail for terminal failures.
func (t *Tracker) RecordError(id string, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.active[id]
	if !ok {
		return ErrNotFound
	}
	p.Errors = append(p.Errors, reason)
	return nil
}

// Complete moves a running pipeline to the completed archive.
func (t *Tracker) Complete(id string) error {
	return t.finish(id, StatusCompleted, "")
}

// Fail records a terminal failure and archives the pipeline.
func (t *Tracker) Fail(id string, reason string) error {
	return t.finish(id, StatusFailed, reason)
}

func (t *Tracker) finish(id string, status Status, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.active[id]
	if !ok {
		// Already archived pipelines are immutable.
		for i := range t.archive {
			if t.archive[i].ID == id {
				return ErrTerminal
			}
		}
		return ErrNotFound
	}

	p.Status = status
	p.FinishedAt = t.now()
	if reason != "" {
		p.Errors = append(p.Errors, reason)
	}

	delete(t.active, id)
	t.archive = append(t.archive, *p)
	if len(t.archive) > t.archiveSize {
		t.archive = t.archive[len(t.archive)-t.archiveSize:]
	}

	eventType := eventlog.TypePipelineCompleted
	data := map[string]interface{}{"pipeline_id": id}
	if status == StatusFailed {
		eventType = eventlog.TypePipelineFailed
		data["reason"] = reason
	}
	t.appendEvent(eventType, data)
	return nil
}

// Get returns a copy of the pipeline, active or archived.
func (t *Tracker) Get(id string) (Pipeline, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if p, ok := t.active[id]; ok {
		return p.clone(), nil
	}
	for i := range t.archive {
		if t.archive[i].ID == id {
			return t.archive[i].clone(), nil
		}
	}
	return Pipeline{}, ErrNotFound
}

// Active returns copies of all running pipelines.
func (t *Tracker) Active() []Pipeline {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Pipeline, 0, len(t.active))
	for _, p := range t.active {
		out = append(out, p.clone())
	}
	return out
}

// Archived returns copies of the archived pipelines, oldest first.
func (t *Tracker) Archived() []Pipeline {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Pipeline, 0, len(t.archive))
	for i := range t.archive {
		out = append(out, t.archive[i].clone())
	}
	return out
}

// All returns copies of every known pipeline, active first.
func (t *Tracker) All() []Pipeline {
	return append(t.Active(), t.Archived()...)
}

// appendEvent writes to the event log, if one is attached.
// Must be called with the lock held only because callers already hold it;
// the event log has its own synchronization.
func (t *Tracker) appendEvent(eventType string, data map[string]interface{}) {
	if t.events != nil {
		t.events.Append(eventType, data)
	}
}
