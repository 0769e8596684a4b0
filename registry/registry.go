// Package registry provides agent registration and role-based discovery
// for the coordination bus.
//
// Agents register with a declared role. Dispatch resolves recipients by ID
// or, for broadcasts, through an incrementally maintained role index. An
// agent can self-report inactive without being unregistered; inactive agents
// stay in the registry but are skipped by dispatch.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/swarmlab/agentbus/message"
)

// Common errors.
var (
	ErrNotFound  = errors.New("agent not found")
	ErrClosed    = errors.New("registry closed")
	ErrInvalidID = errors.New("invalid agent ID")
	ErrNilAgent  = errors.New("agent is nil")
)

// Agent is an independently addressable handler of messages.
//
// Handle processes one message and returns an optional reply. A nil reply
// with a nil error is valid for fire-and-forget notifications. The registry
// holds a reference to the agent, never ownership of its internal state.
type Agent interface {
	// ID returns the unique agent identifier.
	ID() string

	// Role returns the agent's declared role tag (e.g. "risk", "signal").
	Role() string

	// Handle processes a message. The context carries the dispatch timeout;
	// handlers should be abandon-safe or idempotent, since a timed-out
	// dispatch cancels the bus's wait but not necessarily the handler.
	Handle(ctx context.Context, msg *message.Message) (*message.Message, error)
}

// HandlerFunc adapts a function to the message-handling capability.
type HandlerFunc func(ctx context.Context, msg *message.Message) (*message.Message, error)

// funcAgent wraps an id, role and handler function as an Agent.
type funcAgent struct {
	id   string
	role string
	fn   HandlerFunc
}

func (a *funcAgent) ID() string   { return a.id }
func (a *funcAgent) Role() string { return a.role }

func (a *funcAgent) Handle(ctx context.Context, msg *message.Message) (*message.Message, error) {
	return a.fn(ctx, msg)
}

// NewAgent creates an Agent from an id, role, and handler function.
func NewAgent(id, role string, fn HandlerFunc) Agent {
	return &funcAgent{id: id, role: role, fn: fn}
}

// Registration is the registry's view of one agent.
type Registration struct {
	AgentID      string    `json:"agent_id"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	RegisteredAt time.Time `json:"registered_at"`
}

// entry pairs an agent with its registration state.
type entry struct {
	agent        Agent
	role         string
	active       bool
	registeredAt time.Time
}

// Registry tracks registered agents and their roles.
// Safe for concurrent use. Registration is idempotent per agent ID:
// the last writer wins, which is explicitly allowed since agents register
// at startup, not in hot paths.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*entry
	roles  map[string]map[string]struct{} // role -> set of agent IDs
	closed bool
	now    func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		agents: make(map[string]*entry),
		roles:  make(map[string]map[string]struct{}),
		now:    time.Now,
	}
}

// Register adds an agent, replacing any previous registration with the
// same ID. The new registration starts active.
func (r *Registry) Register(agent Agent) error {
	if agent == nil {
		return ErrNilAgent
	}
	if agent.ID() == "" {
		return ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	id := agent.ID()
	if old, exists := r.agents[id]; exists {
		r.removeFromRole(old.role, id)
	}

	role := agent.Role()
	r.agents[id] = &entry{
		agent:        agent,
		role:         role,
		active:       true,
		registeredAt: r.now(),
	}
	if r.roles[role] == nil {
		r.roles[role] = make(map[string]struct{})
	}
	r.roles[role][id] = struct{}{}

	return nil
}

// Deregister removes an agent and its role index entry.
func (r *Registry) Deregister(id string) error {
	if id == "" {
		return ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	e, exists := r.agents[id]
	if !exists {
		return ErrNotFound
	}

	delete(r.agents, id)
	r.removeFromRole(e.role, id)
	return nil
}

// Get retrieves an agent by ID regardless of its active state.
func (r *Registry) Get(id string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.agents[id]
	if !exists {
		return nil, ErrNotFound
	}
	return e.agent, nil
}

// Info returns the registration record for an agent.
func (r *Registry) Info(id string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.agents[id]
	if !exists {
		return Registration{}, ErrNotFound
	}
	return Registration{
		AgentID:      id,
		Role:         e.role,
		Active:       e.active,
		RegisteredAt: e.registeredAt,
	}, nil
}

// FindByRole returns the IDs of active agents with the given role,
// sorted for deterministic fan-out order.
func (r *Registry) FindByRole(role string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.roles[role]))
	for id := range r.roles[role] {
		if e, ok := r.agents[id]; ok && e.active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// SetActive updates an agent's self-reported availability.
// Inactive agents remain registered but are skipped by dispatch.
func (r *Registry) SetActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.agents[id]
	if !exists {
		return ErrNotFound
	}
	e.active = active
	return nil
}

// IsActive reports whether an agent is registered and active.
func (r *Registry) IsActive(id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.agents[id]
	if !exists {
		return false, ErrNotFound
	}
	return e.active, nil
}

// DeactivateAll marks every agent inactive and returns how many were flipped.
func (r *Registry) DeactivateAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	flipped := 0
	for _, e := range r.agents {
		if e.active {
			e.active = false
			flipped++
		}
	}
	return flipped
}

// List returns all registrations sorted by agent ID.
func (r *Registry) List() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Registration, 0, len(r.agents))
	for id, e := range r.agents {
		out = append(out, Registration{
			AgentID:      id,
			Role:         e.role,
			Active:       e.active,
			RegisteredAt: e.registeredAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AgentID < out[j].AgentID
	})
	return out
}

// IDs returns all registered agent IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Close marks the registry closed; further registrations fail.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// removeFromRole drops an agent from the role index.
// Must be called with the lock held.
func (r *Registry) removeFromRole(role, id string) {
	if set, ok := r.roles[role]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.roles, role)
		}
	}
}
