package bus

import (
	"sort"
	"sync"

	buserrors "github.com/swarmlab/agentbus/errors"
)

// contextStore is the bounded key/value scratch space shared across agents
// through the get_context/set_context built-ins. Last write wins. It is
// owned by the controller instance and never handed out for direct mutation.
type contextStore struct {
	mu      sync.RWMutex
	entries map[string]interface{}
	limit   int
}

func newContextStore(limit int) *contextStore {
	return &contextStore{
		entries: make(map[string]interface{}),
		limit:   limit,
	}
}

// get returns the value for a key.
func (s *contextStore) get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok
}

// set stores a value. New keys beyond the bound are rejected; overwriting
// an existing key always succeeds.
func (s *contextStore) set(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.limit {
		return buserrors.FromCode(buserrors.ErrCodeCapacity,
			buserrors.WithMetadata("store", "context"))
	}
	s.entries[key] = value
	return nil
}

// keys returns all keys, sorted.
func (s *contextStore) keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.entries))
	for k := range s.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// size returns the number of stored keys.
func (s *contextStore) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
