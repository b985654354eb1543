package rules

import (
	"sync"

	fraudErrors "github.com/novassure/graph-fraud-engine/internal/domain/errors"
	"github.com/novassure/graph-fraud-engine/internal/domain/rule"
)

type entry struct {
	rule    Rule
	enabled bool
}

// Registry tracks every registered rule and its enabled state, read
// far more often than it is written, hence the RWMutex.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a rule under its own name, preserving registration
// order for stable fan-out and evidence ordering downstream.
func (r *Registry) Register(rl Rule, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := rl.Metadata().Name
	if _, exists := r.entries[name]; !exists {
		r.order = append(r.order, name)
	}
	r.entries[name] = &entry{rule: rl, enabled: enabled}
}

// List returns every rule's metadata, enabled state included, in
// registration order.
func (r *Registry) List() []rule.State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]rule.State, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		state := e.rule.Metadata()
		state.Enabled = e.enabled
		out = append(out, state)
	}
	return out
}

// Toggle flips a rule's enabled state, returning ErrRuleNotFound for an
// unknown name.
func (r *Registry) Toggle(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return fraudErrors.ErrRuleNotFound
	}
	e.enabled = enabled
	return nil
}

// Enabled returns the currently enabled rules in registration order,
// the set the engine fans a transaction out to.
func (r *Registry) Enabled() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Rule, 0, len(r.order))
	for _, name := range r.order {
		if e := r.entries[name]; e.enabled {
			out = append(out, e.rule)
		}
	}
	return out
}
