package agent

import (
	"sync"

	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/model"
)

// Registry holds the registered agents. It is populated at startup and
// read-mostly afterwards.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry returns an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds (or replaces) an agent under its own id.
func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.ID()] = a
}

// Resolve returns the agent for the id, or a typed error when the agent is
// unknown or disabled. Both checks happen before any execution record is
// created.
func (r *Registry) Resolve(agentID string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentID]
	if !ok {
		return nil, &model.AgentNotFoundError{AgentID: agentID}
	}
	if !a.Enabled() {
		return nil, &model.AgentDisabledError{AgentID: agentID}
	}
	return a, nil
}

// List returns a snapshot of all registered agents.
func (r *Registry) List() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	return out
}
