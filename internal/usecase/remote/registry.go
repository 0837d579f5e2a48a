package remote

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/whchoi98/netaiops/internal/domain"
)

// Registry holds the specialist agents discovered at startup and provides
// lookup by card name. Registration is last-write-wins: rediscovering an
// agent under the same name replaces the previous descriptor.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*domain.AgentDescriptor
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		agents: make(map[string]*domain.AgentDescriptor),
		logger: logger,
	}
}

// Register adds or replaces a descriptor under its card name.
func (r *Registry) Register(desc *domain.AgentDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := desc.Card.Name
	if _, exists := r.agents[name]; exists {
		r.logger.Info("agent replaced", "agent", name, "endpoint", desc.Endpoint)
	} else {
		r.logger.Info("agent registered", "agent", name, "endpoint", desc.Endpoint)
	}
	r.agents[name] = desc
}

// Lookup returns the descriptor for the given card name, or ErrAgentNotFound.
func (r *Registry) Lookup(name string) (*domain.AgentDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.agents[name]
	if !ok {
		return nil, domain.ErrAgentNotFound
	}
	return desc, nil
}

// All returns a snapshot of every registered descriptor, sorted by name.
func (r *Registry) All() []*domain.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.AgentDescriptor, 0, len(r.agents))
	for _, desc := range r.agents {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Card.Name < out[j].Card.Name
	})
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Remove unregisters an agent. Returns ErrAgentNotFound if not present.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[name]; !ok {
		return domain.ErrAgentNotFound
	}
	delete(r.agents, name)
	r.logger.Info("agent removed", "agent", name)
	return nil
}
