package saga

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fiberline/switchyard/internal/domain"
)

// Store is the durable access a handler gets during a step: the domain
// repositories it may read and write. Handlers that only call collaborators
// ignore it.
type Store interface {
	Profiles() domain.ProfileRepository
	Services() domain.ServiceRepository
	Events() domain.EventRepository
}

// HandlerResult is what a forward handler returns on success. OutputData is
// the step's observable product; CompensationData must carry everything the
// compensator needs (external ids, prior values) because compensators never
// re-query the source of truth; Updates flows into the run context.
type HandlerResult struct {
	OutputData       map[string]any
	CompensationData map[string]any
	Updates          ContextUpdates
}

// ForwardHandler executes a step's forward effect.
type ForwardHandler func(ctx context.Context, input map[string]any, wfctx *Context, store Store) (*HandlerResult, error)

// CompensationHandler undoes a completed step using the output and
// compensation payloads that step persisted.
type CompensationHandler func(ctx context.Context, output, compensationData map[string]any, store Store) error

// Registry is the process-scoped name-to-handler mapping. Handlers are
// registered once at bootstrap; lookups at execution time are read-only.
type Registry struct {
	mu           sync.RWMutex
	forward      map[string]ForwardHandler
	compensation map[string]CompensationHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		forward:      map[string]ForwardHandler{},
		compensation: map[string]CompensationHandler{},
	}
}

// RegisterForward binds a forward handler name. Re-registering a name is a
// bootstrap bug and returns an error.
func (r *Registry) RegisterForward(name string, handler ForwardHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.forward[name]; exists {
		return fmt.Errorf("forward handler %q already registered", name)
	}
	r.forward[name] = handler
	return nil
}

// RegisterCompensation binds a compensation handler name.
func (r *Registry) RegisterCompensation(name string, handler CompensationHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.compensation[name]; exists {
		return fmt.Errorf("compensation handler %q already registered", name)
	}
	r.compensation[name] = handler
	return nil
}

// Forward resolves a forward handler by name.
func (r *Registry) Forward(name string) (ForwardHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.forward[name]
	return h, ok
}

// Compensation resolves a compensation handler by name.
func (r *Registry) Compensation(name string) (CompensationHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.compensation[name]
	return h, ok
}

// ForwardNames returns the registered forward handler names, sorted.
func (r *Registry) ForwardNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.forward))
	for name := range r.forward {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
