package evaluator

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs an evaluator from suite-supplied parameters.
type Factory func(params map[string]any) (Evaluator, error)

// Registry maps evaluator kinds to their factories so that suite
// configuration can refer to evaluators by name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty evaluator registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory to the registry under the given kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Resolve constructs an evaluator of the given kind with the given
// parameters. Returns an error if the kind is not registered or the
// parameters are invalid.
func (r *Registry) Resolve(kind string, params map[string]any) (Evaluator, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("evaluator %q is not registered", kind)
	}

	ev, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("build evaluator %q: %w", kind, err)
	}
	return ev, nil
}

// Kinds returns all registered kinds, sorted for a stable API response.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// DefaultRegistry returns a registry with all built-in evaluators registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KindRunSuccess, newRunSuccess)
	r.Register(KindLatency, newLatency)
	r.Register(KindOutputMatch, newOutputMatch)
	return r
}
