package api

import (
	"fmt"
	"sort"
	"sync"
)

// BlockFactory builds the runtime block for one node. It returns a
// *ConfigurationError when the node's data is unusable.
type BlockFactory func(node Node) (Block, error)

// Registry maps node kinds to block factories. A Registry is built
// explicitly and handed to workers; there is no package-level registry.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]BlockFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]BlockFactory)}
}

// Register adds a factory for kind. Registering the same kind twice is an error.
func (r *Registry) Register(kind string, f BlockFactory) error {
	if kind == "" {
		return fmt.Errorf("block kind must not be empty")
	}
	if f == nil {
		return fmt.Errorf("block kind %q: nil factory", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("block kind %q already registered", kind)
	}
	r.factories[kind] = f
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(kind string, f BlockFactory) {
	if err := r.Register(kind, f); err != nil {
		panic(err)
	}
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build validates g and constructs one block per node. An unknown kind or a
// factory failure aborts the whole build with a *ConfigurationError.
func (r *Registry) Build(g *FlowGraph) (map[string]Block, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	blocks := make(map[string]Block, len(g.Nodes))
	for _, n := range g.Nodes {
		f, ok := r.factories[n.Kind]
		if !ok {
			return nil, &ConfigurationError{NodeID: n.ID, Reason: fmt.Sprintf("unknown node type %q", n.Kind)}
		}
		b, err := f(n)
		if err != nil {
			if IsConfigurationError(err) {
				return nil, err
			}
			return nil, &ConfigurationError{NodeID: n.ID, Reason: "cannot build " + n.Kind + " block", Err: err}
		}
		blocks[n.ID] = b
	}
	return blocks, nil
}
