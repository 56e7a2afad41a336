package processors

import (
	"fmt"
	"sort"

	"github.com/arthur-debert/refshift/types"
)

// Registry maps root collection names to their processors.
// A Registry is built once at startup and only read afterwards.
type Registry struct {
	processors map[string]Processor
}

// NewRegistry creates a registry holding the given processors
func NewRegistry(procs ...Processor) (*Registry, error) {
	r := &Registry{processors: make(map[string]Processor, len(procs))}
	for _, p := range procs {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Default returns the registry of the built-in root collections
func Default() *Registry {
	r, err := NewRegistry(Decks(), Slides(), Users(), Usergroups(), Tags())
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds a processor. Collection names must be unique and non-empty.
func (r *Registry) Register(p Processor) error {
	name := p.Collection()
	if !isValidCollectionName(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	if _, exists := r.processors[name]; exists {
		return fmt.Errorf("processor for %q already registered", name)
	}

	seen := make(map[string]bool)
	for _, dep := range p.Dependents() {
		if seen[dep] {
			return fmt.Errorf("processor for %q lists dependent %q twice", name, dep)
		}
		seen[dep] = true
	}

	r.processors[name] = p
	return nil
}

// Get returns the processor of a root collection
func (r *Registry) Get(collection string) (Processor, error) {
	p, exists := r.processors[collection]
	if !exists {
		return nil, types.ErrUnsupportedCollection(collection)
	}
	return p, nil
}

// Collections returns all registered root collections, sorted
func (r *Registry) Collections() []string {
	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// isValidCollectionName rejects names the store would refuse
func isValidCollectionName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r == '$' || r == 0 {
			return false
		}
	}
	return true
}
