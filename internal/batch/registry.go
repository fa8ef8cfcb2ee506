package batch

import (
	"fmt"
	"sort"
)

// Registry maps job names to definitions. It is built once at startup and
// read-only afterwards, so lookups need no locking.
type Registry struct {
	jobs map[string]JobDefinition
}

// NewRegistry validates and registers the given definitions
func NewRegistry(defs ...JobDefinition) (*Registry, error) {
	r := &Registry{jobs: make(map[string]JobDefinition, len(defs))}
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("invalid job definition: %w", err)
		}
		if _, exists := r.jobs[def.Name]; exists {
			return nil, fmt.Errorf("duplicate job definition %q", def.Name)
		}
		r.jobs[def.Name] = def
	}
	return r, nil
}

// Get returns the definition registered under name
func (r *Registry) Get(name string) (JobDefinition, bool) {
	def, ok := r.jobs[name]
	return def, ok
}

// Names returns all registered job names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
