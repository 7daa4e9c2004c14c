// Package callback holds the named predicates conditions can refer to with
// callback:<name>.
package callback

import (
	"sort"
	"sync"

	"github.com/matthewbaird/fieldstate/internal/form"
)

// Predicate decides a callback condition. self is the field being
// evaluated, contingent the fields matched by the condition's selector and
// values their per-field values.
type Predicate func(self *form.Field, contingent []*form.Field, values []string) bool

// Registry maps callback names to predicates. Entries are added or
// replaced, never removed.
type Registry struct {
	mu         sync.RWMutex
	predicates map[string]Predicate
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{predicates: make(map[string]Predicate)}
}

// Register adds or replaces name. An empty name or nil predicate is
// ignored and reported as false.
func (r *Registry) Register(name string, p Predicate) bool {
	if name == "" || p == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predicates[name] = p
	return true
}

// Lookup returns the predicate registered under name.
func (r *Registry) Lookup(name string) (Predicate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.predicates[name]
	return p, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.predicates))
	for n := range r.predicates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
