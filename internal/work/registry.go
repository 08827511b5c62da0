package work

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds all registered work types and provides lookup by ID and priority ordering.
type Registry struct {
	types   map[string]*WorkType
	ordered []*WorkType // Ordered by priority (highest first)
	mu      sync.RWMutex
	reorder bool
}

// NewRegistry creates a new work type registry.
func NewRegistry() *Registry {
	return &Registry{
		types:   make(map[string]*WorkType),
		ordered: make([]*WorkType, 0),
	}
}

// Register adds a work type to the registry, replacing one with the same ID.
// Work types without an ID or an Execute func are rejected.
func (r *Registry) Register(wt *WorkType) error {
	if wt == nil || wt.ID == "" {
		return fmt.Errorf("work type has no ID")
	}
	if wt.Execute == nil {
		return fmt.Errorf("work type %s has no Execute func", wt.ID)
	}
	if wt.FindSubjects == nil {
		wt.FindSubjects = Global
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.types[wt.ID] = wt
	r.reorder = true
	return nil
}

// Get returns a work type by ID, or nil if not found.
func (r *Registry) Get(id string) *WorkType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.types[id]
}

// ByPriority returns all work types ordered by priority (highest first).
// Within the same priority, work types are ordered alphabetically by ID.
func (r *Registry) ByPriority() []*WorkType {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.reorder {
		r.refreshOrder()
		r.reorder = false
	}

	result := make([]*WorkType, len(r.ordered))
	copy(result, r.ordered)
	return result
}

// refreshOrder must be called with the lock held.
func (r *Registry) refreshOrder() {
	r.ordered = make([]*WorkType, 0, len(r.types))
	for _, wt := range r.types {
		r.ordered = append(r.ordered, wt)
	}

	sort.Slice(r.ordered, func(i, j int) bool {
		if r.ordered[i].Priority != r.ordered[j].Priority {
			return r.ordered[i].Priority > r.ordered[j].Priority
		}
		return r.ordered[i].ID < r.ordered[j].ID
	})
}

// Count returns the number of registered work types.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.types)
}

// GetDependents returns the IDs of work types that depend on the given one, sorted.
func (r *Registry) GetDependents(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dependents := make([]string, 0)
	for _, wt := range r.types {
		for _, depID := range wt.DependsOn {
			if depID == id {
				dependents = append(dependents, wt.ID)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}
