// Package cancel implements best-effort cancellation of workflows: a
// bounded registry of cancelled workflow ids, the per-dispatcher slots
// describing what is running, and the deleter that matches the two.
package cancel

import (
	"sync"
)

// Entry is one slot of the registry. A zero WorkflowID marks a free slot.
type Entry struct {
	WorkflowID int
	Budget     int
	Observed   int
}

func (e Entry) Armed() bool {
	return e.WorkflowID != 0
}

// Expired reports whether more messages than the budget have been
// observed since the entry was armed.
func (e Entry) Expired() bool {
	return e.Observed > e.Budget
}

// Registry is a fixed-capacity table of cancelled workflows. The number of
// armed entries and the entries themselves are guarded by separate locks;
// when both are needed, sizeMu is taken first.
type Registry struct {
	sizeMu sync.RWMutex
	armed  int

	mu      sync.RWMutex
	entries []Entry

	factor int
}

// NewRegistry returns a registry with capacity entries. Budgets are the
// requested check count multiplied by factor.
func NewRegistry(capacity, factor int) *Registry {
	if factor < 1 {
		factor = 1
	}
	return &Registry{
		entries: make([]Entry, capacity),
		factor:  factor,
	}
}

// Arm registers a cancellation of workflow with the given check count. A
// workflow already armed has its budget compounded by the factor and its
// observation count reset. Returns false if the table is full.
func (r *Registry) Arm(workflow, checks int) bool {
	if workflow == 0 {
		return false
	}
	if checks <= 0 {
		checks = 1
	}

	r.sizeMu.Lock()
	defer r.sizeMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	free := -1
	for i := range r.entries {
		e := &r.entries[i]
		if e.WorkflowID == workflow {
			e.Budget = max(e.Budget, checks) * r.factor
			e.Observed = 0
			return true
		}
		if free < 0 && !e.Armed() {
			free = i
		}
	}

	if free < 0 {
		return false
	}

	r.entries[free] = Entry{
		WorkflowID: workflow,
		Budget:     checks * r.factor,
	}
	r.armed++
	return true
}

// IsArmed reports whether workflow has a live cancellation. Entries that
// expired but were not swept yet no longer count.
func (r *Registry) IsArmed(workflow int) bool {
	if workflow == 0 || r.Armed() == 0 {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.WorkflowID == workflow && !e.Expired() {
			return true
		}
	}
	return false
}

// Observe counts one processed message against every armed entry.
func (r *Registry) Observe() {
	if r.Armed() == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].Armed() {
			r.entries[i].Observed++
		}
	}
}

// Sweep frees expired entries and returns the workflows still armed.
func (r *Registry) Sweep() []int {
	r.sizeMu.Lock()
	defer r.sizeMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	var live []int
	for i := range r.entries {
		e := &r.entries[i]
		if !e.Armed() {
			continue
		}
		if e.Expired() {
			*e = Entry{}
			r.armed--
			continue
		}
		live = append(live, e.WorkflowID)
	}
	return live
}

// Armed returns the number of armed entries.
func (r *Registry) Armed() int {
	r.sizeMu.RLock()
	defer r.sizeMu.RUnlock()
	return r.armed
}

func (r *Registry) Capacity() int {
	return len(r.entries)
}

// Entries returns a copy of the armed entries.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var entries []Entry
	for _, e := range r.entries {
		if e.Armed() {
			entries = append(entries, e)
		}
	}
	return entries
}

// Lookup returns the entry of workflow, if armed.
func (r *Registry) Lookup(workflow int) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.Armed() && e.WorkflowID == workflow {
			return e, true
		}
	}
	return Entry{}, false
}
