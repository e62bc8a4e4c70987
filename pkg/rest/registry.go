package rest

import (
	"fmt"
	"sync"

	"github.com/sqlrest/sqlrest/pkg/mssql"
	"github.com/sqlrest/sqlrest/pkg/mssql/catalog"
)

// RegisteredObject is one discovered object wired to its target's
// executor, with the mutation plan resolved at discovery time.
type RegisteredObject struct {
	Target string
	Object catalog.Object
	Plan   MutationPlan
	Exec   mssql.Executor
}

// RouteKey is the object's route identity: target name + object name.
func (ro *RegisteredObject) RouteKey() string {
	return fmt.Sprintf("%s/%s", ro.Target, ro.Object.Name)
}

// Registry is the process-wide accumulated set of registered objects.
// Supervisors for different targets merge into the same registry
// concurrently; merging is additive and keyed by route identity, so one
// target's discovery never wipes out another's contribution, and
// re-discovery of an unchanged target replaces its own entries in place.
type Registry struct {
	objects map[string]RegisteredObject
	version uint64
	mu      sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{objects: make(map[string]RegisteredObject)}
}

// Merge upserts a target's discovered objects. Entries are never removed:
// a target's contribution only grows or gets replaced entry by entry.
func (r *Registry) Merge(objects []RegisteredObject) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, obj := range objects {
		r.objects[obj.RouteKey()] = obj
	}
	r.version++
}

// Lookup resolves a route identity to its registered object.
func (r *Registry) Lookup(target, name string) (RegisteredObject, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obj, ok := r.objects[fmt.Sprintf("%s/%s", target, name)]
	return obj, ok
}

// Snapshot returns a copy of the registered set.
func (r *Registry) Snapshot() map[string]RegisteredObject {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]RegisteredObject, len(r.objects))
	for k, v := range r.objects {
		snap[k] = v
	}
	return snap
}

// Version increments on every merge; the document builder uses it to
// decide whether its cached document is current.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Len reports the number of registered objects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}
