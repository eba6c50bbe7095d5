// Package managers provides the passive CRUD registries backing the MCP
// server's tools, resources, and prompts. Managers hold no locks and have no
// start/stop lifecycle; concurrency is the server's responsibility.
package managers

import (
	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
)

// UpdateHook is invoked when an existing entry is replaced by a different
// one. The server uses it to enqueue */list_changed notifications.
type UpdateHook func(key string)

// registry is the common container behind the component managers. Adds are
// equality-gated: replacing an entry with an equal one is a no-op.
type registry[T any] struct {
	component string
	items     map[string]T
	order     []string
	equal     func(a, b T) bool
	onUpdate  UpdateHook
}

func newRegistry[T any](component string, equal func(a, b T) bool, onUpdate UpdateHook) *registry[T] {
	return &registry[T]{
		component: component,
		items:     make(map[string]T),
		equal:     equal,
		onUpdate:  onUpdate,
	}
}

// add inserts or replaces an entry. Returns true when the registry changed.
func (r *registry[T]) add(key string, item T) bool {
	existing, exists := r.items[key]
	if exists {
		if r.equal != nil && r.equal(existing, item) {
			return false
		}
		r.items[key] = item
		if r.onUpdate != nil {
			r.onUpdate(key)
		}
		return true
	}

	r.items[key] = item
	r.order = append(r.order, key)
	return true
}

func (r *registry[T]) remove(key string) (T, error) {
	item, exists := r.items[key]
	if !exists {
		var zero T
		return zero, mcp.NotFoundError("%s %q not found", r.component, key)
	}
	delete(r.items, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return item, nil
}

func (r *registry[T]) get(key string) (T, error) {
	item, exists := r.items[key]
	if !exists {
		var zero T
		return zero, mcp.NotFoundError("%s %q not found", r.component, key)
	}
	return item, nil
}

func (r *registry[T]) has(key string) bool {
	_, exists := r.items[key]
	return exists
}

// list returns entries in insertion order
func (r *registry[T]) list() []T {
	out := make([]T, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.items[key])
	}
	return out
}

func (r *registry[T]) clear() {
	r.items = make(map[string]T)
	r.order = nil
}

func (r *registry[T]) len() int {
	return len(r.items)
}
