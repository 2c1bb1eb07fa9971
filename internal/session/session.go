// Package session keeps transient per-client objects (wizards, review panels)
// in memory and drops them after an idle period.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry[T any] struct {
	value    T
	lastSeen time.Time
}

// Registry maps opaque ids to values with idle expiry.
type Registry[T any] struct {
	mu    sync.Mutex
	items map[string]*entry[T]
	ttl   time.Duration
	now   func() time.Time
}

// New creates a registry. A non-positive ttl disables expiry.
func New[T any](ttl time.Duration) *Registry[T] {
	return &Registry[T]{items: make(map[string]*entry[T]), ttl: ttl, now: time.Now}
}

// Create stores v under a fresh id.
func (r *Registry[T]) Create(v T) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.items[id] = &entry[T]{value: v, lastSeen: r.now()}
	r.mu.Unlock()
	return id
}

// Get returns the value for id and refreshes its idle timer.
func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.items[id]
	if !ok || r.expired(e) {
		if ok {
			delete(r.items, id)
		}
		var zero T
		return zero, false
	}
	e.lastSeen = r.now()
	return e.value, true
}

// Delete removes id and reports whether it existed.
func (r *Registry[T]) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.items[id]
	delete(r.items, id)
	return ok
}

// Len reports how many live entries are held.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Sweep drops idle entries and returns how many were removed.
func (r *Registry[T]) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, e := range r.items {
		if r.expired(e) {
			delete(r.items, id)
			removed++
		}
	}
	return removed
}

func (r *Registry[T]) expired(e *entry[T]) bool {
	return r.ttl > 0 && r.now().Sub(e.lastSeen) > r.ttl
}
