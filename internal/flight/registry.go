package flight

import "github.com/puzpuzpuz/xsync/v3"

// Registry maps keys to their Loader. Concurrent Acquire calls for an
// absent key agree on a single Loader instance.
type Registry[V any] struct {
	m *xsync.MapOf[string, *Loader[V]]
}

// NewRegistry returns an empty Registry.
func NewRegistry[V any]() *Registry[V] {
	return &Registry[V]{m: xsync.NewMapOf[string, *Loader[V]]()}
}

// Acquire returns the Loader registered for key, creating it with create if
// there is none. A stale Loader (succeeded, then invalidated) is replaced.
// create runs under a bucket lock and must be cheap.
func (r *Registry[V]) Acquire(key string, create func() *Loader[V]) *Loader[V] {
	l, _ := r.m.Compute(key, func(old *Loader[V], loaded bool) (*Loader[V], bool) {
		if loaded && !old.Stale() {
			return old, false
		}
		return create(), false
	})
	return l
}

// Lookup returns the Loader registered for key, if any.
func (r *Registry[V]) Lookup(key string) (*Loader[V], bool) {
	return r.m.Load(key)
}

// Release unregisters l from key. It is a no-op when key now maps to a
// different Loader.
func (r *Registry[V]) Release(key string, l *Loader[V]) bool {
	released := false
	r.m.Compute(key, func(old *Loader[V], loaded bool) (*Loader[V], bool) {
		if !loaded {
			return old, true
		}
		if old != l {
			return old, false
		}
		released = true
		return old, true
	})
	return released
}

// Range calls fn for every registered Loader until fn returns false.
func (r *Registry[V]) Range(fn func(key string, l *Loader[V]) bool) {
	r.m.Range(fn)
}

// Len returns the number of registered Loaders.
func (r *Registry[V]) Len() int { return r.m.Size() }

// Clear drops every registration.
func (r *Registry[V]) Clear() { r.m.Clear() }
