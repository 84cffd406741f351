// Package locks provides named non-blocking mutexes. Callers that fail to
// acquire skip their work instead of waiting; episode assignment and the
// maintenance pass both use this to stay off the heartbeat's critical path.
package locks

import "sync"

// Registry holds a set of named locks.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	held  map[string]bool
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{
		locks: make(map[string]*sync.Mutex),
		held:  make(map[string]bool),
	}
}

// TryAcquire attempts to take the named lock without blocking.
// Returns true if acquired; the caller must Release it.
func (r *Registry) TryAcquire(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.held[name] {
		return false
	}
	if _, ok := r.locks[name]; !ok {
		r.locks[name] = &sync.Mutex{}
	}
	r.locks[name].Lock()
	r.held[name] = true
	return true
}

// Release frees the named lock. Releasing an unheld lock is a no-op.
func (r *Registry) Release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.held[name] {
		return
	}
	r.held[name] = false
	r.locks[name].Unlock()
}

// Held reports whether the named lock is currently held.
func (r *Registry) Held(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.held[name]
}
