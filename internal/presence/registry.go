// Package presence tracks which display names are currently online.
package presence

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Registry maps live connection IDs to the display name they declared.
// It is the single source of truth for who is online. The hub mutates it
// from its dispatcher loop while HTTP handlers read snapshots, so every
// access goes through the mutex.
type Registry struct {
	mu    sync.RWMutex
	names map[string]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]string)}
}

// Register inserts or overwrites the display name for a connection.
// Names are neither validated for uniqueness nor for emptiness here.
func (r *Registry) Register(connectionID, displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[connectionID] = displayName
}

// Remove deletes the mapping for a connection and reports whether one existed.
// Removing an unknown connection is a no-op.
func (r *Registry) Remove(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[connectionID]; !ok {
		return false
	}
	delete(r.names, connectionID)
	return true
}

// Lookup returns the display name registered for a connection.
func (r *Registry) Lookup(connectionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[connectionID]
	return name, ok
}

// Snapshot returns the distinct display names currently present.
// Two connections sharing a name appear once. The result is sorted but
// callers should treat it as a set.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	names := lo.Uniq(lo.Values(r.names))
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

// Len returns the number of registered connections, not distinct names.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
