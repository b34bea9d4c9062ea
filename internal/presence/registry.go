// Package presence tracks which users hold a live realtime connection.
package presence

import (
	"sort"
	"sync"

	"github.com/fathima-sithara/libamarket/internal/domain"
	"github.com/samber/lo"
)

// Handle is a live connection. IDs are unique while the handle is registered.
type Handle interface {
	ID() string
	// Deliver enqueues an event without blocking.
	Deliver(ev domain.Event) error
}

// Registry maps a user to at most one connection; the last registration wins.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Handle
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Handle)}
}

func (r *Registry) Register(userID string, h Handle) {
	r.mu.Lock()
	r.entries[userID] = h
	r.mu.Unlock()
}

// Unregister removes the entry that points at h. It is a no-op when a newer
// connection has already replaced h.
func (r *Registry) Unregister(h Handle) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for uid, cur := range r.entries {
		if cur.ID() == h.ID() {
			delete(r.entries, uid)
			return uid, true
		}
	}
	return "", false
}

func (r *Registry) Lookup(userID string) (Handle, bool) {
	r.mu.RLock()
	h, ok := r.entries[userID]
	r.mu.RUnlock()
	return h, ok
}

// OnlineUsers is sorted so broadcasts are stable.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	ids := lo.Keys(r.entries)
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
