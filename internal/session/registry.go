package session

import (
	"sort"
	"sync"
)

// Registry is the process-wide map of live session handles. Entries are
// ephemeral; persisted credentials are the only durable state. Construct one
// per process and inject it.
type Registry struct {
	mu    sync.RWMutex
	items map[string]*Handle
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]*Handle)}
}

func (r *Registry) Set(sessionID string, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[sessionID] = h
}

func (r *Registry) Get(sessionID string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.items[sessionID]
	return h, ok
}

// DeleteOwned removes the entry only while h still owns it, so a finished
// loop cannot evict a replacement session that reused the id.
func (r *Registry) DeleteOwned(sessionID string, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items[sessionID] == h {
		delete(r.items, sessionID)
	}
}

func (r *Registry) Delete(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, sessionID)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// ForEach visits a point-in-time copy of the handles, sorted by session id.
// Used for cleanup sweeps and listing surfaces.
func (r *Registry) ForEach(fn func(h *Handle)) {
	r.mu.RLock()
	handles := make([]*Handle, 0, len(r.items))
	for _, h := range r.items {
		handles = append(handles, h)
	}
	r.mu.RUnlock()
	sort.Slice(handles, func(i, j int) bool {
		return handles[i].SessionID() < handles[j].SessionID()
	})
	for _, h := range handles {
		fn(h)
	}
}
