package registry

import (
	"fmt"
	"sort"
	"sync"
)

type memoryEntry struct {
	Entry
	seq uint64
}

// MemoryRegistry is a process-local Registry. All results are copies.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	seq     uint64
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string]memoryEntry),
	}
}

func (r *MemoryRegistry) Register(connectionID, username, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[connectionID]; ok {
		return fmt.Errorf("register %s: %w", connectionID, ErrDuplicateConnection)
	}
	r.seq++
	r.entries[connectionID] = memoryEntry{
		Entry: Entry{ConnectionID: connectionID, Username: username, Room: room},
		seq:   r.seq,
	}
	return nil
}

func (r *MemoryRegistry) Unregister(connectionID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connectionID]
	if !ok {
		return Entry{}, false
	}
	delete(r.entries, connectionID)
	return e.Entry, true
}

// ListUsernames returns one username per connection in the room, in
// registration order. Usernames shared by several connections repeat.
func (r *MemoryRegistry) ListUsernames(room string) []string {
	entries := r.inRoom(room)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Username)
	}
	return names
}

func (r *MemoryRegistry) ConnectionIDs(room string) []string {
	entries := r.inRoom(room)
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ConnectionID)
	}
	return ids
}

func (r *MemoryRegistry) Lookup(connectionID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[connectionID]
	return e.Entry, ok
}

func (r *MemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *MemoryRegistry) inRoom(room string) []memoryEntry {
	r.mu.RLock()
	out := make([]memoryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Room == room {
			out = append(out, e)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}
