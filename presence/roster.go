// Package presence tracks a display name and a stable display color per
// replica_id, adapted from the teacher's users.Manager (which assigned an
// incrementing int ID and a color to each connected user) to key on the
// replica_id this spec already mints instead of allocating a new local ID.
// It backs the editor-facing presence indicator SPEC_FULL.md §4.3 calls for
// alongside crdt.Chat.ActiveAuthors.
package presence

import "sync"

// palette is the fixed color set the teacher's generateUserColor cycled
// through; kept verbatim since the spec has no opinion on display colors.
var palette = []string{
	"#FF5733", "#33FF57", "#3357FF", "#FF33F1",
	"#F1FF33", "#33FFF1", "#FF8C33", "#8C33FF",
	"#33FF8C", "#FF3333", "#33FFFF", "#FFFF33",
	"#8B4513", "#FF1493", "#00CED1", "#FFD700",
	"#32CD32", "#FF4500", "#9370DB", "#00FA9A",
	"#FF6347", "#4169E1", "#FF69B4",
}

// Entry is one replica's presence record.
type Entry struct {
	ReplicaID   string
	DisplayName string
	Color       string
}

// Roster maps replica_id to its presence Entry. Entries are added as peers
// are discovered and removed as they're lost; a replica's own entry is
// added once at startup and never removed.
type Roster struct {
	mu      sync.RWMutex
	entries map[string]Entry
	next    int
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{entries: make(map[string]Entry)}
}

// Upsert adds or refreshes a replica's presence entry, assigning it a color
// deterministically from join order if it's new.
func (r *Roster) Upsert(replicaID, displayName string) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[replicaID]
	if !exists {
		entry = Entry{
			ReplicaID: replicaID,
			Color:     palette[r.next%len(palette)],
		}
		r.next++
	}
	entry.DisplayName = displayName
	r.entries[replicaID] = entry
	return entry
}

// Remove drops a replica's presence entry.
func (r *Roster) Remove(replicaID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, replicaID)
}

// Get returns a replica's presence entry, if known.
func (r *Roster) Get(replicaID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[replicaID]
	return e, ok
}

// All returns every known presence entry.
func (r *Roster) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// Count returns the number of tracked entries.
func (r *Roster) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
