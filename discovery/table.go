package discovery

import "sync"

// Table is the shared peers table (SPEC_FULL.md §5 "shared between
// discovery, liveness, and session components; protected by a single lock
// held only for short lookups/updates"). Both the UDP announce/listen
// strategy and the TCP sweep strategy feed the same Table, keyed on
// replica_id, last-write-wins on LastSeen.
type Table struct {
	mu     sync.Mutex
	peers  map[string]Peer
	subs   []chan Event
}

// NewTable creates an empty peers table.
func NewTable() *Table {
	return &Table{peers: make(map[string]Peer)}
}

// Subscribe returns a channel that receives discovered/lost events in FIFO
// order. The channel is buffered so a slow subscriber cannot stall the
// table; callers that care about every event should drain promptly.
func (t *Table) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	t.mu.Lock()
	t.subs = append(t.subs, ch)
	t.mu.Unlock()
	return ch
}

func (t *Table) notify(ev Event) {
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// Drop rather than block the table under backpressure; a
			// lagging subscriber should resync from List() instead.
		}
	}
}

// Upsert inserts a new peer (firing EventDiscovered) or refreshes LastSeen
// for an existing one. Returns whether the peer was newly discovered.
func (t *Table) Upsert(p Peer) bool {
	t.mu.Lock()
	_, existed := t.peers[p.ReplicaID]
	t.peers[p.ReplicaID] = p
	t.mu.Unlock()

	if !existed {
		t.notify(Event{Kind: EventDiscovered, Peer: p})
	}
	return !existed
}

// Remove deletes a peer (firing EventLost) if present.
func (t *Table) Remove(replicaID string) {
	t.mu.Lock()
	p, ok := t.peers[replicaID]
	if ok {
		delete(t.peers, replicaID)
	}
	t.mu.Unlock()

	if ok {
		t.notify(Event{Kind: EventLost, Peer: p})
	}
}

// Get returns a peer by id.
func (t *Table) Get(replicaID string) (Peer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[replicaID]
	return p, ok
}

// List returns a snapshot of every known peer.
func (t *Table) List() []Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	return out
}
