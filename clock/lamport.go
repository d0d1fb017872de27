// Package clock implements the logical clocks used to order and merge
// replica state: a per-replica Lamport timestamp for last-writer-wins
// conflict resolution, and a vector clock used as a digest for full-state
// chat sync.
package clock

// Timestamp is a Lamport timestamp (replica_id, counter). The zero value is
// not a valid timestamp produced by Next; it only appears as the "absent"
// sentinel when comparing against a key that has never been written.
type Timestamp struct {
	ReplicaID string `json:"replica_id"`
	Counter   int64  `json:"counter"`
}

// Lamport is a single replica's logical clock. It is not safe for concurrent
// use; callers serialize access the same way they serialize CRDT mutation
// (see replica.Replica).
type Lamport struct {
	replicaID string
	counter   int64
}

// NewLamport creates a clock for the given replica, starting at counter 0.
func NewLamport(replicaID string) *Lamport {
	return &Lamport{replicaID: replicaID}
}

// Next increments the clock and returns the resulting timestamp. Consecutive
// calls on the same Lamport always yield strictly increasing counters.
func (l *Lamport) Next() Timestamp {
	l.counter++
	return Timestamp{ReplicaID: l.replicaID, Counter: l.counter}
}

// Observe folds a remote timestamp into the local clock without minting a
// new timestamp, so a subsequent Next() stays ahead of anything the replica
// has seen. It mirrors the "tick-on-receive" discipline of a Lamport clock.
func (l *Lamport) Observe(t Timestamp) {
	if t.Counter > l.counter {
		l.counter = t.Counter
	}
}

// Compare implements the total order from spec.md §3: counter first, then
// replica ID lexicographically. Returns <0, 0, or >0 analogous to strings.Compare.
func Compare(a, b Timestamp) int {
	if a.Counter != b.Counter {
		if a.Counter < b.Counter {
			return -1
		}
		return 1
	}
	switch {
	case a.ReplicaID < b.ReplicaID:
		return -1
	case a.ReplicaID > b.ReplicaID:
		return 1
	default:
		return 0
	}
}

// Less reports whether a strictly precedes b in the total order.
func Less(a, b Timestamp) bool {
	return Compare(a, b) < 0
}

// Equal reports whether a and b name the same logical instant.
func Equal(a, b Timestamp) bool {
	return a.ReplicaID == b.ReplicaID && a.Counter == b.Counter
}

// IsZero reports whether t is the unset sentinel (no write has happened yet).
func (t Timestamp) IsZero() bool {
	return t.ReplicaID == "" && t.Counter == 0
}
