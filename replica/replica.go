// Package replica wires the clock, crdt, wire, and metrics packages into the
// single owning value (SPEC_FULL.md §2 component C8): one Grid, one Chat, a
// shared Lamport clock serializing both, and the editor-facing operation
// surface spec.md §6 describes. It implements session.Source so the session
// package can drive sync without importing its owner.
package replica

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"gollaborate/clock"
	"gollaborate/crdt"
	"gollaborate/metrics"
	"gollaborate/wire"
)

// ProtocolVersion is compared against a peer's announced protocol version
// before syncing (spec.md §4.4).
const ProtocolVersion = "1.0"

// Subscriber is called after any local or remote mutation that changes
// visible state. Replica calls subscribers synchronously and in
// registration order (SPEC_FULL.md §9 Open Question: "notify synchronously
// on mutation, not via a buffered event queue" — chosen for the same reason
// the teacher's shared/editor_state.go dispatches redraws inline rather than
// through a queue: a collaborative grid/chat has no frame budget to batch
// against).
type Subscriber func()

// Replica owns one replica's entire CRDT state.
type Replica struct {
	ID          string
	DisplayName string

	lamport *clock.Lamport
	grid    *crdt.Grid
	chat    *crdt.Chat

	log     *zap.Logger
	metrics *metrics.Registry

	mu          sync.Mutex
	vector      clock.Vector
	subscribers []Subscriber
}

// New creates a replica with a rows x cols grid and a single chat channel,
// both driven by one shared Lamport clock so their ops share one total
// order (spec.md §3).
func New(id, displayName string, rows, cols int, channel string, log *zap.Logger, m *metrics.Registry) *Replica {
	lamport := clock.NewLamport(id)
	return &Replica{
		ID:          id,
		DisplayName: displayName,
		lamport:     lamport,
		grid:        crdt.NewGrid(rows, cols, id, lamport),
		chat:        crdt.NewChat(channel, id, lamport),
		log:         log,
		metrics:     m,
		vector:      clock.NewVector(),
	}
}

// Subscribe registers fn to be called after every applied mutation.
func (r *Replica) Subscribe(fn Subscriber) {
	r.mu.Lock()
	r.subscribers = append(r.subscribers, fn)
	r.mu.Unlock()
}

func (r *Replica) notify() {
	r.mu.Lock()
	subs := make([]Subscriber, len(r.subscribers))
	copy(subs, r.subscribers)
	r.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// observe folds an op's timestamp into the replica-wide vector clock used
// to digest full-state chat sync (spec.md §4.4).
func (r *Replica) observe(op crdt.Op) {
	r.mu.Lock()
	if op.Timestamp.Counter > r.vector[op.Timestamp.ReplicaID] {
		r.vector[op.Timestamp.ReplicaID] = op.Timestamp.Counter
	}
	r.mu.Unlock()
}

// --- Grid operations (spec.md §4.2/§6) ---

// SetLetter writes or clears a letter in the grid and notifies subscribers.
func (r *Replica) SetLetter(c crdt.Coord, letter rune, author string) (crdt.Op, error) {
	op, err := r.grid.SetLetter(c, letter, author)
	if err != nil {
		return op, err
	}
	r.observe(op)
	r.notify()
	return op, nil
}

// SetBlack turns a cell black and notifies subscribers.
func (r *Replica) SetBlack(c crdt.Coord, author string) (crdt.Op, error) {
	op, err := r.grid.SetBlack(c, author)
	if err != nil {
		return op, err
	}
	r.observe(op)
	r.notify()
	return op, nil
}

// AddWord places answer starting at start along dir and notifies subscribers
// once for the whole word.
func (r *Replica) AddWord(answer string, start crdt.Coord, dir crdt.Direction, author string) (int, []crdt.Op, error) {
	number, ops, err := r.grid.AddWord(answer, start, dir, author)
	for _, op := range ops {
		r.observe(op)
	}
	if len(ops) > 0 {
		r.notify()
	}
	return number, ops, err
}

// GetCell returns the current state of a single cell.
func (r *Replica) GetCell(c crdt.Coord) (crdt.Cell, bool) {
	return r.grid.GetCell(c)
}

// GridSnapshot returns every stored cell.
func (r *Replica) GridSnapshot() map[crdt.Coord]crdt.Cell {
	return r.grid.Snapshot()
}

// GridDimensions returns the grid's fixed size.
func (r *Replica) GridDimensions() (rows, cols int) {
	return r.grid.Dimensions()
}

// --- Chat operations (spec.md §4.3/§6) ---

// Send posts a new message and notifies subscribers.
func (r *Replica) Send(id, content, author string) (crdt.Op, error) {
	op, err := r.chat.Send(id, content, author)
	if err != nil {
		return op, err
	}
	r.observe(op)
	r.notify()
	return op, nil
}

// Edit rewrites a message's content and notifies subscribers.
func (r *Replica) Edit(id, newContent, author string) (crdt.Op, error) {
	op, err := r.chat.Edit(id, newContent, author)
	if err != nil {
		return op, err
	}
	r.observe(op)
	r.notify()
	return op, nil
}

// Delete tombstones a message's content and notifies subscribers.
func (r *Replica) Delete(id, author string) (crdt.Op, error) {
	op, err := r.chat.Delete(id, author)
	if err != nil {
		return op, err
	}
	r.observe(op)
	r.notify()
	return op, nil
}

// MessagesInChannel returns the chat's messages in channel-index order (see
// crdt.Chat.MessagesInChannel).
func (r *Replica) MessagesInChannel() []crdt.Message {
	return r.chat.MessagesInChannel()
}

// Search ranks messages matching query.
func (r *Replica) Search(query string) []crdt.SearchResult {
	return r.chat.Search(query)
}

// ActiveAuthors returns authors who posted within the trailing window.
func (r *Replica) ActiveAuthors(window time.Duration) []string {
	return r.chat.ActiveAuthors(window)
}

// --- session.Source implementation (spec.md §4.4/§4.6) ---

// GridOpsSince satisfies session.Source.
func (r *Replica) GridOpsSince(since clock.Timestamp) []crdt.Op {
	return r.grid.OpsSince(since)
}

// ChatOpsSince satisfies session.Source.
func (r *Replica) ChatOpsSince(since clock.Timestamp) []crdt.Op {
	return r.chat.OpsSince(since)
}

// ApplyOps routes each remote op to the CRDT it belongs to by kind, observes
// its timestamp, and notifies subscribers once if anything actually changed.
func (r *Replica) ApplyOps(ops []crdt.Op) {
	changed := false
	for _, op := range ops {
		var applied bool
		switch op.Kind {
		case crdt.OpSetCell:
			applied = r.grid.Apply(op)
		case crdt.OpSend, crdt.OpEdit, crdt.OpDelete:
			applied = r.chat.Apply(op)
		case crdt.OpCreateChannel:
			applied = true // single-channel mode: nothing to do but accept it
		}
		r.observe(op)

		if applied {
			changed = true
			if r.metrics != nil {
				r.metrics.OpsApplied.Inc()
			}
		} else if r.metrics != nil {
			r.metrics.OpsRejected.Inc()
		}
	}
	if changed {
		r.notify()
	}
}

// StateSnapshot builds the full-state payload for this replica (spec.md
// §4.4).
func (r *Replica) StateSnapshot() wire.Payload {
	cells := r.grid.Snapshot()
	cellMap := make(map[string]crdt.Cell, len(cells))
	for coord, cell := range cells {
		cellMap[coord.String()] = cell
	}

	r.mu.Lock()
	vc := r.vector.Clone()
	r.mu.Unlock()

	digest := r.chat.Digest(vc)
	return wire.Payload{
		Kind:        wire.PayloadState,
		VectorClock: vc,
		Cells:       cellMap,
		Chat:        &digest,
	}
}

// ApplyState ingests a peer's full-state payload: absent grid cells are
// filled in (see crdt.Grid.MergeSnapshot for why this is one-directional),
// and the chat digest is merged via crdt.Chat.MergeState.
func (r *Replica) ApplyState(p wire.Payload) {
	if p.Kind != wire.PayloadState {
		return
	}

	if len(p.Cells) > 0 {
		cells := make(map[crdt.Coord]crdt.Cell, len(p.Cells))
		for key, cell := range p.Cells {
			if coord, ok := crdt.ParseCoord(key); ok {
				cells[coord] = cell
			}
		}
		if r.grid.MergeSnapshot(cells) {
			r.notify()
		}
	}

	if p.Chat != nil {
		r.mu.Lock()
		vc := r.vector
		r.mu.Unlock()
		if r.chat.MergeState(*p.Chat, vc) {
			r.notify()
		}
	}
}

// ProtocolVersion satisfies session.Source.
func (r *Replica) ProtocolVersion() string {
	return ProtocolVersion
}
