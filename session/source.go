// Package session implements the per-peer TCP session state machine from
// SPEC_FULL.md §4.6: request/response sync, periodic pull, and fan-out of
// local edits, grounded on the teacher's peer/main.go connection bookkeeping
// and shared/editor_state.go's connection-owns-a-goroutine pattern.
package session

import (
	"gollaborate/clock"
	"gollaborate/crdt"
	"gollaborate/wire"
)

// Source is everything a Session needs from the replica's CRDT/sync state.
// Defined here (not in the replica package) so session never imports its
// owner, avoiding the cyclic reference spec.md §9 calls out.
type Source interface {
	// GridOpsSince returns grid ops strictly newer than since (zero value
	// for the full log). Returns nil if this replica runs no grid.
	GridOpsSince(since clock.Timestamp) []crdt.Op
	// ChatOpsSince returns chat ops strictly newer than since. Returns nil
	// if this replica runs no chat.
	ChatOpsSince(since clock.Timestamp) []crdt.Op

	// ApplyOps feeds delta ops from a peer through the CRDT apply rules.
	ApplyOps(ops []crdt.Op)

	// StateSnapshot builds a full-state payload (spec.md §4.4).
	StateSnapshot() wire.Payload
	// ApplyState ingests a full-state payload (spec.md §4.3/§4.4).
	ApplyState(payload wire.Payload)

	// ProtocolVersion is compared against a peer's announced version
	// before any exchange (spec.md §4.4 failure modes).
	ProtocolVersion() string
}
