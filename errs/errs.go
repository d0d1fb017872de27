// Package errs defines the sentinel error kinds from SPEC_FULL.md §7, shared
// across crdt, wire, and discovery so callers can classify failures with
// errors.Is instead of string matching.
package errs

import "errors"

var (
	// ErrInvalidArgument: out-of-bounds coordinate, empty clue/answer,
	// non-letter in a letter slot. Caller-visible, no state change.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPreconditionFailed: write to a black cell, blocked word placement.
	// Caller-visible, no state change.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrProtocolVersion: peer announced an incompatible protocol version.
	// Peer stays in the discovery set but is excluded from sync.
	ErrProtocolVersion = errors.New("incompatible protocol version")

	// ErrWireFormat: malformed payload. The whole payload is dropped and
	// nothing of it is applied; the session that received it ends and is
	// not kept open.
	ErrWireFormat = errors.New("malformed wire payload")

	// ErrTransportTransient: TCP connect/read/write failure, UDP send
	// failure. Retried on the next schedule tick.
	ErrTransportTransient = errors.New("transient transport failure")
)
