// Package crdt implements the two CRDT data models defined in SPEC_FULL.md
// §3/§4.2/§4.3: a fixed-dimension grid of cells and an unbounded chat log,
// both merged with last-writer-wins over Lamport timestamps.
package crdt

import (
	"fmt"

	"gollaborate/clock"
)

// OpKind discriminates the tagged Op.Value variant (SPEC_FULL.md §9:
// "dynamic typing of operation value" is replaced by this closed set).
type OpKind string

const (
	OpSetCell       OpKind = "set-cell"
	OpSend          OpKind = "send"
	OpEdit          OpKind = "edit"
	OpDelete        OpKind = "delete"
	OpCreateChannel OpKind = "create-channel"
)

// Op is the append-only operation record shared by both CRDTs (spec.md §3
// "Operation record"). Key is a Coord for grid ops or a message/channel id
// string for chat ops; Cell or Message is populated depending on Kind, never
// both — decode-time validation in wire.Receive (Payload.Validate, which
// calls Op.Validate) rejects cross-kind mixes.
type Op struct {
	Kind      OpKind          `json:"kind"`
	Key       string          `json:"key"`
	Cell      *Cell           `json:"cell,omitempty"`
	Message   *Message        `json:"message,omitempty"`
	Timestamp clock.Timestamp `json:"timestamp"`
	Author    string          `json:"author"`
}

// Validate rejects an Op whose payload variant doesn't match its Kind.
func (o Op) Validate() error {
	switch o.Kind {
	case OpSetCell:
		if o.Cell == nil {
			return fmt.Errorf("crdt: set-cell op missing cell value")
		}
		if o.Message != nil {
			return fmt.Errorf("crdt: set-cell op carries a message value")
		}
	case OpSend, OpEdit, OpDelete:
		if o.Message == nil {
			return fmt.Errorf("crdt: %s op missing message value", o.Kind)
		}
		if o.Cell != nil {
			return fmt.Errorf("crdt: %s op carries a cell value", o.Kind)
		}
	case OpCreateChannel:
		// single-channel mode: no-op, payload-free (SPEC_FULL.md §9).
	default:
		return fmt.Errorf("crdt: unknown op kind %q", o.Kind)
	}
	return nil
}
