// Package wire implements the sync engine (SPEC_FULL.md §4.4/§6): the two
// payload shapes (delta-of-ops, full-state digest) and the request/response
// envelopes peer sessions exchange, framed as newline-delimited JSON over a
// net.Conn exactly as the teacher's messages package frames its own
// operation/sync messages.
package wire

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gollaborate/clock"
	"gollaborate/crdt"
	"gollaborate/errs"
)

// Kind discriminates the Envelope payload, mirroring spec.md §6's wire kinds.
type Kind string

const (
	KindSyncRequest Kind = "sync_request"
	KindSyncResponse Kind = "sync_response"
	KindPush        Kind = "push"
	KindAck         Kind = "sync_ack"
)

// PayloadKind discriminates a delta payload from a full-state payload
// (spec.md §4.4).
type PayloadKind string

const (
	PayloadOps   PayloadKind = "ops"
	PayloadState PayloadKind = "state"
)

// Payload is the body carried by sync_response and push. Exactly one of the
// Ops/{Cells,Chat} groups is populated depending on Kind.
type Payload struct {
	Kind PayloadKind `json:"kind"`

	// PayloadOps
	Since *clock.Timestamp `json:"since,omitempty"`
	Ops   []crdt.Op        `json:"ops,omitempty"`

	// PayloadState: at least one of Cells/Chat is set; a replica running
	// both document flavors sends both.
	VectorClock clock.Vector        `json:"vector_clock,omitempty"`
	Cells       map[string]crdt.Cell `json:"cells,omitempty"`
	Chat        *crdt.StateDigest    `json:"chat,omitempty"`
}

// Validate rejects a malformed payload per spec.md §4.4 failure modes.
func (p Payload) Validate() error {
	switch p.Kind {
	case PayloadOps:
		for i, op := range p.Ops {
			if err := op.Validate(); err != nil {
				return fmt.Errorf("%w: op[%d]: %v", errs.ErrWireFormat, i, err)
			}
		}
	case PayloadState:
		if p.Cells == nil && p.Chat == nil {
			return fmt.Errorf("%w: state payload carries neither cells nor chat", errs.ErrWireFormat)
		}
	default:
		return fmt.Errorf("%w: unknown payload kind %q", errs.ErrWireFormat, p.Kind)
	}
	return nil
}

// Envelope is the top-level TCP request/response frame (spec.md §6).
type Envelope struct {
	Kind    Kind             `json:"kind"`
	Since   *clock.Timestamp `json:"since,omitempty"`
	Payload *Payload         `json:"payload,omitempty"`
	OK      bool             `json:"ok,omitempty"`
}

// Send writes an envelope as a single newline-delimited JSON frame.
func Send(w io.Writer, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("wire: encode: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransportTransient, err)
	}
	return nil
}

// Receive reads one newline-delimited JSON frame and decodes it into an
// Envelope. A decode failure is reported as ErrWireFormat; the caller must
// drop the whole payload rather than partially apply it (spec.md §4.4).
func Receive(r *bufio.Reader) (Envelope, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		if !(errors.Is(err, io.EOF) && len(line) > 0) {
			return Envelope{}, fmt.Errorf("%w: %v", errs.ErrTransportTransient, err)
		}
	}

	var env Envelope
	if decodeErr := json.Unmarshal(line, &env); decodeErr != nil {
		return Envelope{}, fmt.Errorf("%w: %v", errs.ErrWireFormat, decodeErr)
	}
	if env.Payload != nil {
		if valErr := env.Payload.Validate(); valErr != nil {
			return Envelope{}, valErr
		}
	}
	return env, nil
}
