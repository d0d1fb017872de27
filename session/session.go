package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"gollaborate/clock"
	"gollaborate/crdt"
	"gollaborate/errs"
	"gollaborate/metrics"
	"gollaborate/wire"
)

// State is a position in the per-peer connection state machine (spec.md
// §4.6): Disconnected -> Connecting -> Established -> Syncing, looping back
// to Established between sync rounds and to Disconnected on any transport
// error.
type State int32

const (
	Disconnected State = iota
	Connecting
	Established
	Syncing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Established:
		return "established"
	case Syncing:
		return "syncing"
	default:
		return "unknown"
	}
}

// Role distinguishes the side of the connection that initiates periodic
// pulls (Initiator, the dialing side) from the side that answers whatever
// arrives (Responder, the accepting side) — the same split the teacher's
// peer/main.go draws between its outbound net.Dial loop and its inbound
// net.Listen accept loop.
type Role int

const (
	Initiator Role = iota
	Responder
)

// DefaultSyncPeriod is the periodic pull interval from spec.md §4.6.
const DefaultSyncPeriod = 3 * time.Second

// Session drives one peer TCP connection: periodic pull on the Initiator
// side, reactive request handling on the Responder side, and a
// single-in-flight backpressure discipline inherited for free from running
// exactly one goroutine per connection (mirroring shared/editor_state.go's
// one-goroutine-per-conn model).
type Session struct {
	mu    sync.Mutex
	state State

	peerID string
	role   Role
	conn   net.Conn
	reader *bufio.Reader

	source     Source
	syncPeriod time.Duration
	log        *zap.Logger
	metrics    *metrics.Registry

	since  clock.Timestamp
	pushCh chan struct{}
}

// Dial opens an outbound connection to addr and returns an Initiator
// Session in the Connecting state.
func Dial(ctx context.Context, addr, peerID string, source Source, connectTimeout, syncPeriod time.Duration, log *zap.Logger, m *metrics.Registry) (*Session, error) {
	dialer := net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", errs.ErrTransportTransient, addr, err)
	}
	return newSession(conn, peerID, Initiator, source, syncPeriod, log, m), nil
}

// Accept wraps an already-accepted inbound connection as a Responder
// Session.
func Accept(conn net.Conn, peerID string, source Source, syncPeriod time.Duration, log *zap.Logger, m *metrics.Registry) *Session {
	return newSession(conn, peerID, Responder, source, syncPeriod, log, m)
}

// Wrap builds a Session around an already-connected net.Conn with an
// explicit Role, for callers (tests, or an in-process transport) that
// already hold a connected pipe instead of dialing or accepting a TCP
// socket themselves.
func Wrap(conn net.Conn, peerID string, role Role, source Source, syncPeriod time.Duration, log *zap.Logger, m *metrics.Registry) *Session {
	return newSession(conn, peerID, role, source, syncPeriod, log, m)
}

func newSession(conn net.Conn, peerID string, role Role, source Source, syncPeriod time.Duration, log *zap.Logger, m *metrics.Registry) *Session {
	if syncPeriod == 0 {
		syncPeriod = DefaultSyncPeriod
	}
	return &Session{
		state:      Connecting,
		peerID:     peerID,
		role:       role,
		conn:       conn,
		reader:     bufio.NewReader(conn),
		source:     source,
		syncPeriod: syncPeriod,
		log:        log,
		metrics:    m,
		pushCh:     make(chan struct{}, 1),
	}
}

// State reports the session's current state machine position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// PeerID is the replica id this session connects to.
func (s *Session) PeerID() string { return s.peerID }

// NotifyLocalEdit wakes the Initiator loop to push freshly produced local
// ops ahead of the next periodic pull. Coalesces bursts of local edits into
// a single push, same as the teacher's shared/editor_state.go broadcast
// queue collapsing rapid keystrokes into one flush.
func (s *Session) NotifyLocalEdit() {
	select {
	case s.pushCh <- struct{}{}:
	default:
	}
}

// Close tears down the underlying connection.
func (s *Session) Close() error {
	s.setState(Disconnected)
	return s.conn.Close()
}

// Run drives the session until ctx is canceled or the connection fails.
// Initiator sessions pull on a timer and push on local-edit notification;
// Responder sessions block reading whatever the peer sends and reply in
// kind. Either path returns (nil on clean ctx cancellation, an error on
// transport/protocol failure) so the owning registry can decide whether to
// redial.
func (s *Session) Run(ctx context.Context) error {
	defer s.conn.Close()
	s.setState(Established)
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
		defer s.metrics.ActiveSessions.Dec()
	}

	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	if s.role == Responder {
		return s.serveResponder(ctx)
	}
	return s.driveInitiator(ctx)
}

func (s *Session) driveInitiator(ctx context.Context) error {
	ticker := time.NewTicker(s.syncPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.pull(); err != nil {
				return err
			}
		case <-s.pushCh:
			if err := s.push(); err != nil {
				return err
			}
		}
	}
}

// pull issues a sync_request for everything after s.since and applies the
// response (spec.md §4.4 delta-of-ops exchange). The very first pull on a
// fresh session has no baseline to delta against, so it omits Since entirely
// — per spec.md §4.6, an absent Since asks the peer for a full-state payload
// rather than an empty-looking delta.
func (s *Session) pull() error {
	s.setState(Syncing)
	defer s.setState(Established)

	var sincePtr *clock.Timestamp
	if !s.since.IsZero() {
		since := s.since
		sincePtr = &since
	}
	if err := wire.Send(s.conn, wire.Envelope{Kind: wire.KindSyncRequest, Since: sincePtr}); err != nil {
		return err
	}
	env, err := wire.Receive(s.reader)
	if err != nil {
		return err
	}
	switch env.Kind {
	case wire.KindSyncResponse:
		return s.applyPayload(env.Payload)
	case wire.KindAck:
		return nil
	default:
		return fmt.Errorf("%w: unexpected reply kind %q to sync_request", errs.ErrWireFormat, env.Kind)
	}
}

// push proactively ships local ops the peer has not seen yet (spec.md §4.6
// "push on local edit") and waits for its ack.
func (s *Session) push() error {
	s.setState(Syncing)
	defer s.setState(Established)

	ops := combinedOpsSince(s.source, s.since)
	if len(ops) == 0 {
		return nil
	}
	payload := &wire.Payload{Kind: wire.PayloadOps, Since: &s.since, Ops: ops}
	if err := wire.Send(s.conn, wire.Envelope{Kind: wire.KindPush, Payload: payload}); err != nil {
		return err
	}
	s.advanceSince(ops)

	env, err := wire.Receive(s.reader)
	if err != nil {
		return err
	}
	if env.Kind != wire.KindAck {
		return fmt.Errorf("%w: expected sync_ack, got %q", errs.ErrWireFormat, env.Kind)
	}
	return nil
}

// serveResponder answers whatever the peer sends on this connection:
// sync_request gets a sync_response, push gets applied and acked.
func (s *Session) serveResponder(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		env, err := wire.Receive(s.reader)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, errs.ErrWireFormat) && s.metrics != nil {
				s.metrics.BadPayloads.Inc()
			}
			return err
		}

		s.setState(Syncing)
		switch env.Kind {
		case wire.KindSyncRequest:
			// No Since means the requester has no baseline yet: answer with
			// a full-state snapshot instead of a delta (spec.md §4.6).
			var resp wire.Envelope
			if env.Since == nil {
				snapshot := s.source.StateSnapshot()
				resp = wire.Envelope{Kind: wire.KindSyncResponse, Payload: &snapshot}
			} else {
				since := *env.Since
				ops := combinedOpsSince(s.source, since)
				resp = wire.Envelope{
					Kind:    wire.KindSyncResponse,
					Payload: &wire.Payload{Kind: wire.PayloadOps, Since: &since, Ops: ops},
				}
			}
			if err := wire.Send(s.conn, resp); err != nil {
				return err
			}
		case wire.KindPush:
			if err := s.applyPayload(env.Payload); err != nil {
				return err
			}
			if err := wire.Send(s.conn, wire.Envelope{Kind: wire.KindAck, OK: true}); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unexpected request kind %q", errs.ErrWireFormat, env.Kind)
		}
		s.setState(Established)
	}
}

func (s *Session) applyPayload(p *wire.Payload) error {
	if p == nil {
		return nil
	}
	switch p.Kind {
	case wire.PayloadOps:
		s.source.ApplyOps(p.Ops)
		s.advanceSince(p.Ops)
	case wire.PayloadState:
		s.source.ApplyState(*p)
		s.advanceSinceFromVector(p.VectorClock)
	default:
		return fmt.Errorf("%w: unknown payload kind %q", errs.ErrWireFormat, p.Kind)
	}
	return nil
}

// advanceSince moves the session's cursor to the newest timestamp among ops,
// never backwards.
func (s *Session) advanceSince(ops []crdt.Op) {
	for _, op := range ops {
		if clock.Less(s.since, op.Timestamp) {
			s.since = op.Timestamp
		}
	}
}

// advanceSinceFromVector moves the session's cursor past a full-state
// payload. A state digest carries no per-op timestamps (it is a snapshot,
// not a log), so there is no exact newest-op timestamp to adopt; the vector
// clock's highest counter is the closest available bound, and using it as
// the next baseline means the following pull only asks for ops genuinely
// newer than what this snapshot already reflects.
func (s *Session) advanceSinceFromVector(vc clock.Vector) {
	for replicaID, counter := range vc {
		candidate := clock.Timestamp{ReplicaID: replicaID, Counter: counter}
		if clock.Less(s.since, candidate) {
			s.since = candidate
		}
	}
}

// combinedOpsSince merges the grid and chat op streams into the single
// timestamp-ordered delta the wire protocol carries (spec.md §3: both CRDTs
// share one replica-wide Lamport clock, so their ops interleave in one
// total order).
func combinedOpsSince(source Source, since clock.Timestamp) []crdt.Op {
	ops := append(source.GridOpsSince(since), source.ChatOpsSince(since)...)
	sort.Slice(ops, func(i, j int) bool {
		return clock.Less(ops[i].Timestamp, ops[j].Timestamp)
	})
	return ops
}
