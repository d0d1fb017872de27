package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"gollaborate/discovery"
	"gollaborate/errs"
	"gollaborate/metrics"
)

// ReconcileInterval bounds how long a dropped connection can go
// un-redialed: the registry re-scans the peers table on this cadence in
// addition to reacting to discovery events immediately.
const ReconcileInterval = 5 * time.Second

// Manager is the session registry from SPEC_FULL.md §9: it owns the
// service-port listener and the set of live peer Sessions, keyed by
// replica_id, kept separate from the discovery Table's peer records.
// Grounded on the teacher's peer/main.go map[string]net.Conn bookkeeping,
// generalized from a manually-dialed peer list to one driven by discovery
// events.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	stop     map[string]context.CancelFunc

	selfID         string
	table          *discovery.Table
	source         Source
	connectTimeout time.Duration
	syncPeriod     time.Duration
	log            *zap.Logger
	metrics        *metrics.Registry

	wg sync.WaitGroup
}

// NewManager creates an empty session registry.
func NewManager(selfID string, table *discovery.Table, source Source, connectTimeout, syncPeriod time.Duration, log *zap.Logger, m *metrics.Registry) *Manager {
	return &Manager{
		sessions:       make(map[string]*Session),
		stop:           make(map[string]context.CancelFunc),
		selfID:         selfID,
		table:          table,
		source:         source,
		connectTimeout: connectTimeout,
		syncPeriod:     syncPeriod,
		log:            log,
		metrics:        m,
	}
}

// Run starts the inbound listener and the discovery-driven dial loop,
// blocking until ctx is canceled.
func (m *Manager) Run(ctx context.Context, listenAddr string) error {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("session: listen %s: %w", listenAddr, err)
	}

	m.wg.Add(3)
	go m.acceptLoop(ctx, ln)
	go m.eventLoop(ctx)
	go m.reconcileLoop(ctx)

	<-ctx.Done()
	ln.Close()
	m.wg.Wait()

	m.mu.Lock()
	for id, cancel := range m.stop {
		cancel()
		delete(m.stop, id)
	}
	m.mu.Unlock()
	return nil
}

func (m *Manager) acceptLoop(ctx context.Context, ln net.Listener) {
	defer m.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		go m.serveInbound(ctx, conn)
	}
}

// serveInbound runs a Responder session for an accepted connection. The
// peer's replica_id isn't known until its first request arrives, so the
// session itself is not tracked in m.sessions — only Initiator sessions
// are, since those are the ones NotifyLocalEdit needs to reach.
func (m *Manager) serveInbound(ctx context.Context, conn net.Conn) {
	sess := Accept(conn, "", m.source, m.syncPeriod, m.log, m.metrics)
	if err := sess.Run(ctx); err != nil && ctx.Err() == nil {
		m.log.Info("session: inbound connection ended", zap.Error(err))
	}
}

func (m *Manager) eventLoop(ctx context.Context) {
	defer m.wg.Done()
	events := m.table.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.Kind {
			case discovery.EventDiscovered:
				m.connect(ctx, ev.Peer)
			case discovery.EventLost:
				m.disconnect(ev.Peer.ReplicaID)
			}
		}
	}
}

// reconcileLoop redials any known peer without a live Initiator session,
// covering the case where a session dropped but the peer's table entry
// never re-fired EventDiscovered (Table.Upsert only fires once per peer).
func (m *Manager) reconcileLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range m.table.List() {
				m.connect(ctx, p)
			}
		}
	}
}

func (m *Manager) connect(ctx context.Context, p discovery.Peer) {
	if p.ReplicaID == m.selfID || p.ReplicaID == "" {
		return
	}

	// Version mismatch: reject the sync but keep the peer in the discovery
	// set (spec.md §4.4) by simply never dialing it — the table entry, owned
	// by discovery.Table, is untouched.
	if local := m.source.ProtocolVersion(); p.ProtocolVersion != local {
		m.log.Info("session: skipping peer on protocol version mismatch",
			zap.String("replica_id", p.ReplicaID),
			zap.Error(fmt.Errorf("%w: peer=%s local=%s", errs.ErrProtocolVersion, p.ProtocolVersion, local)),
		)
		return
	}

	m.mu.Lock()
	if _, active := m.sessions[p.ReplicaID]; active {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", p.Address, p.Port)
	sess, err := Dial(ctx, addr, p.ReplicaID, m.source, m.connectTimeout, m.syncPeriod, m.log, m.metrics)
	if err != nil {
		m.log.Debug("session: dial failed", zap.String("replica_id", p.ReplicaID), zap.Error(err))
		return
	}

	sessCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.sessions[p.ReplicaID] = sess
	m.stop[p.ReplicaID] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := sess.Run(sessCtx); err != nil {
			m.log.Info("session: connection to peer ended", zap.String("replica_id", p.ReplicaID), zap.Error(err))
		}
		m.mu.Lock()
		delete(m.sessions, p.ReplicaID)
		delete(m.stop, p.ReplicaID)
		m.mu.Unlock()
	}()
}

func (m *Manager) disconnect(replicaID string) {
	m.mu.Lock()
	cancel, ok := m.stop[replicaID]
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// BroadcastLocalEdit wakes every live Initiator session to push ops
// produced by a local mutation ahead of its next periodic pull.
func (m *Manager) BroadcastLocalEdit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sess := range m.sessions {
		sess.NotifyLocalEdit()
	}
}

// Sessions returns a snapshot of active Initiator sessions, keyed by peer
// replica_id.
func (m *Manager) Sessions() map[string]*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*Session, len(m.sessions))
	for id, s := range m.sessions {
		out[id] = s
	}
	return out
}
