package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"gollaborate/metrics"
)

// Service runs the fixed set of long-running discovery tasks named in
// SPEC_FULL.md §5: the UDP announcer, the UDP listener, the TCP sweep
// driver, the TCP identification server, and the liveness reaper. All share
// a single cooperative-cancellation context and a *Table.
type Service struct {
	cfg     Config
	table   *Table
	log     *zap.Logger
	metrics *metrics.Registry

	localIP string
	wg      sync.WaitGroup
}

// NewService wires a discovery Service around an existing Table.
func NewService(cfg Config, table *Table, log *zap.Logger, m *metrics.Registry) *Service {
	return &Service{
		cfg:     cfg.WithDefaults(),
		table:   table,
		log:     log,
		metrics: m,
		localIP: LocalIP(),
	}
}

// Run starts every task and blocks until ctx is canceled, then joins all
// tasks (spec.md §5 "tasks join within 2s").
func (s *Service) Run(ctx context.Context) {
	s.wg.Add(5)
	go s.announceLoop(ctx)
	go s.listenLoop(ctx)
	go s.sweepLoop(ctx)
	go s.identServer(ctx)
	go s.reapLoop(ctx)
	s.wg.Wait()
}

func (s *Service) announceLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.BroadcastInterval)
	defer ticker.Stop()

	for {
		s.announceOnce()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) announceOnce() {
	pc, err := listenBroadcastSocket()
	if err != nil {
		s.log.Info("discovery: announce socket failed", zap.Error(err))
		return
	}
	defer pc.Close()

	ann := Announcement{
		ReplicaID:       s.cfg.ReplicaID,
		DisplayName:     s.cfg.DisplayName,
		LocalIP:         s.localIP,
		ServicePort:     s.cfg.ServicePort(),
		WallTimestamp:   float64(time.Now().UnixNano()) / 1e9,
		ProtocolVersion: ProtocolVersion,
		AppTag:          s.cfg.AppTag,
	}
	data, err := json.Marshal(ann)
	if err != nil {
		s.log.Error("discovery: encode announcement", zap.Error(err))
		return
	}

	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: s.cfg.DiscoveryPort()}
	if _, err := pc.WriteTo(data, dst); err != nil {
		s.log.Info("discovery: announce send failed", zap.Error(err))
	}
}

func (s *Service) listenLoop(ctx context.Context) {
	defer s.wg.Done()

	pc, err := net.ListenPacket("udp", fmt.Sprintf(":%d", s.cfg.DiscoveryPort()))
	if err != nil {
		s.log.Error("discovery: cannot bind UDP listener", zap.Error(err))
		return
	}
	defer pc.Close()

	go func() {
		<-ctx.Done()
		pc.Close()
	}()

	buf := make([]byte, 4096)
	for {
		_ = pc.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			continue
		}

		var ann Announcement
		if err := json.Unmarshal(buf[:n], &ann); err != nil {
			continue
		}
		s.ingestAnnouncement(ann)
	}
}

func (s *Service) ingestAnnouncement(ann Announcement) {
	if ann.ReplicaID == s.cfg.ReplicaID {
		return // drop our own broadcast
	}
	if ann.AppTag != s.cfg.AppTag {
		return // different swarm sharing the LAN (SPEC_FULL.md §4.5)
	}

	p := Peer{
		ReplicaID:       ann.ReplicaID,
		DisplayName:     ann.DisplayName,
		Address:         ann.LocalIP,
		Port:            ann.ServicePort,
		LastSeen:        time.Now(),
		ProtocolVersion: ann.ProtocolVersion,
	}
	discovered := s.table.Upsert(p)
	if discovered {
		s.log.Info("discovery: peer discovered", zap.String("replica_id", p.ReplicaID), zap.String("address", p.Address))
		if s.metrics != nil {
			s.metrics.PeersDiscovered.Inc()
		}
	}
}

func (s *Service) sweepLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		s.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sweepOnce fans a bounded worker pool out across the /24 (SPEC_FULL.md §9
// "bounded worker pool... cap total wall time per sweep at SWEEP_BUDGET").
func (s *Service) sweepOnce(ctx context.Context) {
	prefix, lastOctet, ok := subnet24(s.localIP)
	if !ok {
		return
	}

	sweepCtx, cancel := context.WithTimeout(ctx, s.cfg.SweepBudget)
	defer cancel()

	addrs := make(chan int, 254)
	var wg sync.WaitGroup
	for w := 0; w < s.cfg.SweepWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for octet := range addrs {
				s.probe(sweepCtx, fmt.Sprintf("%s%d", prefix, octet))
			}
		}()
	}

	for x := 1; x <= 254; x++ {
		if x == lastOctet {
			continue
		}
		select {
		case addrs <- x:
		case <-sweepCtx.Done():
			close(addrs)
			wg.Wait()
			return
		}
	}
	close(addrs)
	wg.Wait()
}

func (s *Service) probe(ctx context.Context, host string) {
	addr := fmt.Sprintf("%s:%d", host, s.cfg.IdentPort())
	dialer := net.Dialer{Timeout: s.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(s.cfg.ConnectTimeout))
	var ann Announcement
	if err := json.NewDecoder(conn).Decode(&ann); err != nil {
		return
	}
	s.ingestAnnouncement(ann)
}

// identServer answers TCP sweep probes with this replica's announcement
// record (spec.md §4.5 strategy B).
func (s *Service) identServer(ctx context.Context) {
	defer s.wg.Done()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.IdentPort()))
	if err != nil {
		s.log.Error("discovery: cannot bind ident listener", zap.Error(err))
		return
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		go s.handleIdentConn(conn)
	}
}

func (s *Service) handleIdentConn(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))

	ann := Announcement{
		ReplicaID:       s.cfg.ReplicaID,
		DisplayName:     s.cfg.DisplayName,
		LocalIP:         s.localIP,
		ServicePort:     s.cfg.ServicePort(),
		WallTimestamp:   float64(time.Now().UnixNano()) / 1e9,
		ProtocolVersion: ProtocolVersion,
		AppTag:          s.cfg.AppTag,
	}
	enc := json.NewEncoder(conn)
	_ = enc.Encode(ann)
}

func (s *Service) reapLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.LivenessPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reapOnce()
		}
	}
}

func (s *Service) reapOnce() {
	cutoff := time.Now().Add(-s.cfg.Timeout)
	for _, p := range s.table.List() {
		if p.LastSeen.Before(cutoff) {
			s.table.Remove(p.ReplicaID)
			s.log.Info("discovery: peer lost", zap.String("replica_id", p.ReplicaID))
			if s.metrics != nil {
				s.metrics.PeersLost.Inc()
			}
		}
	}
}
