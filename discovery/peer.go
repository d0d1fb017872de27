// Package discovery implements LAN peer discovery (SPEC_FULL.md §4.5): UDP
// announce/listen, a TCP identification sweep, and the liveness reaper that
// together populate a shared peers table, grounded on the teacher's
// net.Listen/net.Dial peer-table pattern in peer/main.go generalized from a
// manual peer list to an announce-driven one.
package discovery

import "time"

// ProtocolVersion is this replica's wire protocol version (spec.md §6).
const ProtocolVersion = "1.0"

// Peer is a replica learned via discovery (spec.md §3 "Peer record").
type Peer struct {
	ReplicaID       string    `json:"replica_id"`
	DisplayName     string    `json:"display_name"`
	Address         string    `json:"address"`
	Port            int       `json:"port"`
	LastSeen        time.Time `json:"last_seen"`
	ProtocolVersion string    `json:"protocol_version"`
}

// Announcement is the UDP datagram payload from spec.md §6.
type Announcement struct {
	ReplicaID       string  `json:"replica_id"`
	DisplayName     string  `json:"display_name"`
	LocalIP         string  `json:"local_ip"`
	ServicePort     int     `json:"service_port"`
	WallTimestamp   float64 `json:"wall_timestamp"`
	ProtocolVersion string  `json:"protocol_version"`
	AppTag          string  `json:"app_tag"`
}

// EventKind discriminates a peer-table notification.
type EventKind int

const (
	EventDiscovered EventKind = iota
	EventLost
)

// Event is delivered to Table subscribers in FIFO order (spec.md §4.5).
type Event struct {
	Kind EventKind
	Peer Peer
}
