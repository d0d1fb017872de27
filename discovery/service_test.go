package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestIngestAnnouncementDropsOwnReplica(t *testing.T) {
	tbl := NewTable()
	cfg := Config{ReplicaID: "r1", AppTag: "gollaborate"}.WithDefaults()
	svc := NewService(cfg, tbl, zap.NewNop(), nil)

	svc.ingestAnnouncement(Announcement{ReplicaID: "r1", AppTag: "gollaborate"})
	assert.Empty(t, tbl.List())
}

func TestIngestAnnouncementDropsMismatchedAppTag(t *testing.T) {
	tbl := NewTable()
	cfg := Config{ReplicaID: "r1", AppTag: "gollaborate"}.WithDefaults()
	svc := NewService(cfg, tbl, zap.NewNop(), nil)

	svc.ingestAnnouncement(Announcement{ReplicaID: "r2", AppTag: "other-swarm"})
	assert.Empty(t, tbl.List())
}

func TestIngestAnnouncementAddsPeer(t *testing.T) {
	tbl := NewTable()
	cfg := Config{ReplicaID: "r1", AppTag: "gollaborate"}.WithDefaults()
	svc := NewService(cfg, tbl, zap.NewNop(), nil)

	svc.ingestAnnouncement(Announcement{ReplicaID: "r2", AppTag: "gollaborate", LocalIP: "10.0.0.5", ServicePort: 12345})
	peers := tbl.List()
	assert.Len(t, peers, 1)
	assert.Equal(t, "r2", peers[0].ReplicaID)
}

func TestReapOnceRemovesStalePeers(t *testing.T) {
	tbl := NewTable()
	cfg := Config{ReplicaID: "r1", Timeout: 30 * time.Second}.WithDefaults()
	svc := NewService(cfg, tbl, zap.NewNop(), nil)

	tbl.Upsert(Peer{ReplicaID: "stale", LastSeen: time.Now().Add(-time.Hour)})
	tbl.Upsert(Peer{ReplicaID: "fresh", LastSeen: time.Now()})

	svc.reapOnce()

	peers := tbl.List()
	assert.Len(t, peers, 1)
	assert.Equal(t, "fresh", peers[0].ReplicaID)
}

func TestConfigDefaultsComputePorts(t *testing.T) {
	cfg := Config{}.WithDefaults()
	assert.Equal(t, DefaultBasePort, cfg.ServicePort())
	assert.Equal(t, DefaultBasePort+1000, cfg.DiscoveryPort())
	assert.Equal(t, DefaultBasePort+2000, cfg.IdentPort())
}
