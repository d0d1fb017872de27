package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUpsertFiresDiscoveredOnce(t *testing.T) {
	tbl := NewTable()
	events := tbl.Subscribe()

	p := Peer{ReplicaID: "r1", LastSeen: time.Now()}
	discovered := tbl.Upsert(p)
	assert.True(t, discovered)

	refreshed := tbl.Upsert(p)
	assert.False(t, refreshed)

	select {
	case ev := <-events:
		assert.Equal(t, EventDiscovered, ev.Kind)
	default:
		t.Fatal("expected a discovered event")
	}

	select {
	case ev := <-events:
		t.Fatalf("unexpected second event: %+v", ev)
	default:
	}
}

func TestRemoveFiresLostOnlyWhenPresent(t *testing.T) {
	tbl := NewTable()
	events := tbl.Subscribe()

	tbl.Remove("ghost")
	select {
	case ev := <-events:
		t.Fatalf("unexpected event for absent peer: %+v", ev)
	default:
	}

	tbl.Upsert(Peer{ReplicaID: "r1"})
	<-events // drain discovered

	tbl.Remove("r1")
	select {
	case ev := <-events:
		assert.Equal(t, EventLost, ev.Kind)
	default:
		t.Fatal("expected a lost event")
	}

	_, ok := tbl.Get("r1")
	assert.False(t, ok)
}

func TestListReturnsSnapshot(t *testing.T) {
	tbl := NewTable()
	tbl.Upsert(Peer{ReplicaID: "r1"})
	tbl.Upsert(Peer{ReplicaID: "r2"})

	peers := tbl.List()
	assert.Len(t, peers, 2)
}
