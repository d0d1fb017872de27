package replica

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gollaborate/crdt"
	"gollaborate/wire"
)

func newTestReplica(id string) *Replica {
	return New(id, "Tester", 5, 5, "general", zap.NewNop(), nil)
}

func TestSetLetterNotifiesSubscriber(t *testing.T) {
	r := newTestReplica("r1")
	notified := 0
	r.Subscribe(func() { notified++ })

	_, err := r.SetLetter(crdt.Coord{Row: 0, Col: 0}, 'A', "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, notified)

	cell, ok := r.GetCell(crdt.Coord{Row: 0, Col: 0})
	require.True(t, ok)
	assert.Equal(t, 'A', cell.Letter)
}

func TestApplyOpsRoutesByKindAndNotifiesOnce(t *testing.T) {
	remote := newTestReplica("remote")
	gridOp, err := remote.SetLetter(crdt.Coord{Row: 1, Col: 1}, 'B', "bob")
	require.NoError(t, err)
	chatOp, err := remote.Send("m1", "hello", "bob")
	require.NoError(t, err)

	local := newTestReplica("local")
	notified := 0
	local.Subscribe(func() { notified++ })

	local.ApplyOps([]crdt.Op{gridOp, chatOp})

	assert.Equal(t, 1, notified)
	cell, ok := local.GetCell(crdt.Coord{Row: 1, Col: 1})
	require.True(t, ok)
	assert.Equal(t, 'B', cell.Letter)
	msgs := local.MessagesInChannel()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestApplyOpsRejectsStaleDuplicateSilently(t *testing.T) {
	remote := newTestReplica("remote")
	op, err := remote.SetLetter(crdt.Coord{Row: 0, Col: 0}, 'X', "bob")
	require.NoError(t, err)

	local := newTestReplica("local")
	local.ApplyOps([]crdt.Op{op})
	notified := 0
	local.Subscribe(func() { notified++ })
	local.ApplyOps([]crdt.Op{op}) // duplicate, already seen
	assert.Equal(t, 0, notified)
}

func TestStateSnapshotRoundTripsIntoFreshReplica(t *testing.T) {
	source := newTestReplica("source")
	_, err := source.SetLetter(crdt.Coord{Row: 2, Col: 2}, 'Z', "alice")
	require.NoError(t, err)
	_, err = source.Send("m1", "hi there", "alice")
	require.NoError(t, err)

	snapshot := source.StateSnapshot()
	assert.Equal(t, wire.PayloadState, snapshot.Kind)
	require.NotNil(t, snapshot.Chat)

	dest := newTestReplica("dest")
	dest.ApplyState(snapshot)

	cell, ok := dest.GetCell(crdt.Coord{Row: 2, Col: 2})
	require.True(t, ok)
	assert.Equal(t, 'Z', cell.Letter)

	msgs := dest.MessagesInChannel()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi there", msgs[0].Content)
}

func TestActiveAuthorsDelegatesToChat(t *testing.T) {
	r := newTestReplica("r1")
	_, err := r.Send("m1", "hello", "alice")
	require.NoError(t, err)

	authors := r.ActiveAuthors(10 * time.Minute)
	assert.Equal(t, []string{"alice"}, authors)
}
