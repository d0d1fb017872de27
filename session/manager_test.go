package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"gollaborate/discovery"
)

func TestConnectSkipsPeerOnProtocolVersionMismatch(t *testing.T) {
	mgr := NewManager("self", discovery.NewTable(), &fakeSource{protocolVersion: "1.0"}, time.Millisecond, time.Hour, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr.connect(ctx, discovery.Peer{
		ReplicaID:       "peer",
		Address:         "127.0.0.1",
		Port:            1,
		ProtocolVersion: "2.0",
	})

	assert.Empty(t, mgr.Sessions(), "a version-mismatched peer must not get a live session")
}
