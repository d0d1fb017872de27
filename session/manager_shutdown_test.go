package session

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"gollaborate/discovery"
)

// TestManagerShutsDownCleanly verifies the registry's listener, event loop,
// and reconcile loop all join on ctx cancellation (spec.md §5), leaving no
// leaked goroutines behind.
func TestManagerShutsDownCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)

	tbl := discovery.NewTable()
	mgr := NewManager("self", tbl, &fakeSource{}, 50*time.Millisecond, time.Hour, zap.NewNop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		mgr.Run(ctx, "127.0.0.1:0")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session manager did not shut down within 2s")
	}
}
