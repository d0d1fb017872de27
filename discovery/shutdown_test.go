package discovery

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
)

// TestServiceShutsDownCleanly verifies the fixed set of long-running
// discovery tasks (announcer, listener, sweeper, ident server, reaper) all
// join once ctx is canceled, leaving no leaked goroutines (spec.md §5
// "tasks join within 2s").
func TestServiceShutsDownCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)

	tbl := NewTable()
	cfg := Config{
		ReplicaID:         "shutdown-test",
		BasePort:          0,
		BroadcastInterval: 20 * time.Millisecond,
		SweepInterval:     20 * time.Millisecond,
		LivenessPeriod:    20 * time.Millisecond,
	}.WithDefaults()
	// WithDefaults turns BasePort 0 into DefaultBasePort, whose derived ports
	// a running replica may already hold; use an unprivileged base that
	// keeps every derived port available for a short-lived listener.
	cfg.BasePort = 29000

	svc := NewService(cfg, tbl, zap.NewNop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("discovery service did not shut down within 2s")
	}
}
