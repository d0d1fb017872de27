// Command gollaborate-replica runs one replica of the collaborative
// crossword grid and chat transcript: it discovers peers on the LAN,
// syncs with them over TCP, and serves a Prometheus /metrics endpoint.
// There is no UI here — spec.md scopes this binary to the replication
// engine; an editor-facing frontend is a separate consumer of the
// replica package.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"gollaborate/config"
	"gollaborate/discovery"
	"gollaborate/metrics"
	"gollaborate/presence"
	"gollaborate/replica"
	"gollaborate/session"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "gollaborate-replica: %v\n", err)
		return 1
	}

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gollaborate-replica: logger init: %v\n", err)
		return 1
	}
	defer log.Sync()

	log = log.With(zap.String("replica_id", cfg.ReplicaID), zap.String("display_name", cfg.DisplayName))

	reg := metrics.New()
	rep := replica.New(cfg.ReplicaID, cfg.DisplayName, cfg.Rows, cfg.Cols, cfg.Channel, log, reg)

	table := discovery.NewTable()
	disco := discovery.NewService(cfg.DiscoveryConfig(), table, log, reg)
	mgr := session.NewManager(cfg.ReplicaID, table, rep, cfg.ConnectTimeout, cfg.SyncPeriod, log, reg)
	rep.Subscribe(mgr.BroadcastLocalEdit)

	roster := presence.NewRoster()
	roster.Upsert(cfg.ReplicaID, cfg.DisplayName)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go trackPresence(ctx, table, roster)

	errCh := make(chan error, 1)
	go func() { errCh <- mgr.Run(ctx, fmt.Sprintf(":%d", cfg.BasePort)) }()
	go disco.Run(ctx)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: reg.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	log.Info("replica started",
		zap.Int("service_port", cfg.BasePort),
		zap.Int("discovery_port", cfg.DiscoveryConfig().DiscoveryPort()),
		zap.Int("ident_port", cfg.DiscoveryConfig().IdentPort()),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	if err := <-errCh; err != nil {
		log.Error("session manager exited with error", zap.Error(err))
		return 1
	}
	return 0
}

// trackPresence mirrors discovery events into the presence roster so a
// consuming UI can look up a peer's display name/color alongside its grid
// and chat contributions.
func trackPresence(ctx context.Context, table *discovery.Table, roster *presence.Roster) {
	events := table.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.Kind {
			case discovery.EventDiscovered:
				roster.Upsert(ev.Peer.ReplicaID, ev.Peer.DisplayName)
			case discovery.EventLost:
				roster.Remove(ev.Peer.ReplicaID)
			}
		}
	}
}
