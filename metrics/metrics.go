// Package metrics exposes the Prometheus counters/gauges SPEC_FULL.md §6
// names for the replica's observability surface: peers discovered/lost, bad
// payloads rejected, ops applied/rejected, and active peer sessions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the metrics a replica updates as it runs. Each replica
// owns one Registry registered against its own prometheus.Registry so that
// multiple replicas in the same process (as in tests) never collide.
type Registry struct {
	PeersDiscovered  prometheus.Counter
	PeersLost        prometheus.Counter
	BadPayloads      prometheus.Counter
	OpsApplied       prometheus.Counter
	OpsRejected      prometheus.Counter
	ActiveSessions   prometheus.Gauge

	reg *prometheus.Registry
}

// New creates a Registry with its own isolated prometheus.Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		PeersDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gollaborate_peers_discovered_total",
			Help: "Number of peers that transitioned from unknown to discovered.",
		}),
		PeersLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gollaborate_peers_lost_total",
			Help: "Number of peers that aged out of the liveness window.",
		}),
		BadPayloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gollaborate_bad_payloads_total",
			Help: "Number of malformed wire payloads rejected.",
		}),
		OpsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gollaborate_ops_applied_total",
			Help: "Number of CRDT ops accepted by the merge rule.",
		}),
		OpsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gollaborate_ops_rejected_total",
			Help: "Number of CRDT ops rejected by the merge rule (stale timestamp).",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gollaborate_active_sessions",
			Help: "Number of peer sessions currently Established or Syncing.",
		}),
		reg: reg,
	}
	reg.MustRegister(r.PeersDiscovered, r.PeersLost, r.BadPayloads, r.OpsApplied, r.OpsRejected, r.ActiveSessions)
	return r
}

// Handler returns the HTTP handler to serve at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
