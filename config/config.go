// Package config parses the replica's command-line surface with
// github.com/spf13/pflag, generalizing the flag.Int/flag.String variables
// the teacher's root main.go declares into the richer tunable set
// SPEC_FULL.md §6 names for a replica process.
package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"gollaborate/discovery"
)

// Config is the fully-resolved configuration for one replica process.
type Config struct {
	ReplicaID   string
	DisplayName string
	AppTag      string

	Rows int
	Cols int

	Channel string

	BasePort int

	BroadcastInterval time.Duration
	SweepInterval     time.Duration
	ConnectTimeout    time.Duration
	LivenessPeriod    time.Duration
	Timeout           time.Duration
	SweepBudget       time.Duration
	SweepWorkers      int
	SyncPeriod        time.Duration

	MetricsAddr string
}

// Defaults returns a Config with every field at its spec.md default, a
// freshly minted replica id, and a process-derived display name.
func Defaults() Config {
	return Config{
		ReplicaID:         uuid.NewString(),
		DisplayName:       fmt.Sprintf("replica-%d", time.Now().UnixNano()%100000),
		AppTag:            "gollaborate",
		Rows:              15,
		Cols:              15,
		Channel:           "general",
		BasePort:          discovery.DefaultBasePort,
		BroadcastInterval: discovery.DefaultBroadcastInterval,
		SweepInterval:     discovery.DefaultSweepInterval,
		ConnectTimeout:    discovery.DefaultConnectTimeout,
		LivenessPeriod:    discovery.DefaultLivenessPeriod,
		Timeout:           discovery.DefaultTimeout,
		SweepBudget:       discovery.DefaultSweepBudget,
		SweepWorkers:      discovery.DefaultSweepWorkers,
		SyncPeriod:        3 * time.Second,
		MetricsAddr:       ":9090",
	}
}

// Parse builds a FlagSet bound to a Config seeded with Defaults, parses
// args (pass os.Args[1:] from main), and returns the resolved Config.
func Parse(args []string) (Config, error) {
	cfg := Defaults()

	fs := pflag.NewFlagSet("gollaborate-replica", pflag.ContinueOnError)
	fs.StringVar(&cfg.ReplicaID, "replica-id", cfg.ReplicaID, "stable identity for this replica (default: random uuid)")
	fs.StringVar(&cfg.DisplayName, "display-name", cfg.DisplayName, "human-readable name announced to peers")
	fs.StringVar(&cfg.AppTag, "app-tag", cfg.AppTag, "announcement filter so unrelated swarms on the LAN are ignored")
	fs.IntVar(&cfg.Rows, "rows", cfg.Rows, "grid row count")
	fs.IntVar(&cfg.Cols, "cols", cfg.Cols, "grid column count")
	fs.StringVar(&cfg.Channel, "channel", cfg.Channel, "chat channel name")
	fs.IntVar(&cfg.BasePort, "base-port", cfg.BasePort, "service port; discovery/ident ports are derived from it")
	fs.DurationVar(&cfg.BroadcastInterval, "broadcast-interval", cfg.BroadcastInterval, "UDP announce interval")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "TCP subnet sweep interval")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "per-peer TCP connect timeout")
	fs.DurationVar(&cfg.LivenessPeriod, "liveness-period", cfg.LivenessPeriod, "reaper tick interval")
	fs.DurationVar(&cfg.Timeout, "peer-timeout", cfg.Timeout, "peer considered lost after this long unseen")
	fs.DurationVar(&cfg.SweepBudget, "sweep-budget", cfg.SweepBudget, "wall-clock cap on a single subnet sweep")
	fs.IntVar(&cfg.SweepWorkers, "sweep-workers", cfg.SweepWorkers, "bounded worker pool size for subnet sweeps")
	fs.DurationVar(&cfg.SyncPeriod, "sync-period", cfg.SyncPeriod, "periodic pull interval per peer session")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve /metrics on")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.Rows <= 0 || cfg.Cols <= 0 {
		return Config{}, fmt.Errorf("config: rows and cols must be positive, got %dx%d", cfg.Rows, cfg.Cols)
	}
	return cfg, nil
}

// DiscoveryConfig projects the fields discovery.Config needs out of Config.
func (c Config) DiscoveryConfig() discovery.Config {
	return discovery.Config{
		ReplicaID:         c.ReplicaID,
		DisplayName:       c.DisplayName,
		AppTag:            c.AppTag,
		BasePort:          c.BasePort,
		BroadcastInterval: c.BroadcastInterval,
		SweepInterval:     c.SweepInterval,
		ConnectTimeout:    c.ConnectTimeout,
		LivenessPeriod:    c.LivenessPeriod,
		Timeout:           c.Timeout,
		SweepBudget:       c.SweepBudget,
		SweepWorkers:      c.SweepWorkers,
	}
}
