package discovery

import "time"

// Default ports and intervals from spec.md §4.5/§6.
const (
	DefaultBasePort     = 12345
	discoveryPortOffset = 1000
	identPortOffset     = 2000

	DefaultBroadcastInterval = 10 * time.Second
	DefaultSweepInterval     = 30 * time.Second
	DefaultConnectTimeout    = 2 * time.Second
	DefaultLivenessPeriod    = 5 * time.Second
	DefaultTimeout           = 30 * time.Second
	DefaultSweepBudget       = 25 * time.Second
	DefaultSweepWorkers      = 32
)

// Config parameterizes a discovery Service. BasePort determines the three
// well-known ports (service, discovery = base+1000, ident = base+2000) per
// spec.md §6; callers MAY override every interval.
type Config struct {
	ReplicaID   string
	DisplayName string
	AppTag      string

	BasePort int

	BroadcastInterval time.Duration
	SweepInterval     time.Duration
	ConnectTimeout    time.Duration
	LivenessPeriod    time.Duration
	Timeout           time.Duration
	SweepBudget       time.Duration
	SweepWorkers      int
}

// WithDefaults fills any zero-valued field with its spec default.
func (c Config) WithDefaults() Config {
	if c.BasePort == 0 {
		c.BasePort = DefaultBasePort
	}
	if c.BroadcastInterval == 0 {
		c.BroadcastInterval = DefaultBroadcastInterval
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.LivenessPeriod == 0 {
		c.LivenessPeriod = DefaultLivenessPeriod
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SweepBudget == 0 {
		c.SweepBudget = DefaultSweepBudget
	}
	if c.SweepWorkers == 0 {
		c.SweepWorkers = DefaultSweepWorkers
	}
	return c
}

// ServicePort is the per-instance TCP port peer sessions connect to.
func (c Config) ServicePort() int { return c.BasePort }

// DiscoveryPort is the UDP announce/listen port.
func (c Config) DiscoveryPort() int { return c.BasePort + discoveryPortOffset }

// IdentPort is the TCP sweep identification port.
func (c Config) IdentPort() int { return c.BasePort + identPortOffset }
