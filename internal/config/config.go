// Package config holds the bridge's tunable options, expressed as a
// struct of defaults overridable by CLI flags. The daemon has no
// persisted or hot-reloaded config file, only process-start parameters.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Compiled-in defaults; each is overridable by a flag.
const (
	DefaultMaxNodes              = 8
	DefaultHDLCMaxBlockSize      = 256
	DefaultAPBridgeCports        = 32
	DefaultNodeDiscoveryInterval = 5 * time.Second
	DefaultTCPBasePort           = 4242
	DefaultSchedulerIdlePause    = 2 * time.Millisecond
	DefaultPendingResponseTTL    = 10 * time.Second
)

// Config is the bridge's full runtime configuration.
type Config struct {
	// SerialDevice is the path to the HDLC UART (e.g. /dev/ttyACM0).
	SerialDevice string
	// SerialBaud is the UART baud rate.
	SerialBaud int

	// MaxNodes caps the number of concurrent remote-node interfaces,
	// which also bounds node IDs (allocated starting at gb.FirstRemoteNodeID).
	MaxNodes int
	// HDLCMaxBlockSize is the HDLC MTU, per frame, post-unescape.
	HDLCMaxBlockSize int
	// APBridgeCports is the per-node cport cap. It is carried in the
	// configuration only: the node manager does not consult it, and a node
	// accepts a connection on any cport.
	APBridgeCports int

	// StaticNodesEnable, when true, seeds the node set from StaticNodes at
	// start-up instead of (or in addition to) mDNS discovery.
	StaticNodesEnable bool
	// StaticNodes is a comma-separated list of IPv6 textual addresses.
	StaticNodes string

	// MDNSDiscovery enables periodic `_greybus._tcp.local` mDNS queries.
	MDNSDiscovery bool
	// NodeDiscoveryInterval is the mDNS query cadence.
	NodeDiscoveryInterval time.Duration

	// TCPBasePort is the base port added to a cport id to form the TCP
	// port a node's per-cport socket is dialed on.
	TCPBasePort int

	// SchedulerIdlePause is how long the bridge scheduler sleeps after
	// every sweep, whether or not the sweep moved messages.
	SchedulerIdlePause time.Duration
	// PendingResponseTTL bounds how long the message layer's pending-
	// response table holds an entry awaiting a response that never
	// arrives.
	PendingResponseTTL time.Duration

	// MetricsAddr is the address prometheus metrics are served on at
	// /metrics when the metrics endpoint is enabled (--metrics-enable).
	MetricsAddr string
}

// Default returns a Config populated with the firmware's compiled-in
// defaults; callers override fields from flags.
func Default() *Config {
	return &Config{
		SerialBaud:            115200,
		MaxNodes:              DefaultMaxNodes,
		HDLCMaxBlockSize:      DefaultHDLCMaxBlockSize,
		APBridgeCports:        DefaultAPBridgeCports,
		NodeDiscoveryInterval: DefaultNodeDiscoveryInterval,
		TCPBasePort:           DefaultTCPBasePort,
		SchedulerIdlePause:    DefaultSchedulerIdlePause,
		PendingResponseTTL:    DefaultPendingResponseTTL,
	}
}

// Validate checks the configuration is internally consistent before the
// bridge starts.
func (c *Config) Validate() error {
	if c.SerialDevice == "" {
		return fmt.Errorf("config: serial-device is required")
	}
	if c.MaxNodes <= 0 {
		return fmt.Errorf("config: max-nodes must be positive, got %d", c.MaxNodes)
	}
	if c.HDLCMaxBlockSize <= 0 {
		return fmt.Errorf("config: hdlc-mtu must be positive, got %d", c.HDLCMaxBlockSize)
	}
	if !c.StaticNodesEnable && !c.MDNSDiscovery {
		return fmt.Errorf("config: at least one of static-nodes or mdns-discovery must be enabled")
	}
	return nil
}

// StaticNodeList parses StaticNodes into a slice of trimmed, non-empty
// textual IPv6 addresses.
func (c *Config) StaticNodeList() []string {
	if c.StaticNodes == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(c.StaticNodes, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
