// Package metrics registers the bridge's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bridge holds the scheduler/forwarding-path counters.
type Bridge struct {
	MessagesForwarded prometheus.Counter
	ForwardErrors     prometheus.Counter
}

// HDLC holds the framing-engine counters.
type HDLC struct {
	FramesDropped prometheus.CounterFunc
}

// Discovery holds the node-discovery counters.
type Discovery struct {
	QueriesRun   prometheus.Counter
	NodesAdded   prometheus.Counter
	NodesRemoved prometheus.Counter
}

// NewBridge registers and returns the bridge scheduler metrics against reg.
func NewBridge(reg prometheus.Registerer) *Bridge {
	factory := promauto.With(reg)
	return &Bridge{
		MessagesForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "apbridge_messages_forwarded_total",
			Help: "Messages forwarded by the bridge scheduler.",
		}),
		ForwardErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "apbridge_forward_errors_total",
			Help: "Forwarding attempts that failed and were dropped.",
		}),
	}
}

// NewHDLC registers the HDLC engine metrics against reg. dropped reads
// the engine's internal drop counter, which stays authoritative so tests
// can observe it without a metrics registry.
func NewHDLC(reg prometheus.Registerer, dropped func() float64) *HDLC {
	factory := promauto.With(reg)
	return &HDLC{
		FramesDropped: factory.NewCounterFunc(prometheus.CounterOpts{
			Name: "apbridge_hdlc_frames_dropped_total",
			Help: "HDLC frames dropped due to FCS failure or buffer exhaustion.",
		}, dropped),
	}
}

// NewDiscovery registers and returns the discovery metrics against reg.
func NewDiscovery(reg prometheus.Registerer) *Discovery {
	factory := promauto.With(reg)
	return &Discovery{
		QueriesRun: factory.NewCounter(prometheus.CounterOpts{
			Name: "apbridge_discovery_queries_total",
			Help: "mDNS discovery queries issued.",
		}),
		NodesAdded: factory.NewCounter(prometheus.CounterOpts{
			Name: "apbridge_discovery_nodes_added_total",
			Help: "Remote nodes added by discovery.",
		}),
		NodesRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "apbridge_discovery_nodes_removed_total",
			Help: "Remote nodes removed by discovery.",
		}),
	}
}
