package node

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/apbridge/apbridged/internal/gb"
	"github.com/apbridge/apbridged/internal/iface"
	"github.com/apbridge/apbridged/internal/metrics"
)

// Registry is the subset of *iface.Registry the manager needs to add and
// remove remote-node interfaces, kept narrow for testability.
type Registry interface {
	Register(intf *iface.Interface) error
	Unregister(id uint8) error
}

// Notifier is the subset of *svc.Svc the manager uses to announce
// membership changes to the AP.
type Notifier interface {
	SendModuleInserted(intfID uint8)
	SendModuleRemoved(intfID uint8)
}

// Manager owns the process-wide set of remote-node interfaces and
// reconciles it against the address set discovery most recently observed,
// keyed by textual IPv6 address.
type Manager struct {
	log      *slog.Logger
	registry Registry
	notifier Notifier
	basePort int
	dial     dialFunc
	maxNodes int
	metrics  *metrics.Discovery

	mu      sync.Mutex
	byAddr  map[string]*Node
	usedIDs map[uint8]bool
}

// NewManager constructs a Manager that dials nodes via the real TCP
// stack. maxNodes bounds the number of concurrent node interfaces and
// hence the IDs handed out.
func NewManager(log *slog.Logger, registry Registry, notifier Notifier, basePort, maxNodes int, m *metrics.Discovery) *Manager {
	return newManagerWithDialer(log, registry, notifier, basePort, maxNodes, m, dialTCP)
}

func newManagerWithDialer(log *slog.Logger, registry Registry, notifier Notifier, basePort, maxNodes int, m *metrics.Discovery, dial dialFunc) *Manager {
	return &Manager{
		log:      log,
		registry: registry,
		notifier: notifier,
		basePort: basePort,
		dial:     dial,
		maxNodes: maxNodes,
		metrics:  m,
		byAddr:   make(map[string]*Node),
		usedIDs:  make(map[uint8]bool),
	}
}

// Filter reconciles the current node set against active, a set of
// textual IPv6 addresses discovery most recently observed. Nodes no
// longer present are destroyed; new addresses get a freshly allocated
// interface. module_removed is emitted before an interface is torn
// down, and module_inserted after a new one is registered.
func (m *Manager) Filter(active map[string]struct{}) {
	m.mu.Lock()
	var stale []*Node
	for addr, n := range m.byAddr {
		if _, ok := active[addr]; !ok {
			stale = append(stale, n)
		}
	}
	var fresh []string
	for addr := range active {
		if _, ok := m.byAddr[addr]; !ok {
			fresh = append(fresh, addr)
		}
	}
	m.mu.Unlock()

	// Deterministic order so repeated Filter calls over the same input
	// produce the same sequence of SVC events, which the scheduler-driven
	// FIFO then forwards in that order.
	sort.Strings(fresh)

	for _, n := range stale {
		m.remove(n)
	}
	for _, addr := range fresh {
		if err := m.add(addr); err != nil {
			m.log.Warn("node: failed to add discovered node", "addr", addr, "error", err)
		}
	}
}

// add allocates an id, constructs a Node, registers it, and announces
// module_inserted.
func (m *Manager) add(addr string) error {
	m.mu.Lock()
	id, ok := m.allocID()
	if !ok {
		m.mu.Unlock()
		return ErrPoolExhausted
	}
	m.usedIDs[id] = true
	m.mu.Unlock()

	n := newNode(m.log, id, addr, m.basePort, m.dial)
	if err := m.registry.Register(n.Interface()); err != nil {
		m.mu.Lock()
		delete(m.usedIDs, id)
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.byAddr[addr] = n
	m.mu.Unlock()

	m.log.Info("node: added", "addr", addr, "id", id)
	if m.metrics != nil {
		m.metrics.NodesAdded.Inc()
	}
	m.notifier.SendModuleInserted(id)
	return nil
}

// remove announces module_removed, unregisters the interface (which
// tears down every connection referencing it via the registry), and
// releases sockets and the id.
func (m *Manager) remove(n *Node) {
	m.notifier.SendModuleRemoved(n.ID())

	if err := m.registry.Unregister(n.ID()); err != nil {
		m.log.Warn("node: unregister failed", "id", n.ID(), "error", err)
	}
	n.closeAll()

	m.mu.Lock()
	delete(m.byAddr, n.Addr())
	delete(m.usedIDs, n.ID())
	m.mu.Unlock()

	m.log.Info("node: removed", "addr", n.Addr(), "id", n.ID())
	if m.metrics != nil {
		m.metrics.NodesRemoved.Inc()
	}
}

// allocID returns the lowest unused id in [gb.FirstRemoteNodeID, pool end),
// where the pool holds maxNodes slots. Must be called with mu held.
func (m *Manager) allocID() (uint8, bool) {
	for i := 0; i < m.maxNodes; i++ {
		id := gb.FirstRemoteNodeID + uint8(i)
		if !m.usedIDs[id] {
			return id, true
		}
	}
	return 0, false
}

// ReapClosed collects, from every managed node, the cports whose socket
// a read observed closed by the peer since the last call. It destroys no
// connection itself: the bridge wiring tears down the matching
// connections using the (intf, cport) pairs this returns.
func (m *Manager) ReapClosed() []ClosedCport {
	m.mu.Lock()
	nodes := make([]*Node, 0, len(m.byAddr))
	for _, n := range m.byAddr {
		nodes = append(nodes, n)
	}
	m.mu.Unlock()

	var out []ClosedCport
	for _, n := range nodes {
		for {
			cport, ok := n.popClosedCport()
			if !ok {
				break
			}
			out = append(out, ClosedCport{IntfID: n.ID(), Cport: cport})
		}
	}
	return out
}

// ClosedCport names one (interface, cport) pair whose socket the peer
// closed, surfaced so the bridge wiring can tear down the matching
// connection in the registry.
type ClosedCport struct {
	IntfID uint8
	Cport  uint16
}
