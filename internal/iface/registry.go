package iface

import "sync"

// Connection is the 4-tuple uniquely identifying a bound cport pair.
type Connection struct {
	APIntf    uint8
	APCport   uint16
	PeerIntf  uint8
	PeerCport uint16
}

// Registry is the process-wide table of interfaces and active
// connections. A single mutex guards both, since connection teardown
// must see a consistent view of which interfaces exist.
type Registry struct {
	mu         sync.RWMutex
	interfaces map[uint8]*Interface
	conns      []Connection
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{interfaces: make(map[uint8]*Interface)}
}

// Register adds intf to the registry. It fails with ErrDuplicateID if the
// id is already occupied.
func (r *Registry) Register(intf *Interface) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.interfaces[intf.ID]; exists {
		return ErrDuplicateID
	}
	r.interfaces[intf.ID] = intf
	return nil
}

// Lookup returns the interface registered under id, if any.
func (r *Registry) Lookup(id uint8) (*Interface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	intf, ok := r.interfaces[id]
	return intf, ok
}

// Unregister removes the interface and every connection referencing it
// in one locked step, then invokes both sides' DestroyConnection for each
// removed connection. After it returns, Lookup(id) reports not-found.
func (r *Registry) Unregister(id uint8) error {
	// Resolve the interface pointers for every affected connection while
	// still holding the lock; the map is never touched unlocked.
	type teardown struct {
		conn     Connection
		ap, peer *Interface
	}

	r.mu.Lock()
	if _, exists := r.interfaces[id]; !exists {
		r.mu.Unlock()
		return ErrUnknownInterface
	}
	var toTeardown []teardown
	kept := r.conns[:0:0]
	for _, c := range r.conns {
		if c.APIntf == id || c.PeerIntf == id {
			toTeardown = append(toTeardown, teardown{
				conn: c,
				ap:   r.interfaces[c.APIntf],
				peer: r.interfaces[c.PeerIntf],
			})
		} else {
			kept = append(kept, c)
		}
	}
	r.conns = kept
	delete(r.interfaces, id)
	r.mu.Unlock()

	for _, td := range toTeardown {
		if td.ap != nil && td.ap.DestroyConnection != nil {
			td.ap.DestroyConnection(td.conn.APCport)
		}
		if td.peer != nil && td.peer.DestroyConnection != nil {
			td.peer.DestroyConnection(td.conn.PeerCport)
		}
	}
	return nil
}

// CreateConnection invokes CreateConnection(ap_cport) on apIntf and
// CreateConnection(peer_cport) on peerIntf. If either fails, the already
// applied side is rolled back and the connection is not inserted. A
// duplicate 4-tuple is rejected with ErrAlreadyExists without touching
// either interface.
func (r *Registry) CreateConnection(apIntf, peerIntf uint8, apCport, peerCport uint16) error {
	r.mu.Lock()
	ap, apOK := r.interfaces[apIntf]
	peer, peerOK := r.interfaces[peerIntf]
	if !apOK || !peerOK {
		r.mu.Unlock()
		return ErrUnknownInterface
	}
	want := Connection{APIntf: apIntf, APCport: apCport, PeerIntf: peerIntf, PeerCport: peerCport}
	for _, c := range r.conns {
		if c == want {
			r.mu.Unlock()
			return ErrAlreadyExists
		}
	}
	r.mu.Unlock()

	if ap.CreateConnection != nil {
		if err := ap.CreateConnection(apCport); err != nil {
			return err
		}
	}
	if peer.CreateConnection != nil {
		if err := peer.CreateConnection(peerCport); err != nil {
			if ap.DestroyConnection != nil {
				ap.DestroyConnection(apCport)
			}
			return err
		}
	}

	r.mu.Lock()
	r.conns = append(r.conns, want)
	r.mu.Unlock()
	return nil
}

// DestroyConnection tears down the 4-tuple, best-effort: the destroy
// callbacks cannot veto removal from the table.
func (r *Registry) DestroyConnection(apIntf, peerIntf uint8, apCport, peerCport uint16) error {
	want := Connection{APIntf: apIntf, APCport: apCport, PeerIntf: peerIntf, PeerCport: peerCport}

	r.mu.Lock()
	idx := -1
	for i, c := range r.conns {
		if c == want {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return ErrConnectionMissing
	}
	ap := r.interfaces[apIntf]
	peer := r.interfaces[peerIntf]
	r.conns = append(r.conns[:idx], r.conns[idx+1:]...)
	r.mu.Unlock()

	if ap != nil && ap.DestroyConnection != nil {
		ap.DestroyConnection(apCport)
	}
	if peer != nil && peer.DestroyConnection != nil {
		peer.DestroyConnection(peerCport)
	}
	return nil
}

// ConnectionByAP returns the connection bound to (apIntf, apCport), if
// any. The AP ingress path uses it to map the cport carried in an
// inbound frame to the peer side it should be delivered to.
func (r *Registry) ConnectionByAP(apIntf uint8, apCport uint16) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conns {
		if c.APIntf == apIntf && c.APCport == apCport {
			return c, true
		}
	}
	return Connection{}, false
}

// ForEachConnection calls visitor once per currently active connection.
// The snapshot is cloned under lock and the lock is released before
// visitor runs, so callbacks invoked from visitor can safely call back
// into the registry without lock inversion.
func (r *Registry) ForEachConnection(visitor func(Connection)) {
	r.mu.RLock()
	snapshot := make([]Connection, len(r.conns))
	copy(snapshot, r.conns)
	r.mu.RUnlock()

	for _, c := range snapshot {
		visitor(c)
	}
}
