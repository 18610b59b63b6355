package node

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/apbridge/apbridged/internal/gb"
	"github.com/apbridge/apbridged/internal/iface"
)

// eventRecorder captures the interleaving of registry and SVC calls so
// the membership ordering contract is checkable.
type eventRecorder struct {
	mu     sync.Mutex
	events []string
	ids    map[uint8]bool
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ids: make(map[uint8]bool)}
}

func (r *eventRecorder) record(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) Register(intf *iface.Interface) error {
	r.mu.Lock()
	if r.ids[intf.ID] {
		r.mu.Unlock()
		return iface.ErrDuplicateID
	}
	r.ids[intf.ID] = true
	r.mu.Unlock()
	r.record("register")
	return nil
}

func (r *eventRecorder) Unregister(id uint8) error {
	r.mu.Lock()
	delete(r.ids, id)
	r.mu.Unlock()
	r.record("unregister")
	return nil
}

func (r *eventRecorder) SendModuleInserted(intfID uint8) { r.record("module_inserted") }
func (r *eventRecorder) SendModuleRemoved(intfID uint8)  { r.record("module_removed") }

func (r *eventRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func noDial(network, address string) (net.Conn, error) {
	panic("no connection should be dialed in this test")
}

func newTestManager(rec *eventRecorder, maxNodes int) *Manager {
	return newManagerWithDialer(discardLogger(), rec, rec, 4242, maxNodes, nil, noDial)
}

func TestFilterAddsNodeAndAnnouncesAfterRegistration(t *testing.T) {
	rec := newEventRecorder()
	m := newTestManager(rec, 4)

	m.Filter(map[string]struct{}{"fe80::1": {}})

	require.Equal(t, []string{"register", "module_inserted"}, rec.recorded())
}

func TestFilterRemovalAnnouncesBeforeTeardown(t *testing.T) {
	rec := newEventRecorder()
	m := newTestManager(rec, 4)

	m.Filter(map[string]struct{}{"fe80::1": {}})
	m.Filter(map[string]struct{}{})

	require.Equal(t, []string{"register", "module_inserted", "module_removed", "unregister"}, rec.recorded())
}

func TestFilterIsIdempotentOverUnchangedSet(t *testing.T) {
	rec := newEventRecorder()
	m := newTestManager(rec, 4)

	set := map[string]struct{}{"fe80::1": {}, "fe80::2": {}}
	m.Filter(set)
	before := rec.recorded()
	m.Filter(set)

	require.Equal(t, before, rec.recorded())
}

func TestNodeIDsStartAtFirstRemoteID(t *testing.T) {
	rec := newEventRecorder()
	m := newTestManager(rec, 4)

	m.Filter(map[string]struct{}{"fe80::1": {}})

	m.mu.Lock()
	n := m.byAddr["fe80::1"]
	m.mu.Unlock()
	require.NotNil(t, n)
	require.Equal(t, gb.FirstRemoteNodeID, n.ID())
}

func TestIDPoolExhaustion(t *testing.T) {
	rec := newEventRecorder()
	m := newTestManager(rec, 1)

	m.Filter(map[string]struct{}{"fe80::1": {}, "fe80::2": {}})

	m.mu.Lock()
	count := len(m.byAddr)
	m.mu.Unlock()
	require.Equal(t, 1, count, "only MaxNodes interfaces may exist")
}

func TestIDReusedAfterRemoval(t *testing.T) {
	rec := newEventRecorder()
	m := newTestManager(rec, 1)

	m.Filter(map[string]struct{}{"fe80::1": {}})
	m.Filter(map[string]struct{}{"fe80::2": {}})

	m.mu.Lock()
	n := m.byAddr["fe80::2"]
	m.mu.Unlock()
	require.NotNil(t, n)
	require.Equal(t, gb.FirstRemoteNodeID, n.ID())
}
