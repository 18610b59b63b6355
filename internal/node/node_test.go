package node

import (
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apbridge/apbridged/internal/message"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testDialer connects every dial to a fresh loopback listener, recording
// the address the node asked for.
type testDialer struct {
	mu       sync.Mutex
	asked    []string
	listener net.Listener
	accepted chan net.Conn
}

func newTestDialer(t *testing.T) *testDialer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	d := &testDialer{listener: l, accepted: make(chan net.Conn, 8)}
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			d.accepted <- conn
		}
	}()
	return d
}

func (d *testDialer) dial(network, address string) (net.Conn, error) {
	d.mu.Lock()
	d.asked = append(d.asked, address)
	d.mu.Unlock()
	return net.Dial(network, d.listener.Addr().String())
}

func (d *testDialer) accept(t *testing.T) net.Conn {
	t.Helper()
	select {
	case conn := <-d.accepted:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func TestCreateConnectionDialsBasePortPlusCport(t *testing.T) {
	d := newTestDialer(t)
	n := newNode(discardLogger(), 3, "fe80::1", 4242, d.dial)
	defer n.closeAll()

	require.NoError(t, n.createConnection(5))
	require.Equal(t, []string{"[fe80::1]:4247"}, d.asked)
}

func TestWriteSendsHeaderThenPayloadBackToBack(t *testing.T) {
	d := newTestDialer(t)
	n := newNode(discardLogger(), 3, "fe80::1", 4242, d.dial)
	defer n.closeAll()

	require.NoError(t, n.createConnection(0))
	server := d.accept(t)
	defer server.Close()

	msg := &message.Message{
		Header:  message.Header{Size: 12, ID: 7, Type: 0x05},
		Payload: []byte{1, 2, 3, 4},
	}
	want, err := msg.Encode()
	require.NoError(t, err)
	require.NoError(t, n.write(msg, 0))

	got := make([]byte, 12)
	_, err = io.ReadFull(server, got)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestReadReassemblesPartialFrames(t *testing.T) {
	d := newTestDialer(t)
	n := newNode(discardLogger(), 3, "fe80::1", 4242, d.dial)
	defer n.closeAll()

	require.NoError(t, n.createConnection(0))
	server := d.accept(t)
	defer server.Close()

	full := &message.Message{
		Header:  message.Header{Size: 12, ID: 9, Type: 0x02},
		Payload: []byte{0xaa, 0xbb, 0xcc, 0xdd},
	}
	wire, err := full.Encode()
	require.NoError(t, err)

	// Only part of the header on the wire: read must stay empty-handed
	// without blocking or discarding the prefix.
	_, err = server.Write(wire[:5])
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		msg, ok := n.read(0)
		require.Nil(t, msg)
		return !ok
	}, time.Second, 5*time.Millisecond)

	_, err = server.Write(wire[5:])
	require.NoError(t, err)

	var got *message.Message
	require.Eventually(t, func() bool {
		msg, ok := n.read(0)
		if ok {
			got = msg
		}
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, full.Header, got.Header)
	require.Equal(t, full.Payload, got.Payload)
}

func TestTwoMessagesInOneSegmentAreBothDelivered(t *testing.T) {
	d := newTestDialer(t)
	n := newNode(discardLogger(), 3, "fe80::1", 4242, d.dial)
	defer n.closeAll()

	require.NoError(t, n.createConnection(0))
	server := d.accept(t)
	defer server.Close()

	first := &message.Message{Header: message.Header{Size: 9, ID: 1, Type: 0x02}, Payload: []byte{0x11}}
	second := &message.Message{Header: message.Header{Size: 9, ID: 2, Type: 0x02}, Payload: []byte{0x22}}
	buf1, err := first.Encode()
	require.NoError(t, err)
	buf2, err := second.Encode()
	require.NoError(t, err)
	_, err = server.Write(append(buf1, buf2...))
	require.NoError(t, err)

	var got []*message.Message
	require.Eventually(t, func() bool {
		if msg, ok := n.read(0); ok {
			got = append(got, msg)
		}
		return len(got) == 2
	}, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, uint16(1), got[0].Header.ID)
	require.Equal(t, uint16(2), got[1].Header.ID)
}

func TestPeerCloseMarksCportForTeardown(t *testing.T) {
	d := newTestDialer(t)
	n := newNode(discardLogger(), 3, "fe80::1", 4242, d.dial)
	defer n.closeAll()

	require.NoError(t, n.createConnection(4))
	server := d.accept(t)
	server.Close()

	require.Eventually(t, func() bool {
		_, ok := n.read(4)
		require.False(t, ok)
		cport, closed := n.popClosedCport()
		return closed && cport == 4
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWriteUnknownCportFails(t *testing.T) {
	d := newTestDialer(t)
	n := newNode(discardLogger(), 3, "fe80::1", 4242, d.dial)

	msg := &message.Message{Header: message.Header{Size: 8}}
	err := n.write(msg, 9)
	require.ErrorIs(t, err, ErrUnknownCport)
}
