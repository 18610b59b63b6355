package node

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/apbridge/apbridged/internal/iface"
	"github.com/apbridge/apbridged/internal/message"
)

// dialFunc abstracts net.Dial so tests can substitute an in-process
// listener instead of a real TCP connection.
type dialFunc func(network, address string) (net.Conn, error)

// Node owns one remote peripheral's address and one TCP socket per
// cport, keyed by cport id.
type Node struct {
	log      *slog.Logger
	id       uint8
	addr     string
	basePort int
	dial     dialFunc

	mu      sync.Mutex
	sockets map[uint16]*socket

	// closedCports receives a cport id whenever poll() observes the peer
	// closing it, so the bridge can reap the matching connection at the
	// next sweep.
	closedCports chan uint16
}

func newNode(log *slog.Logger, id uint8, addr string, basePort int, dial dialFunc) *Node {
	return &Node{
		log:          log,
		id:           id,
		addr:         addr,
		basePort:     basePort,
		dial:         dial,
		sockets:      make(map[uint16]*socket),
		closedCports: make(chan uint16, 64),
	}
}

// ID returns the interface id this node was registered under.
func (n *Node) ID() uint8 { return n.id }

// Addr returns the node's textual IPv6 address.
func (n *Node) Addr() string { return n.addr }

// Interface returns the registry-ready *iface.Interface wrapping this node.
func (n *Node) Interface() *iface.Interface {
	return &iface.Interface{
		ID:   n.id,
		Kind: iface.KindRemoteNode,
		Capabilities: iface.Capabilities{
			Read:              n.read,
			Write:             n.write,
			CreateConnection:  n.createConnection,
			DestroyConnection: n.destroyConnection,
		},
	}
}

// createConnection dials [addr]:basePort+cport and stores the resulting
// socket.
func (n *Node) createConnection(cport uint16) error {
	addr := fmt.Sprintf("[%s]:%d", n.addr, n.basePort+int(cport))
	conn, err := n.dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("node: dial %s: %w", addr, err)
	}

	n.mu.Lock()
	n.sockets[cport] = newSocket(conn)
	n.mu.Unlock()
	return nil
}

func (n *Node) destroyConnection(cport uint16) {
	n.mu.Lock()
	sock, ok := n.sockets[cport]
	delete(n.sockets, cport)
	n.mu.Unlock()
	if ok {
		_ = sock.close()
	}
}

// read never waits for a whole message: it polls the cport's socket for
// at most pollWindow, accumulating a partial frame in the socket's
// reassembly buffer, and returns a message only once a complete one has
// arrived.
func (n *Node) read(cport uint16) (*message.Message, bool) {
	n.mu.Lock()
	sock, ok := n.sockets[cport]
	n.mu.Unlock()
	if !ok {
		return nil, false
	}

	if closed := sock.poll(); closed {
		select {
		case n.closedCports <- cport:
		default:
		}
		return nil, false
	}

	return sock.tryMessage()
}

func (n *Node) write(msg *message.Message, cport uint16) error {
	n.mu.Lock()
	sock, ok := n.sockets[cport]
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("node: %w: cport %d", ErrUnknownCport, cport)
	}
	return sock.write(msg)
}

// popClosedCport returns one cport whose socket was observed closed by
// the peer since the last call, if any.
func (n *Node) popClosedCport() (uint16, bool) {
	select {
	case cport := <-n.closedCports:
		return cport, true
	default:
		return 0, false
	}
}

// closeAll tears down every open socket, used when the node itself is
// being removed from the membership set.
func (n *Node) closeAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for cport, sock := range n.sockets {
		_ = sock.close()
		delete(n.sockets, cport)
	}
}

var defaultDialTimeout = 3 * time.Second

func dialTCP(network, address string) (net.Conn, error) {
	return net.DialTimeout(network, address, defaultDialTimeout)
}
