// Package svc implements the SVC interface (id 0): the version/hello
// handshake state machine, the pending-read FIFO the bridge scheduler
// drains toward the AP, and the Greybus SVC protocol handlers.
package svc

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"github.com/apbridge/apbridged/internal/gb"
	"github.com/apbridge/apbridged/internal/iface"
	"github.com/apbridge/apbridged/internal/message"
)

// State is one stage of the handshake state machine.
type State int

const (
	stateInit State = iota
	stateWaitVersionResp
	stateWaitHelloResp
	stateReady
)

func (s State) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateWaitVersionResp:
		return "wait_version_resp"
	case stateWaitHelloResp:
		return "wait_hello_resp"
	case stateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Registry is the subset of *iface.Registry the SVC handlers need, kept
// narrow so svc can be unit tested against a fake.
type Registry interface {
	Lookup(id uint8) (*iface.Interface, bool)
	CreateConnection(apIntf, peerIntf uint8, apCport, peerCport uint16) error
	DestroyConnection(apIntf, peerIntf uint8, apCport, peerCport uint16) error
}

// Svc is the SVC interface's private state: the handshake FSM and the
// FIFO of synthesized messages awaiting delivery to the AP.
type Svc struct {
	log      *slog.Logger
	registry Registry
	alloc    *message.IDAllocator

	// pending correlates the SVC's own outbound requests (VERSION, HELLO,
	// module events) with the responses the AP eventually returns.
	pending *message.PendingTable[uint8]

	mu    sync.Mutex
	state State

	fifoMu sync.Mutex
	fifo   *list.List
}

// New constructs an SVC interface backed by registry for connection
// create/destroy lookups. pendingTTL bounds how long an unanswered
// outbound request stays correlatable.
func New(log *slog.Logger, registry Registry, alloc *message.IDAllocator, pendingTTL time.Duration) *Svc {
	return &Svc{
		log:      log,
		registry: registry,
		alloc:    alloc,
		pending:  message.NewPendingTable[uint8](pendingTTL),
		state:    stateInit,
		fifo:     list.New(),
	}
}

// Close releases the pending-response table's background eviction loop.
func (s *Svc) Close() {
	s.pending.Close()
}

// Interface returns the registry-ready *iface.Interface wrapping this SVC.
func (s *Svc) Interface() *iface.Interface {
	return &iface.Interface{
		ID:   gb.SVCInterfaceID,
		Kind: iface.KindSVC,
		Capabilities: iface.Capabilities{
			Read:              s.read,
			Write:             s.write,
			CreateConnection:  s.createConnection,
			DestroyConnection: s.destroyConnection,
		},
	}
}

// IsReady reports whether the version/hello handshake has completed.
func (s *Svc) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateReady
}

// ReadyInterface returns the SVC interface only when the handshake has
// completed.
func (s *Svc) ReadyInterface() (*iface.Interface, bool) {
	if !s.IsReady() {
		return nil, false
	}
	return s.Interface(), true
}

func (s *Svc) enqueue(msg *message.Message) {
	s.fifoMu.Lock()
	s.fifo.PushBack(msg)
	s.fifoMu.Unlock()
}

// read implements iface.Capabilities.Read for cport 0: a non-blocking pop
// of the pending FIFO.
func (s *Svc) read(cport uint16) (*message.Message, bool) {
	if cport != gb.ControlCport {
		return nil, false
	}
	s.fifoMu.Lock()
	defer s.fifoMu.Unlock()
	front := s.fifo.Front()
	if front == nil {
		return nil, false
	}
	s.fifo.Remove(front)
	return front.Value.(*message.Message), true
}

// write implements iface.Capabilities.Write: it synchronously parses
// and handles msg, then releases it regardless of outcome. All SVC work
// happens within write; nothing is deferred to another task.
func (s *Svc) write(msg *message.Message, cport uint16) error {
	defer msg.Release()
	if cport != gb.ControlCport {
		s.log.Warn("svc: message on unknown cport", "cport", cport)
		return nil
	}
	s.handle(msg)
	return nil
}

// createConnection admits only the bootstrap connection on cport 0, and
// only while the handshake has not yet completed: once READY, the SVC's
// cport is already wired and a second connection is refused.
func (s *Svc) createConnection(cport uint16) error {
	if cport != gb.ControlCport {
		return ErrUnknownCport
	}
	if s.IsReady() {
		return ErrAlreadyConnected
	}
	return nil
}

// destroyConnection tears the handshake state back down to INIT,
// draining and freeing every pending message.
func (s *Svc) destroyConnection(cport uint16) {
	if cport != gb.ControlCport {
		s.log.Warn("svc: destroy on unknown cport", "cport", cport)
		return
	}

	s.mu.Lock()
	s.state = stateInit
	s.mu.Unlock()

	s.fifoMu.Lock()
	for e := s.fifo.Front(); e != nil; {
		next := e.Next()
		s.fifo.Remove(e).(*message.Message).Release()
		e = next
	}
	s.fifoMu.Unlock()
}
