// Package localnode implements the local-node interface: a second local
// virtual interface hosting the Greybus Control cport the AP uses to
// fetch the device manifest. Every request is answered synchronously
// within the write callback, and replies route back through the same
// connection, since Control cport 0 always sits on a connection the AP
// itself created.
package localnode

import (
	"log/slog"

	"github.com/apbridge/apbridged/internal/gb"
	"github.com/apbridge/apbridged/internal/iface"
	"github.com/apbridge/apbridged/internal/message"
)

// LocalNode answers the Control protocol on cport 0 with a static,
// compiled-in manifest and stock lifecycle replies.
type LocalNode struct {
	log      *slog.Logger
	manifest []byte

	pending chan *message.Message
}

// New constructs a LocalNode serving manifest, an opaque blob whose
// length is the ground truth for GET_MANIFEST_SIZE.
func New(log *slog.Logger, manifest []byte) *LocalNode {
	return &LocalNode{
		log:      log,
		manifest: manifest,
		// Buffered generously: in practice at most one response is
		// outstanding per inbound request, since write handles requests
		// synchronously.
		pending: make(chan *message.Message, 16),
	}
}

// Interface returns the registry-ready *iface.Interface wrapping this
// local-node controller.
func (n *LocalNode) Interface() *iface.Interface {
	return &iface.Interface{
		ID:   gb.LocalNodeInterfaceID,
		Kind: iface.KindLocalNode,
		Capabilities: iface.Capabilities{
			Read:              n.read,
			Write:             n.write,
			CreateConnection:  func(uint16) error { return nil },
			DestroyConnection: func(uint16) {},
		},
	}
}

func (n *LocalNode) read(cport uint16) (*message.Message, bool) {
	if cport != gb.ControlCport {
		return nil, false
	}
	select {
	case msg := <-n.pending:
		return msg, true
	default:
		return nil, false
	}
}

func (n *LocalNode) write(msg *message.Message, cport uint16) error {
	defer msg.Release()
	if cport != gb.ControlCport {
		n.log.Warn("localnode: message on unknown cport", "cport", cport)
		return nil
	}
	n.handle(msg)
	return nil
}

func (n *LocalNode) respond(msg *message.Message, payload []byte) {
	resp := message.ResponseAlloc(payload, msg.Header.RequestType(), msg.Header.ID, gb.OpSuccess)
	select {
	case n.pending <- resp:
	default:
		n.log.Error("localnode: pending response channel full, dropping reply", "type", msg.Header.Type)
		resp.Release()
	}
}

func (n *LocalNode) handle(msg *message.Message) {
	switch msg.Header.RequestType() {
	case gb.ControlTypeCportShutdown, gb.ControlTypeConnected, gb.ControlTypeDisconnecting,
		gb.ControlTypeDisconnected, gb.ControlTypeTimesyncEnable, gb.ControlTypeTimesyncDisable,
		gb.ControlTypeTimesyncAuthoritative, gb.ControlTypeIntfHibernateAbort:
		n.respond(msg, nil)
	case gb.ControlTypeVersion:
		n.respond(msg, gb.ControlVersionResponse{Major: 0, Minor: 1}.Marshal())
	case gb.ControlTypeGetManifestSize:
		n.respond(msg, gb.ManifestSizeResponse{ManifestSize: uint16(len(n.manifest))}.Marshal())
	case gb.ControlTypeGetManifest:
		n.respond(msg, n.manifest)
	default:
		n.log.Warn("localnode: unimplemented control request", "type", msg.Header.RequestType())
	}
}
