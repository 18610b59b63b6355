// Package ap implements the AP interface (id 1): the bridge's
// host-facing endpoint whose write path frames outbound Greybus messages
// onto the HDLC link and whose receive path routes inbound frames to the
// SVC, the local-node controller, or a remote node. The destination
// cport travels in the header's pad field.
package ap

import (
	"fmt"
	"log/slog"

	"github.com/apbridge/apbridged/internal/gb"
	"github.com/apbridge/apbridged/internal/hdlc"
	"github.com/apbridge/apbridged/internal/iface"
	"github.com/apbridge/apbridged/internal/message"
)

// Sender is the slice of *hdlc.Engine the AP write path needs.
type Sender interface {
	SendBlock(payload []byte, addr hdlc.Address, control byte) (int, error)
}

// ConnectionLookup is the slice of *iface.Registry the ingress router
// needs to resolve a cport to its peer side.
type ConnectionLookup interface {
	ConnectionByAP(apIntf uint8, apCport uint16) (iface.Connection, bool)
	Lookup(id uint8) (*iface.Interface, bool)
}

// AP is the host-facing interface. Its read capability always reports
// no-message: RX is push-driven by the HDLC engine's frame callback, which
// lands in ProcessFrame rather than a poll loop.
type AP struct {
	log      *slog.Logger
	sender   Sender
	registry ConnectionLookup
}

// New constructs the AP interface over sender and registry.
func New(log *slog.Logger, sender Sender, registry ConnectionLookup) *AP {
	return &AP{log: log, sender: sender, registry: registry}
}

// Interface returns the registry-ready *iface.Interface wrapping the AP.
func (a *AP) Interface() *iface.Interface {
	return &iface.Interface{
		ID:   gb.APInterfaceID,
		Kind: iface.KindAP,
		Capabilities: iface.Capabilities{
			Read:              func(uint16) (*message.Message, bool) { return nil, false },
			Write:             a.write,
			CreateConnection:  func(uint16) error { return nil },
			DestroyConnection: func(uint16) {},
		},
	}
}

// write serializes msg (stamping cport into the header's pad field so
// the host can route it) and pushes the buffer through the HDLC engine
// on the Greybus address. The message is released on every path:
// ownership transferred to this callback regardless of HDLC outcome.
func (a *AP) write(msg *message.Message, cport uint16) error {
	defer msg.Release()

	msg.Header.Pad = cport
	buf, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("ap: encode: %w", err)
	}
	if _, err := a.sender.SendBlock(buf, hdlc.AddrGreybus, hdlc.ControlUI); err != nil {
		return fmt.Errorf("ap: %w", err)
	}
	return nil
}

// ProcessFrame handles one inbound Greybus-address HDLC frame: decode the
// message, then deliver it to the peer side of the connection the embedded
// cport names. Before any connection exists on cport 0, SVC traffic (the
// version/hello handshake) is delivered to the SVC interface directly.
func (a *AP) ProcessFrame(payload []byte) {
	msg, err := message.Decode(payload)
	if err != nil {
		a.log.Warn("ap: dropping undecodable frame", "error", err)
		return
	}
	cport := msg.Header.Pad
	msg.Header.Pad = 0

	if conn, ok := a.registry.ConnectionByAP(gb.APInterfaceID, cport); ok {
		peer, ok := a.registry.Lookup(conn.PeerIntf)
		if !ok {
			a.log.Warn("ap: connection names unknown peer", "peer_intf", conn.PeerIntf)
			msg.Release()
			return
		}
		if err := peer.Write(msg, conn.PeerCport); err != nil {
			a.log.Warn("ap: peer write failed", "peer_intf", conn.PeerIntf, "peer_cport", conn.PeerCport, "error", err)
		}
		return
	}

	// No connection on this cport yet. The SVC handshake runs before the
	// AP has created any connection, so cport 0 traffic falls through to
	// the SVC interface.
	if cport == gb.ControlCport {
		if svcIntf, ok := a.registry.Lookup(gb.SVCInterfaceID); ok {
			if err := svcIntf.Write(msg, gb.ControlCport); err != nil {
				a.log.Warn("ap: svc write failed", "error", err)
			}
			return
		}
	}

	a.log.Warn("ap: no route for inbound message", "cport", cport, "type", msg.Header.Type)
	msg.Release()
}
