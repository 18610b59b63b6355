package ap

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/apbridge/apbridged/internal/gb"
	"github.com/apbridge/apbridged/internal/hdlc"
	"github.com/apbridge/apbridged/internal/iface"
	"github.com/apbridge/apbridged/internal/message"
)

type fakeSender struct {
	payload []byte
	addr    hdlc.Address
	control byte
	err     error
}

func (f *fakeSender) SendBlock(payload []byte, addr hdlc.Address, control byte) (int, error) {
	f.payload = append([]byte(nil), payload...)
	f.addr = addr
	f.control = control
	if f.err != nil {
		return 0, f.err
	}
	return len(payload), nil
}

func TestWriteFramesMessageWithCportInPad(t *testing.T) {
	sender := &fakeSender{}
	registry := iface.NewRegistry()
	a := New(slog.Default(), sender, registry)

	msg := &message.Message{
		Header:  message.Header{Size: 12, ID: 7, Type: 0x05},
		Payload: []byte{0xde, 0xad, 0xbe, 0xef},
	}
	err := a.Interface().Write(msg, 3)
	require.NoError(t, err)

	require.Equal(t, hdlc.AddrGreybus, sender.addr)
	require.Equal(t, byte(hdlc.ControlUI), sender.control)
	require.Len(t, sender.payload, 12)

	h, err := message.UnmarshalHeader(sender.payload)
	require.NoError(t, err)
	require.Equal(t, uint16(12), h.Size)
	require.Equal(t, uint16(7), h.ID)
	require.Equal(t, uint16(3), h.Pad)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, sender.payload[8:])
}

func TestProcessFrameRoutesToConnectionPeer(t *testing.T) {
	registry := iface.NewRegistry()
	a := New(slog.Default(), &fakeSender{}, registry)
	require.NoError(t, registry.Register(a.Interface()))

	var got *message.Message
	var gotCport uint16
	peer := &iface.Interface{
		ID:   3,
		Kind: iface.KindRemoteNode,
		Capabilities: iface.Capabilities{
			Read: func(uint16) (*message.Message, bool) { return nil, false },
			Write: func(msg *message.Message, cport uint16) error {
				got = msg
				gotCport = cport
				return nil
			},
			CreateConnection:  func(uint16) error { return nil },
			DestroyConnection: func(uint16) {},
		},
	}
	require.NoError(t, registry.Register(peer))
	require.NoError(t, registry.CreateConnection(gb.APInterfaceID, 3, 5, 9))

	msg := &message.Message{
		Header:  message.Header{Size: 10, ID: 1, Type: 0x02, Pad: 5},
		Payload: []byte{1, 2},
	}
	buf, err := msg.Encode()
	require.NoError(t, err)

	a.ProcessFrame(buf)
	require.NotNil(t, got)
	require.Equal(t, uint16(9), gotCport)
	require.Equal(t, uint16(0), got.Header.Pad)
	require.Equal(t, []byte{1, 2}, got.Payload)
}

func TestProcessFrameFallsThroughToSVCOnCportZero(t *testing.T) {
	registry := iface.NewRegistry()
	a := New(slog.Default(), &fakeSender{}, registry)

	var got *message.Message
	svcIntf := &iface.Interface{
		ID:   gb.SVCInterfaceID,
		Kind: iface.KindSVC,
		Capabilities: iface.Capabilities{
			Read: func(uint16) (*message.Message, bool) { return nil, false },
			Write: func(msg *message.Message, cport uint16) error {
				got = msg
				return nil
			},
			CreateConnection:  func(uint16) error { return nil },
			DestroyConnection: func(uint16) {},
		},
	}
	require.NoError(t, registry.Register(svcIntf))

	msg := &message.Message{
		Header: message.Header{Size: 8, ID: 2, Type: gb.SVCTypePing},
	}
	buf, err := msg.Encode()
	require.NoError(t, err)

	a.ProcessFrame(buf)
	require.NotNil(t, got)
	require.Equal(t, gb.SVCTypePing, got.Header.Type)
}

func TestProcessFrameDropsUnroutableMessage(t *testing.T) {
	registry := iface.NewRegistry()
	a := New(slog.Default(), &fakeSender{}, registry)

	msg := &message.Message{
		Header: message.Header{Size: 8, ID: 2, Type: 0x05, Pad: 42},
	}
	buf, err := msg.Encode()
	require.NoError(t, err)

	// No connection on cport 42 and no SVC fallback: dropped without
	// panicking.
	a.ProcessFrame(buf)
}

func TestProcessFrameDropsUndecodableFrame(t *testing.T) {
	registry := iface.NewRegistry()
	a := New(slog.Default(), &fakeSender{}, registry)
	a.ProcessFrame([]byte{0x01, 0x02})
}
