// Package message implements the Greybus operation header, message
// allocation, and operation-ID bookkeeping shared by every interface in
// the bridge.
package message

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed wire size of a Greybus operation header.
const HeaderSize = 8

// ResponseFlag is the high bit of Type that marks a response message.
const ResponseFlag = 0x80

// Header is the wire layout of a Greybus operation header, always
// little-endian: size(u16) | id(u16) | type(u8) | status(u8) | pad(u16).
type Header struct {
	Size   uint16
	ID     uint16
	Type   uint8
	Status uint8
	Pad    uint16
}

// IsResponse reports whether Type carries the response flag.
func (h Header) IsResponse() bool {
	return h.Type&ResponseFlag != 0
}

// RequestType returns Type with the response flag cleared.
func (h Header) RequestType() uint8 {
	return h.Type &^ ResponseFlag
}

// Marshal writes the header to buf in wire format. buf must be at least
// HeaderSize bytes.
func (h Header) Marshal(buf []byte) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("message: buffer too small for header: %d < %d", len(buf), HeaderSize)
	}
	binary.LittleEndian.PutUint16(buf[0:2], h.Size)
	binary.LittleEndian.PutUint16(buf[2:4], h.ID)
	buf[4] = h.Type
	buf[5] = h.Status
	binary.LittleEndian.PutUint16(buf[6:8], h.Pad)
	return nil
}

// UnmarshalHeader parses a HeaderSize-byte buffer into a Header.
func UnmarshalHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("message: short header: %d < %d", len(buf), HeaderSize)
	}
	return Header{
		Size:   binary.LittleEndian.Uint16(buf[0:2]),
		ID:     binary.LittleEndian.Uint16(buf[2:4]),
		Type:   buf[4],
		Status: buf[5],
		Pad:    binary.LittleEndian.Uint16(buf[6:8]),
	}, nil
}
