package message

import "fmt"

// Message owns a Greybus header and its payload. A Message is handed off by
// value of ownership: whoever receives one from an allocator, a read
// callback, or a queue is responsible for calling Release exactly once (or
// passing it on to something that will).
type Message struct {
	Header  Header
	Payload []byte
}

// Release is idempotent over a nil Message and exists to make ownership
// transfer points in the bridge explicit.
func (m *Message) Release() {
	if m == nil {
		return
	}
	m.Payload = nil
}

// Encode serializes the message to a contiguous header+payload buffer.
func (m *Message) Encode() ([]byte, error) {
	if int(m.Header.Size) != HeaderSize+len(m.Payload) {
		return nil, fmt.Errorf("message: header size %d does not match payload length %d", m.Header.Size, len(m.Payload))
	}
	buf := make([]byte, m.Header.Size)
	if err := m.Header.Marshal(buf); err != nil {
		return nil, err
	}
	copy(buf[HeaderSize:], m.Payload)
	return buf, nil
}

// Decode parses a contiguous header+payload buffer into a Message.
func Decode(buf []byte) (*Message, error) {
	h, err := UnmarshalHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.Size < HeaderSize {
		return nil, fmt.Errorf("message: %w: size %d < %d", ErrBadMessage, h.Size, HeaderSize)
	}
	if int(h.Size) > len(buf) {
		return nil, fmt.Errorf("message: %w: short buffer for size %d", ErrBadMessage, h.Size)
	}
	payload := make([]byte, h.Size-HeaderSize)
	copy(payload, buf[HeaderSize:h.Size])
	return &Message{Header: h, Payload: payload}, nil
}

// RequestAlloc builds a request message. When oneShot is true the id is
// fixed at 0 (no response expected); otherwise a fresh id is drawn from
// alloc.
func RequestAlloc(alloc *IDAllocator, payload []byte, typ uint8, oneShot bool) *Message {
	var id uint16
	if !oneShot {
		id = alloc.Next()
	}
	return &Message{
		Header: Header{
			Size: uint16(HeaderSize + len(payload)),
			ID:   id,
			Type: typ &^ ResponseFlag,
		},
		Payload: payload,
	}
}

// ResponseAlloc builds a response message echoing reqID, with the response
// flag set on typ and status carried in the header.
func ResponseAlloc(payload []byte, typ uint8, reqID uint16, status uint8) *Message {
	return &Message{
		Header: Header{
			Size:   uint16(HeaderSize + len(payload)),
			ID:     reqID,
			Type:   typ | ResponseFlag,
			Status: status,
		},
		Payload: payload,
	}
}
