package node

import (
	"net"
	"time"

	"github.com/apbridge/apbridged/internal/message"
)

// socket is one cport's TCP connection plus its reassembly buffer: a
// non-blocking read must not wait for a full header+payload, so partial
// reads are retained here across calls and a message is surfaced only
// once the buffer holds all of it.
type socket struct {
	conn   net.Conn
	buf    []byte
	closed bool
}

func newSocket(conn net.Conn) *socket {
	return &socket{conn: conn}
}

// pollWindow is the longest a single poll waits for bytes to arrive.
const pollWindow = time.Millisecond

// poll performs one read attempt bounded by pollWindow, appending whatever
// arrived to buf. It returns true if the peer closed the connection or a
// non-timeout I/O error occurred.
func (s *socket) poll() bool {
	if s.closed {
		return true
	}
	// A deadline pollWindow ahead makes Read return at once with bytes
	// already received, or time out after pollWindow if none arrive. A
	// deadline already in the past would not work: Read then fails with a
	// timeout without reading anything.
	if err := s.conn.SetReadDeadline(time.Now().Add(pollWindow)); err != nil {
		return false
	}
	tmp := make([]byte, 4096)
	n, err := s.conn.Read(tmp)
	if n > 0 {
		s.buf = append(s.buf, tmp[:n]...)
	}
	if err == nil {
		return false
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return false
	}
	// EOF or any other read error: the peer is gone.
	s.closed = true
	return true
}

// tryMessage extracts one complete Greybus message from buf, if enough
// bytes have accumulated. Returns ok=false (without consuming anything)
// when the buffer holds less than a full header+payload.
func (s *socket) tryMessage() (*message.Message, bool) {
	if len(s.buf) < message.HeaderSize {
		return nil, false
	}
	h, err := message.UnmarshalHeader(s.buf)
	if err != nil {
		return nil, false
	}
	if int(h.Size) < message.HeaderSize {
		// Malformed: drop the whole accumulated buffer and resync.
		s.buf = s.buf[:0]
		return nil, false
	}
	if len(s.buf) < int(h.Size) {
		return nil, false
	}
	msg, err := message.Decode(s.buf[:h.Size])
	if err != nil {
		s.buf = s.buf[:0]
		return nil, false
	}
	s.buf = append([]byte(nil), s.buf[h.Size:]...)
	return msg, true
}

func (s *socket) write(msg *message.Message) error {
	buf, err := msg.Encode()
	if err != nil {
		return err
	}
	_, err = s.conn.Write(buf)
	return err
}

func (s *socket) close() error {
	s.closed = true
	return s.conn.Close()
}
