package hdlc

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ProcessFrameFunc is invoked once per complete, FCS-valid frame recovered
// from the RX byte stream.
type ProcessFrameFunc func(payload []byte, addr Address)

// Engine frames a raw byte stream as HDLC: synchronous, lock-serialized
// TX and a two-call (acquire/commit) non-blocking RX hand-off that
// assembles and dispatches complete frames.
type Engine struct {
	log *slog.Logger
	rw  io.ReadWriter
	mtu int

	txMu sync.Mutex

	onFrame ProcessFrameFunc

	rxMu      sync.Mutex
	rxBuf     []byte // accumulated, unescaped bytes of the in-progress frame
	rxEscaped bool

	dropped atomic.Uint64
}

// maxFrameOverhead bounds the accumulated frame buffer to mtu plus room for
// addr(1)+control(1)+fcs(2), so a runaway unflagged stream can't grow
// without bound.
const maxFrameOverhead = 4

// NewEngine wraps rw (the external UART byte source/sink) with an HDLC
// engine whose RX frames are delivered to onFrame.
func NewEngine(log *slog.Logger, rw io.ReadWriter, mtu int, onFrame ProcessFrameFunc) *Engine {
	return &Engine{
		log:     log,
		rw:      rw,
		mtu:     mtu,
		onFrame: onFrame,
	}
}

// DroppedFrames returns the count of frames discarded for FCS failure or
// buffer exhaustion.
func (e *Engine) DroppedFrames() uint64 {
	return e.dropped.Load()
}

// SendBlock frames payload behind addr/control, computes its FCS, and
// writes the stuffed frame synchronously. Concurrent callers are
// serialized by txMu; the call blocks until the underlying writer accepts
// the whole frame (or returns backpressure as an error).
func (e *Engine) SendBlock(payload []byte, addr Address, control byte) (int, error) {
	if len(payload) > e.mtu {
		return 0, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), e.mtu)
	}

	raw := make([]byte, 0, 2+len(payload)+2)
	raw = append(raw, byte(addr), control)
	raw = append(raw, payload...)
	fcs := frameFCS(raw)
	raw = append(raw, byte(fcs&0xFF), byte(fcs>>8))

	stuffed := Stuff(raw)
	framed := make([]byte, 0, len(stuffed)+2)
	framed = append(framed, FlagByte)
	framed = append(framed, stuffed...)
	framed = append(framed, FlagByte)

	e.txMu.Lock()
	defer e.txMu.Unlock()
	n, err := e.rw.Write(framed)
	if err != nil {
		return n, fmt.Errorf("hdlc: send_block: %w", err)
	}
	return len(payload), nil
}

// AcquireWriteBuffer returns a writable span of at least one MTU that the
// caller (the external byte source) fills directly, avoiding an extra copy
// on the hot RX path.
func (e *Engine) AcquireWriteBuffer() []byte {
	return make([]byte, e.mtu)
}

// Commit informs the engine that buf[:n] (as returned by AcquireWriteBuffer)
// holds freshly received bytes. It performs byte-unstuffing and frame
// assembly, invoking onFrame once per complete, FCS-valid frame. Malformed
// frames are silently dropped and counted; Commit never blocks.
func (e *Engine) Commit(buf []byte, n int) {
	e.rxMu.Lock()
	defer e.rxMu.Unlock()

	for i := 0; i < n; i++ {
		b := buf[i]
		switch {
		case b == FlagByte:
			e.finishFrame()
		case b == EscByte:
			e.rxEscaped = true
		default:
			v := b
			if e.rxEscaped {
				v ^= EscXor
				e.rxEscaped = false
			}
			if len(e.rxBuf) >= e.mtu+maxFrameOverhead {
				// Buffer exhaustion: drop the partial frame and resync on
				// the next flag.
				e.dropped.Add(1)
				e.rxBuf = e.rxBuf[:0]
				continue
			}
			e.rxBuf = append(e.rxBuf, v)
		}
	}
}

// finishFrame is called on a flag byte: it validates and dispatches
// whatever has accumulated in rxBuf, then resets for the next frame.
// Must be called with rxMu held.
func (e *Engine) finishFrame() {
	defer func() { e.rxBuf = e.rxBuf[:0]; e.rxEscaped = false }()

	if len(e.rxBuf) == 0 {
		// Consecutive flags (flag-fill idle) — not an error.
		return
	}
	if len(e.rxBuf) < 4 {
		e.dropped.Add(1)
		return
	}
	if !verifyFCS(e.rxBuf) {
		e.dropped.Add(1)
		return
	}

	addr := Address(e.rxBuf[0])
	payload := make([]byte, len(e.rxBuf)-4)
	copy(payload, e.rxBuf[2:len(e.rxBuf)-2])
	if e.onFrame != nil {
		e.onFrame(payload, addr)
	}
}
