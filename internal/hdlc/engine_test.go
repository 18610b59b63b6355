package hdlc

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendBlockThenCommitRecoversFrame(t *testing.T) {
	tx := &bytes.Buffer{}
	txEng := NewEngine(discardLogger(), tx, 256, nil)

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	_, err := txEng.SendBlock(payload, AddrGreybus, ControlUI)
	require.NoError(t, err)

	var gotPayload []byte
	var gotAddr Address
	rxEng := NewEngine(discardLogger(), &bytes.Buffer{}, 256, func(p []byte, a Address) {
		gotPayload = p
		gotAddr = a
	})
	rxEng.Commit(tx.Bytes(), tx.Len())

	require.Equal(t, payload, gotPayload)
	require.Equal(t, AddrGreybus, gotAddr)
	require.Zero(t, rxEng.DroppedFrames())
}

func TestCommitDropsOnSingleBitCorruption(t *testing.T) {
	tx := &bytes.Buffer{}
	txEng := NewEngine(discardLogger(), tx, 256, nil)
	_, err := txEng.SendBlock([]byte("hello"), AddrGreybus, ControlUI)
	require.NoError(t, err)

	framed := append([]byte(nil), tx.Bytes()...)
	// Flip one bit strictly inside the stuffed body, away from the
	// delimiting flag bytes.
	framed[len(framed)/2] ^= 0x01

	called := false
	rxEng := NewEngine(discardLogger(), &bytes.Buffer{}, 256, func(p []byte, a Address) {
		called = true
	})
	rxEng.Commit(framed, len(framed))

	require.False(t, called, "corrupted frame must not be delivered upstream")
	require.Equal(t, uint64(1), rxEng.DroppedFrames())
}

func TestCommitIgnoresConsecutiveFlags(t *testing.T) {
	rxEng := NewEngine(discardLogger(), &bytes.Buffer{}, 256, func(p []byte, a Address) {
		t.Fatal("unexpected frame from flag-fill idle")
	})
	rxEng.Commit([]byte{FlagByte, FlagByte, FlagByte}, 3)
	require.Zero(t, rxEng.DroppedFrames())
}

func TestCommitDropsOnBufferExhaustion(t *testing.T) {
	rxEng := NewEngine(discardLogger(), &bytes.Buffer{}, 8, func(p []byte, a Address) {
		t.Fatal("unexpected frame from oversized stream")
	})
	huge := make([]byte, 64)
	for i := range huge {
		huge[i] = byte(i + 1) // never a flag or esc byte
	}
	rxEng.Commit(huge, len(huge))
	require.Greater(t, rxEng.DroppedFrames(), uint64(0))
}

func TestSendBlockRejectsOversizedPayload(t *testing.T) {
	eng := NewEngine(discardLogger(), &bytes.Buffer{}, 4, nil)
	_, err := eng.SendBlock([]byte("too big"), AddrGreybus, ControlUI)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}
