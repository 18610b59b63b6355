package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/apbridge/apbridged/internal/iface"
	"github.com/apbridge/apbridged/internal/message"
	"github.com/apbridge/apbridged/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerForwardsPeerToAP(t *testing.T) {
	r := iface.NewRegistry()

	pending := message.RequestAlloc(message.NewIDAllocator(), []byte("hi"), 1, true)
	var written *message.Message

	peer := &iface.Interface{ID: 2, Capabilities: iface.Capabilities{
		Read: func(cport uint16) (*message.Message, bool) {
			if pending == nil {
				return nil, false
			}
			m := pending
			pending = nil
			return m, true
		},
		Write: func(msg *message.Message, cport uint16) error { return nil },
	}}
	ap := &iface.Interface{ID: 1, Capabilities: iface.Capabilities{
		Read:  func(cport uint16) (*message.Message, bool) { return nil, false },
		Write: func(msg *message.Message, cport uint16) error { written = msg; return nil },
	}}
	require.NoError(t, r.Register(ap))
	require.NoError(t, r.Register(peer))
	require.NoError(t, r.CreateConnection(1, 2, 0, 0))

	reg := prometheus.NewRegistry()
	sched := New(discardLogger(), r, clockwork.NewFakeClock(), time.Millisecond, metrics.NewBridge(reg))
	sched.sweep()

	require.NotNil(t, written)
	require.Equal(t, []byte("hi"), written.Payload)
}

func TestSchedulerReleasesOnWriteFailure(t *testing.T) {
	r := iface.NewRegistry()
	pending := message.RequestAlloc(message.NewIDAllocator(), []byte("hi"), 1, true)

	peer := &iface.Interface{ID: 2, Capabilities: iface.Capabilities{
		Read: func(cport uint16) (*message.Message, bool) {
			if pending == nil {
				return nil, false
			}
			m := pending
			pending = nil
			return m, true
		},
		Write: func(msg *message.Message, cport uint16) error { return nil },
	}}
	ap := &iface.Interface{ID: 1, Capabilities: iface.Capabilities{
		Read:  func(cport uint16) (*message.Message, bool) { return nil, false },
		Write: func(msg *message.Message, cport uint16) error { return errors.New("hdlc busy") },
	}}
	require.NoError(t, r.Register(ap))
	require.NoError(t, r.Register(peer))
	require.NoError(t, r.CreateConnection(1, 2, 0, 0))

	reg := prometheus.NewRegistry()
	m := metrics.NewBridge(reg)
	sched := New(discardLogger(), r, clockwork.NewFakeClock(), time.Millisecond, m)
	require.NotPanics(t, sched.sweep)

	// The connection must survive a forwarding failure.
	count := 0
	r.ForEachConnection(func(c iface.Connection) { count++ })
	require.Equal(t, 1, count)
}

func TestSchedulerRunStopsOnContextCancel(t *testing.T) {
	r := iface.NewRegistry()
	reg := prometheus.NewRegistry()
	sched := New(discardLogger(), r, clockwork.NewRealClock(), time.Millisecond, metrics.NewBridge(reg))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
}
