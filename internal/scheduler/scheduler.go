// Package scheduler implements the bridge's single cooperative task: a
// context-aware run loop that sweeps every active connection, forwarding
// traffic in both directions, and never busy-spins.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/apbridge/apbridged/internal/iface"
	"github.com/apbridge/apbridged/internal/metrics"
)

// Scheduler performs one sweep over every active connection per pass,
// forwarding peer→AP and AP→peer traffic, then yields. It never busy-spins:
// a pass that moved zero messages still yields for idlePause before the
// next one.
type Scheduler struct {
	log       *slog.Logger
	registry  *iface.Registry
	clock     clockwork.Clock
	idlePause time.Duration
	metrics   *metrics.Bridge
}

// New constructs a Scheduler over registry. clock defaults to the real
// wall clock; tests substitute clockwork.NewFakeClock() for determinism.
func New(log *slog.Logger, registry *iface.Registry, clock clockwork.Clock, idlePause time.Duration, m *metrics.Bridge) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{log: log, registry: registry, clock: clock, idlePause: idlePause, metrics: m}
}

// Run executes sweeps until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Debug("scheduler: bridge loop started")
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("scheduler: stopped", "reason", ctx.Err())
			return nil
		default:
		}

		s.sweep()

		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(s.idlePause):
		}
	}
}

// sweep visits every connection once, in registration order, performing
// peer-to-AP forwarding then AP-to-peer forwarding.
func (s *Scheduler) sweep() {
	s.registry.ForEachConnection(func(c iface.Connection) {
		apIntf, ok := s.registry.Lookup(c.APIntf)
		if !ok {
			return
		}
		peerIntf, ok := s.registry.Lookup(c.PeerIntf)
		if !ok {
			return
		}

		s.forward(peerIntf, c.PeerCport, apIntf, c.APCport)
		s.forward(apIntf, c.APCport, peerIntf, c.PeerCport)
	})
}

// forward reads a single message from src (non-blocking) and, if one is
// available, writes it to dst, surrendering ownership. A write failure
// deallocates the message and is logged; the connection is left intact.
func (s *Scheduler) forward(src *iface.Interface, srcCport uint16, dst *iface.Interface, dstCport uint16) {
	msg, ok := src.Read(srcCport)
	if !ok || msg == nil {
		return
	}
	if err := dst.Write(msg, dstCport); err != nil {
		s.log.Warn("scheduler: forward failed", "error", err, "dst_intf", dst.ID, "dst_cport", dstCport)
		msg.Release()
		if s.metrics != nil {
			s.metrics.ForwardErrors.Inc()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.MessagesForwarded.Inc()
	}
}
