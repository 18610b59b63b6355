// Package bridge assembles the AP bridge: it owns the HDLC engine over
// the serial link, the interface registry, the SVC/AP/local-node
// interfaces, the remote-node manager, discovery, and the scheduler, and
// runs them as one supervised task group. Construction happens here;
// flag parsing is left to cmd/apbridged.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/apbridge/apbridged/internal/ap"
	"github.com/apbridge/apbridged/internal/config"
	"github.com/apbridge/apbridged/internal/discovery"
	"github.com/apbridge/apbridged/internal/gb"
	"github.com/apbridge/apbridged/internal/hdlc"
	"github.com/apbridge/apbridged/internal/iface"
	"github.com/apbridge/apbridged/internal/localnode"
	"github.com/apbridge/apbridged/internal/message"
	"github.com/apbridge/apbridged/internal/metrics"
	"github.com/apbridge/apbridged/internal/node"
	"github.com/apbridge/apbridged/internal/scheduler"
	"github.com/apbridge/apbridged/internal/svc"
)

// frame is one complete HDLC frame handed off from the RX path to the
// frame worker. The RX callback never parses Greybus itself: it only
// enqueues, so the serial pump stays non-blocking.
type frame struct {
	payload []byte
	addr    hdlc.Address
}

// rxQueueDepth bounds the RX hand-off queue; frames beyond it are dropped
// rather than stalling the serial pump.
const rxQueueDepth = 64

// reapInterval is how often the bridge sweeps nodes for peer-closed
// sockets and tears down the matching connections.
const reapInterval = 250 * time.Millisecond

// Bridge is the assembled AP bridge.
type Bridge struct {
	log    *slog.Logger
	cfg    *config.Config
	serial io.ReadWriter
	clock  clockwork.Clock

	registry *iface.Registry
	alloc    *message.IDAllocator
	engine   *hdlc.Engine
	svc      *svc.Svc
	local    *localnode.LocalNode
	ap       *ap.AP
	manager  *node.Manager
	disc     *discovery.Discovery
	sched    *scheduler.Scheduler

	frames chan frame
}

// New constructs a fully wired bridge over serial. resolver may be nil,
// in which case mDNS discovery (if enabled in cfg) uses the real
// multicast resolver; tests inject a fake. promReg may be nil to skip
// metrics registration. clock may be nil for the real wall clock.
func New(log *slog.Logger, cfg *config.Config, serial io.ReadWriter, promReg prometheus.Registerer, clock clockwork.Clock, resolver discovery.Resolver) (*Bridge, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	b := &Bridge{
		log:      log,
		cfg:      cfg,
		serial:   serial,
		clock:    clock,
		registry: iface.NewRegistry(),
		alloc:    message.NewIDAllocator(),
		frames:   make(chan frame, rxQueueDepth),
	}

	b.engine = hdlc.NewEngine(log, serial, cfg.HDLCMaxBlockSize, b.onFrame)
	b.ap = ap.New(log, b.engine, b.registry)
	b.svc = svc.New(log, b.registry, b.alloc, cfg.PendingResponseTTL)
	b.local = localnode.New(log, gb.Manifest)

	var bridgeM *metrics.Bridge
	var discM *metrics.Discovery
	if promReg != nil {
		bridgeM = metrics.NewBridge(promReg)
		discM = metrics.NewDiscovery(promReg)
		metrics.NewHDLC(promReg, func() float64 { return float64(b.engine.DroppedFrames()) })
	}

	b.manager = node.NewManager(log, b.registry, b.svc, cfg.TCPBasePort, cfg.MaxNodes, discM)

	if resolver == nil && cfg.MDNSDiscovery {
		// The query timeout is the discovery interval: a completed query
		// re-arms immediately, so the blocking query itself sets the
		// cadence.
		resolver = discovery.NewMDNSResolver(cfg.NodeDiscoveryInterval)
	}
	var static []string
	if cfg.StaticNodesEnable {
		static = cfg.StaticNodeList()
	}
	b.disc = discovery.New(log, b.manager, resolver, clock, cfg.NodeDiscoveryInterval, static, discM)

	b.sched = scheduler.New(log, b.registry, clock, cfg.SchedulerIdlePause, bridgeM)

	for _, intf := range []*iface.Interface{b.svc.Interface(), b.ap.Interface(), b.local.Interface()} {
		if err := b.registry.Register(intf); err != nil {
			return nil, fmt.Errorf("bridge: register interface %d: %w", intf.ID, err)
		}
	}

	return b, nil
}

// Svc exposes the SVC state machine; tests use it to observe readiness.
func (b *Bridge) Svc() *svc.Svc { return b.svc }

// Registry exposes the interface registry.
func (b *Bridge) Registry() *iface.Registry { return b.registry }

// Engine exposes the HDLC engine.
func (b *Bridge) Engine() *hdlc.Engine { return b.engine }

// Run wires the bootstrap SVC connection, starts the version handshake,
// and supervises the serial pump, frame worker, scheduler, discovery, and
// connection reaper until ctx is canceled or one of them fails.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.svc.Close()

	// The SVC's control cport must be reachable from the AP before the
	// handshake can move: the bridge creates that connection itself, it
	// is never requested over the wire.
	if err := b.registry.CreateConnection(gb.APInterfaceID, gb.SVCInterfaceID, gb.ControlCport, gb.ControlCport); err != nil {
		return fmt.Errorf("bridge: bootstrap svc connection: %w", err)
	}
	if err := b.svc.SendVersion(); err != nil {
		return fmt.Errorf("bridge: send version: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	// The serial read has no context of its own: closing the device is
	// what unblocks the RX pump on shutdown.
	if closer, ok := b.serial.(io.Closer); ok {
		g.Go(func() error {
			<-ctx.Done()
			_ = closer.Close()
			return nil
		})
	}
	g.Go(func() error { return b.rxPump(ctx) })
	g.Go(func() error { return b.frameWorker(ctx) })
	g.Go(func() error { return b.sched.Run(ctx) })
	g.Go(func() error { return b.disc.Run(ctx) })
	g.Go(func() error { return b.reapLoop(ctx) })
	return g.Wait()
}

// onFrame is the HDLC engine's frame callback. It runs on the serial
// pump's stack and must not block: it enqueues or drops.
func (b *Bridge) onFrame(payload []byte, addr hdlc.Address) {
	select {
	case b.frames <- frame{payload: payload, addr: addr}:
	default:
		b.log.Warn("bridge: rx frame queue full, dropping frame", "addr", addr.String(), "len", len(payload))
	}
}

// rxPump feeds the serial byte stream into the HDLC engine via its
// acquire/commit hand-off.
func (b *Bridge) rxPump(ctx context.Context) error {
	for {
		buf := b.engine.AcquireWriteBuffer()
		n, err := b.serial.Read(buf)
		if n > 0 {
			b.engine.Commit(buf, n)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return fmt.Errorf("bridge: serial link closed: %w", err)
			}
			return fmt.Errorf("bridge: serial read: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// frameWorker drains the RX queue, routing frames by HDLC address:
// Greybus frames enter the message layer, the debug channel is surfaced
// through the structured logger, and management frames are only logged
// at debug level.
func (b *Bridge) frameWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-b.frames:
			switch f.addr {
			case hdlc.AddrGreybus:
				b.ap.ProcessFrame(f.payload)
			case hdlc.AddrDebug:
				b.log.Info("bridge: debug channel", "line", strings.TrimRight(string(f.payload), "\r\n"))
			case hdlc.AddrMgmt:
				b.log.Debug("bridge: mgmt frame", "len", len(f.payload))
			default:
				b.log.Warn("bridge: frame on unknown address", "addr", uint8(f.addr))
			}
		}
	}
}

// reapLoop periodically collects cports whose TCP peer closed the
// socket and destroys every connection bound to them.
func (b *Bridge) reapLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.clock.After(reapInterval):
		}

		for _, cc := range b.manager.ReapClosed() {
			b.registry.ForEachConnection(func(c iface.Connection) {
				if c.PeerIntf == cc.IntfID && c.PeerCport == cc.Cport {
					b.log.Info("bridge: reaping connection on closed socket",
						"peer_intf", c.PeerIntf, "peer_cport", c.PeerCport)
					if err := b.registry.DestroyConnection(c.APIntf, c.PeerIntf, c.APCport, c.PeerCport); err != nil {
						b.log.Warn("bridge: reap destroy failed", "error", err)
					}
				}
			})
		}
	}
}
