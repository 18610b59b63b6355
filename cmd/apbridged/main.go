package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"github.com/apbridge/apbridged/internal/bridge"
	"github.com/apbridge/apbridged/internal/config"
)

var (
	cfg = config.Default()

	verbose       bool
	metricsEnable bool

	// set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "apbridged",
	Short: "Greybus AP bridge daemon",
	Long: `apbridged bridges a host speaking Greybus-over-HDLC on a serial link
to remote peripheral nodes reached over TCP/IPv6, acting as the
Supervisory Controller for module inventory and connection lifecycle.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("apbridged %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfg.SerialDevice, "serial-device", "", "path to the HDLC UART device (e.g. /dev/ttyACM0)")
	flags.IntVar(&cfg.SerialBaud, "serial-baud", cfg.SerialBaud, "UART baud rate")
	flags.IntVar(&cfg.MaxNodes, "max-nodes", cfg.MaxNodes, "maximum concurrent remote-node interfaces")
	flags.IntVar(&cfg.HDLCMaxBlockSize, "hdlc-mtu", cfg.HDLCMaxBlockSize, "HDLC MTU per frame, post-unescape")
	flags.IntVar(&cfg.APBridgeCports, "cports-per-node", cfg.APBridgeCports, "per-node cport cap; the node manager does not enforce it")
	flags.BoolVar(&cfg.StaticNodesEnable, "static-nodes-enable", false, "seed the node set from --static-nodes at start-up")
	flags.StringVar(&cfg.StaticNodes, "static-nodes", "", "comma-separated IPv6 addresses of known nodes")
	flags.BoolVar(&cfg.MDNSDiscovery, "mdns-discovery", false, "discover nodes via periodic mDNS queries")
	flags.DurationVar(&cfg.NodeDiscoveryInterval, "discovery-interval", cfg.NodeDiscoveryInterval, "mDNS query cadence")
	flags.IntVar(&cfg.TCPBasePort, "tcp-base-port", cfg.TCPBasePort, "base TCP port; a node's cport N listens on base+N")
	flags.DurationVar(&cfg.SchedulerIdlePause, "scheduler-idle-pause", cfg.SchedulerIdlePause, "pause between bridge scheduler sweeps")
	flags.DurationVar(&cfg.PendingResponseTTL, "pending-response-ttl", cfg.PendingResponseTTL, "how long an unanswered operation stays correlatable")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", "localhost:0", "address to serve prometheus metrics on")
	flags.BoolVar(&metricsEnable, "metrics-enable", false, "enable the prometheus metrics endpoint")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(versionCmd)
}

func run(ctx context.Context) error {
	opts := &slog.HandlerOptions{}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		return err
	}

	port, err := serial.Open(cfg.SerialDevice, &serial.Mode{BaudRate: cfg.SerialBaud})
	if err != nil {
		return fmt.Errorf("open serial device %s: %w", cfg.SerialDevice, err)
	}
	defer port.Close()

	var promReg prometheus.Registerer
	if metricsEnable {
		registry := prometheus.NewRegistry()
		promReg = registry

		listener, err := net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Handler: mux}
		go func() {
			log.Info("prometheus metrics server started", "address", listener.Addr().String())
			if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	b, err := bridge.New(log, cfg, port, promReg, nil, nil)
	if err != nil {
		return err
	}

	log.Info("apbridged starting",
		"serial", cfg.SerialDevice,
		"max_nodes", cfg.MaxNodes,
		"hdlc_mtu", cfg.HDLCMaxBlockSize,
		"mdns", cfg.MDNSDiscovery,
		"static_nodes", cfg.StaticNodesEnable)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return b.Run(ctx)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("apbridged exited", "error", err)
		os.Exit(1)
	}
}
