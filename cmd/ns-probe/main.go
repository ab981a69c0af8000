package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"CyberGuard/internal/config"
	"CyberGuard/internal/engine/protocol"
	"CyberGuard/internal/logging"
	"CyberGuard/internal/model"
	"CyberGuard/internal/probe"
	"CyberGuard/internal/probe/persistent"
	"CyberGuard/pkg/pcap"

	"github.com/google/gopacket"
)

func main() {
	// --- Command-Line Flag Parsing ---
	configFile := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	mode := flag.String("mode", "sub", "Operating mode: 'pub' to capture and publish, 'sub' to subscribe and print.")
	iface := flag.String("iface", "", "Interface to capture packets from (overrides capture.interface).")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Caller: cfg.Log.Caller})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Mode Dispatch ---
	switch *mode {
	case "pub":
		if *iface != "" {
			cfg.Capture.Interface = *iface
		}
		runProbe(ctx, cfg)
	case "sub":
		runSubscriber(ctx, cfg.Probe)
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

// runProbe captures packets and publishes them to NATS in batches.
func runProbe(ctx context.Context, cfg *config.Config) {
	capCfg := cfg.Capture
	if capCfg.Interface == "" {
		logging.Error().Msg("An interface is required for probe mode (-iface or capture.interface)")
		flag.Usage()
		os.Exit(1)
	}
	logging.Info().Str("iface", capCfg.Interface).Str("subject", cfg.Probe.Subject).Msg("Starting ns-probe in PROBE mode")

	pub, err := probe.NewPublisher(cfg.Probe)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer pub.Close()

	opts := pcap.Options{
		BatchSize:     cfg.Probe.BatchSize,
		PayloadBytes:  capCfg.PayloadBytes,
		FlushInterval: config.Duration(cfg.Probe.FlushInterval),
	}

	// Optional on-disk recording of everything the probe sees.
	if cfg.Probe.Persistence.Enabled {
		worker, err := persistent.NewWorker(cfg.Probe.Persistence, capCfg.SnapshotLen)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to start persistence worker")
		}
		defer worker.Stop()
		logging.Info().Str("file", worker.Path()).Msg("Recording captured traffic")
		parseOpts := protocol.Options{PayloadBytes: capCfg.PayloadBytes}
		opts.OnFrame = func(frame gopacket.Packet) {
			p, err := protocol.ParsePacket(frame, parseOpts)
			if err != nil {
				return
			}
			worker.Enqueue(&persistent.PacketContainer{Raw: frame, Packet: p})
		}
	}

	reader, err := pcap.OpenLive(capCfg.Interface, capCfg.SnapshotLen, capCfg.Promiscuous, capCfg.BPFFilter, opts)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open capture")
	}
	defer reader.Close()

	logging.Info().Msg("Capture started successfully. Publishing packets to NATS...")
	published := 0
	stats, err := reader.ReadBatches(ctx, func(batch []model.Packet) error {
		if err := pub.Publish(batch); err != nil {
			logging.Warn().Err(err).Int("size", len(batch)).Msg("Failed to publish batch")
			return nil
		}
		before := published / 1000
		published += len(batch)
		if published/1000 > before {
			logging.Info().Int("published", published).Msg("Packets published")
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Capture failed")
	}
	logging.Info().Int("frames", stats.Frames).Int("parsed", stats.Parsed).Int("skipped", stats.Skipped).
		Int("published", published).Msg("Shutdown signal received, cleaning up...")
}

// runSubscriber subscribes to NATS and logs every batch it receives.
func runSubscriber(ctx context.Context, cfg config.ProbeConfig) {
	logging.Info().Str("subject", cfg.Subject).Msg("Starting ns-probe in SUBSCRIBER mode...")

	sub, err := probe.NewSubscriber(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create subscriber")
	}
	defer sub.Close()

	handler := func(batch []model.Packet) {
		for _, p := range batch {
			logging.Info().
				Str("src", fmt.Sprintf("%s:%d", p.SrcAddr, p.SrcPort)).
				Str("dst", fmt.Sprintf("%s:%d", p.DstAddr, p.DstPort)).
				Stringer("protocol", p.Protocol).
				Stringer("flags", p.Flags).
				Uint32("bytes", p.LengthBytes).
				Msg("Received packet")
		}
	}
	if err := sub.Start(handler); err != nil {
		logging.Fatal().Err(err).Msg("Subscriber failed to start")
	}

	<-ctx.Done()
	logging.Info().Msg("Shutdown signal received, cleaning up...")
}
