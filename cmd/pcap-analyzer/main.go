package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"CyberGuard/internal/config"
	"CyberGuard/internal/engine/pipeline"
	"CyberGuard/internal/engine/rules"
	"CyberGuard/internal/factory"
	"CyberGuard/internal/logging"
	"CyberGuard/internal/model"
	"CyberGuard/internal/sink"
	"CyberGuard/pkg/pcap"
)

func main() {
	configFile := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-config file] <path_to_pcap_file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// 1. Get pcap file path from command-line arguments
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	// 2. Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Caller: cfg.Log.Caller})

	// 3. Initialize modules. The pipeline clock follows capture time so
	// suppression and rule windows match what happened on the wire.
	rs, err := rules.FromConfig(cfg.Rules)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build rules")
	}
	var captureTime time.Time
	p := pipeline.New(pipeline.ConfigFrom(cfg.Engine), rs, pipeline.WithClock(func() time.Time { return captureTime }))

	writers, err := factory.Create(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create sink writers")
	}
	dispatcher := sink.NewDispatcher(p, writers...)
	p.AddObserver(dispatcher.Observe)
	dispatcher.Start()

	reader, err := pcap.NewReader(pcapFilePath, pcap.Options{
		BatchSize:    cfg.Capture.BatchSize,
		PayloadBytes: cfg.Capture.PayloadBytes,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open pcap file")
	}
	defer reader.Close()
	logging.Info().Str("file", pcapFilePath).Msg("Reading packets...")

	// 4. Run one tick per batch
	var alerts []model.Alert
	stats, err := reader.ReadBatches(context.Background(), func(batch []model.Packet) error {
		captureTime = time.UnixMilli(batch[len(batch)-1].ObservedAt)
		res := p.Process(batch)
		alerts = append(alerts, res.Admitted...)
		return nil
	})
	if err != nil {
		logging.Error().Err(err).Msg("Reading stopped early")
	}
	logging.Info().Int("frames", stats.Frames).Int("parsed", stats.Parsed).Int("skipped", stats.Skipped).
		Int("batches", stats.Batches).Msg("Finished reading all packets from pcap file.")

	// 5. Report
	for _, a := range alerts {
		fmt.Printf("%s  %-13s  %-8s  %s -> %s  (%d)  %s\n",
			time.UnixMilli(a.DetectedAt).UTC().Format(time.RFC3339), a.AttackType, a.Severity,
			a.SrcAddr, a.TargetAddr, a.EvidenceCount, a.Description)
	}
	fmt.Printf("%d alerts\n", len(alerts))

	// 6. Graceful shutdown: stopping the pipeline closes the last bucket
	p.Stop()
	dispatcher.Stop()
	logging.Info().Msg("Shutdown complete.")
}
