package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"CyberGuard/internal/alerter"
	"CyberGuard/internal/api"
	"CyberGuard/internal/config"
	"CyberGuard/internal/engine/pipeline"
	"CyberGuard/internal/engine/rules"
	"CyberGuard/internal/engine/stream"
	"CyberGuard/internal/enrichment"
	"CyberGuard/internal/factory"
	"CyberGuard/internal/logging"
	"CyberGuard/internal/notification"
	"CyberGuard/internal/query"
	"CyberGuard/internal/sink"
	"CyberGuard/internal/source/generator"
)

func main() {
	configFile := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Caller: cfg.Log.Caller})
	logging.Info().Str("source", cfg.Engine.Source).Msg("Starting ns-engine...")

	// 2. Build the pipeline
	rs, err := rules.FromConfig(cfg.Rules)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build rules")
	}
	gen := generator.New(generator.ConfigFrom(cfg.Generator))
	opts := []pipeline.Option{pipeline.WithInjector(gen)}
	if cfg.Engine.Source == "generator" {
		opts = append(opts, pipeline.WithSource(gen))
	}
	p := pipeline.New(pipeline.ConfigFrom(cfg.Engine), rs, opts...)

	// 3. Satellites observing the pipeline
	var apiOpts []api.Option

	var enricher *enrichment.Enricher
	closeAnalyzer := func() error { return nil }
	if cfg.Enrichment.Enabled {
		analyzer, closeFn, err := enrichment.NewAnalyzer(cfg)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create AI analyzer")
		}
		closeAnalyzer = closeFn
		enricher, err = enrichment.New(p, analyzer, enrichment.OptionsFromConfig(cfg.Enrichment))
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create enricher")
		}
		p.AddObserver(enricher.Observe)
		apiOpts = append(apiOpts, api.WithEnricher(enricher))
	}

	var digest *alerter.Alerter
	if cfg.Alerter.Enabled {
		notifier, err := notification.NewEmailNotifier(cfg.SMTP)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create email notifier")
		}
		digest, err = alerter.NewAlerter(&cfg.Alerter, notifier)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create alerter")
		}
		p.AddObserver(digest.Observe)
		digest.Start()
	}

	writers, err := factory.Create(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create sink writers")
	}
	dispatcher := sink.NewDispatcher(p, writers...)
	p.AddObserver(dispatcher.Observe)
	dispatcher.Start()

	if ch := firstClickHouse(cfg); ch != nil {
		q, err := query.NewClickHouseQuerier(*ch)
		if err != nil {
			logging.Warn().Err(err).Msg("History queries disabled")
		} else {
			defer q.Close()
			apiOpts = append(apiOpts, api.WithHistory(q))
		}
	}

	// 4. Start processing
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Start(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to start pipeline")
	}

	var stopSource func()
	switch cfg.Engine.Source {
	case "nats":
		ns := stream.NewNATSStream(cfg.Probe, p)
		if err := ns.Start(ctx); err != nil {
			logging.Fatal().Err(err).Msg("Failed to start NATS stream")
		}
		stopSource = ns.Stop
	case "pcap":
		cs, err := stream.NewCaptureStream(cfg.Capture, p)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open capture")
		}
		cs.Start(ctx)
		stopSource = cs.Stop
	}

	// 5. Serve the API until a shutdown signal arrives
	server := api.NewServer(p, apiOpts...)
	if err := server.Run(ctx, cfg.API.HttpListenAddr, config.Duration(cfg.API.ShutdownTimeout)); err != nil {
		logging.Error().Err(err).Msg("API server failed")
		stop()
	}

	logging.Info().Msg("Shutdown signal received, stopping engine...")
	if stopSource != nil {
		stopSource()
	}
	p.Stop()
	dispatcher.Stop()
	if digest != nil {
		digest.Stop()
	}
	enricher.Close()
	if err := closeAnalyzer(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close AI client")
	}
	logging.Info().Msg("Shutdown complete.")
}

// firstClickHouse returns the first enabled ClickHouse writer config, which
// also serves history queries.
func firstClickHouse(cfg *config.Config) *config.ClickHouseConfig {
	for i := range cfg.Sinks.Writers {
		w := &cfg.Sinks.Writers[i]
		if w.Enabled && w.Type == "clickhouse" {
			return &w.ClickHouse
		}
	}
	return nil
}
